package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/classifier"
	"github.com/Oniqq60/civic_report_system/internal/dto"
	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
	"github.com/Oniqq60/civic_report_system/internal/travel"
)

const secret = "0123456789abcdef0123456789abcdef"

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type env struct {
	handler   http.Handler
	tasks     task.TaskRepository
	directory resource.Directory
	objects   *storage.MemoryStore
	label     *string
}

func ptr(v float64) *float64 { return &v }

func newEnv(t *testing.T) env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tasks := task.NewMemoryRepository()
	objects := storage.NewMemoryStore()
	directory := resource.NewMemoryDirectory(
		resource.Resource{ID: "tech-1", Name: "Ravi", Phone: "+9100", Skills: []string{"electrical"}, Lat: ptr(17.41), Lng: ptr(78.41)},
	)

	label := "electrical"
	cls := classifier.Func(func(context.Context, []byte, string) (string, error) { return label, nil })
	engine := assignment.NewEngine(tasks, directory, travel.NewHaversineEstimator(30), logger, assignment.Config{ReserveOnAssign: true})
	pipeline := intake.NewPipeline(cls, objects, tasks, engine, logger, intake.Config{})

	verifier, err := auth.NewVerifier(secret, nil)
	require.NoError(t, err)

	router, err := New(Dependencies{
		Tasks:     task.NewTaskService(tasks, nil, logger),
		Intake:    pipeline,
		Assigner:  engine,
		Resources: directory,
		Objects:   objects,
		Verifier:  verifier,
		Logger:    logger,
	})
	require.NoError(t, err)
	return env{handler: router.Handler(), tasks: tasks, directory: directory, objects: objects, label: &label}
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	signed, err := auth.SignToken(userID, "User "+userID, role, time.Hour, []byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func multipartImage(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(jpeg)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, path, authorization string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func seedTask(t *testing.T, repo task.TaskRepository, id string, status task.Status) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), task.Task{
		ID: id, Category: task.CategoryElectrical, Title: "Electrical issue", Status: status,
		Priority: task.PriorityMedium, Location: task.NewCoordinates(17.4, 78.4),
		Reporter: task.Reporter{ID: "citizen-1"}, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	rec := do(t, e.handler, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestTasksRequireToken(t *testing.T) {
	e := newEnv(t)
	rec := do(t, e.handler, http.MethodGet, "/tasks", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestCreateTaskFromMultipart(t *testing.T) {
	e := newEnv(t)
	body, ct := multipartImage(t, map[string]string{
		"location":    `{"location":"{\"lat\":17.4,\"lng\":78.4}","address":"MG Road"}`,
		"description": "street light out",
	})

	rec := do(t, e.handler, http.MethodPost, "/tasks", token(t, "citizen-1", auth.RoleCitizen), body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "electrical", resp["category"])
	assert.Equal(t, "reported", resp["status"])
	taskID, _ := resp["taskId"].(string)
	require.NotEmpty(t, taskID)

	stored, err := e.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "citizen-1", stored.Reporter.ID)
	assert.Equal(t, "MG Road", stored.Location.Address)
	assert.Equal(t, task.LocationMixed, stored.Location.Kind())
	assert.Equal(t, 1, e.objects.Len())
}

func TestCreateTaskNoIssueDetected(t *testing.T) {
	e := newEnv(t)
	*e.label = "No issue"
	body, ct := multipartImage(t, map[string]string{"location": "MG Road"})

	rec := do(t, e.handler, http.MethodPost, "/tasks", token(t, "citizen-1", auth.RoleCitizen), body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp dto.NoIssueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.NoIssueDetected)
	assert.False(t, resp.Success)

	all, err := e.tasks.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransitionRequiresEvidenceAndRole(t *testing.T) {
	e := newEnv(t)
	seedTask(t, e.tasks, "t1", task.StatusAssigned)

	rec := do(t, e.handler, http.MethodPatch, "/tasks/t1/status", token(t, "citizen-1", auth.RoleCitizen),
		jsonBody(t, dto.TransitionRequest{Status: "ongoing", EvidenceImageID: "evidence/a.jpg"}), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tech := token(t, "tech-1", auth.RoleTechnician)
	rec = do(t, e.handler, http.MethodPatch, "/tasks/t1/status", tech, jsonBody(t, dto.TransitionRequest{Status: "ongoing"}), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "photo required")

	rec = do(t, e.handler, http.MethodPatch, "/tasks/t1/status", tech,
		jsonBody(t, dto.TransitionRequest{Status: "ongoing", EvidenceImageID: "evidence/a.jpg"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := e.tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusOngoing, stored.Status)
	assert.Equal(t, "tech-1", stored.UpdatedBy)

	rec = do(t, e.handler, http.MethodPatch, "/tasks/t1/status", tech, jsonBody(t, dto.TransitionRequest{Status: "reported"}), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ongoing -> reported")

	var errResp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "workflow_violation", errResp.Code)
	assert.Contains(t, errResp.Message, "ongoing -> reported")
}

func TestAssignRouteRejectsTaskInProgress(t *testing.T) {
	e := newEnv(t)
	seedTask(t, e.tasks, "t1", task.StatusReported)
	tech := token(t, "tech-1", auth.RoleTechnician)

	rec := do(t, e.handler, http.MethodPatch, "/tasks/t1/status", tech,
		jsonBody(t, dto.TransitionRequest{Status: "ongoing", EvidenceImageID: "evidence/1.jpg"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e.handler, http.MethodPost, "/tasks/t1/assign", token(t, "sup-1", auth.RoleSupervisor), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	stored, err := e.tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusOngoing, stored.Status)
	assert.Nil(t, stored.AssignedResourceID)

	// повторный вход в ongoing остаётся no-op без нового фото
	rec = do(t, e.handler, http.MethodPatch, "/tasks/t1/status", tech, jsonBody(t, dto.TransitionRequest{Status: "ongoing"}), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err = e.tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"evidence/1.jpg"}, []string(stored.InitiationImageIDs))
}

func TestAssignRouteAssignsAndRejectsRepeat(t *testing.T) {
	e := newEnv(t)
	seedTask(t, e.tasks, "t1", task.StatusReported)
	supervisor := token(t, "sup-1", auth.RoleSupervisor)

	rec := do(t, e.handler, http.MethodPost, "/tasks/t1/assign", token(t, "tech-1", auth.RoleTechnician), nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, e.handler, http.MethodPost, "/tasks/t1/assign", supervisor, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res assignment.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Assigned)
	assert.Equal(t, "tech-1", res.ResourceID)
	assert.Positive(t, res.ETASeconds)

	rec = do(t, e.handler, http.MethodPost, "/tasks/t1/assign", supervisor, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e.handler, http.MethodGet, "/tasks/t1", supervisor, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got dto.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.AssignedResource)
	assert.Equal(t, "Ravi", got.AssignedResource.Name)
}

func TestCitizenSeesOnlyOwnTasks(t *testing.T) {
	e := newEnv(t)
	seedTask(t, e.tasks, "mine", task.StatusReported)
	require.NoError(t, e.tasks.Create(context.Background(), task.Task{
		ID: "theirs", Category: task.CategoryWater, Status: task.StatusReported,
		Reporter: task.Reporter{ID: "citizen-2"}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	citizen := token(t, "citizen-1", auth.RoleCitizen)

	rec := do(t, e.handler, http.MethodGet, "/tasks", citizen, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "mine", list.Tasks[0].ID)

	rec = do(t, e.handler, http.MethodGet, "/tasks/theirs", citizen, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e.handler, http.MethodGet, "/tasks?status=bogus", token(t, "sup-1", auth.RoleSupervisor), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddNote(t *testing.T) {
	e := newEnv(t)
	seedTask(t, e.tasks, "t1", task.StatusResolved)

	rec := do(t, e.handler, http.MethodPost, "/tasks/t1/notes", token(t, "tech-1", auth.RoleTechnician),
		jsonBody(t, dto.NoteRequest{Text: "replaced fuse"}), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored, err := e.tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, stored.Notes, 1)
	assert.Equal(t, "replaced fuse", stored.Notes[0].Text)
	assert.Equal(t, "User tech-1", stored.Notes[0].AuthorName)

	rec = do(t, e.handler, http.MethodPost, "/tasks/t1/notes", token(t, "tech-1", auth.RoleTechnician),
		bytes.NewBufferString(`{"text":"x","extra":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageUploadAndProxy(t *testing.T) {
	e := newEnv(t)
	tech := token(t, "tech-1", auth.RoleTechnician)
	body, ct := multipartImage(t, nil)

	rec := do(t, e.handler, http.MethodPost, "/images", tech, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded dto.ImageUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.True(t, strings.HasPrefix(uploaded.Key, "evidence/"))

	rec = do(t, e.handler, http.MethodGet, "/images/"+uploaded.Key, tech, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, jpeg, rec.Body.Bytes())

	rec = do(t, e.handler, http.MethodGet, "/images/evidence/missing.jpg", tech, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCitizenFetchesOnlyOwnReportImages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.objects.Put(ctx, "reports/mine.jpg", jpeg, "image/jpeg"))
	require.NoError(t, e.objects.Put(ctx, "reports/theirs.jpg", jpeg, "image/jpeg"))

	now := time.Now().UTC()
	require.NoError(t, e.tasks.Create(ctx, task.Task{
		ID: "mine", Category: task.CategoryWater, Status: task.StatusReported,
		Reporter: task.Reporter{ID: "citizen-1"}, ReportImageIDs: []string{"reports/mine.jpg"},
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, e.tasks.Create(ctx, task.Task{
		ID: "theirs", Category: task.CategoryWater, Status: task.StatusReported,
		Reporter: task.Reporter{ID: "citizen-2"}, ReportImageIDs: []string{"reports/theirs.jpg"},
		CreatedAt: now, UpdatedAt: now,
	}))
	citizen := token(t, "citizen-1", auth.RoleCitizen)

	rec := do(t, e.handler, http.MethodGet, "/images/reports/mine.jpg", citizen, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, jpeg, rec.Body.Bytes())

	rec = do(t, e.handler, http.MethodGet, "/images/reports/theirs.jpg", citizen, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e.handler, http.MethodGet, "/images/reports/theirs.jpg", token(t, "sup-1", auth.RoleSupervisor), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListResources(t *testing.T) {
	e := newEnv(t)
	rec := do(t, e.handler, http.MethodGet, "/resources?status=available&skill=Electrical", token(t, "sup-1", auth.RoleSupervisor), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ResourceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "tech-1", resp.Resources[0].ID)

	rec = do(t, e.handler, http.MethodGet, "/resources?status=offline", token(t, "sup-1", auth.RoleSupervisor), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
