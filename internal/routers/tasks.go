package routers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/dto"
	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

type taskRoutes struct {
	deps Dependencies
}

// handleCreate принимает multipart: image, location и необязательные поля заявителя
func (h *taskRoutes) handleCreate(w http.ResponseWriter, r *http.Request) {
	log := h.deps.Logger
	image, contentType, err := readImage(r, "image", h.deps.MaxImageSize)
	if err != nil {
		writeError(w, log, err)
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	reporter := task.Reporter{
		ID:    claims.UserID,
		Name:  firstNonEmpty(r.FormValue("reporterName"), claims.Name),
		Phone: strings.TrimSpace(r.FormValue("reporterPhone")),
	}

	res, err := h.deps.Intake.Submit(r.Context(), intake.Submission{
		Image:       image,
		ContentType: contentType,
		Location:    r.FormValue("location"),
		Reporter:    reporter,
		Description: r.FormValue("description"),
	})
	if err != nil {
		writeError(w, log, err)
		return
	}
	if res.NoIssueDetected {
		writeJSON(w, log, http.StatusUnprocessableEntity, dto.NoIssueResponse{
			Success:         false,
			NoIssueDetected: true,
			Message:         res.Message,
		})
		return
	}
	writeJSON(w, log, http.StatusCreated, dto.CreateTaskResponse{Success: true, Summary: res.Task})
}

func (h *taskRoutes) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	if !canView(r.Context(), t) {
		writeError(w, h.deps.Logger, apperr.New(apperr.NotFound, "task not found", nil))
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, h.withResource(r.Context(), t, nil))
}

func (h *taskRoutes) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter task.Filter
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		s := task.Status(v)
		filter.Status = &s
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		c := task.Category(strings.ToLower(v))
		filter.Category = &c
	}
	if v := strings.TrimSpace(q.Get("assignedResourceId")); v != "" {
		filter.AssignedResourceID = &v
	}
	if v := strings.TrimSpace(q.Get("reporterId")); v != "" {
		filter.ReporterID = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, h.deps.Logger, apperr.Newf(apperr.Validation, "invalid limit %q", v))
			return
		}
		filter.Limit = limit
	}
	// заявитель видит только свои обращения
	if claims, _ := auth.ClaimsFromContext(r.Context()); claims.Role == auth.RoleCitizen {
		filter.ReporterID = &claims.UserID
	}

	tasks, err := h.deps.Tasks.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}

	cache := make(map[string]*dto.ResourceSummary)
	resp := dto.TaskListResponse{Tasks: make([]dto.TaskResponse, 0, len(tasks)), Count: len(tasks)}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, h.withResource(r.Context(), t, cache))
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, resp)
}

func (h *taskRoutes) handleTransition(w http.ResponseWriter, r *http.Request) {
	var payload dto.TransitionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}

	updated, err := h.deps.Tasks.Transition(r.Context(), task.TransitionRequest{
		TaskID:          chi.URLParam(r, "id"),
		Status:          payload.Status,
		Actor:           actorFrom(r),
		EvidenceImageID: payload.EvidenceImageID,
	})
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, h.withResource(r.Context(), updated, nil))
}

// handleAssign отказывает задачам, у которых уже есть исполнитель или работа завершена
func (h *taskRoutes) handleAssign(w http.ResponseWriter, r *http.Request) {
	current, err := h.deps.Tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	if err := assignment.CheckAssignable(current); err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}

	res, err := h.deps.Assigner.Assign(r.Context(), current.ID, current.Category, current.Location)
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusOK, res)
}

func (h *taskRoutes) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var payload dto.NoteRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}

	updated, err := h.deps.Tasks.AddNote(r.Context(), chi.URLParam(r, "id"), payload.Text, actorFrom(r))
	if err != nil {
		writeError(w, h.deps.Logger, err)
		return
	}
	writeJSON(w, h.deps.Logger, http.StatusCreated, h.withResource(r.Context(), updated, nil))
}

// withResource подставляет отображаемые поля исполнителя; сбой справочника не ломает ответ
func (h *taskRoutes) withResource(ctx context.Context, t task.Task, cache map[string]*dto.ResourceSummary) dto.TaskResponse {
	resp := dto.TaskResponse{Task: t}
	if t.AssignedResourceID == nil {
		return resp
	}
	id := *t.AssignedResourceID
	if summary, ok := cache[id]; ok {
		resp.AssignedResource = summary
		return resp
	}

	res, err := h.deps.Resources.Get(ctx, id)
	switch {
	case errors.Is(err, resource.ErrNotFound):
	case err != nil:
		h.deps.Logger.Warn("resource lookup failed", zap.String("resource_id", id), zap.Error(err))
	default:
		resp.AssignedResource = dto.NewResourceSummary(res)
	}
	if cache != nil {
		cache[id] = resp.AssignedResource
	}
	return resp
}

func canView(ctx context.Context, t task.Task) bool {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return claims.Role != auth.RoleCitizen || t.Reporter.ID == claims.UserID
}

// readImage читает файл из multipart-формы с ограничением размера
func readImage(r *http.Request, field string, maxSize int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperr.New(apperr.Validation, "request body too large", err)
		}
		return nil, "", apperr.New(apperr.Validation, "multipart form expected", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", apperr.Newf(apperr.Validation, "%s file is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, "", apperr.New(apperr.Validation, "failed to read image", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", apperr.Newf(apperr.Validation, "image exceeds %d bytes", maxSize)
	}
	if len(data) == 0 {
		return nil, "", apperr.New(apperr.Validation, "image is empty", nil)
	}
	return data, header.Header.Get("Content-Type"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
