package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/classifier"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func fixedLabel(label string) classifier.Classifier {
	return classifier.Func(func(context.Context, []byte, string) (string, error) {
		return label, nil
	})
}

func countTasks(t *testing.T, repo task.TaskRepository) int {
	t.Helper()
	tasks, err := repo.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	return len(tasks)
}

func TestSubmitCreatesReportedTask(t *testing.T) {
	repo := task.NewMemoryRepository()
	objects := storage.NewMemoryStore()
	p := NewPipeline(fixedLabel("Electrical"), objects, repo, nil, zaptest.NewLogger(t), Config{})

	res, err := p.Submit(context.Background(), Submission{
		Image:       jpeg,
		ContentType: "image/jpeg",
		Location:    map[string]any{"lat": 17.4, "lng": 78.4},
		Reporter:    task.Reporter{ID: "citizen-1", Phone: "+919900000000"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Task)
	assert.Equal(t, task.CategoryElectrical, res.Task.Category)
	assert.Equal(t, task.StatusReported, res.Task.Status)
	assert.Equal(t, "Electrical issue", res.Task.Title)

	stored, err := repo.Get(context.Background(), res.Task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.CategoryElectrical, stored.Category)
	assert.Equal(t, task.StatusReported, stored.Status)
	assert.Equal(t, task.PriorityMedium, stored.Priority)
	require.Len(t, stored.ReportImageIDs, 1)
	assert.Equal(t, res.Task.ImageKey, stored.ReportImageIDs[0])
	assert.Equal(t, "citizen-1", stored.Reporter.ID)
	assert.Equal(t, 17.4, *stored.Location.Lat)

	exists, _ := objects.Exists(context.Background(), stored.ReportImageIDs[0])
	assert.True(t, exists)
}

func TestSubmitNoIssueCreatesNothing(t *testing.T) {
	repo := task.NewMemoryRepository()
	objects := storage.NewMemoryStore()
	p := NewPipeline(fixedLabel("None"), objects, repo, nil, zaptest.NewLogger(t), Config{})

	for i := 0; i < 3; i++ {
		res, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "MG Road"})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.True(t, res.NoIssueDetected)
		assert.Nil(t, res.Task)
	}
	assert.Equal(t, 0, countTasks(t, repo))
	assert.Equal(t, 0, objects.Len())
}

func TestSubmitSameImageStoresOneBlob(t *testing.T) {
	repo := task.NewMemoryRepository()
	objects := storage.NewMemoryStore()
	p := NewPipeline(fixedLabel("water"), objects, repo, nil, zaptest.NewLogger(t), Config{})

	first, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "Lane 4"})
	require.NoError(t, err)
	second, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "Lane 4"})
	require.NoError(t, err)

	assert.Equal(t, first.Task.ImageKey, second.Task.ImageKey)
	assert.NotEqual(t, first.Task.TaskID, second.Task.TaskID)
	assert.Equal(t, 1, objects.Len())
	assert.Equal(t, 1, objects.Puts())
	assert.Equal(t, 2, countTasks(t, repo))
}

type brokenStore struct{}

func (brokenStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (brokenStore) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}
func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, storage.ErrNotFound }

func TestSubmitUploadFailureStillCreatesTask(t *testing.T) {
	repo := task.NewMemoryRepository()
	p := NewPipeline(fixedLabel("sanitation"), brokenStore{}, repo, nil, zaptest.NewLogger(t), Config{})

	res, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "Ward 12"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.Task.ImageKey)

	stored, err := repo.Get(context.Background(), res.Task.TaskID)
	require.NoError(t, err)
	assert.Empty(t, stored.ReportImageIDs)
	assert.Equal(t, task.CategorySanitation, stored.Category)
}

func TestSubmitClassifierFailure(t *testing.T) {
	repo := task.NewMemoryRepository()
	failing := classifier.Func(func(context.Context, []byte, string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	p := NewPipeline(failing, storage.NewMemoryStore(), repo, nil, zaptest.NewLogger(t), Config{})

	_, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.Collaborator))
	assert.Equal(t, apperr.GenericMessage, apperr.From(err).PublicMessage())
	assert.Equal(t, 0, countTasks(t, repo))
}

func TestSubmitValidation(t *testing.T) {
	p := NewPipeline(fixedLabel("water"), storage.NewMemoryStore(), task.NewMemoryRepository(), nil, zaptest.NewLogger(t), Config{})

	_, err := p.Submit(context.Background(), Submission{})
	assert.True(t, apperr.IsCode(err, apperr.Validation))

	_, err = p.Submit(context.Background(), Submission{Image: []byte("%PDF-1.4"), ContentType: "application/pdf"})
	assert.True(t, apperr.IsCode(err, apperr.Validation))
}

func TestSubmitDetectsContentType(t *testing.T) {
	repo := task.NewMemoryRepository()
	p := NewPipeline(fixedLabel("water"), storage.NewMemoryStore(), repo, nil, zaptest.NewLogger(t), Config{})

	res, err := p.Submit(context.Background(), Submission{Image: jpeg})
	require.NoError(t, err)
	assert.Contains(t, res.Task.ImageKey, ".jpg")
}

func TestSubmitUnknownLabelBecomesGeneral(t *testing.T) {
	repo := task.NewMemoryRepository()
	p := NewPipeline(fixedLabel("graffiti"), storage.NewMemoryStore(), repo, nil, zaptest.NewLogger(t), Config{})

	res, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, task.CategoryGeneral, res.Task.Category)
}

type stubAssigner struct {
	result assignment.Result
	err    error
	calls  int
}

func (s *stubAssigner) Assign(context.Context, string, task.Category, task.Location) (assignment.Result, error) {
	s.calls++
	return s.result, s.err
}

func TestSubmitAutoAssign(t *testing.T) {
	assigner := &stubAssigner{result: assignment.Result{Assigned: true, ResourceID: "r1", ETASeconds: 60}}
	p := NewPipeline(fixedLabel("water"), storage.NewMemoryStore(), task.NewMemoryRepository(), assigner, zaptest.NewLogger(t), Config{AutoAssign: true})

	res, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "17.4,78.4"})
	require.NoError(t, err)
	assert.Equal(t, 1, assigner.calls)
	assert.Equal(t, task.StatusAssigned, res.Task.Status)
	require.NotNil(t, res.Task.Assignment)
	assert.Equal(t, "r1", res.Task.Assignment.ResourceID)
}

func TestSubmitAutoAssignFailureIsAbsorbed(t *testing.T) {
	assigner := &stubAssigner{err: errors.New("directory down")}
	p := NewPipeline(fixedLabel("water"), storage.NewMemoryStore(), task.NewMemoryRepository(), assigner, zaptest.NewLogger(t), Config{AutoAssign: true})

	res, err := p.Submit(context.Background(), Submission{Image: jpeg, ContentType: "image/jpeg", Location: "17.4,78.4"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, task.StatusReported, res.Task.Status)
	assert.Nil(t, res.Task.Assignment)
}
