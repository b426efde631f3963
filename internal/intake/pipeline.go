package intake

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/classifier"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

const (
	reportPrefix   = "reports"
	NoIssueMessage = "no civic issue was detected in the photo"
)

// TaskCreator - часть хранилища задач, нужная приёму заявок
type TaskCreator interface {
	Create(ctx context.Context, t task.Task) error
}

// Assigner вызывается после создания задачи, если настроен
type Assigner interface {
	Assign(ctx context.Context, taskID string, category task.Category, location task.Location) (assignment.Result, error)
}

// Submission.Location - объект, строка с JSON или адрес
type Submission struct {
	Image       []byte
	ContentType string
	Location    any
	Reporter    task.Reporter
	Description string
}

type Summary struct {
	TaskID     string             `json:"taskId"`
	Category   task.Category      `json:"category"`
	Title      string             `json:"title"`
	Status     task.Status        `json:"status"`
	Priority   task.Priority      `json:"priority"`
	Location   task.Location      `json:"location"`
	ImageKey   string             `json:"imageKey,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	Assignment *assignment.Result `json:"assignment,omitempty"`
}

// Result: NoIssueDetected - отдельный не ошибочный исход, задача не создаётся
type Result struct {
	Success         bool     `json:"success"`
	NoIssueDetected bool     `json:"noIssueDetected,omitempty"`
	Message         string   `json:"message,omitempty"`
	Task            *Summary `json:"task,omitempty"`
}

type Config struct {
	ClassifyTimeout time.Duration
	StorageTimeout  time.Duration
	AutoAssign      bool
}

type Pipeline struct {
	classifier classifier.Classifier
	objects    storage.ObjectStore
	tasks      TaskCreator
	assigner   Assigner
	logger     *zap.Logger
	conf       Config
	newID      func() string
	now        func() time.Time
}

func NewPipeline(c classifier.Classifier, objects storage.ObjectStore, tasks TaskCreator, assigner Assigner, logger *zap.Logger, conf Config) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf.ClassifyTimeout <= 0 {
		conf.ClassifyTimeout = 20 * time.Second
	}
	if conf.StorageTimeout <= 0 {
		conf.StorageTimeout = 10 * time.Second
	}
	return &Pipeline{
		classifier: c,
		objects:    objects,
		tasks:      tasks,
		assigner:   assigner,
		logger:     logger,
		conf:       conf,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit классифицирует снимок и создаёт задачу. Ошибка классификатора
// прерывает приём; ошибка загрузки снимка только логируется.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (Result, error) {
	if len(sub.Image) == 0 {
		return Result{}, apperr.New(apperr.Validation, "image is required", nil)
	}
	contentType := sub.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(sub.Image)
	}
	if !storage.AllowedImageType(contentType) {
		return Result{}, apperr.Newf(apperr.Validation, "unsupported image type %q", contentType)
	}

	location := ParseLocation(sub.Location)

	label, err := p.classify(ctx, sub.Image, contentType)
	if err != nil {
		p.logger.Error("image classification failed", zap.Error(err))
		return Result{}, apperr.New(apperr.Collaborator, "image classification failed", err)
	}
	if classifier.IsNoIssue(label) {
		p.logger.Info("no issue detected, task not created", zap.String("label", label))
		return Result{Success: false, NoIssueDetected: true, Message: NoIssueMessage}, nil
	}
	category := task.ParseCategory(label)

	imageKey := p.storeImage(ctx, sub.Image, contentType)

	now := p.now()
	t := task.Task{
		ID:          p.newID(),
		Category:    category,
		Title:       category.Title(),
		Description: strings.TrimSpace(sub.Description),
		Status:      task.StatusReported,
		Priority:    task.PriorityMedium,
		Location:    location,
		Reporter:    sub.Reporter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if imageKey != "" {
		t.ReportImageIDs = append(t.ReportImageIDs, imageKey)
	}

	// создание не повторяется: без ключа дедупликации появились бы дубли
	if err := p.tasks.Create(ctx, t); err != nil {
		p.logger.Error("task create failed", zap.Error(err))
		return Result{}, apperr.New(apperr.Collaborator, "task store failure", err)
	}
	p.logger.Info("task created from report",
		zap.String("task_id", t.ID),
		zap.String("category", string(category)),
		zap.String("location_kind", string(location.Kind())),
		zap.Bool("has_image", imageKey != ""),
	)

	summary := &Summary{
		TaskID:    t.ID,
		Category:  t.Category,
		Title:     t.Title,
		Status:    t.Status,
		Priority:  t.Priority,
		Location:  t.Location,
		ImageKey:  imageKey,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	p.autoAssign(ctx, summary)
	return Result{Success: true, Task: summary}, nil
}

func (p *Pipeline) classify(ctx context.Context, image []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.conf.ClassifyTimeout)
	defer cancel()
	return p.classifier.Classify(ctx, image, contentType)
}

// storeImage возвращает пустой ключ, если снимок сохранить не удалось
func (p *Pipeline) storeImage(ctx context.Context, image []byte, contentType string) string {
	if p.objects == nil {
		return ""
	}
	key := storage.ContentKey(reportPrefix, image, contentType)

	ctx, cancel := context.WithTimeout(ctx, p.conf.StorageTimeout)
	defer cancel()

	exists, err := p.objects.Exists(ctx, key)
	if err != nil {
		p.logger.Warn("object existence check failed, uploading anyway", zap.String("key", key), zap.Error(err))
	}
	if exists {
		return key
	}
	if err := p.objects.Put(ctx, key, image, contentType); err != nil {
		p.logger.Error("report image upload failed, task created without image", zap.String("key", key), zap.Error(err))
		return ""
	}
	return key
}

func (p *Pipeline) autoAssign(ctx context.Context, summary *Summary) {
	if !p.conf.AutoAssign || p.assigner == nil {
		return
	}
	res, err := p.assigner.Assign(ctx, summary.TaskID, summary.Category, summary.Location)
	if err != nil {
		p.logger.Warn("automatic assignment failed", zap.String("task_id", summary.TaskID), zap.Error(err))
		return
	}
	summary.Assignment = &res
	if res.Assigned {
		summary.Status = task.StatusAssigned
	} else {
		summary.Status = task.StatusPending
	}
}
