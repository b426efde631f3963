package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
)

type Actor struct {
	ID   string
	Name string
}

type TransitionRequest struct {
	TaskID          string
	Status          string
	Actor           Actor
	EvidenceImageID string
}

// StatusChange уходит уведомителю после успешного перехода
type StatusChange struct {
	Task    Task
	From    Status
	To      Status
	ActorID string
	At      time.Time
}

// Notifier доставляет заявителю сообщение о смене статуса; ошибки не влияют на переход
type Notifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange) error
}

type TaskService interface {
	Get(ctx context.Context, id string) (Task, error)
	List(ctx context.Context, filter Filter) ([]Task, error)
	Transition(ctx context.Context, req TransitionRequest) (Task, error)
	AddNote(ctx context.Context, id, text string, author Actor) (Task, error)
}

type Option func(*taskService)

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *taskService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *taskService) {
		s.now = now
	}
}

type taskService struct {
	repo          TaskRepository
	notifier      Notifier
	logger        *zap.Logger
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewTaskService(repo TaskRepository, notifier Notifier, logger *zap.Logger, opts ...Option) TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &taskService{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		notifyTimeout: 5 * time.Second,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *taskService) Get(ctx context.Context, id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, apperr.New(apperr.Validation, "task id is required", nil)
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, storeError(err)
	}
	return t, nil
}

func (s *taskService) List(ctx context.Context, filter Filter) ([]Task, error) {
	if filter.Status != nil {
		st, err := ParseStatus(string(*filter.Status))
		if err != nil {
			return nil, apperr.New(apperr.Validation, err.Error(), err)
		}
		filter.Status = &st
	}
	if filter.Category != nil && !filter.Category.Valid() {
		return nil, apperr.Newf(apperr.Validation, "invalid category %q", *filter.Category)
	}

	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return tasks, nil
}

// Transition проводит задачу по жизненному циклу. Все проверки выполняются
// до записи; запись условна по версии, гонка возвращает Conflict.
func (s *taskService) Transition(ctx context.Context, req TransitionRequest) (Task, error) {
	requested, err := ParseStatus(req.Status)
	if err != nil {
		return Task{}, apperr.New(apperr.Validation, err.Error(), err)
	}
	if strings.TrimSpace(req.Actor.ID) == "" {
		return Task{}, apperr.New(apperr.Validation, "actor id is required", nil)
	}

	current, err := s.Get(ctx, req.TaskID)
	if err != nil {
		return Task{}, err
	}

	tr, err := CheckTransition(current.Status, requested)
	if err != nil {
		return Task{}, apperr.New(apperr.WorkflowViolation, err.Error(), err)
	}

	evidence := strings.TrimSpace(req.EvidenceImageID)
	if tr.RequiresEvidence() && evidence == "" {
		msg := fmt.Sprintf("%s: %s -> %s", ErrEvidenceRequired, tr.From, tr.To)
		return Task{}, apperr.New(apperr.WorkflowViolation, msg, ErrEvidenceRequired)
	}

	if tr.NoOp && (evidence == "" || tr.To.Phase() == PhasePreWork) {
		return current, nil
	}

	now := s.now()
	next := current.Clone()
	next.Status = tr.To
	next.UpdatedAt = now
	next.UpdatedBy = req.Actor.ID

	switch tr.To.Phase() {
	case PhaseOngoing:
		next.InitiationImageIDs = append(next.InitiationImageIDs, evidence)
		if next.WorkStartedAt == nil {
			next.WorkStartedAt = &now
		}
	case PhaseResolved:
		next.CompletionImageIDs = append(next.CompletionImageIDs, evidence)
		if next.ResolvedAt == nil {
			next.ResolvedAt = &now
		}
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Task{}, storeError(err)
	}

	s.logger.Info("task status changed",
		zap.String("task_id", updated.ID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor_id", req.Actor.ID),
		zap.Bool("reconfirmed", tr.NoOp),
	)

	if !tr.NoOp {
		s.notify(StatusChange{Task: updated, From: tr.From, To: tr.To, ActorID: req.Actor.ID, At: now})
	}
	return updated, nil
}

func (s *taskService) AddNote(ctx context.Context, id, text string, author Actor) (Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, apperr.New(apperr.Validation, "note text is required", nil)
	}
	if strings.TrimSpace(author.ID) == "" {
		return Task{}, apperr.New(apperr.Validation, "author id is required", nil)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}

	now := s.now()
	next := current.Clone()
	next.Notes = append(next.Notes, Note{
		Text:       text,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  now,
	})
	next.UpdatedAt = now
	next.UpdatedBy = author.ID

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Task{}, storeError(err)
	}
	return updated, nil
}

// notify не блокирует вызывающего: уведомление отправляется в фоне с таймаутом
func (s *taskService) notify(change StatusChange) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyStatusChange(ctx, change); err != nil {
			s.logger.Warn("status change notification failed",
				zap.String("task_id", change.Task.ID),
				zap.String("status", string(change.To)),
				zap.Error(err),
			)
		}
	}()
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.New(apperr.NotFound, "task not found", err)
	case errors.Is(err, ErrConflict):
		return apperr.New(apperr.Conflict, "task was modified by another request, retry", err)
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.New(apperr.Collaborator, "task store failure", err)
	}
}
