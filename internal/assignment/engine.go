package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/apperr"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/task"
	"github.com/Oniqq60/civic_report_system/internal/travel"
)

type Result struct {
	Assigned   bool   `json:"assigned"`
	ResourceID string `json:"resourceId,omitempty"`
	ETASeconds int64  `json:"etaSeconds,omitempty"`
}

// MarshalJSON: etaSeconds присутствует у любого успешного назначения, даже нулевой
func (r Result) MarshalJSON() ([]byte, error) {
	type wire struct {
		Assigned   bool   `json:"assigned"`
		ResourceID string `json:"resourceId,omitempty"`
		ETASeconds *int64 `json:"etaSeconds,omitempty"`
	}
	out := wire{Assigned: r.Assigned, ResourceID: r.ResourceID}
	if r.Assigned {
		eta := r.ETASeconds
		out.ETASeconds = &eta
	}
	return json.Marshal(out)
}

type Config struct {
	// ReserveOnAssign переводит выбранного исполнителя в busy
	ReserveOnAssign bool
	EstimateTimeout time.Duration
	// Notifier получает событие о назначении, может быть nil
	Notifier      task.Notifier
	NotifyTimeout time.Duration
}

type Engine struct {
	tasks     task.TaskRepository
	directory resource.Directory
	estimator travel.Estimator
	logger    *zap.Logger
	conf      Config
	now       func() time.Time
}

func NewEngine(tasks task.TaskRepository, directory resource.Directory, estimator travel.Estimator, logger *zap.Logger, conf Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf.EstimateTimeout <= 0 {
		conf.EstimateTimeout = 5 * time.Second
	}
	if conf.NotifyTimeout <= 0 {
		conf.NotifyTimeout = 5 * time.Second
	}
	return &Engine{
		tasks:     tasks,
		directory: directory,
		estimator: estimator,
		logger:    logger,
		conf:      conf,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type candidate struct {
	resource resource.Resource
	eta      time.Duration
	// reachable=false равносильно бесконечному времени в пути
	reachable bool
}

// Assign выбирает ближайшего свободного исполнителя с нужным навыком.
// Статус задачи записывается без проверки текущего: повторное назначение
// отсекает вызывающая сторона.
func (e *Engine) Assign(ctx context.Context, taskID string, category task.Category, location task.Location) (Result, error) {
	current, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return Result{}, taskError(err)
	}

	candidates, err := e.rank(ctx, category, location)
	if err != nil {
		return Result{}, err
	}

	for _, c := range candidates {
		if e.conf.ReserveOnAssign {
			err := e.directory.Reserve(ctx, c.resource.ID, c.resource.Version)
			if errors.Is(err, resource.ErrConflict) || errors.Is(err, resource.ErrNotFound) {
				e.logger.Info("candidate taken by another assignment, trying next",
					zap.String("task_id", taskID),
					zap.String("resource_id", c.resource.ID),
				)
				continue
			}
			if err != nil {
				return Result{}, apperr.New(apperr.Collaborator, "resource directory failure", err)
			}
		}

		updated, err := e.bind(ctx, current, c.resource.ID)
		if err != nil {
			if e.conf.ReserveOnAssign {
				if relErr := e.directory.Release(ctx, c.resource.ID); relErr != nil {
					e.logger.Error("failed to release reserved resource",
						zap.String("resource_id", c.resource.ID),
						zap.Error(relErr),
					)
				}
			}
			return Result{}, err
		}

		res := Result{Assigned: true, ResourceID: c.resource.ID, ETASeconds: seconds(c.eta)}
		e.logger.Info("task assigned",
			zap.String("task_id", taskID),
			zap.String("resource_id", res.ResourceID),
			zap.Int64("eta_seconds", res.ETASeconds),
		)
		if current.Status != task.StatusAssigned {
			e.notify(task.StatusChange{Task: updated, From: current.Status, To: task.StatusAssigned, ActorID: "system", At: updated.UpdatedAt})
		}
		return res, nil
	}

	if err := e.markPending(ctx, current); err != nil {
		return Result{}, err
	}
	e.logger.Info("no resource available, task left pending",
		zap.String("task_id", taskID),
		zap.String("category", string(category)),
	)
	return Result{Assigned: false}, nil
}

// rank возвращает достижимых кандидатов по возрастанию времени в пути;
// при равенстве сохраняется порядок справочника
func (e *Engine) rank(ctx context.Context, category task.Category, location task.Location) ([]candidate, error) {
	available := resource.StatusAvailable
	resources, err := e.directory.Query(ctx, resource.Filter{Status: &available})
	if err != nil {
		return nil, apperr.New(apperr.Collaborator, "resource directory failure", err)
	}

	var matching []resource.Resource
	for _, r := range resources {
		if r.HasSkill(string(category)) {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 || location.Empty() {
		return nil, nil
	}

	estimated := iter.Map(matching, func(r *resource.Resource) candidate {
		callCtx, cancel := context.WithTimeout(ctx, e.conf.EstimateTimeout)
		defer cancel()

		eta, err := e.estimator.Estimate(callCtx, r.Location(), location)
		if err != nil {
			e.logger.Warn("travel estimate failed, candidate skipped",
				zap.String("resource_id", r.ID),
				zap.Error(err),
			)
			return candidate{resource: *r}
		}
		return candidate{resource: *r, eta: eta, reachable: true}
	})

	reachable := estimated[:0]
	for _, c := range estimated {
		if c.reachable {
			reachable = append(reachable, c)
		}
	}
	sort.SliceStable(reachable, func(i, j int) bool {
		return reachable[i].eta < reachable[j].eta
	})
	return reachable, nil
}

func (e *Engine) bind(ctx context.Context, current task.Task, resourceID string) (task.Task, error) {
	now := e.now()
	next := current.Clone()
	next.Status = task.StatusAssigned
	next.AssignedResourceID = &resourceID
	if next.AssignedAt == nil {
		next.AssignedAt = &now
	}
	next.UpdatedAt = now

	updated, err := e.tasks.Update(ctx, next)
	if err != nil {
		return task.Task{}, taskError(err)
	}
	return updated, nil
}

func (e *Engine) notify(change task.StatusChange) {
	if e.conf.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.conf.NotifyTimeout)
		defer cancel()

		if err := e.conf.Notifier.NotifyStatusChange(ctx, change); err != nil {
			e.logger.Warn("assignment notification failed",
				zap.String("task_id", change.Task.ID),
				zap.Error(err),
			)
		}
	}()
}

func (e *Engine) markPending(ctx context.Context, current task.Task) error {
	next := current.Clone()
	next.Status = task.StatusPending
	next.UpdatedAt = e.now()

	if _, err := e.tasks.Update(ctx, next); err != nil {
		return taskError(err)
	}
	return nil
}

func seconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}

func taskError(err error) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return apperr.New(apperr.NotFound, "task not found", err)
	case errors.Is(err, task.ErrConflict):
		return apperr.New(apperr.Conflict, "task was modified by another request, retry", err)
	default:
		return apperr.New(apperr.Collaborator, "task store failure", err)
	}
}

// CheckAssignable пропускает только задачи до начала работ без исполнителя:
// Assign перезаписывает статус, и задача не должна откатиться назад
func CheckAssignable(t task.Task) error {
	if t.AssignedResourceID != nil {
		return apperr.Newf(apperr.WorkflowViolation, "task already assigned to %s", *t.AssignedResourceID)
	}
	switch t.Status.Phase() {
	case task.PhaseOngoing:
		return apperr.New(apperr.WorkflowViolation, "work on the task has already started", nil)
	case task.PhaseResolved:
		return apperr.New(apperr.WorkflowViolation, "task is already resolved", nil)
	}
	return nil
}
