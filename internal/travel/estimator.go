package travel

import (
	"context"
	"errors"
	"time"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

// ErrUnreachable - маршрут между точками не найден
var ErrUnreachable = errors.New("destination unreachable")

// Estimator оценивает время в пути от исполнителя до места заявки
type Estimator interface {
	Estimate(ctx context.Context, origin, destination task.Location) (time.Duration, error)
}

type EstimatorFunc func(ctx context.Context, origin, destination task.Location) (time.Duration, error)

func (f EstimatorFunc) Estimate(ctx context.Context, origin, destination task.Location) (time.Duration, error) {
	return f(ctx, origin, destination)
}
