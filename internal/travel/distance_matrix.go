package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

type DistanceMatrixConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

type distanceMatrixEstimator struct {
	conf   DistanceMatrixConfig
	client *http.Client
	logger *zap.Logger
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value int64  `json:"value"`
				Text  string `json:"text"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// errRetryable помечает сбои, после которых запрос можно повторить
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// NewDistanceMatrixEstimator ходит в Distance Matrix API и повторяет
// запрос при сетевых ошибках и 5xx. Запрос идемпотентный.
func NewDistanceMatrixEstimator(conf DistanceMatrixConfig, client *http.Client, logger *zap.Logger) Estimator {
	if client == nil {
		client = &http.Client{Timeout: conf.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf.BaseURL == "" {
		conf.BaseURL = "https://maps.googleapis.com"
	}
	if conf.Backoff <= 0 {
		conf.Backoff = 200 * time.Millisecond
	}
	return &distanceMatrixEstimator{conf: conf, client: client, logger: logger}
}

func (e *distanceMatrixEstimator) Estimate(ctx context.Context, origin, destination task.Location) (time.Duration, error) {
	from, to := point(origin), point(destination)
	if from == "" || to == "" {
		return 0, ErrUnreachable
	}

	var lastErr error
	for attempt := 0; attempt <= e.conf.Retries; attempt++ {
		if attempt > 0 {
			wait := e.conf.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}

		d, err := e.fetch(ctx, from, to)
		if err == nil {
			return d, nil
		}
		lastErr = err

		var retryable errRetryable
		if !errors.As(err, &retryable) || ctx.Err() != nil {
			break
		}
		e.logger.Debug("distance matrix retry",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return 0, lastErr
}

func (e *distanceMatrixEstimator) fetch(ctx context.Context, origin, destination string) (time.Duration, error) {
	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", destination)
	q.Set("mode", "driving")
	q.Set("key", e.conf.APIKey)
	endpoint := strings.TrimSuffix(e.conf.BaseURL, "/") + "/maps/api/distancematrix/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, errRetryable{fmt.Errorf("distance matrix request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, errRetryable{fmt.Errorf("distance matrix status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("distance matrix status %d", resp.StatusCode)
	}

	var body matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode distance matrix response: %w", err)
	}
	if body.Status != "OK" {
		return 0, fmt.Errorf("distance matrix: %s %s", body.Status, body.ErrorMessage)
	}
	if len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 {
		return 0, ErrUnreachable
	}
	el := body.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("%w: %s", ErrUnreachable, el.Status)
	}
	return time.Duration(el.Duration.Value) * time.Second, nil
}

// point предпочитает координаты адресу
func point(l task.Location) string {
	if l.HasCoordinates() {
		return fmt.Sprintf("%.6f,%.6f", *l.Lat, *l.Lng)
	}
	return strings.TrimSpace(l.Address)
}
