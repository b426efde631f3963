package travel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

func TestHaversineEstimate(t *testing.T) {
	est := NewHaversineEstimator(60)
	origin := task.NewCoordinates(17.385, 78.4867)
	dest := task.NewCoordinates(17.4, 78.4867)

	d, err := est.Estimate(context.Background(), origin, dest)
	require.NoError(t, err)
	// ~1.67 км при 60 км/ч
	assert.InDelta(t, 100, d.Seconds(), 2)
}

func TestHaversineNeedsCoordinates(t *testing.T) {
	est := NewHaversineEstimator(30)

	_, err := est.Estimate(context.Background(), task.Location{Address: "MG Road"}, task.NewCoordinates(1, 1))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 0, DistanceKm(10, 10, 10, 10), 1e-9)
	// Хайдарабад - Бангалор около 500 км по прямой
	assert.InDelta(t, 500, DistanceKm(17.385, 78.4867, 12.9716, 77.5946), 15)
}

func matrixServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/maps/api/distancematrix/json", r.URL.Path)
		assert.Equal(t, "17.400000,78.400000", r.URL.Query().Get("destinations"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDistanceMatrixEstimate(t *testing.T) {
	var calls int32
	srv := matrixServer(t, http.StatusOK, `{"status":"OK","rows":[{"elements":[{"status":"OK","duration":{"value":420,"text":"7 mins"}}]}]}`, &calls)
	est := NewDistanceMatrixEstimator(DistanceMatrixConfig{BaseURL: srv.URL, APIKey: "test-key"}, srv.Client(), zaptest.NewLogger(t))

	d, err := est.Estimate(context.Background(), task.Location{Address: "Depot 4"}, task.NewCoordinates(17.4, 78.4))
	require.NoError(t, err)
	assert.Equal(t, 420*time.Second, d)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDistanceMatrixZeroResultsIsUnreachable(t *testing.T) {
	var calls int32
	srv := matrixServer(t, http.StatusOK, `{"status":"OK","rows":[{"elements":[{"status":"ZERO_RESULTS"}]}]}`, &calls)
	est := NewDistanceMatrixEstimator(DistanceMatrixConfig{BaseURL: srv.URL, APIKey: "test-key", Retries: 3}, srv.Client(), zaptest.NewLogger(t))

	_, err := est.Estimate(context.Background(), task.NewCoordinates(17, 78), task.NewCoordinates(17.4, 78.4))
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDistanceMatrixRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := matrixServer(t, http.StatusBadGateway, `upstream`, &calls)
	est := NewDistanceMatrixEstimator(DistanceMatrixConfig{
		BaseURL: srv.URL, APIKey: "test-key", Retries: 2, Backoff: time.Millisecond,
	}, srv.Client(), zaptest.NewLogger(t))

	_, err := est.Estimate(context.Background(), task.NewCoordinates(17, 78), task.NewCoordinates(17.4, 78.4))
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDistanceMatrixMissingLocation(t *testing.T) {
	est := NewDistanceMatrixEstimator(DistanceMatrixConfig{APIKey: "k"}, nil, nil)

	_, err := est.Estimate(context.Background(), task.Location{}, task.NewCoordinates(1, 1))
	assert.ErrorIs(t, err, ErrUnreachable)
}
