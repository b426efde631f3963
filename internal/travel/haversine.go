package travel

import (
	"context"
	"math"
	"time"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

const earthRadiusKm = 6371.0

type haversineEstimator struct {
	speedKmh float64
}

// NewHaversineEstimator считает время по прямой с постоянной скоростью.
// Без координат у обеих точек возвращает ErrUnreachable.
func NewHaversineEstimator(speedKmh float64) Estimator {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return &haversineEstimator{speedKmh: speedKmh}
}

func (e *haversineEstimator) Estimate(ctx context.Context, origin, destination task.Location) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !origin.HasCoordinates() || !destination.HasCoordinates() {
		return 0, ErrUnreachable
	}
	km := DistanceKm(*origin.Lat, *origin.Lng, *destination.Lat, *destination.Lng)
	hours := km / e.speedKmh
	return time.Duration(hours * float64(time.Hour)).Round(time.Second), nil
}

func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
