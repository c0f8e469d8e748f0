package providers

import (
	"context"

	"gridexchange/internal/model"
)

// ReadingSource fetches the current set of border readings.
type ReadingSource interface {
	Name() string
	FetchReadings(ctx context.Context) ([]model.RawReading, error)
}

// StaticSource replays a fixed reading set.
type StaticSource struct {
	ID       string
	Readings []model.RawReading
	Err      error
}

func (s *StaticSource) Name() string {
	if s.ID == "" {
		return "static"
	}
	return s.ID
}

func (s *StaticSource) FetchReadings(ctx context.Context) ([]model.RawReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.RawReading, len(s.Readings))
	copy(out, s.Readings)
	return out, nil
}
