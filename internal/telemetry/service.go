// ABOUTME: Telemetry service is the single entry point for storing and querying readings
// ABOUTME: Applies the ingest gate before every write and turns empty query results into ok=false

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/weather-gateway/internal/ingest"
	"github.com/2389/weather-gateway/internal/store"
)

// Service stores readings that pass the quality gate and answers the
// analytic queries over them.
type Service struct {
	store  store.ReadingStore
	gate   *ingest.Gate
	logger *slog.Logger
}

// New creates a telemetry service. A nil gate uses the default rules.
func New(readings store.ReadingStore, gate *ingest.Gate, logger *slog.Logger) *Service {
	if gate == nil {
		gate = ingest.NewGate()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  readings,
		gate:   gate,
		logger: logger.With("component", "telemetry"),
	}
}

// Create stores one reading under a new ID and returns it. A reading that
// fails the gate is not written and the returned error matches
// ingest.ErrRejected.
func (s *Service) Create(ctx context.Context, reading *store.Reading) (*store.Reading, error) {
	r := *reading
	r.ID = ""

	if err := s.gate.Check(&r); err != nil {
		s.logger.Debug("reading rejected", "device", r.DeviceName, "reason", err)
		return nil, err
	}

	if err := s.store.CreateReading(ctx, &r); err != nil {
		return nil, fmt.Errorf("storing reading: %w", err)
	}
	return &r, nil
}

// CreateBatch tags every reading with deviceName, drops those that fail the
// gate and stores the rest. It returns how many were stored; zero accepted
// readings is not an error.
func (s *Service) CreateBatch(ctx context.Context, deviceName string, readings []*store.Reading) (int, error) {
	accepted := make([]*store.Reading, 0, len(readings))
	for _, in := range readings {
		if in == nil {
			continue
		}
		r := *in
		r.ID = ""
		r.DeviceName = deviceName
		if err := s.gate.Check(&r); err != nil {
			s.logger.Debug("batch reading rejected", "device", deviceName, "reason", err)
			continue
		}
		accepted = append(accepted, &r)
	}

	if len(accepted) == 0 {
		s.logger.Info("batch had no valid readings", "device", deviceName, "received", len(readings))
		return 0, nil
	}

	n, err := s.store.CreateReadings(ctx, accepted)
	if err != nil {
		return 0, fmt.Errorf("storing readings: %w", err)
	}

	s.logger.Debug("batch stored", "device", deviceName, "received", len(readings), "stored", n)
	return n, nil
}

// MaxPrecipitation returns the wettest reading of deviceName at or after
// since. ok is false when no reading matches.
func (s *Service) MaxPrecipitation(ctx context.Context, deviceName string, since time.Time) (*store.PrecipitationPeak, bool, error) {
	peak, err := s.store.MaxPrecipitation(ctx, deviceName, since)
	return emptyOnNotFound(peak, err, "querying max precipitation")
}

// ReadingAtHour returns one reading of deviceName taken in the same hour of
// day as at. ok is false when no reading matches.
func (s *Service) ReadingAtHour(ctx context.Context, deviceName string, at time.Time) (*store.HourlySnapshot, bool, error) {
	snap, err := s.store.ReadingAtHour(ctx, deviceName, at)
	return emptyOnNotFound(snap, err, "querying reading by hour")
}

// MaxTemperature returns the hottest reading of any device strictly between
// from and to. ok is false when no reading matches.
func (s *Service) MaxTemperature(ctx context.Context, from, to time.Time) (*store.TemperaturePeak, bool, error) {
	peak, err := s.store.MaxTemperature(ctx, from, to)
	return emptyOnNotFound(peak, err, "querying max temperature")
}

// UpdatePrecipitation sets the precipitation of one reading. It returns
// store.ErrNotFound, unwrapped, when no reading has that ID.
func (s *Service) UpdatePrecipitation(ctx context.Context, id string, precipitation float64) (*store.Reading, error) {
	r, err := s.store.UpdatePrecipitation(ctx, id, precipitation)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating precipitation: %w", err)
	}
	return r, nil
}

func emptyOnNotFound[T any](v *T, err error, op string) (*T, bool, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}
