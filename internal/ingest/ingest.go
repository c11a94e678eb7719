// Package ingest orchestrates the reading pipeline: identity resolution,
// persistence, and rule evaluation.
package ingest

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"aquasense/internal/alerting"
	"aquasense/internal/logger"
	"aquasense/internal/metrics"
	"aquasense/internal/models"
	"aquasense/internal/readings"
	"aquasense/internal/resolver"
	"aquasense/internal/store"
)

// ErrMissingRowNumber rejects an inbound reading that names no row; every
// reading belongs to exactly one row.
var ErrMissingRowNumber = errors.New("inbound reading must carry a row number")

// Service runs the ingestion pipeline. Failures resolving identity drop the
// reading with an error back to the transport; nothing is ever stored under
// a guessed identity.
type Service struct {
	resolver *resolver.Resolver
	readings *readings.Service
	engine   *alerting.Engine
	store    store.Store
}

// New wires the pipeline stages together.
func New(res *resolver.Resolver, rds *readings.Service, eng *alerting.Engine, st store.Store) *Service {
	return &Service{resolver: res, readings: rds, engine: eng, store: st}
}

// Result reports what one ingested reading produced.
type Result struct {
	Reading  *models.Reading                 `json:"reading"`
	Outcomes map[string]alerting.OutcomeKind `json:"outcomes"`
}

// Ingest validates the inbound reading, resolves its row, persists it, and
// evaluates every parameter of the payload against the system's rules.
func (s *Service) Ingest(ctx context.Context, in *models.InboundReading) (*Result, error) {
	start := time.Now()

	in.Normalize()
	if err := in.Validate(); err != nil {
		metrics.ReadingsIngested.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if in.RowNumber == nil {
		metrics.ReadingsIngested.WithLabelValues("rejected").Inc()
		return nil, ErrMissingRowNumber
	}

	route, err := s.resolver.ResolveRoute(ctx, in.RoutingKey, in.RowNumber)
	if err != nil {
		metrics.ReadingsIngested.WithLabelValues("unroutable").Inc()
		return nil, err
	}

	return s.record(ctx, route.System, route.Row, in.Payload, in.CapturedAt(), start)
}

// Simulate generates an in-range random payload for the row and pushes it
// through the same persist-and-evaluate path as a real delivery.
func (s *Service) Simulate(ctx context.Context, rowID string) (*Result, error) {
	start := time.Now()

	row, err := s.store.GetRow(ctx, rowID)
	if err != nil {
		metrics.ReadingsIngested.WithLabelValues("unroutable").Inc()
		return nil, err
	}
	sys, err := s.store.GetSystem(ctx, row.SystemID)
	if err != nil {
		metrics.ReadingsIngested.WithLabelValues("unroutable").Inc()
		return nil, err
	}
	return s.record(ctx, sys, row, simulatedPayload(), time.Now().UTC(), start)
}

func (s *Service) record(ctx context.Context, sys *models.System, row *models.Row, payload models.Payload, capturedAt time.Time, start time.Time) (*Result, error) {
	// The system's routing key is denormalized onto the reading at
	// ingestion time; later key changes leave stored readings stale,
	// which is accepted.
	reading, err := s.readings.Append(ctx, row.ID, sys.RoutingKey, payload, capturedAt)
	if err != nil {
		metrics.ReadingsIngested.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.ReadingsIngested.WithLabelValues("stored").Inc()

	log := logger.WithComponent("ingest")
	result := &Result{
		Reading:  reading,
		Outcomes: make(map[string]alerting.OutcomeKind, len(payload)),
	}
	for _, parameter := range payload.Parameters() {
		outcome, err := s.engine.Evaluate(ctx, sys.ID, parameter, payload[parameter], row.ID)
		if err != nil {
			// The reading is already persisted; evaluation errors are
			// reported per parameter, not rolled back.
			log.Error().
				Err(err).
				Str("system_id", sys.ID).
				Str("parameter", parameter).
				Msg("rule evaluation failed")
			continue
		}
		result.Outcomes[parameter] = outcome.Kind
	}

	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// simulatedPayload mirrors the simulator form's value ranges.
func simulatedPayload() models.Payload {
	r := func(lo, hi float64) float64 { return lo + rand.Float64()*(hi-lo) }
	return models.Payload{
		models.ParamAirTemp:         r(20, 30),
		models.ParamWaterTemp:       r(15, 25),
		models.ParamHumidity:        r(50, 90),
		models.ParamLightIntensity:  r(200, 1000),
		models.ParamPH:              r(5.5, 7.0),
		models.ParamDissolvedOxygen: r(5, 10),
		models.ParamWaterLevel:      r(20, 100),
		models.ParamFlowRate:        r(0.5, 2),
	}
}
