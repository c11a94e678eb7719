// Package readings is the append-only time-series facade over the store's
// reading collection.
package readings

import (
	"context"
	"time"

	"aquasense/internal/models"
	"aquasense/internal/store"
)

// Service persists and retrieves per-row sensor readings. It is a dumb
// telemetry sink: structurally valid payloads are stored as-is, including
// out-of-range sensor values and out-of-order timestamps.
type Service struct {
	store store.Store
}

// New creates a reading service backed by the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Append stores one reading and returns it with its assigned ID.
func (s *Service) Append(ctx context.Context, rowID, routingKey string, payload models.Payload, ts time.Time) (*models.Reading, error) {
	return s.store.AppendReading(ctx, &models.Reading{
		RowID:      rowID,
		RoutingKey: routingKey,
		Timestamp:  ts,
		Data:       payload,
	})
}

// Latest returns up to limit readings for a row, newest first. Limit is
// capped at the store's window maximum.
func (s *Service) Latest(ctx context.Context, rowID string, limit int) ([]*models.Reading, error) {
	return s.store.LatestReadings(ctx, rowID, limit)
}

// LatestByRoute returns up to limit readings recorded under a routing key,
// newest first. An unknown key yields an empty result, not an error.
func (s *Service) LatestByRoute(ctx context.Context, routingKey string, limit int) ([]*models.Reading, error) {
	return s.store.LatestReadingsByRoute(ctx, routingKey, limit)
}
