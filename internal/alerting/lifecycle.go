package alerting

import (
	"context"
	"time"

	"aquasense/internal/logger"
	"aquasense/internal/metrics"
	"aquasense/internal/models"
	"aquasense/internal/store"
)

// Lifecycle is the command/query surface over alert records and rule
// definitions, consumed by the presentation layer.
type Lifecycle struct {
	store store.Store
	now   func() time.Time
}

// NewLifecycle creates the lifecycle facade over the given store.
func NewLifecycle(st store.Store) *Lifecycle {
	return &Lifecycle{store: st, now: time.Now}
}

// List returns alerts matching the filter, newest first. Omitted filter
// fields match any value; set fields compose as AND.
func (l *Lifecycle) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	return l.store.ListAlerts(ctx, filter)
}

// Resolve marks an alert resolved. Resolving an already-resolved alert is
// accepted and re-stamps resolvedAt, since the dashboard may retry
// resolution commands under uncertain delivery.
func (l *Lifecycle) Resolve(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := l.store.ResolveAlert(ctx, alertID, l.now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.AlertsResolved.Inc()
	logger.WithComponent("alerting").Info().
		Str("alert_id", alert.ID).
		Str("parameter", alert.Parameter).
		Msg("alert resolved")
	return alert, nil
}

// Rules returns rule definitions, optionally scoped to one system.
func (l *Lifecycle) Rules(ctx context.Context, systemID string) ([]*models.AlertRule, error) {
	return l.store.ListRules(ctx, systemID)
}

// UpsertRule creates the rule for (systemID, parameter) if absent, otherwise
// patches only the supplied fields.
func (l *Lifecycle) UpsertRule(ctx context.Context, systemID, parameter string, patch models.RulePatch) (*models.AlertRule, error) {
	return l.store.UpsertRule(ctx, systemID, parameter, patch)
}
