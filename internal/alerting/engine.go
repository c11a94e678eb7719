// Package alerting evaluates threshold rules against stored readings and
// manages the alert lifecycle.
package alerting

import (
	"context"
	"fmt"
	"time"

	"aquasense/internal/logger"
	"aquasense/internal/metrics"
	"aquasense/internal/models"
	"aquasense/internal/state"
	"aquasense/internal/store"
)

// OutcomeKind classifies the result of one rule evaluation.
type OutcomeKind string

const (
	// NoRule: no enabled rule covers the parameter; no state change.
	NoRule OutcomeKind = "no_rule"
	// Healthy: the value breaches no bound. Open alerts are not
	// auto-resolved; resolution is always an explicit command.
	Healthy OutcomeKind = "healthy"
	// AlreadyOpen: an open alert already covers the breach; no duplicate
	// is created.
	AlreadyOpen OutcomeKind = "already_open"
	// Opened: a new alert was created.
	Opened OutcomeKind = "opened"
)

// Outcome is the result of evaluating one parameter value. Alert is set for
// Opened and AlreadyOpen.
type Outcome struct {
	Kind  OutcomeKind
	Alert *models.Alert
}

// OpenedSink receives alerts the engine opens, e.g. the notification
// publisher. It must not block.
type OpenedSink func(alert *models.Alert, rule *models.AlertRule)

// Engine decides whether a stored parameter value opens an alert. The
// check-then-create is serialized per (system, parameter) by the lock scope
// and additionally guarded by the store's conditional insert, so two
// concurrent breaching readings can never produce two open alerts.
type Engine struct {
	store  store.Store
	locker state.Locker
	sink   OpenedSink
	now    func() time.Time
}

// NewEngine creates an engine over the given store and lock scope.
func NewEngine(st store.Store, locker state.Locker, sink OpenedSink) *Engine {
	return &Engine{store: st, locker: locker, sink: sink, now: time.Now}
}

// Evaluate runs the threshold check for one (system, parameter, value)
// triple, optionally scoped to a row. Invoked once per parameter of every
// stored reading.
func (e *Engine) Evaluate(ctx context.Context, systemID, parameter string, value float64, rowID string) (Outcome, error) {
	outcome, err := e.evaluate(ctx, systemID, parameter, value, rowID)
	if err == nil {
		metrics.EvaluationsTotal.WithLabelValues(string(outcome.Kind)).Inc()
	}
	return outcome, err
}

func (e *Engine) evaluate(ctx context.Context, systemID, parameter string, value float64, rowID string) (Outcome, error) {
	rule, err := e.store.FindRule(ctx, systemID, parameter)
	if err != nil {
		if models.IsNotFound(err, models.EntityRule) {
			return Outcome{Kind: NoRule}, nil
		}
		return Outcome{}, err
	}
	if !rule.IsEnabled {
		return Outcome{Kind: NoRule}, nil
	}
	if rule.MinThreshold == nil && rule.MaxThreshold == nil {
		// A rule with neither bound is a configuration mistake; it never
		// breaches and the surrounding system is warned.
		metrics.RuleConfigNoops.Inc()
		logger.WithComponent("alerting").Warn().
			Str("system_id", systemID).
			Str("parameter", parameter).
			Msg("alert rule has no thresholds configured")
		return Outcome{Kind: NoRule}, nil
	}

	belowMin := rule.MinThreshold != nil && value < *rule.MinThreshold
	aboveMax := rule.MaxThreshold != nil && value > *rule.MaxThreshold
	if !belowMin && !aboveMax {
		return Outcome{Kind: Healthy}, nil
	}

	// belowMin and aboveMax are mutually exclusive: a value cannot be both
	// below the minimum and above the maximum. Only the bound that fired is
	// guaranteed to be set.
	var threshold float64
	if belowMin {
		threshold = *rule.MinThreshold
	} else {
		threshold = *rule.MaxThreshold
	}

	unlock, err := e.locker.Lock(ctx, lockKey(systemID, parameter))
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire alert lock: %w", err)
	}
	defer unlock.Unlock()

	if existing, err := e.store.FindOpenAlert(ctx, systemID, parameter); err == nil {
		return Outcome{Kind: AlreadyOpen, Alert: existing}, nil
	} else if !models.IsNotFound(err, models.EntityAlert) {
		return Outcome{}, err
	}

	alert := &models.Alert{
		SystemID:  systemID,
		RowID:     rowID,
		Type:      models.AlertType(rule.Severity),
		Parameter: parameter,
		Message:   models.BreachMessage(parameter, value, threshold, belowMin),
		Value:     value,
		Threshold: threshold,
		CreatedAt: e.now().UTC(),
	}
	stored, created, err := e.store.CreateAlertIfNoneOpen(ctx, alert)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		// Lost a cross-process race; the winner's alert covers the breach.
		return Outcome{Kind: AlreadyOpen, Alert: stored}, nil
	}

	metrics.AlertsOpened.WithLabelValues(string(rule.Severity)).Inc()
	logger.WithComponent("alerting").Info().
		Str("alert_id", stored.ID).
		Str("system_id", systemID).
		Str("parameter", parameter).
		Float64("value", value).
		Float64("threshold", threshold).
		Str("severity", string(rule.Severity)).
		Msg("alert opened")

	if e.sink != nil {
		e.sink(stored, rule)
	}
	return Outcome{Kind: Opened, Alert: stored}, nil
}

func lockKey(systemID, parameter string) string {
	return systemID + ":" + parameter
}
