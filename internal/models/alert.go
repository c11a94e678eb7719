package models

import (
	"fmt"
	"time"
)

// Severity of an alert rule. Maps directly onto the alert type when a rule
// fires.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known value
func (s Severity) IsValid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// AlertType classifies a raised alert. Info is reserved for alerts not
// driven by threshold rules and is never produced by the rule engine.
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
	AlertInfo     AlertType = "info"
)

// NotifyMethod is a configured notification channel for a rule.
type NotifyMethod string

const (
	NotifyPush  NotifyMethod = "push"
	NotifySound NotifyMethod = "sound"
	NotifyEmail NotifyMethod = "email"
)

// AlertRule is a per-system, per-parameter threshold policy. Either bound
// may be absent; a rule with neither bound never breaches.
type AlertRule struct {
	ID            string         `json:"id"`
	SystemID      string         `json:"system_id"`
	Parameter     string         `json:"parameter"`
	MinThreshold  *float64       `json:"min_threshold,omitempty"`
	MaxThreshold  *float64       `json:"max_threshold,omitempty"`
	Severity      Severity       `json:"severity"`
	IsEnabled     bool           `json:"is_enabled"`
	NotifyMethods []NotifyMethod `json:"notify_methods,omitempty"`
}

// RulePatch carries the fields of an upsert; nil fields are left unchanged
// on an existing rule.
type RulePatch struct {
	MinThreshold  *float64       `json:"min_threshold,omitempty"`
	MaxThreshold  *float64       `json:"max_threshold,omitempty"`
	Severity      *Severity      `json:"severity,omitempty"`
	IsEnabled     *bool          `json:"is_enabled,omitempty"`
	NotifyMethods []NotifyMethod `json:"notify_methods,omitempty"`
}

// Alert is a raised threshold breach. At most one alert per
// (system, parameter) is open at any time.
type Alert struct {
	ID         string     `json:"id"`
	SystemID   string     `json:"system_id"`
	RowID      string     `json:"row_id,omitempty"`
	Type       AlertType  `json:"type"`
	Parameter  string     `json:"parameter"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	IsResolved bool       `json:"is_resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertFilter selects alerts for listing. Nil fields match any value;
// set fields compose as logical AND.
type AlertFilter struct {
	SystemID string
	RowID    string
	Resolved *bool
}

// BreachMessage renders the human-readable description of a crossed bound.
func BreachMessage(parameter string, value, threshold float64, belowMin bool) string {
	if belowMin {
		return fmt.Sprintf("%s at %.2f is below the minimum threshold of %.2f", parameter, value, threshold)
	}
	return fmt.Sprintf("%s at %.2f is above the maximum threshold of %.2f", parameter, value, threshold)
}
