package models

import (
	"sort"
	"strings"
	"time"
)

// Well-known sensor parameter names. The payload is an open map; unknown
// parameters are stored as-is, these constants only name the common ones.
const (
	ParamAirTemp         = "airTemp"
	ParamWaterTemp       = "waterTemp"
	ParamHumidity        = "humidity"
	ParamLightIntensity  = "lightIntensity"
	ParamCO2Level        = "co2Level"
	ParamFlowRate        = "flowRate"
	ParamPH              = "pH"
	ParamDissolvedOxygen = "dissolvedOxygen"
	ParamWaterLevel      = "waterLevel"
)

// Payload maps parameter names to observed sensor values.
type Payload map[string]float64

// Parameters returns the parameter names of the payload in sorted order,
// so evaluation order is deterministic.
func (p Payload) Parameters() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reading is an immutable timestamped observation for one row. The routing
// key of the owning system is denormalized onto the reading at ingestion
// time for topic-scoped queries; it may go stale if the system's routing
// key later changes, which is accepted.
type Reading struct {
	ID         string    `json:"id"`
	RowID      string    `json:"row_id"`
	RoutingKey string    `json:"routing_key"`
	Timestamp  time.Time `json:"timestamp"`
	Data       Payload   `json:"data"`
}

// InboundReading is the parsed delivery handed over by a transport
// collaborator: a routing key, an optional row number, the parameter
// payload, and a capture timestamp in epoch milliseconds.
type InboundReading struct {
	RoutingKey string  `json:"routing_key"`
	RowNumber  *int    `json:"row_number,omitempty"`
	Payload    Payload `json:"payload"`
	Timestamp  int64   `json:"timestamp"`
}

// Normalize trims the routing key. Parameter names and values are stored
// as delivered; sanity validation of sensor values is out of scope.
func (r *InboundReading) Normalize() {
	r.RoutingKey = strings.TrimSpace(r.RoutingKey)
}

// Validate checks structural validity of the inbound reading.
func (r *InboundReading) Validate() error {
	if r.RoutingKey == "" {
		return ErrEmptyRoutingKey
	}
	if r.RowNumber != nil && *r.RowNumber < 0 {
		return ErrNegativeRow
	}
	if len(r.Payload) == 0 {
		return ErrEmptyPayload
	}
	if r.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	return nil
}

// CapturedAt converts the epoch-millisecond timestamp to time.Time in UTC.
func (r *InboundReading) CapturedAt() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}
