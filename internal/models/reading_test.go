package models

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestInboundReadingValidate(t *testing.T) {
	valid := func() *InboundReading {
		return &InboundReading{
			RoutingKey: "m5stack",
			RowNumber:  intPtr(1),
			Payload:    Payload{ParamAirTemp: 24.5},
			Timestamp:  time.Now().UnixMilli(),
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid reading rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*InboundReading)
		want   error
	}{
		{"empty routing key", func(r *InboundReading) { r.RoutingKey = "" }, ErrEmptyRoutingKey},
		{"negative row", func(r *InboundReading) { r.RowNumber = intPtr(-1) }, ErrNegativeRow},
		{"empty payload", func(r *InboundReading) { r.Payload = nil }, ErrEmptyPayload},
		{"zero timestamp", func(r *InboundReading) { r.Timestamp = 0 }, ErrZeroTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid()
			tc.mutate(r)
			if err := r.Validate(); err != tc.want {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInboundReadingNormalize(t *testing.T) {
	r := &InboundReading{RoutingKey: "  m5stack  "}
	r.Normalize()
	if r.RoutingKey != "m5stack" {
		t.Errorf("routing key not trimmed: %q", r.RoutingKey)
	}
}

func TestInboundReadingCapturedAt(t *testing.T) {
	r := &InboundReading{Timestamp: 1700000000000}
	got := r.CapturedAt()
	want := time.UnixMilli(1700000000000).UTC()
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
}

func TestPayloadParametersSorted(t *testing.T) {
	p := Payload{"waterTemp": 18, "airTemp": 22, "humidity": 70}
	got := p.Parameters()
	want := []string{"airTemp", "humidity", "waterTemp"}
	if len(got) != len(want) {
		t.Fatalf("expected %d parameters, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
