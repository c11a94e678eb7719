package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquasense/internal/models"
)

// newPostgres skips unless AQUASENSE_TEST_POSTGRES_DSN points at a reachable
// database. Each test seeds with unique routing keys so runs do not collide.
func newPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("AQUASENSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AQUASENSE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, p.EnsureSchema(ctx))
	t.Cleanup(func() { p.Close() })
	return p
}

func seedPostgresSystem(t *testing.T, p *Postgres) *models.System {
	t.Helper()
	ctx := context.Background()
	org, err := p.CreateOrganization(ctx, &models.Organization{
		Name: "pgtest-" + uuid.NewString(),
		Tier: models.TierDIY,
	})
	require.NoError(t, err)
	sys, err := p.CreateSystem(ctx, &models.System{
		OrganizationID: org.ID,
		Name:           "Test House",
		RoutingKey:     "pgtest-" + uuid.NewString(),
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	return sys
}

func TestPostgresRoundTrip(t *testing.T) {
	p := newPostgres(t)
	ctx := context.Background()
	sys := seedPostgresSystem(t, p)

	found, err := p.FindSystemByRoutingKey(ctx, sys.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, sys.ID, found.ID)

	_, err = p.CreateSystem(ctx, &models.System{
		OrganizationID: sys.OrganizationID,
		Name:           "Dup",
		RoutingKey:     sys.RoutingKey,
	})
	assert.ErrorIs(t, err, models.ErrDuplicateRoutingKey)

	row, err := p.CreateRow(ctx, &models.Row{SystemID: sys.ID, RowNumber: 1, IsActive: true, LastSeen: time.Now().UTC()})
	require.NoError(t, err)

	_, err = p.CreateRow(ctx, &models.Row{SystemID: sys.ID, RowNumber: 1})
	assert.ErrorIs(t, err, models.ErrDuplicateRowNumber)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		_, err := p.AppendReading(ctx, &models.Reading{
			RowID:      row.ID,
			RoutingKey: sys.RoutingKey,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Data:       models.Payload{models.ParamAirTemp: float64(20 + i)},
		})
		require.NoError(t, err)
	}

	got, err := p.LatestReadings(ctx, row.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 24.0, got[0].Data[models.ParamAirTemp])
}

func TestPostgresAlertDedup(t *testing.T) {
	p := newPostgres(t)
	ctx := context.Background()
	sys := seedPostgresSystem(t, p)

	first, created, err := p.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID:  sys.ID,
		Type:      models.AlertCritical,
		Parameter: models.ParamAirTemp,
		Value:     35,
		Threshold: 30,
		Message:   "test",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := p.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID:  sys.ID,
		Type:      models.AlertCritical,
		Parameter: models.ParamAirTemp,
		Value:     40,
		Threshold: 30,
		Message:   "test",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	resolved, err := p.ResolveAlert(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)

	_, created, err = p.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID:  sys.ID,
		Type:      models.AlertCritical,
		Parameter: models.ParamAirTemp,
		Value:     41,
		Threshold: 30,
		Message:   "test",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, created, "resolved alerts do not block new ones")
}

func TestPostgresUpsertRule(t *testing.T) {
	p := newPostgres(t)
	ctx := context.Background()
	sys := seedPostgresSystem(t, p)

	maxT := 30.0
	rule, err := p.UpsertRule(ctx, sys.ID, models.ParamAirTemp, models.RulePatch{MaxThreshold: &maxT})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, rule.Severity)
	assert.True(t, rule.IsEnabled)

	minT := 18.0
	patched, err := p.UpsertRule(ctx, sys.ID, models.ParamAirTemp, models.RulePatch{MinThreshold: &minT})
	require.NoError(t, err)
	assert.Equal(t, rule.ID, patched.ID)
	require.NotNil(t, patched.MaxThreshold)
	assert.Equal(t, 30.0, *patched.MaxThreshold)
	require.NotNil(t, patched.MinThreshold)
	assert.Equal(t, 18.0, *patched.MinThreshold)
}
