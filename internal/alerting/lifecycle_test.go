package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquasense/internal/models"
)

func TestLifecycleResolve(t *testing.T) {
	_, m, sys := newEngineFixture(t, nil)
	lc := NewLifecycle(m)
	ctx := context.Background()

	alert, _, err := m.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID:  sys.ID,
		Type:      models.AlertWarning,
		Parameter: models.ParamHumidity,
		Value:     95,
		Threshold: 90,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	resolved, err := lc.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)

	// retried resolution succeeds and re-stamps
	again, err := lc.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, again.IsResolved)
	assert.False(t, again.ResolvedAt.Before(*resolved.ResolvedAt))

	_, err = lc.Resolve(ctx, "missing")
	assert.True(t, models.IsNotFound(err, models.EntityAlert))
}

func TestLifecycleUpsertRule(t *testing.T) {
	_, m, sys := newEngineFixture(t, nil)
	lc := NewLifecycle(m)
	ctx := context.Background()

	created, err := lc.UpsertRule(ctx, sys.ID, models.ParamAirTemp, models.RulePatch{
		MaxThreshold:  f64(30),
		NotifyMethods: []models.NotifyMethod{models.NotifyPush, models.NotifyEmail},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, created.Severity, "severity defaults to warning")
	assert.True(t, created.IsEnabled)
	assert.Len(t, created.NotifyMethods, 2)

	rules, err := lc.Rules(ctx, sys.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestLifecycleListFilter(t *testing.T) {
	_, m, sys := newEngineFixture(t, nil)
	lc := NewLifecycle(m)
	ctx := context.Background()

	a, _, err := m.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID: sys.ID, Type: models.AlertWarning,
		Parameter: models.ParamHumidity, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, _, err = m.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID: sys.ID, Type: models.AlertCritical,
		Parameter: models.ParamAirTemp, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = lc.Resolve(ctx, a.ID)
	require.NoError(t, err)

	resolved := false
	openOnly, err := lc.List(ctx, models.AlertFilter{SystemID: sys.ID, Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, openOnly, 1)
	assert.Equal(t, models.ParamAirTemp, openOnly[0].Parameter)
}
