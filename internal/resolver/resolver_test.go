package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquasense/internal/models"
	"aquasense/internal/store"
)

type fixture struct {
	store    *store.Memory
	resolver *Resolver
	org      *models.Organization
	system   *models.System
	row      *models.Row
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()

	org, err := m.CreateOrganization(ctx, &models.Organization{Name: "Greenhouse Co", Tier: models.TierDIY})
	require.NoError(t, err)
	sys, err := m.CreateSystem(ctx, &models.System{
		OrganizationID: org.ID,
		Name:           "North House",
		RoutingKey:     "m5stack",
		IsActive:       true,
	})
	require.NoError(t, err)
	row, err := m.CreateRow(ctx, &models.Row{SystemID: sys.ID, RowNumber: 2, IsActive: true})
	require.NoError(t, err)

	return &fixture{store: m, resolver: New(m), org: org, system: sys, row: row}
}

func TestResolveRoute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rowNum := 2
	route, err := f.resolver.ResolveRoute(ctx, "m5stack", &rowNum)
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, route.Organization.ID)
	assert.Equal(t, f.system.ID, route.System.ID)
	require.NotNil(t, route.Row)
	assert.Equal(t, f.row.ID, route.Row.ID)
}

func TestResolveRouteWithoutRow(t *testing.T) {
	f := newFixture(t)

	route, err := f.resolver.ResolveRoute(context.Background(), "m5stack", nil)
	require.NoError(t, err)
	assert.Nil(t, route.Row)
	assert.Equal(t, f.system.ID, route.System.ID)
}

func TestResolveRouteUnknownKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.ResolveRoute(context.Background(), "ghost", nil)
	assert.True(t, models.IsNotFound(err, models.EntitySystem))
}

func TestResolveRouteUnknownRow(t *testing.T) {
	f := newFixture(t)

	rowNum := 99
	_, err := f.resolver.ResolveRoute(context.Background(), "m5stack", &rowNum)
	assert.True(t, models.IsNotFound(err, models.EntityRow))
}

func TestResolveRouteBumpsLastSeen(t *testing.T) {
	f := newFixture(t)
	stamp := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	f.resolver.now = func() time.Time { return stamp }

	rowNum := 2
	route, err := f.resolver.ResolveRoute(context.Background(), "m5stack", &rowNum)
	require.NoError(t, err)
	assert.True(t, route.Row.LastSeen.Equal(stamp))

	stored, err := f.store.GetRow(context.Background(), f.row.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastSeen.Equal(stamp))
}

func TestAssignProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.store.CreateProfile(ctx, &models.PlantProfile{
		OrganizationID: f.org.ID,
		Name:           "Lettuce",
	})
	require.NoError(t, err)

	row, err := f.resolver.AssignProfile(ctx, f.row.ID, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, row.CurrentPlantProfile)
}

func TestAssignProfileCrossTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.store.CreateOrganization(ctx, &models.Organization{Name: "Rival Farms", Tier: models.TierDIY})
	require.NoError(t, err)
	foreign, err := f.store.CreateProfile(ctx, &models.PlantProfile{
		OrganizationID: other.ID,
		Name:           "Basil",
	})
	require.NoError(t, err)

	_, err = f.resolver.AssignProfile(ctx, f.row.ID, foreign.ID)
	assert.ErrorIs(t, err, models.ErrCrossTenant)

	row, err := f.store.GetRow(ctx, f.row.ID)
	require.NoError(t, err)
	assert.Empty(t, row.CurrentPlantProfile, "row untouched on rejection")
}
