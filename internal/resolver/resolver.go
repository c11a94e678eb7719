// Package resolver maps inbound routing keys onto the organization, system,
// and row they belong to, and owns profile assignment for rows.
package resolver

import (
	"context"
	"time"

	"aquasense/internal/logger"
	"aquasense/internal/models"
	"aquasense/internal/store"
)

// Resolver resolves routing keys against the entity store. It is strict:
// unknown routing keys fail instead of materializing infrastructure from
// malformed input. Systems and rows are created through the administrative
// surface only.
type Resolver struct {
	store store.Store
	now   func() time.Time
}

// New creates a Resolver backed by the given store.
func New(st store.Store) *Resolver {
	return &Resolver{store: st, now: time.Now}
}

// Route is the result of a successful resolution.
type Route struct {
	Organization *models.Organization
	System       *models.System
	Row          *models.Row
}

// ResolveRoute maps a routing key and optional row number to the owning
// organization, system, and row. On success the row's lastSeen is bumped
// best-effort; a failed bump is logged but never fails the resolution.
func (r *Resolver) ResolveRoute(ctx context.Context, routingKey string, rowNumber *int) (*Route, error) {
	sys, err := r.store.FindSystemByRoutingKey(ctx, routingKey)
	if err != nil {
		return nil, err
	}

	org, err := r.store.GetOrganization(ctx, sys.OrganizationID)
	if err != nil {
		return nil, err
	}

	route := &Route{Organization: org, System: sys}
	if rowNumber == nil {
		return route, nil
	}

	row, err := r.store.FindRowByNumber(ctx, sys.ID, *rowNumber)
	if err != nil {
		return nil, err
	}
	route.Row = row

	seen := r.now().UTC()
	if err := r.store.TouchRow(ctx, row.ID, seen); err != nil {
		logger.WithComponent("resolver").Warn().
			Err(err).
			Str("row_id", row.ID).
			Msg("failed to update row last seen")
	} else {
		route.Row.LastSeen = seen
	}
	return route, nil
}

// AssignProfile swaps a row's current plant profile. The profile must belong
// to the same organization as the row's system; a cross-tenant reference is
// rejected without touching the row.
func (r *Resolver) AssignProfile(ctx context.Context, rowID, profileID string) (*models.Row, error) {
	row, err := r.store.GetRow(ctx, rowID)
	if err != nil {
		return nil, err
	}
	sys, err := r.store.GetSystem(ctx, row.SystemID)
	if err != nil {
		return nil, err
	}
	profile, err := r.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.OrganizationID != sys.OrganizationID {
		return nil, models.ErrCrossTenant
	}
	return r.store.SetRowProfile(ctx, rowID, profileID)
}
