package store

import (
	"context"
	"time"

	"aquasense/internal/models"
)

// MaxReadingWindow caps the latest-readings queries. Larger windows are not
// supported; callers needing history must page externally.
const MaxReadingWindow = 100

// Store persists the six entity collections and the secondary indexes the
// query surface needs. Records are independent arenas addressed by opaque
// identifiers; relationships are identifier fields.
//
// Create methods assign the record's ID when it is empty and return the
// stored value. List and Get methods return copies; mutating a returned
// record never affects stored state.
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *models.Organization) (*models.Organization, error)
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)

	// Systems
	CreateSystem(ctx context.Context, sys *models.System) (*models.System, error)
	GetSystem(ctx context.Context, id string) (*models.System, error)
	FindSystemByRoutingKey(ctx context.Context, routingKey string) (*models.System, error)
	// ListSystems returns all systems, or only those matching routingKey
	// when it is non-empty.
	ListSystems(ctx context.Context, routingKey string) ([]*models.System, error)

	// Rows
	CreateRow(ctx context.Context, row *models.Row) (*models.Row, error)
	GetRow(ctx context.Context, id string) (*models.Row, error)
	FindRowByNumber(ctx context.Context, systemID string, rowNumber int) (*models.Row, error)
	ListRows(ctx context.Context, systemID string) ([]*models.Row, error)
	// TouchRow bumps the row's lastSeen timestamp.
	TouchRow(ctx context.Context, id string, seen time.Time) error
	// SetRowProfile swaps the row's current plant profile and returns the
	// updated row.
	SetRowProfile(ctx context.Context, id, profileID string) (*models.Row, error)

	// Plant profiles
	CreateProfile(ctx context.Context, profile *models.PlantProfile) (*models.PlantProfile, error)
	GetProfile(ctx context.Context, id string) (*models.PlantProfile, error)
	FindProfileByName(ctx context.Context, organizationID, name string) (*models.PlantProfile, error)
	// ListProfiles returns an organization's profiles, or the default
	// profiles when organizationID is empty.
	ListProfiles(ctx context.Context, organizationID string) ([]*models.PlantProfile, error)

	// Readings
	AppendReading(ctx context.Context, reading *models.Reading) (*models.Reading, error)
	// LatestReadings returns up to limit readings for the row, newest
	// first. Limit is clamped to MaxReadingWindow.
	LatestReadings(ctx context.Context, rowID string, limit int) ([]*models.Reading, error)
	// LatestReadingsByRoute is LatestReadings keyed by the denormalized
	// routing key. An unknown key yields an empty slice, not an error.
	LatestReadingsByRoute(ctx context.Context, routingKey string, limit int) ([]*models.Reading, error)

	// Alert rules
	FindRule(ctx context.Context, systemID, parameter string) (*models.AlertRule, error)
	// ListRules returns all rules, or only the system's when systemID is
	// non-empty.
	ListRules(ctx context.Context, systemID string) ([]*models.AlertRule, error)
	// UpsertRule creates the rule for (systemID, parameter) if absent,
	// otherwise patches only the supplied fields. Concurrent upserts for
	// the same key serialize to a single record.
	UpsertRule(ctx context.Context, systemID, parameter string, patch models.RulePatch) (*models.AlertRule, error)

	// Alerts
	FindOpenAlert(ctx context.Context, systemID, parameter string) (*models.Alert, error)
	// CreateAlertIfNoneOpen inserts the alert unless an open one already
	// exists for its (system, parameter). It returns the stored alert and
	// whether a new record was created; when created is false the returned
	// alert is the pre-existing open one.
	CreateAlertIfNoneOpen(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	// ResolveAlert marks the alert resolved at the given time. Resolving
	// an already-resolved alert re-stamps resolvedAt.
	ResolveAlert(ctx context.Context, id string, at time.Time) (*models.Alert, error)

	Close() error
}
