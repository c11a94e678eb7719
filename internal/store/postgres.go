package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"aquasense/internal/models"
)

// Postgres is the Store implementation for multi-process deployments. Alert
// deduplication is enforced by a partial unique index on open alerts, so the
// single-open-alert invariant holds even without the engine's lock scope.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a connection pool for the given DSN and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Postgres{db: db}, nil
}

// schema holds the DDL for the six collections and their secondary indexes.
const schema = `
CREATE TABLE IF NOT EXISTS organizations (
    id          UUID PRIMARY KEY,
    name        TEXT NOT NULL,
    branding    JSONB NOT NULL DEFAULT '{}',
    tier        TEXT NOT NULL DEFAULT 'diy'
);
CREATE INDEX IF NOT EXISTS idx_organizations_name ON organizations(name);

CREATE TABLE IF NOT EXISTS systems (
    id                    UUID PRIMARY KEY,
    organization_id       UUID NOT NULL REFERENCES organizations(id),
    name                  TEXT NOT NULL,
    location              TEXT NOT NULL DEFAULT '',
    master_controller_mac TEXT NOT NULL DEFAULT '',
    routing_key           TEXT NOT NULL UNIQUE,
    is_active             BOOLEAN NOT NULL DEFAULT TRUE,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rows (
    id                    UUID PRIMARY KEY,
    system_id             UUID NOT NULL REFERENCES systems(id),
    row_number            INTEGER NOT NULL,
    controller_mac        TEXT NOT NULL DEFAULT '',
    current_plant_profile UUID,
    is_active             BOOLEAN NOT NULL DEFAULT TRUE,
    last_seen             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (system_id, row_number)
);

CREATE TABLE IF NOT EXISTS plant_profiles (
    id              UUID PRIMARY KEY,
    organization_id UUID NOT NULL REFERENCES organizations(id),
    name            TEXT NOT NULL,
    is_default      BOOLEAN NOT NULL DEFAULT FALSE,
    parameters      JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_profiles_org_name ON plant_profiles(organization_id, name);

CREATE TABLE IF NOT EXISTS readings (
    id          UUID PRIMARY KEY,
    row_id      UUID NOT NULL REFERENCES rows(id),
    routing_key TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    data        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_row_ts ON readings(row_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_readings_route_ts ON readings(routing_key, ts DESC);

CREATE TABLE IF NOT EXISTS alert_rules (
    id             UUID PRIMARY KEY,
    system_id      UUID NOT NULL REFERENCES systems(id),
    parameter      TEXT NOT NULL,
    min_threshold  DOUBLE PRECISION,
    max_threshold  DOUBLE PRECISION,
    severity       TEXT NOT NULL DEFAULT 'warning',
    is_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
    notify_methods TEXT[] NOT NULL DEFAULT '{}',
    UNIQUE (system_id, parameter)
);

CREATE TABLE IF NOT EXISTS alerts (
    id          UUID PRIMARY KEY,
    system_id   UUID NOT NULL REFERENCES systems(id),
    row_id      UUID,
    type        TEXT NOT NULL,
    parameter   TEXT NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    value       DOUBLE PRECISION NOT NULL,
    threshold   DOUBLE PRECISION NOT NULL,
    is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_alerts_system_created ON alerts(system_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_open ON alerts(system_id, parameter) WHERE NOT is_resolved;
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Organizations

func (p *Postgres) CreateOrganization(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	c := *org
	c.ID = newID(c.ID)
	branding, err := json.Marshal(c.Branding)
	if err != nil {
		return nil, fmt.Errorf("marshal branding: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, branding, tier) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, branding, string(c.Tier))
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	return &c, nil
}

func (p *Postgres) scanOrganization(row *sql.Row, key string) (*models.Organization, error) {
	var org models.Organization
	var branding []byte
	var tier string
	if err := row.Scan(&org.ID, &org.Name, &branding, &tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFound(models.EntityOrganization, key)
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	if err := json.Unmarshal(branding, &org.Branding); err != nil {
		return nil, fmt.Errorf("unmarshal branding: %w", err)
	}
	org.Tier = models.SubscriptionTier(tier)
	return &org, nil
}

func (p *Postgres) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, branding, tier FROM organizations WHERE id = $1`, id)
	return p.scanOrganization(row, id)
}

func (p *Postgres) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, branding, tier FROM organizations WHERE name = $1 LIMIT 1`, name)
	return p.scanOrganization(row, name)
}

func (p *Postgres) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, branding, tier FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Organization, 0)
	for rows.Next() {
		var org models.Organization
		var branding []byte
		var tier string
		if err := rows.Scan(&org.ID, &org.Name, &branding, &tier); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		if err := json.Unmarshal(branding, &org.Branding); err != nil {
			return nil, fmt.Errorf("unmarshal branding: %w", err)
		}
		org.Tier = models.SubscriptionTier(tier)
		out = append(out, &org)
	}
	return out, rows.Err()
}

// Systems

func (p *Postgres) CreateSystem(ctx context.Context, sys *models.System) (*models.System, error) {
	c := *sys
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO systems (id, organization_id, name, location, master_controller_mac, routing_key, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OrganizationID, c.Name, c.Location, c.MasterControllerMAC, c.RoutingKey, c.IsActive, c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, models.ErrDuplicateRoutingKey
		}
		return nil, fmt.Errorf("insert system: %w", err)
	}
	return &c, nil
}

const systemCols = `id, organization_id, name, location, master_controller_mac, routing_key, is_active, created_at`

func scanSystem(s interface{ Scan(...any) error }) (*models.System, error) {
	var sys models.System
	err := s.Scan(&sys.ID, &sys.OrganizationID, &sys.Name, &sys.Location,
		&sys.MasterControllerMAC, &sys.RoutingKey, &sys.IsActive, &sys.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

func (p *Postgres) GetSystem(ctx context.Context, id string) (*models.System, error) {
	sys, err := scanSystem(p.db.QueryRowContext(ctx,
		`SELECT `+systemCols+` FROM systems WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntitySystem, id)
	}
	return sys, err
}

func (p *Postgres) FindSystemByRoutingKey(ctx context.Context, routingKey string) (*models.System, error) {
	sys, err := scanSystem(p.db.QueryRowContext(ctx,
		`SELECT `+systemCols+` FROM systems WHERE routing_key = $1`, routingKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntitySystem, routingKey)
	}
	return sys, err
}

func (p *Postgres) ListSystems(ctx context.Context, routingKey string) ([]*models.System, error) {
	query := `SELECT ` + systemCols + ` FROM systems`
	args := []any{}
	if routingKey != "" {
		query += ` WHERE routing_key = $1`
		args = append(args, routingKey)
	}
	query += ` ORDER BY created_at`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()
	out := make([]*models.System, 0)
	for rows.Next() {
		sys, err := scanSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan system: %w", err)
		}
		out = append(out, sys)
	}
	return out, rows.Err()
}

// Rows

func (p *Postgres) CreateRow(ctx context.Context, row *models.Row) (*models.Row, error) {
	c := *row
	c.ID = newID(c.ID)
	if c.LastSeen.IsZero() {
		c.LastSeen = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rows (id, system_id, row_number, controller_mac, current_plant_profile, is_active, last_seen)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		c.ID, c.SystemID, c.RowNumber, c.ControllerMAC, c.CurrentPlantProfile, c.IsActive, c.LastSeen)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, models.ErrDuplicateRowNumber
		}
		return nil, fmt.Errorf("insert row: %w", err)
	}
	return &c, nil
}

const rowCols = `id, system_id, row_number, controller_mac, COALESCE(current_plant_profile::text, ''), is_active, last_seen`

func scanRow(s interface{ Scan(...any) error }) (*models.Row, error) {
	var row models.Row
	err := s.Scan(&row.ID, &row.SystemID, &row.RowNumber, &row.ControllerMAC,
		&row.CurrentPlantProfile, &row.IsActive, &row.LastSeen)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (p *Postgres) GetRow(ctx context.Context, id string) (*models.Row, error) {
	row, err := scanRow(p.db.QueryRowContext(ctx,
		`SELECT `+rowCols+` FROM rows WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityRow, id)
	}
	return row, err
}

func (p *Postgres) FindRowByNumber(ctx context.Context, systemID string, rowNumber int) (*models.Row, error) {
	row, err := scanRow(p.db.QueryRowContext(ctx,
		`SELECT `+rowCols+` FROM rows WHERE system_id = $1 AND row_number = $2`, systemID, rowNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityRow, fmt.Sprintf("%d", rowNumber))
	}
	return row, err
}

func (p *Postgres) ListRows(ctx context.Context, systemID string) ([]*models.Row, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rowCols+` FROM rows WHERE system_id = $1 ORDER BY row_number`, systemID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) TouchRow(ctx context.Context, id string, seen time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rows SET last_seen = $2 WHERE id = $1`, id, seen)
	if err != nil {
		return fmt.Errorf("touch row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFound(models.EntityRow, id)
	}
	return nil
}

func (p *Postgres) SetRowProfile(ctx context.Context, id, profileID string) (*models.Row, error) {
	row, err := scanRow(p.db.QueryRowContext(ctx,
		`UPDATE rows SET current_plant_profile = $2 WHERE id = $1 RETURNING `+rowCols, id, profileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityRow, id)
	}
	return row, err
}

// Plant profiles

func (p *Postgres) CreateProfile(ctx context.Context, profile *models.PlantProfile) (*models.PlantProfile, error) {
	c := *profile
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO plant_profiles (id, organization_id, name, is_default, parameters, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OrganizationID, c.Name, c.IsDefault, params, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &c, nil
}

const profileCols = `id, organization_id, name, is_default, parameters, created_at`

func scanProfile(s interface{ Scan(...any) error }) (*models.PlantProfile, error) {
	var profile models.PlantProfile
	var params []byte
	err := s.Scan(&profile.ID, &profile.OrganizationID, &profile.Name,
		&profile.IsDefault, &params, &profile.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &profile.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &profile, nil
}

func (p *Postgres) GetProfile(ctx context.Context, id string) (*models.PlantProfile, error) {
	profile, err := scanProfile(p.db.QueryRowContext(ctx,
		`SELECT `+profileCols+` FROM plant_profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityProfile, id)
	}
	return profile, err
}

func (p *Postgres) FindProfileByName(ctx context.Context, organizationID, name string) (*models.PlantProfile, error) {
	profile, err := scanProfile(p.db.QueryRowContext(ctx,
		`SELECT `+profileCols+` FROM plant_profiles WHERE organization_id = $1 AND name = $2 LIMIT 1`,
		organizationID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityProfile, name)
	}
	return profile, err
}

func (p *Postgres) ListProfiles(ctx context.Context, organizationID string) ([]*models.PlantProfile, error) {
	query := `SELECT ` + profileCols + ` FROM plant_profiles WHERE is_default ORDER BY name`
	args := []any{}
	if organizationID != "" {
		query = `SELECT ` + profileCols + ` FROM plant_profiles WHERE organization_id = $1 ORDER BY name`
		args = append(args, organizationID)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	out := make([]*models.PlantProfile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

// Readings

func (p *Postgres) AppendReading(ctx context.Context, reading *models.Reading) (*models.Reading, error) {
	c := *reading
	c.ID = newID(c.ID)
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO readings (id, row_id, routing_key, ts, data) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.RowID, c.RoutingKey, c.Timestamp, data)
	if err != nil {
		return nil, fmt.Errorf("insert reading: %w", err)
	}
	return &c, nil
}

func (p *Postgres) queryReadings(ctx context.Context, query string, key string, limit int) ([]*models.Reading, error) {
	rows, err := p.db.QueryContext(ctx, query, key, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Reading, 0)
	for rows.Next() {
		var reading models.Reading
		var data []byte
		if err := rows.Scan(&reading.ID, &reading.RowID, &reading.RoutingKey, &reading.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if err := json.Unmarshal(data, &reading.Data); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, &reading)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestReadings(ctx context.Context, rowID string, limit int) ([]*models.Reading, error) {
	return p.queryReadings(ctx,
		`SELECT id, row_id, routing_key, ts, data FROM readings WHERE row_id = $1 ORDER BY ts DESC LIMIT $2`,
		rowID, limit)
}

func (p *Postgres) LatestReadingsByRoute(ctx context.Context, routingKey string, limit int) ([]*models.Reading, error) {
	return p.queryReadings(ctx,
		`SELECT id, row_id, routing_key, ts, data FROM readings WHERE routing_key = $1 ORDER BY ts DESC LIMIT $2`,
		routingKey, limit)
}

// Alert rules

const ruleCols = `id, system_id, parameter, min_threshold, max_threshold, severity, is_enabled, notify_methods`

func scanRule(s interface{ Scan(...any) error }) (*models.AlertRule, error) {
	var rule models.AlertRule
	var minT, maxT sql.NullFloat64
	var severity string
	var methods pq.StringArray
	err := s.Scan(&rule.ID, &rule.SystemID, &rule.Parameter, &minT, &maxT,
		&severity, &rule.IsEnabled, &methods)
	if err != nil {
		return nil, err
	}
	if minT.Valid {
		rule.MinThreshold = &minT.Float64
	}
	if maxT.Valid {
		rule.MaxThreshold = &maxT.Float64
	}
	rule.Severity = models.Severity(severity)
	for _, m := range methods {
		rule.NotifyMethods = append(rule.NotifyMethods, models.NotifyMethod(m))
	}
	return &rule, nil
}

func (p *Postgres) FindRule(ctx context.Context, systemID, parameter string) (*models.AlertRule, error) {
	rule, err := scanRule(p.db.QueryRowContext(ctx,
		`SELECT `+ruleCols+` FROM alert_rules WHERE system_id = $1 AND parameter = $2`,
		systemID, parameter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityRule, parameter)
	}
	return rule, err
}

func (p *Postgres) ListRules(ctx context.Context, systemID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleCols + ` FROM alert_rules`
	args := []any{}
	if systemID != "" {
		query += ` WHERE system_id = $1`
		args = append(args, systemID)
	}
	query += ` ORDER BY system_id, parameter`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	out := make([]*models.AlertRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// UpsertRule relies on the (system_id, parameter) unique constraint for
// serialization: NULL parameters leave existing columns unchanged, and the
// insert path falls back to the column defaults.
func (p *Postgres) UpsertRule(ctx context.Context, systemID, parameter string, patch models.RulePatch) (*models.AlertRule, error) {
	var severity *string
	if patch.Severity != nil {
		s := string(*patch.Severity)
		severity = &s
	}
	var methods any
	if patch.NotifyMethods != nil {
		arr := make([]string, 0, len(patch.NotifyMethods))
		for _, m := range patch.NotifyMethods {
			arr = append(arr, string(m))
		}
		methods = pq.Array(arr)
	} else {
		methods = pq.Array([]string(nil))
	}
	rule, err := scanRule(p.db.QueryRowContext(ctx, `
		INSERT INTO alert_rules (id, system_id, parameter, min_threshold, max_threshold, severity, is_enabled, notify_methods)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, 'warning'), COALESCE($7, TRUE), COALESCE($8, '{}'))
		ON CONFLICT (system_id, parameter) DO UPDATE SET
			min_threshold  = COALESCE($4, alert_rules.min_threshold),
			max_threshold  = COALESCE($5, alert_rules.max_threshold),
			severity       = COALESCE($6, alert_rules.severity),
			is_enabled     = COALESCE($7, alert_rules.is_enabled),
			notify_methods = COALESCE($8, alert_rules.notify_methods)
		RETURNING `+ruleCols,
		uuid.New().String(), systemID, parameter,
		patch.MinThreshold, patch.MaxThreshold, severity, patch.IsEnabled, methods))
	if err != nil {
		return nil, fmt.Errorf("upsert rule: %w", err)
	}
	return rule, nil
}

// Alerts

const alertCols = `id, system_id, COALESCE(row_id::text, ''), type, parameter, message, value, threshold, is_resolved, created_at, resolved_at`

func scanAlert(s interface{ Scan(...any) error }) (*models.Alert, error) {
	var alert models.Alert
	var alertType string
	var resolvedAt sql.NullTime
	err := s.Scan(&alert.ID, &alert.SystemID, &alert.RowID, &alertType, &alert.Parameter,
		&alert.Message, &alert.Value, &alert.Threshold, &alert.IsResolved,
		&alert.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	alert.Type = models.AlertType(alertType)
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	return &alert, nil
}

func (p *Postgres) FindOpenAlert(ctx context.Context, systemID, parameter string) (*models.Alert, error) {
	alert, err := scanAlert(p.db.QueryRowContext(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE system_id = $1 AND parameter = $2 AND NOT is_resolved`,
		systemID, parameter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityAlert, parameter)
	}
	return alert, err
}

// CreateAlertIfNoneOpen races through the partial unique index: the loser of
// a concurrent insert gets no row back and reads the winner instead.
func (p *Postgres) CreateAlertIfNoneOpen(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	c := *alert
	c.ID = newID(c.ID)
	c.IsResolved = false
	c.ResolvedAt = nil
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var inserted string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO alerts (id, system_id, row_id, type, parameter, message, value, threshold, is_resolved, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, FALSE, $9)
		ON CONFLICT (system_id, parameter) WHERE NOT is_resolved DO NOTHING
		RETURNING id`,
		c.ID, c.SystemID, c.RowID, string(c.Type), c.Parameter, c.Message,
		c.Value, c.Threshold, c.CreatedAt).Scan(&inserted)
	if err == nil {
		return &c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert alert: %w", err)
	}
	existing, err := p.FindOpenAlert(ctx, c.SystemID, c.Parameter)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (p *Postgres) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts`
	var where []string
	var args []any
	if filter.SystemID != "" {
		args = append(args, filter.SystemID)
		where = append(where, fmt.Sprintf("system_id = $%d", len(args)))
	}
	if filter.RowID != "" {
		args = append(args, filter.RowID)
		where = append(where, fmt.Sprintf("row_id = $%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		where = append(where, fmt.Sprintf("is_resolved = $%d", len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (p *Postgres) ResolveAlert(ctx context.Context, id string, at time.Time) (*models.Alert, error) {
	alert, err := scanAlert(p.db.QueryRowContext(ctx,
		`UPDATE alerts SET is_resolved = TRUE, resolved_at = $2 WHERE id = $1 RETURNING `+alertCols,
		id, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.EntityAlert, id)
	}
	return alert, err
}

func (p *Postgres) Close() error { return p.db.Close() }
