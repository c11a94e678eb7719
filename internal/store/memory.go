package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquasense/internal/models"
)

// Memory is an in-process Store used by tests and single-node development.
// Each collection has its own lock so appends for different rows do not
// contend with alert or rule traffic. Readings are additionally sharded per
// row and per routing key.
type Memory struct {
	orgMu sync.RWMutex
	orgs  map[string]*models.Organization

	sysMu      sync.RWMutex
	systems    map[string]*models.System
	sysByRoute map[string]string // routingKey -> systemID

	rowMu    sync.RWMutex
	rows     map[string]*models.Row
	rowByNum map[rowKey]string // (systemID, rowNumber) -> rowID

	profMu   sync.RWMutex
	profiles map[string]*models.PlantProfile

	readMu  sync.RWMutex
	byRow   map[string]*readingSeries
	byRoute map[string]*readingSeries

	ruleMu    sync.Mutex
	rules     map[string]*models.AlertRule
	ruleByKey map[paramKey]string // (systemID, parameter) -> ruleID

	alertMu sync.Mutex
	alerts  map[string]*models.Alert
	open    map[paramKey]string // (systemID, parameter) -> open alertID
}

type rowKey struct {
	systemID  string
	rowNumber int
}

type paramKey struct {
	systemID  string
	parameter string
}

// readingSeries keeps readings sorted newest first under its own lock, so
// concurrent appends for different rows never block each other.
type readingSeries struct {
	mu       sync.Mutex
	readings []*models.Reading
}

// insert places r by timestamp descending, tolerating out-of-order arrival.
func (s *readingSeries) insert(r *models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.readings), func(i int) bool {
		return s.readings[i].Timestamp.Before(r.Timestamp)
	})
	s.readings = append(s.readings, nil)
	copy(s.readings[i+1:], s.readings[i:])
	s.readings[i] = r
}

func (s *readingSeries) latest(limit int) []*models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.readings) {
		limit = len(s.readings)
	}
	out := make([]*models.Reading, limit)
	for i := 0; i < limit; i++ {
		c := *s.readings[i]
		c.Data = copyPayload(c.Data)
		out[i] = &c
	}
	return out
}

// copyPayload detaches the parameter map so callers never share state with
// stored records.
func copyPayload(p models.Payload) models.Payload {
	c := make(models.Payload, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orgs:       make(map[string]*models.Organization),
		systems:    make(map[string]*models.System),
		sysByRoute: make(map[string]string),
		rows:       make(map[string]*models.Row),
		rowByNum:   make(map[rowKey]string),
		profiles:   make(map[string]*models.PlantProfile),
		byRow:      make(map[string]*readingSeries),
		byRoute:    make(map[string]*readingSeries),
		rules:      make(map[string]*models.AlertRule),
		ruleByKey:  make(map[paramKey]string),
		alerts:     make(map[string]*models.Alert),
		open:       make(map[paramKey]string),
	}
}

var _ Store = (*Memory)(nil)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxReadingWindow {
		return MaxReadingWindow
	}
	return limit
}

// Organizations

func (m *Memory) CreateOrganization(_ context.Context, org *models.Organization) (*models.Organization, error) {
	m.orgMu.Lock()
	defer m.orgMu.Unlock()
	c := *org
	c.ID = newID(c.ID)
	m.orgs[c.ID] = &c
	out := c
	return &out, nil
}

func (m *Memory) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	m.orgMu.RLock()
	defer m.orgMu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, models.NewNotFound(models.EntityOrganization, id)
	}
	c := *org
	return &c, nil
}

func (m *Memory) FindOrganizationByName(_ context.Context, name string) (*models.Organization, error) {
	m.orgMu.RLock()
	defer m.orgMu.RUnlock()
	for _, org := range m.orgs {
		if org.Name == name {
			c := *org
			return &c, nil
		}
	}
	return nil, models.NewNotFound(models.EntityOrganization, name)
}

func (m *Memory) ListOrganizations(_ context.Context) ([]*models.Organization, error) {
	m.orgMu.RLock()
	defer m.orgMu.RUnlock()
	out := make([]*models.Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		c := *org
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Systems

func (m *Memory) CreateSystem(_ context.Context, sys *models.System) (*models.System, error) {
	m.sysMu.Lock()
	defer m.sysMu.Unlock()
	if _, exists := m.sysByRoute[sys.RoutingKey]; exists {
		return nil, models.ErrDuplicateRoutingKey
	}
	c := *sys
	c.ID = newID(c.ID)
	m.systems[c.ID] = &c
	m.sysByRoute[c.RoutingKey] = c.ID
	out := c
	return &out, nil
}

func (m *Memory) GetSystem(_ context.Context, id string) (*models.System, error) {
	m.sysMu.RLock()
	defer m.sysMu.RUnlock()
	sys, ok := m.systems[id]
	if !ok {
		return nil, models.NewNotFound(models.EntitySystem, id)
	}
	c := *sys
	return &c, nil
}

func (m *Memory) FindSystemByRoutingKey(_ context.Context, routingKey string) (*models.System, error) {
	m.sysMu.RLock()
	defer m.sysMu.RUnlock()
	id, ok := m.sysByRoute[routingKey]
	if !ok {
		return nil, models.NewNotFound(models.EntitySystem, routingKey)
	}
	c := *m.systems[id]
	return &c, nil
}

func (m *Memory) ListSystems(_ context.Context, routingKey string) ([]*models.System, error) {
	m.sysMu.RLock()
	defer m.sysMu.RUnlock()
	out := make([]*models.System, 0, len(m.systems))
	for _, sys := range m.systems {
		if routingKey != "" && sys.RoutingKey != routingKey {
			continue
		}
		c := *sys
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Rows

func (m *Memory) CreateRow(_ context.Context, row *models.Row) (*models.Row, error) {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	key := rowKey{row.SystemID, row.RowNumber}
	if _, exists := m.rowByNum[key]; exists {
		return nil, models.ErrDuplicateRowNumber
	}
	c := *row
	c.ID = newID(c.ID)
	m.rows[c.ID] = &c
	m.rowByNum[key] = c.ID
	out := c
	return &out, nil
}

func (m *Memory) GetRow(_ context.Context, id string) (*models.Row, error) {
	m.rowMu.RLock()
	defer m.rowMu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, models.NewNotFound(models.EntityRow, id)
	}
	c := *row
	return &c, nil
}

func (m *Memory) FindRowByNumber(_ context.Context, systemID string, rowNumber int) (*models.Row, error) {
	m.rowMu.RLock()
	defer m.rowMu.RUnlock()
	id, ok := m.rowByNum[rowKey{systemID, rowNumber}]
	if !ok {
		return nil, models.NewNotFound(models.EntityRow, "")
	}
	c := *m.rows[id]
	return &c, nil
}

func (m *Memory) ListRows(_ context.Context, systemID string) ([]*models.Row, error) {
	m.rowMu.RLock()
	defer m.rowMu.RUnlock()
	out := make([]*models.Row, 0)
	for _, row := range m.rows {
		if row.SystemID != systemID {
			continue
		}
		c := *row
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (m *Memory) TouchRow(_ context.Context, id string, seen time.Time) error {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.NewNotFound(models.EntityRow, id)
	}
	row.LastSeen = seen
	return nil
}

func (m *Memory) SetRowProfile(_ context.Context, id, profileID string) (*models.Row, error) {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, models.NewNotFound(models.EntityRow, id)
	}
	row.CurrentPlantProfile = profileID
	c := *row
	return &c, nil
}

// Plant profiles

func (m *Memory) CreateProfile(_ context.Context, profile *models.PlantProfile) (*models.PlantProfile, error) {
	m.profMu.Lock()
	defer m.profMu.Unlock()
	c := *profile
	c.ID = newID(c.ID)
	m.profiles[c.ID] = &c
	out := c
	return &out, nil
}

func (m *Memory) GetProfile(_ context.Context, id string) (*models.PlantProfile, error) {
	m.profMu.RLock()
	defer m.profMu.RUnlock()
	profile, ok := m.profiles[id]
	if !ok {
		return nil, models.NewNotFound(models.EntityProfile, id)
	}
	c := *profile
	return &c, nil
}

func (m *Memory) FindProfileByName(_ context.Context, organizationID, name string) (*models.PlantProfile, error) {
	m.profMu.RLock()
	defer m.profMu.RUnlock()
	for _, profile := range m.profiles {
		if profile.OrganizationID == organizationID && profile.Name == name {
			c := *profile
			return &c, nil
		}
	}
	return nil, models.NewNotFound(models.EntityProfile, name)
}

func (m *Memory) ListProfiles(_ context.Context, organizationID string) ([]*models.PlantProfile, error) {
	m.profMu.RLock()
	defer m.profMu.RUnlock()
	out := make([]*models.PlantProfile, 0)
	for _, profile := range m.profiles {
		if organizationID == "" {
			if !profile.IsDefault {
				continue
			}
		} else if profile.OrganizationID != organizationID {
			continue
		}
		c := *profile
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Readings

func (m *Memory) series(rowID, routingKey string) (*readingSeries, *readingSeries) {
	m.readMu.RLock()
	rs, rok := m.byRow[rowID]
	ts, tok := m.byRoute[routingKey]
	m.readMu.RUnlock()
	if rok && tok {
		return rs, ts
	}
	m.readMu.Lock()
	defer m.readMu.Unlock()
	if rs = m.byRow[rowID]; rs == nil {
		rs = &readingSeries{}
		m.byRow[rowID] = rs
	}
	if ts = m.byRoute[routingKey]; ts == nil {
		ts = &readingSeries{}
		m.byRoute[routingKey] = ts
	}
	return rs, ts
}

func (m *Memory) AppendReading(_ context.Context, reading *models.Reading) (*models.Reading, error) {
	c := *reading
	c.ID = newID(c.ID)
	c.Data = copyPayload(reading.Data)
	rowSeries, routeSeries := m.series(c.RowID, c.RoutingKey)
	rowSeries.insert(&c)
	routeSeries.insert(&c)
	out := c
	out.Data = copyPayload(c.Data)
	return &out, nil
}

func (m *Memory) LatestReadings(_ context.Context, rowID string, limit int) ([]*models.Reading, error) {
	m.readMu.RLock()
	series := m.byRow[rowID]
	m.readMu.RUnlock()
	if series == nil {
		return []*models.Reading{}, nil
	}
	return series.latest(clampLimit(limit)), nil
}

func (m *Memory) LatestReadingsByRoute(_ context.Context, routingKey string, limit int) ([]*models.Reading, error) {
	m.readMu.RLock()
	series := m.byRoute[routingKey]
	m.readMu.RUnlock()
	if series == nil {
		return []*models.Reading{}, nil
	}
	return series.latest(clampLimit(limit)), nil
}

// Alert rules

func (m *Memory) FindRule(_ context.Context, systemID, parameter string) (*models.AlertRule, error) {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()
	id, ok := m.ruleByKey[paramKey{systemID, parameter}]
	if !ok {
		return nil, models.NewNotFound(models.EntityRule, parameter)
	}
	c := copyRule(m.rules[id])
	return c, nil
}

func (m *Memory) ListRules(_ context.Context, systemID string) ([]*models.AlertRule, error) {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()
	out := make([]*models.AlertRule, 0)
	for _, rule := range m.rules {
		if systemID != "" && rule.SystemID != systemID {
			continue
		}
		out = append(out, copyRule(rule))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SystemID != out[j].SystemID {
			return out[i].SystemID < out[j].SystemID
		}
		return out[i].Parameter < out[j].Parameter
	})
	return out, nil
}

func (m *Memory) UpsertRule(_ context.Context, systemID, parameter string, patch models.RulePatch) (*models.AlertRule, error) {
	m.ruleMu.Lock()
	defer m.ruleMu.Unlock()
	key := paramKey{systemID, parameter}
	if id, ok := m.ruleByKey[key]; ok {
		rule := m.rules[id]
		applyPatch(rule, patch)
		return copyRule(rule), nil
	}
	rule := &models.AlertRule{
		ID:        uuid.New().String(),
		SystemID:  systemID,
		Parameter: parameter,
		Severity:  models.SeverityWarning,
		IsEnabled: true,
	}
	applyPatch(rule, patch)
	m.rules[rule.ID] = rule
	m.ruleByKey[key] = rule.ID
	return copyRule(rule), nil
}

func applyPatch(rule *models.AlertRule, patch models.RulePatch) {
	if patch.MinThreshold != nil {
		v := *patch.MinThreshold
		rule.MinThreshold = &v
	}
	if patch.MaxThreshold != nil {
		v := *patch.MaxThreshold
		rule.MaxThreshold = &v
	}
	if patch.Severity != nil {
		rule.Severity = *patch.Severity
	}
	if patch.IsEnabled != nil {
		rule.IsEnabled = *patch.IsEnabled
	}
	if patch.NotifyMethods != nil {
		rule.NotifyMethods = append([]models.NotifyMethod(nil), patch.NotifyMethods...)
	}
}

func copyRule(rule *models.AlertRule) *models.AlertRule {
	c := *rule
	if rule.MinThreshold != nil {
		v := *rule.MinThreshold
		c.MinThreshold = &v
	}
	if rule.MaxThreshold != nil {
		v := *rule.MaxThreshold
		c.MaxThreshold = &v
	}
	c.NotifyMethods = append([]models.NotifyMethod(nil), rule.NotifyMethods...)
	return &c
}

// Alerts

func (m *Memory) FindOpenAlert(_ context.Context, systemID, parameter string) (*models.Alert, error) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	id, ok := m.open[paramKey{systemID, parameter}]
	if !ok {
		return nil, models.NewNotFound(models.EntityAlert, parameter)
	}
	c := copyAlert(m.alerts[id])
	return c, nil
}

func (m *Memory) CreateAlertIfNoneOpen(_ context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	key := paramKey{alert.SystemID, alert.Parameter}
	if id, ok := m.open[key]; ok {
		return copyAlert(m.alerts[id]), false, nil
	}
	c := *alert
	c.ID = newID(c.ID)
	c.IsResolved = false
	c.ResolvedAt = nil
	m.alerts[c.ID] = &c
	m.open[key] = c.ID
	return copyAlert(&c), true, nil
}

func (m *Memory) ListAlerts(_ context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	out := make([]*models.Alert, 0)
	for _, alert := range m.alerts {
		if filter.SystemID != "" && alert.SystemID != filter.SystemID {
			continue
		}
		if filter.RowID != "" && alert.RowID != filter.RowID {
			continue
		}
		if filter.Resolved != nil && alert.IsResolved != *filter.Resolved {
			continue
		}
		out = append(out, copyAlert(alert))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ResolveAlert(_ context.Context, id string, at time.Time) (*models.Alert, error) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return nil, models.NewNotFound(models.EntityAlert, id)
	}
	if !alert.IsResolved {
		delete(m.open, paramKey{alert.SystemID, alert.Parameter})
	}
	alert.IsResolved = true
	stamped := at
	alert.ResolvedAt = &stamped
	return copyAlert(alert), nil
}

func copyAlert(alert *models.Alert) *models.Alert {
	c := *alert
	if alert.ResolvedAt != nil {
		v := *alert.ResolvedAt
		c.ResolvedAt = &v
	}
	return &c
}

func (m *Memory) Close() error { return nil }
