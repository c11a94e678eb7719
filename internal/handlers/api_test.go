package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquasense/internal/alerting"
	"aquasense/internal/ingest"
	"aquasense/internal/models"
	"aquasense/internal/readings"
	"aquasense/internal/resolver"
	"aquasense/internal/state"
	"aquasense/internal/store"
)

type apiFixture struct {
	mux    *http.ServeMux
	store  *store.Memory
	org    *models.Organization
	system *models.System
	row    *models.Row
}

func newAPIFixture(t *testing.T) *apiFixture {
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
	row, err := m.CreateRow(ctx, &models.Row{SystemID: sys.ID, RowNumber: 1, IsActive: true})
	require.NoError(t, err)

	res := resolver.New(m)
	rds := readings.New(m)
	eng := alerting.NewEngine(m, state.NewKeyedLocker(), nil)
	api := New(Config{
		Store:     m,
		Ingest:    ingest.New(res, rds, eng, m),
		Resolver:  res,
		Readings:  rds,
		Lifecycle: alerting.NewLifecycle(m),
	})

	mux := http.NewServeMux()
	api.Register(mux)
	return &apiFixture{mux: mux, store: m, org: org, system: sys, row: row}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestIngestEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rowNum := 1
	rec := f.do(t, http.MethodPost, "/ingest", models.InboundReading{
		RoutingKey: "m5stack",
		RowNumber:  &rowNum,
		Payload:    models.Payload{models.ParamAirTemp: 24.5},
		Timestamp:  time.Now().UnixMilli(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	result := decode[ingest.Result](t, rec)
	assert.Equal(t, f.row.ID, result.Reading.RowID)
	assert.Equal(t, alerting.NoRule, result.Outcomes[models.ParamAirTemp])
}

func TestIngestEndpointErrors(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UnixMilli()
	rowNum := 1

	cases := []struct {
		name string
		body any
		want int
	}{
		{
			name: "unknown routing key",
			body: models.InboundReading{RoutingKey: "ghost", RowNumber: &rowNum, Payload: models.Payload{"x": 1}, Timestamp: now},
			want: http.StatusNotFound,
		},
		{
			name: "missing row number",
			body: models.InboundReading{RoutingKey: "m5stack", Payload: models.Payload{"x": 1}, Timestamp: now},
			want: http.StatusBadRequest,
		},
		{
			name: "empty payload",
			body: models.InboundReading{RoutingKey: "m5stack", RowNumber: &rowNum, Timestamp: now},
			want: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/ingest", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSimulateEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/rows/"+f.row.ID+"/simulate", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	result := decode[ingest.Result](t, rec)
	assert.Len(t, result.Reading.Data, 8)

	rec = f.do(t, http.MethodPost, "/rows/missing/simulate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSystemEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]string{
		"organization_id": f.org.ID,
		"name":            "South House",
		"routing_key":     "esp32",
	}
	rec := f.do(t, http.MethodPost, "/systems", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sys := decode[models.System](t, rec)
	assert.NotEmpty(t, sys.ID)
	assert.True(t, sys.IsActive)

	// duplicate routing key conflicts
	rec = f.do(t, http.MethodPost, "/systems", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// missing required fields
	rec = f.do(t, http.MethodPost, "/systems", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown organization
	body["organization_id"] = "missing"
	body["routing_key"] = "another"
	rec = f.do(t, http.MethodPost, "/systems", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRowEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/systems/"+f.system.ID+"/rows", map[string]any{"row_number": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[models.Row](t, rec)
	assert.Equal(t, 2, row.RowNumber)

	// duplicate row number within the system conflicts
	rec = f.do(t, http.MethodPost, "/systems/"+f.system.ID+"/rows", map[string]any{"row_number": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/systems/"+f.system.ID+"/rows", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/systems/missing/rows", map[string]any{"row_number": 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReadingsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.store.AppendReading(ctx, &models.Reading{
			RowID:      f.row.ID,
			RoutingKey: f.system.RoutingKey,
			Timestamp:  time.Now().UTC().Add(time.Duration(i) * time.Minute),
			Data:       models.Payload{models.ParamHumidity: float64(60 + i)},
		})
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/readings?row_id="+f.row.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byRow := decode[[]models.Reading](t, rec)
	assert.Len(t, byRow, 3)

	rec = f.do(t, http.MethodGet, "/readings?routing_key=m5stack&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byRoute := decode[[]models.Reading](t, rec)
	assert.Len(t, byRoute, 2)

	rec = f.do(t, http.MethodGet, "/readings", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/readings?row_id=x&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	alert, _, err := f.store.CreateAlertIfNoneOpen(ctx, &models.Alert{
		SystemID:  f.system.ID,
		RowID:     f.row.ID,
		Type:      models.AlertCritical,
		Parameter: models.ParamAirTemp,
		Value:     35,
		Threshold: 30,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/alerts?system_id="+f.system.ID+"&resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	open := decode[[]models.Alert](t, rec)
	require.Len(t, open, 1)

	rec = f.do(t, http.MethodPost, "/alerts/"+alert.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[models.Alert](t, rec)
	assert.True(t, resolved.IsResolved)

	rec = f.do(t, http.MethodGet, "/alerts?system_id="+f.system.ID+"&resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	open = decode[[]models.Alert](t, rec)
	assert.Empty(t, open)

	rec = f.do(t, http.MethodPost, "/alerts/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/alerts?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertRuleEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/systems/%s/alert-rules/%s", f.system.ID, models.ParamAirTemp)

	rec := f.do(t, http.MethodPut, path, map[string]any{
		"max_threshold": 30,
		"severity":      "critical",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rule := decode[models.AlertRule](t, rec)
	require.NotNil(t, rule.MaxThreshold)
	assert.Equal(t, models.SeverityCritical, rule.Severity)
	assert.True(t, rule.IsEnabled)

	// patching only one field leaves the rest intact
	rec = f.do(t, http.MethodPut, path, map[string]any{"min_threshold": 18})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[models.AlertRule](t, rec)
	assert.Equal(t, rule.ID, patched.ID)
	require.NotNil(t, patched.MaxThreshold)
	assert.Equal(t, 30.0, *patched.MaxThreshold)
	assert.Equal(t, models.SeverityCritical, patched.Severity)

	rec = f.do(t, http.MethodPut, path, map[string]any{"severity": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/systems/missing/alert-rules/airTemp", map[string]any{"max_threshold": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/alert-rules?system_id="+f.system.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decode[[]models.AlertRule](t, rec)
	assert.Len(t, rules, 1)
}

func TestAssignProfileEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	profile, err := f.store.CreateProfile(ctx, &models.PlantProfile{
		OrganizationID: f.org.ID,
		Name:           "Lettuce",
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPut, "/rows/"+f.row.ID+"/profile", map[string]string{"profile_id": profile.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := decode[models.Row](t, rec)
	assert.Equal(t, profile.ID, row.CurrentPlantProfile)

	rec = f.do(t, http.MethodPut, "/rows/"+f.row.ID+"/profile", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a profile from another organization conflicts
	other, err := f.store.CreateOrganization(ctx, &models.Organization{Name: "Rival Farms", Tier: models.TierDIY})
	require.NoError(t, err)
	foreign, err := f.store.CreateProfile(ctx, &models.PlantProfile{OrganizationID: other.ID, Name: "Basil"})
	require.NoError(t, err)

	rec = f.do(t, http.MethodPut, "/rows/"+f.row.ID+"/profile", map[string]string{"profile_id": foreign.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListSystemsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/systems", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]models.System](t, rec)
	assert.Len(t, all, 1)

	rec = f.do(t, http.MethodGet, "/systems?routing_key=m5stack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filtered := decode[[]models.System](t, rec)
	require.Len(t, filtered, 1)
	assert.Equal(t, f.system.ID, filtered[0].ID)

	rec = f.do(t, http.MethodGet, "/systems?routing_key=ghost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	none := decode[[]models.System](t, rec)
	assert.Empty(t, none)
}
