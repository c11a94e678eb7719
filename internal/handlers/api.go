// Package handlers exposes the core's command and query surface over HTTP
// for the dashboard and the simulator form.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"aquasense/internal/alerting"
	"aquasense/internal/ingest"
	"aquasense/internal/models"
	"aquasense/internal/readings"
	"aquasense/internal/resolver"
	"aquasense/internal/store"
)

// API bundles the services behind the HTTP surface.
type API struct {
	store     store.Store
	ingest    *ingest.Service
	resolver  *resolver.Resolver
	readings  *readings.Service
	lifecycle *alerting.Lifecycle
}

// Config holds the API dependencies.
type Config struct {
	Store     store.Store
	Ingest    *ingest.Service
	Resolver  *resolver.Resolver
	Readings  *readings.Service
	Lifecycle *alerting.Lifecycle
}

// New creates the API handler set.
func New(cfg Config) *API {
	return &API{
		store:     cfg.Store,
		ingest:    cfg.Ingest,
		resolver:  cfg.Resolver,
		readings:  cfg.Readings,
		lifecycle: cfg.Lifecycle,
	}
}

// Register mounts all routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingest", a.handleIngest)
	mux.HandleFunc("POST /rows/{id}/simulate", a.handleSimulate)
	mux.HandleFunc("PUT /rows/{id}/profile", a.handleAssignProfile)

	mux.HandleFunc("GET /organizations", a.handleListOrganizations)
	mux.HandleFunc("GET /systems", a.handleListSystems)
	mux.HandleFunc("POST /systems", a.handleCreateSystem)
	mux.HandleFunc("GET /systems/{id}/rows", a.handleListRows)
	mux.HandleFunc("POST /systems/{id}/rows", a.handleCreateRow)

	mux.HandleFunc("GET /readings", a.handleListReadings)
	mux.HandleFunc("GET /profiles", a.handleListProfiles)

	mux.HandleFunc("GET /alerts", a.handleListAlerts)
	mux.HandleFunc("POST /alerts/{id}/resolve", a.handleResolveAlert)
	mux.HandleFunc("GET /alert-rules", a.handleListRules)
	mux.HandleFunc("PUT /systems/{id}/alert-rules/{parameter}", a.handleUpsertRule)
}

// handleIngest accepts one parsed inbound reading, the same shape a
// transport collaborator delivers.
func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in models.InboundReading
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := a.ingest.Ingest(r.Context(), &in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleSimulate(w http.ResponseWriter, r *http.Request) {
	result, err := a.ingest.Simulate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleAssignProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProfileID string `json:"profile_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "profile_id is required")
		return
	}
	row, err := a.resolver.AssignProfile(r.Context(), r.PathValue("id"), body.ProfileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := a.store.ListOrganizations(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (a *API) handleListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := a.store.ListSystems(r.Context(), r.URL.Query().Get("routing_key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, systems)
}

func (a *API) handleCreateSystem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrganizationID      string `json:"organization_id"`
		Name                string `json:"name"`
		Location            string `json:"location"`
		MasterControllerMAC string `json:"master_controller_mac"`
		RoutingKey          string `json:"routing_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == "" || body.RoutingKey == "" || body.OrganizationID == "" {
		writeError(w, http.StatusBadRequest, "name, routing_key, and organization_id are required")
		return
	}
	if _, err := a.store.GetOrganization(r.Context(), body.OrganizationID); err != nil {
		writeServiceError(w, err)
		return
	}
	sys, err := a.store.CreateSystem(r.Context(), &models.System{
		OrganizationID:      body.OrganizationID,
		Name:                body.Name,
		Location:            body.Location,
		MasterControllerMAC: body.MasterControllerMAC,
		RoutingKey:          body.RoutingKey,
		IsActive:            true,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sys)
}

func (a *API) handleListRows(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("id")
	if _, err := a.store.GetSystem(r.Context(), systemID); err != nil {
		writeServiceError(w, err)
		return
	}
	rows, err := a.store.ListRows(r.Context(), systemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RowNumber     *int   `json:"row_number"`
		ControllerMAC string `json:"controller_mac"`
		ProfileID     string `json:"profile_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RowNumber == nil {
		writeError(w, http.StatusBadRequest, "row_number is required")
		return
	}
	systemID := r.PathValue("id")
	if _, err := a.store.GetSystem(r.Context(), systemID); err != nil {
		writeServiceError(w, err)
		return
	}
	if body.ProfileID != "" {
		if _, err := a.store.GetProfile(r.Context(), body.ProfileID); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	row, err := a.store.CreateRow(r.Context(), &models.Row{
		SystemID:            systemID,
		RowNumber:           *body.RowNumber,
		ControllerMAC:       body.ControllerMAC,
		CurrentPlantProfile: body.ProfileID,
		IsActive:            true,
		LastSeen:            time.Now().UTC(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// handleListReadings serves the two bounded read paths: by row or by
// routing key.
func (a *API) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	var (
		result []*models.Reading
		err    error
	)
	switch {
	case q.Get("row_id") != "":
		result, err = a.readings.Latest(r.Context(), q.Get("row_id"), limit)
	case q.Get("routing_key") != "":
		result, err = a.readings.LatestByRoute(r.Context(), q.Get("routing_key"), limit)
	default:
		writeError(w, http.StatusBadRequest, "row_id or routing_key is required")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.store.ListProfiles(r.Context(), r.URL.Query().Get("organization_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AlertFilter{
		SystemID: q.Get("system_id"),
		RowID:    q.Get("row_id"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolved must be a boolean")
			return
		}
		filter.Resolved = &resolved
	}
	alerts, err := a.lifecycle.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.lifecycle.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.lifecycle.Rules(r.Context(), r.URL.Query().Get("system_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *API) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var patch models.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.Severity != nil && !patch.Severity.IsValid() {
		writeError(w, http.StatusBadRequest, "severity must be warning or critical")
		return
	}
	systemID := r.PathValue("id")
	parameter := r.PathValue("parameter")
	if _, err := a.store.GetSystem(r.Context(), systemID); err != nil {
		writeServiceError(w, err)
		return
	}
	rule, err := a.lifecycle.UpsertRule(r.Context(), systemID, parameter, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// writeServiceError maps the core error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case models.IsNotFound(err, ""):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrCrossTenant):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrDuplicateRoutingKey),
		errors.Is(err, models.ErrDuplicateRowNumber):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrEmptyRoutingKey),
		errors.Is(err, models.ErrEmptyPayload),
		errors.Is(err, models.ErrZeroTimestamp),
		errors.Is(err, models.ErrNegativeRow),
		errors.Is(err, ingest.ErrMissingRowNumber):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
