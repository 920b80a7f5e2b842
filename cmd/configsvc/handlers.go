package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cacsvc/core/pkg/contextregistry"
	"github.com/cacsvc/core/pkg/defaultconfig"
	"github.com/cacsvc/core/pkg/dimension"
	"github.com/cacsvc/core/pkg/httpapi"
	"github.com/cacsvc/core/pkg/resolver"
)

// api is the composition root's handler set: one field per domain
// registry, translated onto a net/http.ServeMux. Routing is dispatched
// by method within each path handler rather than a router library,
// matching the teacher's console.Server shape.
type api struct {
	dimensions *dimension.Registry
	defaults   *defaultconfig.Registry
	contexts   *contextregistry.Registry
	resolver   *resolver.Resolver
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/v1/dimensions", a.handleDimensions)
	mux.HandleFunc("/v1/dimensions/", a.handleDimensionByName)
	mux.HandleFunc("/v1/default-configs", a.handleDefaultConfigs)
	mux.HandleFunc("/v1/default-configs/", a.handleDefaultConfigByKey)
	mux.HandleFunc("/v1/contexts", a.handleContexts)
	mux.HandleFunc("/v1/contexts/", a.handleContextByID)
	mux.HandleFunc("/v1/contexts/bulk", a.handleBulk)
	mux.HandleFunc("/v1/resolve", a.handleResolve)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- dimensions --------------------------------------------------------

func (a *api) handleDimensions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dims, err := a.dimensions.List(r.Context())
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dims)
	case http.MethodPost:
		var d dimension.Dimension
		if !decodeJSON(w, r, &d) {
			return
		}
		d.CreatedAt = time.Now().UTC()
		d.CreatedBy = requestedBy(r)
		if err := a.dimensions.Create(r.Context(), d); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

func (a *api) handleDimensionByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/dimensions/")
	if name == "" {
		httpapi.WriteBadRequest(w, r, "missing dimension name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, err := a.dimensions.Get(r.Context(), name)
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodPut:
		var body struct {
			Priority int `json:"priority"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := a.dimensions.SetPriority(r.Context(), name, body.Priority); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if err := a.dimensions.Delete(r.Context(), name); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

// --- default configs -----------------------------------------------------

func (a *api) handleDefaultConfigs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := a.defaults.List(r.Context())
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var e defaultconfig.Entry
		if !decodeJSON(w, r, &e) {
			return
		}
		if err := a.defaults.Upsert(r.Context(), e); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

func (a *api) handleDefaultConfigByKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/default-configs/")
	if key == "" {
		httpapi.WriteBadRequest(w, r, "missing default-config key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, err := a.defaults.Get(r.Context(), key)
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case http.MethodDelete:
		if err := a.defaults.Delete(r.Context(), key); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

// --- contexts --------------------------------------------------------

type putContextRequest struct {
	Condition json.RawMessage            `json:"condition"`
	Override  map[string]json.RawMessage `json:"override"`
}

func (a *api) handleContexts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := r.URL.Query().Get("filter")
		page := atoiDefault(r.URL.Query().Get("page"), 1)
		size := atoiDefault(r.URL.Query().Get("size"), 20)
		rows, total, err := a.contexts.ListContexts(r.Context(), filter, page, size)
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contexts": rows, "total": total})
	case http.MethodPost:
		var req putContextRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := a.contexts.PutContext(r.Context(), req.Condition, req.Override, requestedBy(r))
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

func (a *api) handleContextByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/contexts/")
	if id == "" || id == "bulk" {
		httpapi.WriteMethodNotAllowed(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		row, err := a.contexts.GetContext(r.Context(), id)
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	case http.MethodPut:
		var req putContextRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := a.contexts.MoveContext(r.Context(), id, req.Condition, req.Override, requestedBy(r))
		if err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		if err := a.contexts.DeleteContext(r.Context(), id); err != nil {
			httpapi.WriteDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httpapi.WriteMethodNotAllowed(w, r)
	}
}

type bulkActionRequest struct {
	Kind      contextregistry.ActionKind `json:"kind"`
	ID        string                     `json:"id,omitempty"`
	Condition json.RawMessage            `json:"condition,omitempty"`
	Override  map[string]json.RawMessage `json:"override,omitempty"`
}

func (a *api) handleBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r)
		return
	}

	var req []bulkActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	by := requestedBy(r)
	actions := make([]contextregistry.Action, len(req))
	for i, a := range req {
		actions[i] = contextregistry.Action{
			Kind:      a.Kind,
			ID:        a.ID,
			Condition: a.Condition,
			Override:  a.Override,
			CreatedBy: by,
		}
	}

	results, err := a.contexts.Bulk(r.Context(), actions)
	if err != nil {
		httpapi.WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- resolve -----------------------------------------------------------

func (a *api) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteMethodNotAllowed(w, r)
		return
	}

	var body struct {
		Context map[string]any `json:"context"`
		Filter  string         `json:"filter"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := a.resolver.Resolve(r.Context(), body.Context, body.Filter)
	if err != nil {
		httpapi.WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- helpers -------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpapi.WriteBadRequest(w, r, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func requestedBy(r *http.Request) string {
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	return "anonymous"
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
