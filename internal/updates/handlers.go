package updates

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/targets/{id}/check", Handler: m.submitHandler(OpCheck)},
		{Method: "POST", Path: "/targets/{id}/upgrade", Handler: m.submitHandler(OpUpgradeAll)},
		{Method: "POST", Path: "/targets/{id}/full-upgrade", Handler: m.submitHandler(OpFullUpgradeAll)},
		{Method: "POST", Path: "/targets/{id}/reboot", Handler: m.submitHandler(OpReboot)},
		{Method: "POST", Path: "/targets/{id}/packages/{name}/upgrade", Handler: m.handlePackageUpgrade},
		{Method: "GET", Path: "/targets/{id}/updates", Handler: m.handleGetUpdates},
		{Method: "GET", Path: "/targets/{id}/history", Handler: m.handleGetHistory},
		{Method: "GET", Path: "/targets/{id}/stream", Handler: m.handleStream},
		{Method: "GET", Path: "/jobs/{id}", Handler: m.handleGetJob},
		{Method: "POST", Path: "/jobs/{id}/cancel", Handler: m.handleCancelJob},
		{Method: "POST", Path: "/cache/invalidate", Handler: m.handleInvalidateCache},
	}
}

// submitHandler builds the handler for the single-verb operation routes.
func (m *Module) submitHandler(kind OpKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.submit(w, r, kind, "")
	}
}

func (m *Module) handlePackageUpgrade(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		updatesWriteError(w, http.StatusBadRequest, "package name is required")
		return
	}
	m.submit(w, r, OpUpgradePackage, name)
}

func (m *Module) submit(w http.ResponseWriter, r *http.Request, kind OpKind, pkg string) {
	targetID := r.PathValue("id")
	jobID, err := m.executor.Submit(r.Context(), targetID, kind, pkg)
	switch {
	case err == nil:
	case errors.Is(err, ErrTargetBusy):
		updatesWriteError(w, http.StatusConflict, ErrTargetBusy.Error())
		return
	case errors.Is(err, ErrTargetNotFound):
		updatesWriteError(w, http.StatusNotFound, "target not found")
		return
	default:
		m.logger.Warn("job submission failed",
			zap.String("target_id", targetID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		updatesWriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	updatesWriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (m *Module) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := m.executor.Poll(r.PathValue("id"))
	if errors.Is(err, ErrJobNotFound) {
		updatesWriteError(w, http.StatusNotFound, "job not found or already discarded")
		return
	}
	updatesWriteJSON(w, http.StatusOK, job)
}

func (m *Module) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.executor.Cancel(id); err != nil {
		updatesWriteError(w, http.StatusNotFound, "job not found or already discarded")
		return
	}
	updatesWriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// updatesView is the cache entry plus staleness advice for callers.
type updatesView struct {
	CacheEntry
	Stale      bool    `json:"stale"`
	AgeSeconds float64 `json:"age_seconds"`
}

func (m *Module) handleGetUpdates(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	entry, ok := m.cache.Get(targetID)
	if !ok {
		updatesWriteError(w, http.StatusNotFound, "target has never been checked")
		return
	}
	age, _ := m.cache.Age(targetID)
	updatesWriteJSON(w, http.StatusOK, updatesView{
		CacheEntry: entry,
		Stale:      m.cache.IsStale(targetID),
		AgeSeconds: age.Seconds(),
	})
}

func (m *Module) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	limit := updatesParseLimit(r, 50)
	entries, err := m.history.ListByTarget(r.Context(), targetID, limit)
	if err != nil {
		m.logger.Warn("failed to list history", zap.String("target_id", targetID), zap.Error(err))
		updatesWriteError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	updatesWriteJSON(w, http.StatusOK, entries)
}

func (m *Module) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	m.cache.InvalidateAll()
	m.logger.Info("update cache invalidated")
	updatesWriteJSON(w, http.StatusOK, map[string]string{
		"status": "invalidated",
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
}

// -- helpers --

func updatesWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func updatesWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func updatesParseLimit(r *http.Request, def int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}
