package inventory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/targets", Handler: m.handleListTargets},
		{Method: "POST", Path: "/targets", Handler: m.handleCreateTarget},
		{Method: "GET", Path: "/targets/{id}", Handler: m.handleGetTarget},
		{Method: "PUT", Path: "/targets/{id}", Handler: m.handleUpdateTarget},
		{Method: "DELETE", Path: "/targets/{id}", Handler: m.handleDeleteTarget},
	}
}

// createTargetRequest is the body for POST /inventory/targets.
type createTargetRequest struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Port             int      `json:"port"`
	Username         string   `json:"username"`
	AuthMethod       string   `json:"auth_method"`
	CredentialRef    string   `json:"credential_ref"`
	DisabledManagers []string `json:"disabled_managers"`
	Enabled          *bool    `json:"enabled"`
}

func (r *createTargetRequest) validate() string {
	switch {
	case r.Name == "":
		return "name is required"
	case r.Address == "":
		return "address is required"
	case r.Username == "":
		return "username is required"
	case r.Port < 0 || r.Port > 65535:
		return "port must be between 0 and 65535"
	}
	switch AuthMethod(r.AuthMethod) {
	case AuthPassword, AuthPrivateKey, "":
	default:
		return "auth_method must be \"password\" or \"key\""
	}
	return ""
}

func (m *Module) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := m.store.List(r.Context())
	if err != nil {
		m.logger.Warn("failed to list targets", zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	if targets == nil {
		targets = []Target{}
	}
	inventoryWriteJSON(w, http.StatusOK, targets)
}

func (m *Module) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		inventoryWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		inventoryWriteError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	t := &Target{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Address:          req.Address,
		Port:             req.Port,
		Username:         req.Username,
		AuthMethod:       AuthMethod(req.AuthMethod),
		CredentialRef:    req.CredentialRef,
		DisabledManagers: req.DisabledManagers,
		Enabled:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.Port == 0 {
		t.Port = 22
	}
	if t.AuthMethod == "" {
		t.AuthMethod = AuthPrivateKey
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}

	if err := m.store.Insert(r.Context(), t); err != nil {
		m.logger.Warn("failed to create target", zap.String("name", t.Name), zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to create target")
		return
	}

	m.publishEvent(TopicTargetCreated, map[string]string{
		"target_id": t.ID,
		"name":      t.Name,
	})
	inventoryWriteJSON(w, http.StatusCreated, t)
}

func (m *Module) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := m.store.Get(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to get target", zap.String("target_id", id), zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to get target")
		return
	}
	if t == nil {
		inventoryWriteError(w, http.StatusNotFound, "target not found")
		return
	}
	inventoryWriteJSON(w, http.StatusOK, t)
}

func (m *Module) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := m.store.Get(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to load target", zap.String("target_id", id), zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	if existing == nil {
		inventoryWriteError(w, http.StatusNotFound, "target not found")
		return
	}

	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		inventoryWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		inventoryWriteError(w, http.StatusBadRequest, msg)
		return
	}

	existing.Name = req.Name
	existing.Address = req.Address
	existing.Username = req.Username
	existing.CredentialRef = req.CredentialRef
	existing.DisabledManagers = req.DisabledManagers
	if req.Port != 0 {
		existing.Port = req.Port
	}
	if req.AuthMethod != "" {
		existing.AuthMethod = AuthMethod(req.AuthMethod)
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := m.store.Update(r.Context(), existing); err != nil {
		m.logger.Warn("failed to update target", zap.String("target_id", id), zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to update target")
		return
	}

	m.publishEvent(TopicTargetUpdated, map[string]string{"target_id": id})
	inventoryWriteJSON(w, http.StatusOK, existing)
}

func (m *Module) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			inventoryWriteError(w, http.StatusNotFound, "target not found")
			return
		}
		m.logger.Warn("failed to delete target", zap.String("target_id", id), zap.Error(err))
		inventoryWriteError(w, http.StatusInternalServerError, "failed to delete target")
		return
	}

	m.publishEvent(TopicTargetDeleted, map[string]string{"target_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// -- helpers --

func inventoryWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func inventoryWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
