package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

// AdminHandler serves the tenant-administration API. It talks to the
// registry directly; cache coherence comes from invalidating the
// directory after every mutation, which also triggers connection
// revocation through the registered hooks.
type AdminHandler struct {
	tenants   store.TenantStore
	directory *tenancy.Directory
	logger    *zap.Logger
}

// NewAdminHandler creates the admin API handler
func NewAdminHandler(tenants store.TenantStore, directory *tenancy.Directory, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		tenants:   tenants,
		directory: directory,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin routes on the router
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tenants", h.CreateTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants", h.ListTenants).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}", h.GetTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{tenant_id}", h.UpdateTenant).Methods(http.MethodPatch)
	r.HandleFunc("/tenants/{tenant_id}", h.DeleteTenant).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{tenant_id}/activate", h.ActivateTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/suspend", h.SuspendTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{tenant_id}/invalidate", h.InvalidateTenant).Methods(http.MethodPost)
}

type createTenantRequest struct {
	ID          string                `json:"id,omitempty"`
	Name        string                `json:"name"`
	Identifiers []string              `json:"identifiers,omitempty"`
	Connection  *model.ConnectionInfo `json:"connection,omitempty"`
	Settings    map[string]string     `json:"settings,omitempty"`
}

type updateTenantRequest struct {
	Name        *string               `json:"name,omitempty"`
	Identifiers *[]string             `json:"identifiers,omitempty"`
	Connection  *model.ConnectionInfo `json:"connection,omitempty"`
	Settings    *map[string]string    `json:"settings,omitempty"`
}

// CreateTenant handles POST /admin/tenants. New tenants start in the
// provisioning state and do not resolve until activated.
func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	if req.Name == "" {
		apperrors.WriteHTTP(w, r, apperrors.InvalidArgument("name is required", nil))
		return
	}

	id := strings.ToLower(strings.TrimSpace(req.ID))
	if id == "" {
		id = uuid.New().String()
	}
	identifiers := normalizeIdentifiers(req.Identifiers)

	if err := h.checkIdentifiersFree(r, id, identifiers); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID:          id,
		Name:        req.Name,
		Identifiers: identifiers,
		Settings:    req.Settings,
		State:       model.StateProvisioning,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if req.Connection != nil {
		tenant.Connection = *req.Connection
	}

	if err := h.tenants.Create(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			apperrors.WriteHTTP(w, r, apperrors.InvalidArgument("tenant already exists", nil).
				WithDetail("tenant_id", id))
			return
		}
		apperrors.WriteHTTP(w, r, apperrors.Infrastructure("tenant create failed", err))
		return
	}

	h.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("name", tenant.Name))
	writeJSON(w, http.StatusCreated, tenant, h.logger)
}

// ListTenants handles GET /admin/tenants
func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		apperrors.WriteHTTP(w, r, apperrors.Infrastructure("tenant list failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"count":   len(tenants),
	}, h.logger)
}

// GetTenant handles GET /admin/tenants/{tenant_id}. Reads go through
// the directory, which is coherent because every admin mutation
// invalidates it.
func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	tenant, err := h.directory.Lookup(r.Context(), tenantID)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant, h.logger)
}

// UpdateTenant handles PATCH /admin/tenants/{tenant_id}
func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var req updateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	current, err := h.loadTenant(r, tenantID)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	updated := current.Clone()
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Identifiers != nil {
		identifiers := normalizeIdentifiers(*req.Identifiers)
		if err := h.checkIdentifiersFree(r, updated.ID, identifiers); err != nil {
			apperrors.WriteHTTP(w, r, err)
			return
		}
		updated.Identifiers = identifiers
	}
	if req.Connection != nil {
		updated.Connection = *req.Connection
	}
	if req.Settings != nil {
		updated.Settings = *req.Settings
	}

	if err := h.saveAndInvalidate(r, updated); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// ActivateTenant handles POST /admin/tenants/{tenant_id}/activate
func (h *AdminHandler) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StateActive)
}

// SuspendTenant handles POST /admin/tenants/{tenant_id}/suspend
func (h *AdminHandler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StateSuspended)
}

// DeleteTenant handles DELETE /admin/tenants/{tenant_id}. Deletion is a
// terminal lifecycle transition, the registry row is retained.
func (h *AdminHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StateDeleted)
}

// InvalidateTenant handles POST /admin/tenants/{tenant_id}/invalidate.
// It drops the tenant's cached records and revokes pooled connections
// without touching the registry.
func (h *AdminHandler) InvalidateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	h.directory.Invalidate(r.Context(), tenantID)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"tenant_id":   tenantID,
		"invalidated": true,
	}, h.logger)
}

// transition moves a tenant to the next lifecycle state. Repeating a
// transition is a no-op, an illegal one is rejected.
func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, next model.TenantState) {
	tenantID := mux.Vars(r)["tenant_id"]

	current, err := h.loadTenant(r, tenantID)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	if current.State == next {
		writeJSON(w, http.StatusOK, current, h.logger)
		return
	}
	if !current.State.CanTransitionTo(next) {
		apperrors.WriteHTTP(w, r, apperrors.InvalidArgument("illegal lifecycle transition", nil).
			WithDetail("from", string(current.State)).
			WithDetail("to", string(next)))
		return
	}

	updated := current.Clone()
	updated.State = next

	if err := h.saveAndInvalidate(r, updated); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	h.logger.Info("tenant state changed",
		zap.String("tenant_id", updated.ID),
		zap.String("from", string(current.State)),
		zap.String("to", string(next)))
	writeJSON(w, http.StatusOK, updated, h.logger)
}

func (h *AdminHandler) loadTenant(r *http.Request, tenantID string) (*model.Tenant, error) {
	tenant, err := h.tenants.GetByID(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.TenantNotFound(tenantID)
		}
		return nil, apperrors.Infrastructure("tenant load failed", err)
	}
	return tenant, nil
}

// saveAndInvalidate writes the tenant with a version bump and drops its
// cached records so the next resolution observes the new state
func (h *AdminHandler) saveAndInvalidate(r *http.Request, tenant *model.Tenant) error {
	tenant.Version++
	tenant.UpdatedAt = time.Now().UTC()

	if err := h.tenants.Update(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return apperrors.InvalidArgument("tenant was modified concurrently, retry", nil).
				WithDetail("tenant_id", tenant.ID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.TenantNotFound(tenant.ID)
		}
		return apperrors.Infrastructure("tenant update failed", err)
	}

	h.directory.Invalidate(r.Context(), tenant.ID)
	return nil
}

// checkIdentifiersFree rejects identifiers that already resolve to a
// different tenant
func (h *AdminHandler) checkIdentifiersFree(r *http.Request, tenantID string, identifiers []string) error {
	for _, identifier := range identifiers {
		existing, err := h.tenants.GetByIdentifier(r.Context(), identifier)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return apperrors.Infrastructure("identifier check failed", err)
		}
		if existing.ID != tenantID {
			return apperrors.InvalidArgument("identifier already in use", nil).
				WithDetail("identifier", identifier)
		}
	}
	return nil
}

func normalizeIdentifiers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, identifier := range in {
		identifier = strings.ToLower(strings.TrimSpace(identifier))
		if identifier == "" {
			continue
		}
		if _, dup := seen[identifier]; dup {
			continue
		}
		seen[identifier] = struct{}{}
		out = append(out, identifier)
	}
	return out
}
