package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/service"
)

// PropertyHandler serves the tenant-facing listing API. It is mounted
// behind the resolution middleware, so every request context already
// carries a tenant.
type PropertyHandler struct {
	service *service.PropertyService
	logger  *zap.Logger
}

// NewPropertyHandler creates the property API handler
func NewPropertyHandler(svc *service.PropertyService, logger *zap.Logger) *PropertyHandler {
	return &PropertyHandler{
		service: svc,
		logger:  logger,
	}
}

// RegisterRoutes mounts the property routes on the router
func (h *PropertyHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/properties", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/properties", h.List).Methods(http.MethodGet)
	r.HandleFunc("/properties/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/properties/{id}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/properties/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/properties/{id}/status", h.ChangeStatus).Methods(http.MethodPut)
}

type updatePropertyRequest struct {
	Price *int64 `json:"price"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/properties
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreatePropertyInput
	if err := decodeJSON(r, &input); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	prop, err := h.service.Create(r.Context(), input)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, prop, h.logger)
}

// List handles GET /api/properties with optional city and status filters
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := service.PropertyFilter{
		City:   r.URL.Query().Get("city"),
		Status: model.PropertyStatus(r.URL.Query().Get("status")),
	}

	props, err := h.service.List(r.Context(), filter)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"properties": props,
		"count":      len(props),
	}, h.logger)
}

// Get handles GET /api/properties/{id}
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	prop, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prop, h.logger)
}

// Update handles PUT /api/properties/{id}
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updatePropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	if req.Price == nil {
		apperrors.WriteHTTP(w, r, apperrors.InvalidArgument("price is required", nil))
		return
	}

	prop, err := h.service.UpdatePrice(r.Context(), mux.Vars(r)["id"], *req.Price)
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prop, h.logger)
}

// ChangeStatus handles PUT /api/properties/{id}/status
func (h *PropertyHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}

	prop, err := h.service.ChangeStatus(r.Context(), mux.Vars(r)["id"], model.PropertyStatus(req.Status))
	if err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prop, h.logger)
}

// Delete handles DELETE /api/properties/{id}
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		apperrors.WriteHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
