// Package handler provides the HTTP handlers for the admin and tenant
// API surfaces.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
)

// writeJSON writes data as a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// decodeJSON reads the request body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidArgument("invalid request body", err)
	}
	return nil
}
