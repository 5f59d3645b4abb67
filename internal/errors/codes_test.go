package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Infrastructure("tenant lookup failed", cause)

	assert.Equal(t, "tenant lookup failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestGetCodeWalksWrappedErrors(t *testing.T) {
	inner := TenantNotFound("ghost")
	wrapped := fmt.Errorf("resolving request: %w", inner)

	assert.Equal(t, CodeTenantNotFound, GetCode(wrapped))
	assert.True(t, IsCode(wrapped, CodeTenantNotFound))
}

func TestGetCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(TenantNotFound("acme")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(EntityNotFound("property", "p-1")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(TenantSuspended("acme")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(TenantMismatch("persist", "property")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(TenantAmbiguous("acme", "umbrella")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimited("acme")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Infrastructure("registry down", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestWithDetailAccumulates(t *testing.T) {
	err := EntityNotFound("property", "p-9").WithDetail("request_id", "r-1")

	assert.Equal(t, "property", err.Details["entity_type"])
	assert.Equal(t, "p-9", err.Details["id"])
	assert.Equal(t, "r-1", err.Details["request_id"])
}
