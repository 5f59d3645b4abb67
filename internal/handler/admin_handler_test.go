package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

type adminFixture struct {
	router    *mux.Router
	tenants   *store.MemoryTenantStore
	directory *tenancy.Directory
	revoked   []string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	tenants := store.NewMemoryTenantStore(zap.NewNop())
	directory := tenancy.NewDirectory(tenants, nil, tenancy.DirectoryConfig{
		CacheTTL:     time.Minute,
		FetchTimeout: time.Second,
	}, nil, zap.NewNop())

	f := &adminFixture{
		tenants:   tenants,
		directory: directory,
	}
	directory.OnInvalidate(func(tenantID string) {
		f.revoked = append(f.revoked, tenantID)
	})

	h := NewAdminHandler(tenants, directory, zap.NewNop())
	f.router = mux.NewRouter()
	h.RegisterRoutes(f.router.PathPrefix("/admin").Subrouter())
	return f
}

func (f *adminFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *adminFixture) createTenant(t *testing.T, id, name string, identifiers ...string) model.Tenant {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/admin/tenants", map[string]interface{}{
		"id":          id,
		"name":        name,
		"identifiers": identifiers,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	return tenant
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ErrorCode
}

func TestAdminCreateTenant(t *testing.T) {
	f := newAdminFixture(t)

	tenant := f.createTenant(t, "acme", "Acme Estates", " Acme.Example.COM ", "acme-alias")

	assert.Equal(t, "acme", tenant.ID)
	assert.Equal(t, model.StateProvisioning, tenant.State)
	assert.Equal(t, []string{"acme.example.com", "acme-alias"}, tenant.Identifiers)
	assert.Equal(t, int64(1), tenant.Version)
}

func TestAdminCreateTenantGeneratesID(t *testing.T) {
	f := newAdminFixture(t)

	tenant := f.createTenant(t, "", "Anonymous Corp")
	assert.NotEmpty(t, tenant.ID)
}

func TestAdminCreateTenantRequiresName(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/tenants", map[string]interface{}{"id": "acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.CodeInvalidArgument), errorCode(t, rec))
}

func TestAdminCreateRejectsTakenIdentifier(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates", "shared.example.com")

	rec := f.do(t, http.MethodPost, "/admin/tenants", map[string]interface{}{
		"id":          "globex",
		"name":        "Globex Homes",
		"identifiers": []string{"shared.example.com"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "identifier already in use")
}

func TestAdminCreateRejectsDuplicateID(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")

	rec := f.do(t, http.MethodPost, "/admin/tenants", map[string]interface{}{
		"id":   "acme",
		"name": "Imposter",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already")
}

func TestAdminGetTenant(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")

	rec := f.do(t, http.MethodGet, "/admin/tenants/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "Acme Estates", tenant.Name)

	rec = f.do(t, http.MethodGet, "/admin/tenants/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(apperrors.CodeTenantNotFound), errorCode(t, rec))
}

func TestAdminListTenants(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")
	f.createTenant(t, "globex", "Globex Homes")

	rec := f.do(t, http.MethodGet, "/admin/tenants", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tenants []model.Tenant `json:"tenants"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Tenants, 2)
}

func TestAdminLifecycleFlow(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")

	rec := f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, model.StateActive, tenant.State)
	assert.Equal(t, int64(2), tenant.Version)

	rec = f.do(t, http.MethodPost, "/admin/tenants/acme/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Administrative un-suspend is allowed
	rec = f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/tenants/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleted is terminal
	rec = f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "illegal lifecycle transition")
}

func TestAdminTransitionIsIdempotent(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/admin/tenants/acme/suspend", nil).Code)

	rec := f.do(t, http.MethodPost, "/admin/tenants/acme/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, model.StateSuspended, tenant.State)
	// No-op transitions don't bump the version
	assert.Equal(t, int64(3), tenant.Version)
}

func TestAdminUpdateTenant(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates", "acme.example.com")

	rec := f.do(t, http.MethodPatch, "/admin/tenants/acme", map[string]interface{}{
		"name":     "Acme Estates B.V.",
		"settings": map[string]string{"rate_limit_rps": "200"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var tenant model.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "Acme Estates B.V.", tenant.Name)
	assert.Equal(t, "200", tenant.Settings["rate_limit_rps"])
	assert.Equal(t, int64(2), tenant.Version)
	// Untouched fields survive the patch
	assert.Equal(t, []string{"acme.example.com"}, tenant.Identifiers)
}

func TestAdminMutationsInvalidateDirectory(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates", "acme.example.com")
	ctx := context.Background()

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil).Code)

	// Prime the directory cache
	record, err := f.directory.Resolve(ctx, "acme.example.com")
	require.NoError(t, err)
	require.Equal(t, model.StateActive, record.State)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/admin/tenants/acme/suspend", nil).Code)

	// The next resolution observes the suspension without waiting out the TTL
	_, err = f.directory.Resolve(ctx, "acme.example.com")
	assert.Equal(t, apperrors.CodeTenantSuspended, apperrors.GetCode(err))
	assert.Contains(t, f.revoked, "acme")
}

func TestAdminDeletedTenantStopsResolving(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates", "acme.example.com")
	ctx := context.Background()

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/admin/tenants/acme/activate", nil).Code)
	_, err := f.directory.Resolve(ctx, "acme.example.com")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/admin/tenants/acme", nil).Code)

	// Deleted tenants are indistinguishable from unknown ones
	_, err = f.directory.Resolve(ctx, "acme.example.com")
	assert.Equal(t, apperrors.CodeTenantNotFound, apperrors.GetCode(err))
}

func TestAdminInvalidateEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	f.createTenant(t, "acme", "Acme Estates")

	rec := f.do(t, http.MethodPost, "/admin/tenants/acme/invalidate", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, f.revoked, "acme")
}

func TestAdminUpdateUnknownTenant(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, http.MethodPatch, "/admin/tenants/nobody", map[string]interface{}{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(apperrors.CodeTenantNotFound), errorCode(t, rec))
}
