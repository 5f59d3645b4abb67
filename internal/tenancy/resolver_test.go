package tenancy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
)

func newTestResolver(t *testing.T, cfg ResolverConfig) *Resolver {
	t.Helper()
	r, err := NewResolver(cfg)
	require.NoError(t, err)
	return r
}

func TestResolveSubdomainWithBaseDomain(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{
		Order:      []Strategy{StrategySubdomain},
		BaseDomain: "app.example.com",
	})

	id, strategy, err := r.Resolve(RequestMeta{Host: "acme.app.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
	assert.Equal(t, StrategySubdomain, strategy)

	// The label adjacent to the base domain names the tenant
	id, _, err = r.Resolve(RequestMeta{Host: "staging.acme.app.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)

	// Ports are ignored
	id, _, err = r.Resolve(RequestMeta{Host: "acme.app.example.com:8443"})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
}

func TestResolveSubdomainRejectsForeignHosts(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{
		Order:      []Strategy{StrategySubdomain},
		BaseDomain: "app.example.com",
	})

	for _, host := range []string{"example.org", "app.example.com", "localhost:8080", "10.0.0.1"} {
		_, _, err := r.Resolve(RequestMeta{Host: host})
		assert.Equal(t, apperrors.CodeTenantNotFound, apperrors.GetCode(err), "host %s", host)
	}
}

func TestResolveSubdomainWithoutBaseDomain(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{Order: []Strategy{StrategySubdomain}})

	id, _, err := r.Resolve(RequestMeta{Host: "acme.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)

	// Two-label hosts and the www prefix never name a tenant
	_, _, err = r.Resolve(RequestMeta{Host: "example.com"})
	assert.Error(t, err)
	_, _, err = r.Resolve(RequestMeta{Host: "www.example.com"})
	assert.Error(t, err)
}

func TestResolvePathStrategy(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{Order: []Strategy{StrategyPath}})

	id, strategy, err := r.Resolve(RequestMeta{Path: "/acme/properties/p-1"})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
	assert.Equal(t, StrategyPath, strategy)

	_, _, err = r.Resolve(RequestMeta{Path: "/"})
	assert.Error(t, err)
}

func TestResolveHeaderStrategy(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{Order: []Strategy{StrategyHeader}})

	header := http.Header{}
	header.Set(DefaultHeader, "  ACME ")

	id, _, err := r.Resolve(RequestMeta{Header: header})
	require.NoError(t, err)
	assert.Equal(t, "acme", id, "identifiers are trimmed and lowercased")
}

func TestResolveCustomHeaderName(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{
		Order:  []Strategy{StrategyHeader},
		Header: "X-Org",
	})

	header := http.Header{}
	header.Set("X-Org", "umbrella")

	id, _, err := r.Resolve(RequestMeta{Header: header})
	require.NoError(t, err)
	assert.Equal(t, "umbrella", id)
}

func TestResolveClaimStrategy(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{Order: []Strategy{StrategyClaim}})

	id, strategy, err := r.Resolve(RequestMeta{Claims: map[string]string{DefaultClaim: "acme"}})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
	assert.Equal(t, StrategyClaim, strategy)
}

func TestResolveFirstStrategyWins(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{
		Order:      []Strategy{StrategySubdomain, StrategyHeader},
		BaseDomain: "app.example.com",
	})

	header := http.Header{}
	header.Set(DefaultHeader, "umbrella")

	id, strategy, err := r.Resolve(RequestMeta{
		Host:   "acme.app.example.com",
		Header: header,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
	assert.Equal(t, StrategySubdomain, strategy)
}

func TestResolveStrictRejectsConflicts(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{
		Order:      []Strategy{StrategySubdomain, StrategyHeader},
		BaseDomain: "app.example.com",
		Strict:     true,
	})

	header := http.Header{}
	header.Set(DefaultHeader, "umbrella")

	_, _, err := r.Resolve(RequestMeta{
		Host:   "acme.app.example.com",
		Header: header,
	})
	assert.Equal(t, apperrors.CodeTenantAmbiguous, apperrors.GetCode(err))

	// Agreeing strategies pass
	header.Set(DefaultHeader, "ACME")
	id, _, err := r.Resolve(RequestMeta{
		Host:   "acme.app.example.com",
		Header: header,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
}

func TestResolveNoIdentifier(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{})

	_, _, err := r.Resolve(RequestMeta{Host: "example.com", Path: "/health"})
	assert.Equal(t, apperrors.CodeTenantNotFound, apperrors.GetCode(err))
}

func TestNewResolverRejectsUnknownStrategy(t *testing.T) {
	_, err := NewResolver(ResolverConfig{Order: []Strategy{"cookie"}})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.GetCode(err))
}

func TestStripPathSegment(t *testing.T) {
	assert.Equal(t, "/properties/p-1", stripPathSegment("/acme/properties/p-1", "acme"))
	assert.Equal(t, "/", stripPathSegment("/acme", "acme"))
	// Paths not led by the identifier pass through untouched
	assert.Equal(t, "/other/properties", stripPathSegment("/other/properties", "acme"))
}
