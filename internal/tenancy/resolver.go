package tenancy

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
)

// Strategy identifies how a tenant identifier is read off a request
type Strategy string

const (
	StrategySubdomain Strategy = "subdomain"
	StrategyPath      Strategy = "path"
	StrategyHeader    Strategy = "header"
	StrategyClaim     Strategy = "claim"
)

// DefaultHeader is the header consulted by the header strategy
const DefaultHeader = "X-Tenant-ID"

// DefaultClaim is the token claim consulted by the claim strategy
const DefaultClaim = "tenant_id"

// RequestMeta is the request surface resolution reads from. Strategies
// never touch the body.
type RequestMeta struct {
	Host   string
	Path   string
	Header http.Header
	Claims map[string]string
}

// MetaFromRequest extracts resolution inputs from an HTTP request.
// Claims come from the request context, placed there by the
// authentication layer.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		Host:   r.Host,
		Path:   r.URL.Path,
		Header: r.Header,
		Claims: ClaimsFromContext(r.Context()),
	}
}

// ResolverConfig configures the resolution strategy chain
type ResolverConfig struct {
	// Order lists the strategies to try, highest priority first
	Order []Strategy
	// BaseDomain anchors subdomain extraction. When set, only hosts
	// under it yield an identifier; when empty, the first label of any
	// three-label host is used.
	BaseDomain string
	// Header names the header for the header strategy
	Header string
	// Claim names the token claim for the claim strategy
	Claim string
	// Strict rejects requests whose strategies disagree instead of
	// letting the highest priority strategy win
	Strict bool
}

// Resolver turns request metadata into a tenant identifier. It is pure:
// no I/O, no awareness of which tenants exist.
type Resolver struct {
	order      []Strategy
	baseDomain string
	header     string
	claim      string
	strict     bool
}

// NewResolver creates a resolver, applying defaults for unset fields
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = []Strategy{StrategySubdomain, StrategyHeader}
	}
	for _, s := range order {
		switch s {
		case StrategySubdomain, StrategyPath, StrategyHeader, StrategyClaim:
		default:
			return nil, apperrors.InvalidArgument(fmt.Sprintf("unknown resolution strategy: %s", s), nil)
		}
	}

	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	claim := cfg.Claim
	if claim == "" {
		claim = DefaultClaim
	}

	return &Resolver{
		order:      order,
		baseDomain: strings.ToLower(cfg.BaseDomain),
		header:     header,
		claim:      claim,
		strict:     cfg.Strict,
	}, nil
}

// Resolve extracts a tenant identifier from request metadata. The first
// strategy yielding an identifier wins; in strict mode all strategies
// that yield one must agree.
func (r *Resolver) Resolve(meta RequestMeta) (string, Strategy, error) {
	var (
		identifier string
		resolved   Strategy
	)

	for _, s := range r.order {
		candidate := normalizeIdentifier(r.extract(s, meta))
		if candidate == "" {
			continue
		}
		if identifier == "" {
			identifier = candidate
			resolved = s
			if !r.strict {
				return identifier, resolved, nil
			}
			continue
		}
		if candidate != identifier {
			return "", "", apperrors.TenantAmbiguous(identifier, candidate).
				WithDetail("first_strategy", string(resolved)).
				WithDetail("second_strategy", string(s))
		}
	}

	if identifier == "" {
		return "", "", apperrors.New(apperrors.CodeTenantNotFound, "no tenant identifier in request", nil)
	}
	return identifier, resolved, nil
}

func (r *Resolver) extract(s Strategy, meta RequestMeta) string {
	switch s {
	case StrategySubdomain:
		return r.subdomain(meta.Host)
	case StrategyPath:
		return firstPathSegment(meta.Path)
	case StrategyHeader:
		if meta.Header == nil {
			return ""
		}
		return meta.Header.Get(r.header)
	case StrategyClaim:
		return meta.Claims[r.claim]
	}
	return ""
}

func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(stripPort(host))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	var candidate string
	if r.baseDomain != "" {
		prefix, found := strings.CutSuffix(host, "."+r.baseDomain)
		if !found {
			return ""
		}
		// The label adjacent to the base domain names the tenant
		labels := strings.Split(prefix, ".")
		candidate = labels[len(labels)-1]
	} else {
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return ""
		}
		candidate = labels[0]
	}

	if candidate == "www" {
		return ""
	}
	return candidate
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	seg, _, _ := strings.Cut(trimmed, "/")
	return seg
}

// stripPathSegment removes the resolved identifier's leading path
// segment so downstream routes see tenant-relative paths
func stripPathSegment(path, identifier string) string {
	trimmed := strings.TrimPrefix(path, "/")
	seg, rest, _ := strings.Cut(trimmed, "/")
	if !strings.EqualFold(seg, identifier) {
		return path
	}
	return "/" + rest
}

func stripPort(host string) string {
	if !strings.Contains(host, ":") {
		return host
	}
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
