package tenancy

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/audit"
	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
)

// Middleware resolves the tenant for every request and attaches the
// tenant context before the handler runs. Requests that resolve to no
// tenant, or to one that may not serve traffic, are rejected here so
// handlers only ever see a populated context.
func Middleware(
	resolver *Resolver,
	directory *Directory,
	auditor audit.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			identifier, strategy, err := resolver.Resolve(MetaFromRequest(r))
			if err != nil {
				m.RecordResolution("none", outcomeFor(err), time.Since(start).Seconds())
				logger.Debug("tenant resolution rejected",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				apperrors.WriteHTTP(w, r, err)
				return
			}

			record, err := directory.Resolve(r.Context(), identifier)
			if err != nil {
				outcome := outcomeFor(err)
				m.RecordResolution(string(strategy), outcome, time.Since(start).Seconds())
				if apperrors.IsCode(err, apperrors.CodeTenantSuspended) {
					auditor.Record(r.Context(), audit.Event{
						Time:      time.Now(),
						TenantID:  suspendedTenantID(err, identifier),
						Operation: r.Method + " " + r.URL.Path,
						Reason:    audit.ReasonTenantSuspended,
					})
				}
				logger.Info("tenant rejected",
					zap.String("identifier", identifier),
					zap.String("strategy", string(strategy)),
					zap.String("outcome", outcome))
				apperrors.WriteHTTP(w, r, err)
				return
			}

			tc := NewContext(record, strategy, time.Now())
			m.RecordResolution(string(strategy), "resolved", time.Since(start).Seconds())

			r = r.WithContext(WithContext(r.Context(), tc))
			if strategy == StrategyPath {
				r.URL.Path = stripPathSegment(r.URL.Path, identifier)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func outcomeFor(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.CodeTenantNotFound:
		return "not_found"
	case apperrors.CodeTenantSuspended:
		return "suspended"
	case apperrors.CodeTenantAmbiguous:
		return "ambiguous"
	case apperrors.CodeInfrastructure:
		return "unavailable"
	default:
		return "error"
	}
}

// suspendedTenantID pulls the tenant ID out of a suspension error,
// falling back to the request identifier
func suspendedTenantID(err error, identifier string) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		if id, ok := e.Details["tenant_id"].(string); ok && id != "" {
			return id
		}
	}
	return identifier
}
