package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quotaflow/quotaflow-backend/api/responses"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// IngestRateLimitPolicy defines the throttling parameters for a traffic surface.
type IngestRateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
}

// NewIngestRateLimitPolicy builds a policy with the supplied window and limit.
func NewIngestRateLimitPolicy(name string, window time.Duration, limit int) IngestRateLimitPolicy {
	return IngestRateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
		limit:  limit,
	}
}

func (p IngestRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p IngestRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "ingest"
	}
	return p.name
}

func (p IngestRateLimitPolicy) scope(caller string) string {
	if caller == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", p.normalizedName(), caller)
}

// IngestRateLimit enforces per-caller counters on the event ingest surface.
// Authenticated callers are keyed by service name, anonymous ones by IP.
func IngestRateLimit(policy IngestRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			caller := ServiceNameFromContext(ctx)
			if caller == "" {
				caller = clientIP(r)
			}
			scope := policy.scope(caller)
			if scope == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.limit), policy.window)
			if err != nil {
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				respondRateLimited(ctx, logg, w, policy, caller, count)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy IngestRateLimitPolicy, caller string, count int64) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"policy":         policy.normalizedName(),
			"caller":         caller,
			"attempts":       count,
			"limit":          policy.limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "ingest.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
