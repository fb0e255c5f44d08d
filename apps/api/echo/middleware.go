package echoapi

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/evodigital/academia/core/access"
	"github.com/evodigital/academia/core/user"
)

var accessDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "academia",
		Subsystem: "api",
		Name:      "access_decisions_total",
		Help:      "Access policy decisions by route category and outcome.",
	},
	[]string{"category", "decision"},
)

// accessMiddleware gates a route group behind the access policy. The profile
// row is re-fetched on every request so approval flips and deletions take
// effect immediately, regardless of what the JWT still claims.
func (s *server) accessMiddleware(category access.Category) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			identity := contextIdentity(ctx)

			profile := access.AbsentProfile()
			if identity != nil {
				usr, err := getContextUser(ctx, s.deps.UserSvc)
				switch {
				case err == nil:
					profile = access.ResolvedProfile(usr)
				case errors.Cause(err) == user.ErrNotFound:
					// deleted account with a still-valid token
				default:
					return errors.Wrap(err, "resolving profile")
				}
			}

			d := s.policy.Decide(identity, profile, category)
			accessDecisions.WithLabelValues(string(category), d.Kind.String()).Inc()

			switch d.Kind {
			case access.DecisionGrant:
				return next(ctx)
			case access.DecisionDenyRedirect:
				code := http.StatusForbidden
				if d.RedirectTarget == access.RedirectLogin {
					code = http.StatusUnauthorized
				}
				return echo.NewHTTPError(code, echo.Map{
					"error":    "permission denied",
					"redirect": d.RedirectTarget,
				})
			case access.DecisionDenyPendingApproval:
				return echo.NewHTTPError(http.StatusForbidden, echo.Map{
					"error":  "teacher account pending approval",
					"status": "pending_approval",
				})
			}
			// unresolved profile; fail closed
			return errHttpForbidden
		}
	}
}

// ipRateLimiter hands out one token bucket per client IP.
// TODO: evict idle entries; the map grows with distinct client IPs.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[ip] = lim
	}
	return lim
}

// rateLimitMiddleware throttles brute-forceable endpoints (login, password
// reset) per client IP.
func rateLimitMiddleware(rl *ipRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !rl.get(ctx.RealIP()).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
