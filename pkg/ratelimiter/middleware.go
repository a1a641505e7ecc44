package ratelimiter

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc returns the bucket key for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// Responder writes the response for a rejected request.
type Responder func(w http.ResponseWriter, r *http.Request, res *Result)

type middlewareOptions struct {
	responder Responder
	log       *slog.Logger
	now       func() time.Time
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

// WithResponder replaces the default 429 response.
func WithResponder(fn Responder) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.responder = fn
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Middleware sets X-RateLimit-* headers and rejects requests that do not
// fit in the bucket. Store failures let the request through.
func Middleware(limiter RateLimiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{
		responder: defaultResponder,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				o.log.ErrorContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				secs := int(math.Ceil(res.RetryAfter(o.now()).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				o.responder(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func defaultResponder(w http.ResponseWriter, _ *http.Request, _ *Result) {
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}
