package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/server/auth"
	"github.com/dmitrijs2005/keywarden/internal/server/metrics"
	"github.com/go-chi/chi/v5"
)

type ctxKey int

const claimsKey ctxKey = iota

// claimsFromContext returns the authenticated claims stored by authenticate.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// authenticate validates the Bearer token and stores its claims in the
// request context. role restricts the endpoint to one actor kind.
func authenticate(secretKey []byte, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AuthorizationHeaderName)
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				writeError(w, common.ErrorUnauthorized)
				return
			}

			claims, err := auth.ParseToken(token, secretKey)
			if err != nil {
				writeError(w, common.ErrInvalidToken)
				return
			}
			if claims.Role != role {
				writeError(w, common.ErrorUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe records request count and latency per method, route pattern and
// status. The route pattern is read after the handler ran, when chi has
// matched it, so metrics stay low-cardinality.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		if metrics.HTTPRequestsTotal != nil {
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		}
		if metrics.HTTPRequestDuration != nil {
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}
