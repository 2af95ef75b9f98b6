// Package authn attaches the verified principal to the request context.
package authn

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/middleware"
)

// Middleware verifies the bearer credential when present. Verification
// failures log and continue as anonymous; endpoints that require identity
// enforce it themselves.
func Middleware(verifier *auth.Verifier, onFailure func(reason string)) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.VerifyRequest(r)
			if err != nil {
				reason := "unknown"
				if failure, ok := err.(*auth.AuthFailure); ok {
					reason = failure.Reason
				}
				if onFailure != nil {
					onFailure(reason)
				}
				logging.Debug("credential rejected, continuing as anonymous",
					zap.String("reason", reason),
					zap.String("path", r.URL.Path),
				)
				principal = auth.Anonymous()
			}

			ctx := middleware.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
