package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"go.uber.org/zap"
)

type requestContextKey struct{}

// RequestContext is built fresh for every incoming RPC call and never
// cached across calls. User is nil when no valid bearer token was
// presented.
type RequestContext struct {
	User       *authstate.User
	RequestID  string
	ReceivedAt time.Time
}

// FromContext returns the RequestContext attached by the context
// builder middleware, or nil outside it.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// BuildContext is the per-request middleware: it extracts the bearer
// token and verifies it against the remote provider. The round trip is
// deliberate; a local-only signature check would accept a session the
// provider has already revoked. Verification failure degrades to an
// anonymous context, and the guard decides what that means per
// procedure.
func BuildContext(p provider.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := &RequestContext{
				RequestID:  uuid.NewString(),
				ReceivedAt: time.Now(),
			}

			if token := extractBearer(r); token != "" {
				user, err := p.VerifyToken(r.Context(), token)
				switch {
				case err == nil:
					rc.User = user
				case errors.Is(err, provider.ErrInvalidToken):
					logger.Debug("rejected bearer token",
						zap.String("request_id", rc.RequestID),
					)
				default:
					logger.Warn("token verification failed",
						zap.String("request_id", rc.RequestID),
						zap.Error(err),
					)
				}
			}

			ctx := context.WithValue(r.Context(), requestContextKey{}, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
