package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/audit"
	"github.com/carelink/clinic-chat-go/internal/auth"
	"github.com/carelink/clinic-chat-go/internal/httputil"
	"github.com/carelink/clinic-chat-go/internal/model"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

func GetIdentity(ctx context.Context) *model.Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*model.Identity); ok {
		return identity
	}
	return nil
}

type AuthMiddleware struct {
	verifier auth.Verifier
}

func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handler verifies the identity token and stores the resolved Identity in
// the request context. A request without a valid token never reaches a
// room operation.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		identity, err := m.verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: rejected identity token")
			audit.Log(r.Context(), audit.Event{
				Type: audit.EventConnectFailure,
				IP:   r.RemoteAddr,
			})
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, &identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken pulls the identity token from the Authorization header, or
// from the token query parameter for EventSource clients that cannot set
// headers.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
