package middleware

import (
	"context"
	"lifeos_api/internal/app/service"
	"lifeos_api/internal/common"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
)

const MsgNotAuthenticated = "Not authenticated"

type contextKey string

const IdentityCtxKey contextKey = "identity"

// TokenVerifier resolves a bearer token to its user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*service.VerifyResponse, error)
}

// Authenticator requires "Authorization: Bearer <token>", resolves it through
// v and stores the identity in the request context.
func Authenticator(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				common.RespondWithError(w, common.NewAuthenticationError(MsgNotAuthenticated))
				return
			}

			identity, err := v.Verify(r.Context(), token)
			if err != nil {
				common.RespondWithError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityCtxKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Helper to get the verified identity from context
func IdentityFromContext(ctx context.Context) (*service.VerifyResponse, bool) {
	identity, ok := ctx.Value(IdentityCtxKey).(*service.VerifyResponse)
	return identity, ok && identity != nil
}
