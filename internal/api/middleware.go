// Package api implements the Ansuz REST API using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/ansuz/internal/auth"
	"github.com/starford/ansuz/internal/models"
)

// AuthMiddleware resolves the caller from the "Authorization: Bearer <token>"
// header and stores the account in the request context.
func AuthMiddleware(authn auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, err := authn.Authenticate(r.Context(), bearerToken(r))
			if err != nil || acct.UserID == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAccount(r.Context(), acct)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// account returns the caller. Routes are only reachable through AuthMiddleware.
func account(r *http.Request) models.Account {
	acct, _ := auth.AccountFromContext(r.Context())
	return acct
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
