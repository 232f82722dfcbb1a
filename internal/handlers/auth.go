package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/annotator/internal/auth"
)

type userKey struct{}

// requireAuth checks the bearer token when a secret is configured and puts
// the token subject on the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.jwtSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="annotator"`)
			h.writeError(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseToken(h.jwtSecret, token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			h.writeError(w, "Invalid bearer token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromRequest returns the authenticated user, or fallback when auth is off.
func userFromRequest(r *http.Request, fallback string) string {
	if user, ok := r.Context().Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return fallback
}
