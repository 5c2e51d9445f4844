package middleware

import (
	"net/http"

	"github.com/bcnelson/hackathon-manager/internal/auth"
)

// Session attaches the principal of the session cookie, if any, to the
// request context.
func Session(sm *auth.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := sm.Load(r); p != nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser answers 401 for requests without a signed in user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()).CurrentUser(); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"login required"}}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
