package auth

import (
	"context"
	"net/http"
)

type contextKey string

const adminKey contextKey = "admin"

type AuthenticateMiddleware struct {
	Secret []byte
}

// Handle rejects requests without a valid admin session cookie.
func (m *AuthenticateMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, err := VerifyUser(r, m.Secret)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey, admin)))
	})
}

func GetAuthenticatedUser(r *http.Request) (string, bool) {
	admin, ok := r.Context().Value(adminKey).(string)
	return admin, ok && admin != ""
}
