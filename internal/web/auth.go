package web

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	a := s.cfg.BasicAuth
	if a == nil || a.Username == "" {
		return false
	}
	return a.Password != "" || a.PasswordBcrypt != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	check := passwordChecker(s.cfg.BasicAuth.Password, s.cfg.BasicAuth.PasswordBcrypt)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !check(p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="lunarcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// passwordChecker prefers the bcrypt hash when one is configured.
func passwordChecker(plain, hash string) func(string) bool {
	if hash != "" {
		h := []byte(hash)
		return func(p string) bool {
			return bcrypt.CompareHashAndPassword(h, []byte(p)) == nil
		}
	}
	return func(p string) bool { return secureCompare(p, plain) }
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
