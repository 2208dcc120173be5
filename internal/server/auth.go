package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

const tokenCookieName = "adlift_token"

// authMiddleware accepts the token as a bearer header, a query param or
// a cookie. A valid query param also sets the cookie for later requests.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if !s.validToken(strings.TrimSpace(bearer)) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if queryToken := r.URL.Query().Get("token"); queryToken != "" {
			if !s.validToken(queryToken) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(tokenCookieName)
		if err != nil || !s.validToken(cookie.Value) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}
