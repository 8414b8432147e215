package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anicoll/relay-controller/pkg/hasher"
	"go.uber.org/zap"
)

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireToken guards mutating routes with a bearer token checked against the
// configured bcrypt hash. With no hash configured all mutations are refused;
// the read-only surface stays open on the LAN.
func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			handleError(w, http.StatusForbidden, errors.New("api token not configured"))
			return
		}
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || !hasher.TokenCorrect(token, s.tokenHash) {
			handleError(w, http.StatusUnauthorized, errors.New("invalid api token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
