package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/server/models"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const accountKey contextKey = "account"

func withAccount(ctx context.Context, a *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

func accountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountKey).(*models.Account)
	return a, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(h, common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
	return token, token != ""
}

// requireToken rejects requests without a valid bearer token.
func (s *HTTPServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		account, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// optionalToken attaches the account when a valid token is present and
// rejects only malformed or invalid ones. The handler decides whether an
// anonymous request is acceptable.
func (s *HTTPServer) optionalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		account, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// requestLogger logs every request through the structured logger. Bodies and
// headers are never logged.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
