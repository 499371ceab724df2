package httpapi

import (
	"github.com/dmitrijs2005/medkeeper/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *HTTPServer) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get(shared.PathHealth, s.Health)

	r.Get(shared.PathAuthStatus, s.Status)
	r.Post(shared.PathAuthSetup, s.Setup)
	r.Post(shared.PathAuthLogin, s.Login)
	r.With(s.requireToken).Post(shared.PathAuthRefresh, s.Refresh)

	r.With(s.requireToken).Get(shared.PathBackupAccount, s.ExportAccount)
	r.With(s.optionalToken).Put(shared.PathBackupAccount, s.RestoreAccount)

	return r
}
