// Package httpapi exposes the credential store over HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/logging"
	"github.com/dmitrijs2005/medkeeper/internal/server/models"
	"github.com/dmitrijs2005/medkeeper/internal/server/services"
)

// AccountService is the subset of services.AccountService used by handlers.
type AccountService interface {
	IsSetupComplete(ctx context.Context) (bool, error)
	CreateAccount(ctx context.Context, in services.CreateAccountInput) (*services.AuthResult, error)
	VerifyCredentials(ctx context.Context, username, password string) (*services.AuthResult, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
	RefreshToken(ctx context.Context, a *models.Account) (string, error)
	ExportAccount(ctx context.Context, accountID string) (*services.AccountExport, error)
	RestoreAccount(ctx context.Context, authorized bool, exp services.AccountExport) (*models.Account, error)
}

type HTTPServer struct {
	address        string
	accounts       AccountService
	logger         logging.Logger
	allowedOrigins []string
}

func NewHTTPServer(a string, l logging.Logger, as AccountService, allowedOrigins []string) *HTTPServer {
	return &HTTPServer{
		address:        a,
		logger:         l.With("module", "http_server"),
		accounts:       as,
		allowedOrigins: allowedOrigins,
	}
}

func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *HTTPServer) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", l.Addr().String())

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
