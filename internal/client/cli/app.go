package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/client/config"
	"github.com/dmitrijs2005/medkeeper/internal/client/services"
	"github.com/dmitrijs2005/medkeeper/internal/client/storage"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/logging"
)

// App is the client composition root. It owns the local store and the
// session and drives the REPL.
type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *dbx.Store
	client  client.Client
	session *services.SessionManager
	records *services.RecordService
	backups *services.BackupService
	files   storage.BlobStore
	// remote is nil unless an S3 bucket is configured.
	remote storage.BlobStore

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local store and wires the services. Diagnostics go to
// stderr; user-facing output goes to out.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	logger := logging.NewText(os.Stderr, slog.LevelWarn)

	provider, err := cryptox.NewStandardProvider(c.PBKDF2Iterations)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	store := dbx.NewStore(db)

	files, err := storage.NewFileStore(c.BackupDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var remote storage.BlobStore
	if c.S3Bucket != "" {
		remote, err = storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
			Prefix:    "backups/",
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	apiClient := client.NewHTTPClient(c.ServerURL)

	opts := []services.SessionOption{
		services.WithLogger(logger),
		services.WithIdleTimeout(c.InactivityTimeout),
	}
	if c.RestoreSessions {
		opts = append(opts, services.WithSessionStore(services.NewMemorySessionStore()))
	}
	session := services.NewSessionManager(apiClient, cryptox.NewKeyVault(provider), store, opts...)

	return &App{
		config:  c,
		logger:  logger,
		store:   store,
		client:  apiClient,
		session: session,
		records: services.NewRecordService(session, store),
		backups: services.NewBackupService(session, apiClient, store, logger),
		files:   files,
		remote:  remote,
		reader:  bufio.NewReader(in),
		out:     out,
	}, nil
}

// Run bootstraps the session, starts the inactivity watcher and blocks in
// the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.println("medkeeper (type 'help' for commands)")
	if _, err := a.session.Bootstrap(ctx); err != nil {
		a.println("Server unavailable:", err)
	}
	a.printStateHint()

	go a.session.WatchInactivity(ctx)

	runREPL(ctx, a, a.prompt, a.reader, a.out)
	return nil
}

// Close locks the session and closes the local store.
func (a *App) Close() error {
	a.session.Lock()
	return a.store.Close()
}

func (a *App) touch() { a.session.Touch() }

func (a *App) prompt() string {
	s := a.session.State().String()
	if p := a.session.Profile(); p != nil {
		s = p.DisplayName + " " + s
	}
	return fmt.Sprintf("mk (%s)> ", s)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
