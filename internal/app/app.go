package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"microfeed/feedsvc/internal/audit"
	"microfeed/feedsvc/internal/auth"
	"microfeed/feedsvc/internal/config"
	"microfeed/feedsvc/internal/feed"
	"microfeed/feedsvc/internal/httpserver"
	"microfeed/feedsvc/internal/observability"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	server *httpserver.Server
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.LogLevel)

	var db *sql.DB
	var sinks audit.Multi
	if cfg.AuditLogFile != "" {
		sinks = append(sinks, audit.NewFileLogger(cfg.AuditLogFile))
	}
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		pgAudit, err := audit.NewPostgresLogger(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres audit logger: %w", err)
		}
		sinks = append(sinks, pgAudit)
	}

	var auditLogger httpserver.AuditLogger
	if len(sinks) > 0 {
		auditLogger = sinks
	}

	credentials := auth.NewStore()
	posts := feed.NewStore()
	feed.Seed(posts)
	logger.Info("feed seeded", "posts", posts.Len())

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Credentials: credentials,
		Feed:        posts,
		Audit:       auditLogger,
		Logger:      logger,
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		server: server,
	}, nil
}

// Run serves until ctx is cancelled or the listener fails. Users and posts
// are discarded when it returns.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
