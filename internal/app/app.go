package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"bfitweb/bfit-server/internal/audit"
	"bfitweb/bfit-server/internal/auth"
	"bfitweb/bfit-server/internal/config"
	"bfitweb/bfit-server/internal/httpserver"
	"bfitweb/bfit-server/internal/observability"
	"bfitweb/bfit-server/internal/web"
)

type App struct {
	cfg      config.Config
	log      *slog.Logger
	db       *sql.DB
	sessions *auth.SessionManager
	server   *httpserver.Server
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger()

	var err error
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}
	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	var userStore auth.UserStore
	var sessionStore auth.SessionStore
	if db != nil {
		userStore, err = auth.NewPostgresUserStore(db)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
		sessionStore, err = auth.NewPostgresSessionStore(db)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("create postgres session store: %w", err)
		}
	} else {
		userStore, err = auth.NewFileUserStore(cfg.Auth.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
		sessionStore, err = auth.NewFileSessionStore(cfg.Auth.SessionStateFile)
		if err != nil {
			return nil, fmt.Errorf("create session store: %w", err)
		}
	}

	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create password hasher: %w", err)
	}

	sessions := auth.NewSessionManager(logger, sessionStore)
	if err := sessions.Load(); err != nil {
		closeDB()
		return nil, fmt.Errorf("load session state: %w", err)
	}

	authService, err := auth.NewService(userStore, hasher, sessions, logger)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	views, err := web.NewTemplateRenderer(cfg.PagesDir)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	auditLogger := audit.NewLogger(cfg.AuditLogFile)

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:      authService,
		Views:     views,
		Audit:     auditLogger,
		StaticDir: cfg.StaticDir,
	})

	return &App{
		cfg:      cfg,
		log:      logger,
		db:       db,
		sessions: sessions,
		server:   server,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		a.sessions.Clear()
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
