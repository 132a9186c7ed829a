package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"accountsvr/webauth/internal/audit"
	"accountsvr/webauth/internal/auth"
	"accountsvr/webauth/internal/config"
	"accountsvr/webauth/internal/httpserver"
	"accountsvr/webauth/internal/migrations"
	"accountsvr/webauth/internal/observability"
	"accountsvr/webauth/internal/password"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	server *httpserver.Server
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger()

	var err error
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := migrations.Run(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var userStore auth.UserStore
	var sessionStore auth.SessionStore
	if db != nil {
		userStore, err = auth.NewPostgresUserStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
		sessionStore, err = auth.NewPostgresSessionStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres session store: %w", err)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using file-backed stores",
			"users", cfg.UserStateFile, "sessions", cfg.SessionStateFile)
		userStore, err = auth.NewFileUserStore(cfg.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create file user store: %w", err)
		}
		sessionStore, err = auth.NewFileSessionStore(cfg.SessionStateFile)
		if err != nil {
			return nil, fmt.Errorf("create file session store: %w", err)
		}
	}

	authService, err := auth.NewService(userStore, sessionStore, auth.ServiceConfig{
		SessionTTL: cfg.Auth.SessionTTL,
	})
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	if err := ensureBootstrapUser(userStore, cfg.Auth, logger); err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	var readyCheck func(ctx context.Context) error
	if db != nil {
		readyCheck = db.PingContext
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:            authService,
		Audit:           audit.NewLogger(cfg.AuditLogFile),
		Logger:          logger,
		Metrics:         observability.NewMetrics(),
		ReadyCheck:      readyCheck,
		Production:      cfg.Production,
		FrontendDistDir: cfg.FrontendDistDir,
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		server: server,
	}, nil
}

// ensureBootstrapUser creates the admin account on first start so a fresh
// deployment is never locked out.
func ensureBootstrapUser(users auth.UserStore, cfg config.AuthConfig, logger *slog.Logger) error {
	_, err := users.GetByUsername(cfg.BootstrapUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("check bootstrap user: %w", err)
	}

	id, err := auth.NewUserID()
	if err != nil {
		return fmt.Errorf("generate bootstrap user id: %w", err)
	}
	hashed, err := password.Hash(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if err := users.Insert(auth.User{
		ID:           id,
		Username:     cfg.BootstrapUsername,
		Email:        cfg.BootstrapEmail,
		DisplayName:  cfg.BootstrapUsername,
		PasswordHash: hashed,
		Role:         "admin",
	}); err != nil {
		return fmt.Errorf("create bootstrap user: %w", err)
	}
	logger.Info("bootstrap auth user created", "username", cfg.BootstrapUsername)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "production", a.cfg.Production)
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
