// Package server initializes and runs the authentication server: it opens
// the database and cache connections, runs migrations, wires the service
// layer to the HTTP surface, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/jtoivan/authd/internal/logging"
	"github.com/jtoivan/authd/internal/server/cache"
	"github.com/jtoivan/authd/internal/server/config"
	"github.com/jtoivan/authd/internal/server/httpapi"
	"github.com/jtoivan/authd/internal/server/repositories/repomanager"
	"github.com/jtoivan/authd/internal/server/services"
	"github.com/jtoivan/authd/internal/server/wsocket"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	api    *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	store := cache.NewRedisCache(redisClient)

	auth, err := services.NewAuthService(db, repos, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("auth service init error: %w", err)
	}

	hub := wsocket.NewHub(cfg.WebSocket, cfg.Redis.KeySeparator, store, logger)
	api := httpapi.NewServer(cfg, auth, hub, store, logger)

	return &App{config: cfg, logger: logger, db: db, redis: redisClient, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.Addr)

	app.initSignalHandler(cancelFunc)

	server := &http.Server{
		Addr:    app.config.Addr,
		Handler: app.api.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	shutdownCtx := context.Background()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}
	if err := app.redis.Close(); err != nil {
		app.logger.Error(shutdownCtx, "redis close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}
}
