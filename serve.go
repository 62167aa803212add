package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"careerchat/internal/api"
	"careerchat/internal/auth"
	"careerchat/internal/logging"
	"careerchat/internal/redis"
	"careerchat/internal/service/account"
	"careerchat/internal/service/ai"
	"careerchat/internal/service/counselor"
	"careerchat/internal/service/history"
	"careerchat/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfgPath)
		},
	}
}

func serve(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}

	db, _, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	} else {
		logger.Info("redis not configured, session cache disabled")
	}

	generator, err := ai.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init completion backend: %w", err)
	}

	store := history.NewService(db, rdb, logger)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, auth.NewDenylist(rdb))
	authService.SetSecureCookies(cfg.Auth.SecureCookies)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}, logger)
	defer dispatcher.Stop()

	handlers := api.NewHandler(
		account.NewService(db),
		authService,
		store,
		counselor.NewService(store, generator, logger),
		dispatcher,
		logger,
	)

	if cfg.BasicConfig.GinMode != "" {
		gin.SetMode(cfg.BasicConfig.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
