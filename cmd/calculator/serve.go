package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Skotchmaster/calculator/internal/calc"
	"github.com/Skotchmaster/calculator/internal/es"
	"github.com/Skotchmaster/calculator/internal/httpserver"
	"github.com/Skotchmaster/calculator/internal/identity"
	"github.com/Skotchmaster/calculator/internal/metrics"
	"github.com/Skotchmaster/calculator/internal/mykafka"
	"github.com/Skotchmaster/calculator/internal/repo"
	"github.com/Skotchmaster/calculator/internal/revocation"
	"github.com/Skotchmaster/calculator/internal/search"
	"github.com/Skotchmaster/calculator/internal/service"
	"github.com/Skotchmaster/calculator/pkg/config"
	pkgdb "github.com/Skotchmaster/calculator/pkg/db"
	"github.com/Skotchmaster/calculator/pkg/hash"
	"github.com/Skotchmaster/calculator/pkg/logging"
	authmw "github.com/Skotchmaster/calculator/pkg/middleware/auth"
	"github.com/Skotchmaster/calculator/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/calculator/pkg/middleware/logging"
	"github.com/Skotchmaster/calculator/pkg/tokens"
)

func newServeCmd() *cobra.Command {
	var (
		migrate       bool
		purgeInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			config.MustValid(cfg)
			config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")

			logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(logging.IntoContext(ctx, logger), cfg, logger, migrate, purgeInterval)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run table migrations before serving")
	cmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "how often expired revocations are purged (database backend)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool, purgeInterval time.Duration) error {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := pkgdb.Open(openCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer pkgdb.Close(db)

	if migrate {
		if err := repo.Migrate(ctx, db); err != nil {
			return err
		}
	}

	store, err := revocation.New(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer store.Close()
	if gs, ok := store.(*revocation.GormStore); ok {
		go purgeLoop(ctx, gs, purgeInterval)
	}

	ts, err := tokens.NewService(cfg.TokenConfig(), store)
	if err != nil {
		return err
	}
	hasher, err := hash.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	events, err := mykafka.New(cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	defer events.Close()

	mt := metrics.New()
	r := repo.New(db)

	mgr, err := identity.NewManager(r, hasher, ts, identity.WithEvents(events), identity.WithMetrics(mt))
	if err != nil {
		return err
	}

	svcOpts := []service.Option{service.WithEvents(events), service.WithMetrics(mt)}
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		history := search.NewHistory(esClient, cfg.ESIndex)
		if err := history.EnsureIndex(ctx); err != nil {
			return err
		}
		svcOpts = append(svcOpts, service.WithIndexer(history))
	} else {
		logger.Info("search_disabled", "reason", "ES_URL not set")
	}
	svc := service.NewCalculationService(r, calc.NewFactory(), svcOpts...)

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(mt.Middleware())
	e.Use(echomw.Secure())
	e.Use(csrf.Middleware(csrf.Config{
		AuthCookies: []string{authmw.AccessCookie, authmw.RefreshCookie},
		SkipPaths:   []string{"/auth/login", "/auth/register"},
	}))

	httpserver.Register(e, &httpserver.Deps{
		Auth:         &httpserver.AuthHTTP{Identity: mgr},
		Calculations: &httpserver.CalculationHTTP{Svc: svc},
		Metrics:      mt,
		Ready:        readiness(db, store),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err)
	}
	logger.Info("stopped")
	return nil
}

func readiness(db *gorm.DB, store revocation.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pkgdb.Ping(ctx, db); err != nil {
			return err
		}
		return store.Ping(ctx)
	}
}

func purgeLoop(ctx context.Context, s *revocation.GormStore, every time.Duration) {
	if every <= 0 {
		return
	}
	l := logging.FromContext(ctx).With("job", "revocation.purge")
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge(ctx)
			if err != nil {
				l.Warn("purge_failed", "error", err)
				continue
			}
			l.Info("purged", "rows", n)
		}
	}
}
