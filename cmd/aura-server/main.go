package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aura-health/aura/internal/config"
	"github.com/aura-health/aura/internal/domain/analysis"
	"github.com/aura-health/aura/internal/domain/message"
	"github.com/aura-health/aura/internal/domain/notification"
	"github.com/aura-health/aura/internal/platform/auth"
	"github.com/aura-health/aura/internal/platform/channel"
	"github.com/aura-health/aura/internal/platform/db"
	"github.com/aura-health/aura/internal/platform/hub"
	"github.com/aura-health/aura/internal/platform/mailer"
	"github.com/aura-health/aura/internal/platform/middleware"
	"github.com/aura-health/aura/internal/platform/queue"
	"github.com/aura-health/aura/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aura-server",
		Short: "AURA notification and messaging API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
}

func runServer() error {
	// Config
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Database
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Delivery channel registry, shared by every fan-out path.
	registry := channel.NewRegistry[*notification.Notification]()

	// Queue bridge. Without a broker the server still serves HTTP and live
	// subscriptions; event publishes fail fast and no workers run.
	var publisher queue.Publisher = queue.Disabled{}
	var bridge *queue.Bridge
	if cfg.AMQPURL != "" {
		topology := queue.Topology{
			TopicExchanges:  []string{cfg.AnalysisExchange},
			DirectExchanges: []string{cfg.NotifyExchange},
			Queues: []queue.QueueSpec{
				{Name: cfg.AnalysisQueue, Exchange: cfg.AnalysisExchange, RoutingKey: "analysis.*", DeadLetter: cfg.DeadLetterQueue},
				{Name: cfg.EmailQueue, Exchange: cfg.NotifyExchange, RoutingKey: "notify.email", DeadLetter: cfg.DeadLetterQueue},
			},
		}
		bridge, err = queue.Dial(cfg.AMQPURL, topology, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to broker")
		}
		defer bridge.Close()
		publisher = bridge
		logger.Info().Msg("connected to broker")
	} else {
		logger.Warn().Msg("AMQP_URL not set; running without queue bridge")
	}

	// Services
	notifSvc := notification.NewService(notification.NewRepoPG(pool), registry, logger)
	msgSvc := message.NewService(message.NewRepoPG(pool), registry, logger)
	analysisSvc := analysis.NewService(analysis.NewRepoPG(pool), publisher, cfg.AnalysisExchange, logger)
	sessionHub := hub.New(notifSvc, msgSvc, logger)

	// Workers
	if bridge != nil {
		mail := mailer.New(mailer.LogSender{Logger: logger}, mailer.NewTemplateEngine(), logger)
		analysisWorker := worker.NewAnalysisWorker(bridge, cfg.AnalysisQueue, notifSvc, logger)
		emailWorker := worker.NewEmailWorker(bridge, cfg.EmailQueue, mail, logger)
		go func() {
			if err := analysisWorker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("analysis worker stopped")
			}
		}()
		go func() {
			if err := emailWorker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("email worker stopped")
			}
		}()
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	var healthChecks []db.Check
	if bridge != nil {
		healthChecks = append(healthChecks, db.Check{Name: "broker", OK: bridge.Healthy})
	}
	e.GET("/health", db.HealthHandler(pool, healthChecks...))

	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set; using development header auth")
		api.Use(auth.DevMiddleware())
	} else {
		api.Use(auth.Middleware(auth.Config{Secret: []byte(cfg.JWTSecret)}))
	}

	notification.NewHandler(notifSvc).RegisterRoutes(api)
	message.NewHandler(msgSvc).RegisterRoutes(api)
	analysis.NewHandler(analysisSvc).RegisterRoutes(api)
	hub.NewHandler(sessionHub).RegisterRoutes(api)

	// Serve
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
