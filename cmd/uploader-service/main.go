package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/bg-uploader/internal/api/handler"
	"github.com/cuongbtq/bg-uploader/internal/api/router"
	"github.com/cuongbtq/bg-uploader/internal/config"
	"github.com/cuongbtq/bg-uploader/internal/scheduler"
	"github.com/cuongbtq/bg-uploader/internal/scheduler/amqp"
	"github.com/cuongbtq/bg-uploader/internal/scheduler/memory"
	"github.com/cuongbtq/bg-uploader/internal/scheduler/postgres"
	"github.com/cuongbtq/bg-uploader/internal/upload/dispatch"
	"github.com/cuongbtq/bg-uploader/internal/upload/pool"
	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
	"github.com/cuongbtq/bg-uploader/internal/upload/service"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
	"github.com/cuongbtq/bg-uploader/shared/logger"
	"github.com/cuongbtq/bg-uploader/shared/postgresql"
	"github.com/cuongbtq/bg-uploader/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("UPLOADER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/uploader-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting uploader service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("scheduler", cfg.Uploader.Scheduler),
		slog.String("notifier", cfg.Uploader.Notifier),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dbClient     *postgresql.Client
		rabbitClient *rabbitmq.Client
	)
	defer func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}()

	var store scheduler.Store = memory.NewStore()
	if cfg.Uploader.Scheduler == config.BackendPostgres {
		dbClient, err = initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		pgStore := postgres.NewStore(dbClient.DB(), appLogger.Logger)
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		store = pgStore

		appLogger.Info("Database connection established")
	}

	var notifier scheduler.Notifier = memory.NewNotifier(cfg.Uploader.NotifyBuffer, appLogger.Logger)
	if cfg.Uploader.Notifier == config.BackendAMQP {
		rabbitClient, err = initRabbitMQ(ctx, &cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		notifier = amqp.NewNotifier(rabbitClient, cfg.RabbitMQ.Consumer.Tag, appLogger.Logger)

		appLogger.Info("RabbitMQ connection established")
	}

	// Dispatch path
	reg := registry.New(appLogger.Logger)
	workers := pool.New(cfg.Uploader.PoolSize, appLogger.Logger)
	bridge := dispatch.NewBridge(reg, appLogger.Logger)
	executor := transport.NewHTTPExecutor(initTransport(&cfg.Transport), appLogger.Logger)
	coordinator := dispatch.NewCoordinator(reg, workers, dispatch.DefaultKinds(executor), bridge, appLogger.Logger)

	sched := scheduler.New(store, notifier, scheduler.Config{
		Retention:     cfg.Uploader.Retention,
		PruneInterval: cfg.Uploader.PruneInterval,
	}, appLogger.Logger)
	bridge.AddListener(sched)

	svc := service.New(reg, sched, appLogger.Logger)

	r := initRouter(cfg.App.Environment, appLogger.Logger, svc)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx, coordinator)
	})

	g.Go(func() error {
		<-gctx.Done()

		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})

	appLogger.Info("Uploader service is running", slog.String("address", addr))

	runErr := g.Wait()
	if runErr != nil {
		appLogger.Error("Uploader service stopped with error", slog.Any("error", runErr))
	}

	// uploads cancelled from here on are resumed by the next start
	sched.Drain()
	drainUploads(reg, workers, cfg.Uploader.ShutdownTimeout, appLogger.Logger)

	appLogger.Info("Uploader service shutdown complete")
	return runErr
}

// drainUploads lets running uploads finish, then cancels whatever is left
func drainUploads(reg *registry.Registry, workers *pool.Pool, timeout time.Duration, logger *slog.Logger) {
	stats := workers.Stats()
	logger.Info("Draining uploads",
		slog.Int("registered", reg.Len()),
		slog.Int("active", stats.Active),
		slog.Int("queued", stats.Queued),
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := workers.Shutdown(ctx); err == nil {
		return
	}

	n := reg.CancelAll()
	logger.Warn("Upload drain timed out, cancelling remaining uploads", slog.Int("count", n))

	// cancelled uploads stop at their next read or retry wait
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := workers.Shutdown(ctx); err != nil {
		logger.Error("Uploads still running at exit", slog.Int("count", reg.Len()))
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   timeFormat,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(ctx, dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		QueueName:         cfg.Queue.Name,
		QueueDurable:      cfg.Queue.Durable,
		RoutingKey:        cfg.RoutingKey,
		PrefetchCount:     cfg.Consumer.PrefetchCount,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(ctx, rabbitConfig, logger)
}

// initTransport maps the transport section onto the HTTP executor settings
func initTransport(cfg *config.TransportConfig) transport.Config {
	tc := transport.DefaultConfig()
	tc.FollowRedirects = cfg.FollowRedirects
	tc.RetryOnConnectionFailure = cfg.RetryOnConnectionFailure
	tc.ConnectTimeout = cfg.ConnectTimeout
	tc.ReadTimeout = cfg.ReadTimeout
	tc.RetryDelay = cfg.RetryDelay
	return tc
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, svc *service.Service) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:  logger,
		Service: svc,
	})
}
