package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/application"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/infrastructure/persistence/mysql"
	pricingredis "github.com/wyfcoding/gbsmpricing/internal/pricing/infrastructure/persistence/redis"
	httphandler "github.com/wyfcoding/gbsmpricing/internal/pricing/interfaces/http"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/interfaces/job"
	"github.com/wyfcoding/gbsmpricing/pkg/breaker"
	"github.com/wyfcoding/gbsmpricing/pkg/cache"
	"github.com/wyfcoding/gbsmpricing/pkg/config"
	"github.com/wyfcoding/gbsmpricing/pkg/db"
	"github.com/wyfcoding/gbsmpricing/pkg/logger"
	"github.com/wyfcoding/gbsmpricing/pkg/metrics"
	"github.com/wyfcoding/gbsmpricing/pkg/middleware"
	"github.com/wyfcoding/gbsmpricing/pkg/mq"
	"github.com/wyfcoding/gbsmpricing/pkg/trace"
)

const BootstrapName = "pricing"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/pricing/config.toml", "path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		slog.Error("pricing service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		Output:      cfg.Logger.Output,
		FilePath:    cfg.Logger.FilePath,
		MaxSize:     cfg.Logger.MaxSize,
		MaxBackups:  cfg.Logger.MaxBackups,
		MaxAge:      cfg.Logger.MaxAge,
		Compress:    cfg.Logger.Compress,
		WithCaller:  cfg.Logger.WithCaller,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracer, err := trace.InitTracer(ctx, trace.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.ServiceName,
		Version:      cfg.Version,
		Endpoint:     cfg.Tracing.CollectorEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	m := metrics.New(cfg.ServiceName)

	// 4. Database
	database, err := db.Init(ctx, db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		Tracing:            cfg.Tracing.Enabled,
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(database.DB); err != nil {
			return fmt.Errorf("migrate pricing tables: %w", err)
		}
		if err := messaging.AutoMigrate(database.DB); err != nil {
			return fmt.Errorf("migrate outbox table: %w", err)
		}
	}

	// 5. Infrastructure
	repo := mysql.NewPricingRepository(database.DB)
	publisher := messaging.NewOutboxEventPublisher(database.DB, cfg.Pricing.TopicPrefix, cfg.Pricing.OutboxMaxRetries)

	var pricingCache domain.PricingCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(ctx, cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
		pricingCache = pricingredis.NewPricingRedisCache(redisCache.GetClient(), cfg.Pricing.CacheTTLDuration())
	}

	var relay *messaging.Relay
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		if err != nil {
			return err
		}
		defer producer.Close()

		cb := breaker.New(breaker.Settings{
			Name:         "kafka",
			Enabled:      cfg.Breaker.Enabled,
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     time.Duration(cfg.Breaker.Interval) * time.Second,
			Timeout:      time.Duration(cfg.Breaker.Timeout) * time.Second,
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
		}, m)
		relay = messaging.NewRelay(database.DB, producer, cb, m, messaging.RelayConfig{
			BatchSize:    cfg.Pricing.OutboxBatchSize,
			PollInterval: cfg.Pricing.OutboxPollDuration(),
		})
	} else {
		logger.Warn(ctx, "kafka disabled, outbox messages stay pending")
	}

	// 6. Application
	svc := application.NewPricingService(
		application.NewPricingCommandService(repo, pricingCache, publisher, m),
		application.NewPricingQueryService(repo, pricingCache, m, application.HistoryLimits{
			Default: cfg.Pricing.DefaultHistoryLimit,
			Max:     cfg.Pricing.MaxHistoryLimit,
		}),
	)

	// 7. Interfaces
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst)
	}
	router := newRouter(cfg, svc, m, limiter, database)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	var outboxCleaner job.OutboxCleaner
	if relay != nil {
		outboxCleaner = relay
	}
	var sweeper job.LimiterSweeper
	if limiter != nil {
		sweeper = limiter
	}
	maintenance := job.NewMaintenance(svc, outboxCleaner, sweeper, job.MaintenanceConfig{
		Spec:             cfg.Pricing.CleanupCron,
		HistoryRetention: time.Duration(cfg.Pricing.RetentionDays) * 24 * time.Hour,
		OutboxRetention:  time.Duration(cfg.Pricing.OutboxRetentionHours) * time.Hour,
	})
	scheduler, err := maintenance.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	// 8. Start
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	// 9. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down pricing service")

		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, svc *application.PricingService, m *metrics.Metrics, limiter *middleware.RateLimiter, database *db.DB) *gin.Engine {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		middleware.Logging(),
		middleware.CORS(),
		middleware.Metrics(m),
	)
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := database.Ping(c.Request.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"service":   BootstrapName,
			"version":   cfg.Version,
			"timestamp": time.Now().Unix(),
		})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	httphandler.NewPricingHandler(svc).RegisterRoutes(r)
	return r
}
