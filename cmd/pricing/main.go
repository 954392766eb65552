// Command pricing 期权定价服务：HTTP + gRPC + Prometheus 指标 + Outbox 转发
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/persistence/mysql"
	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/persistence/redis"
	grpchandler "github.com/wyfcoding/optionpricing/internal/pricing/interfaces/grpc"
	httphandler "github.com/wyfcoding/optionpricing/internal/pricing/interfaces/http"
	"github.com/wyfcoding/optionpricing/pkg/cache"
	"github.com/wyfcoding/optionpricing/pkg/config"
	"github.com/wyfcoding/optionpricing/pkg/db"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/middleware"
	"github.com/wyfcoding/optionpricing/pkg/mq"
	"github.com/wyfcoding/optionpricing/pkg/ratelimit"
	"github.com/wyfcoding/optionpricing/pkg/trace"
	"github.com/wyfcoding/optionpricing/pkg/utils"
)

const (
	BootstrapName = "pricing"

	connectAttempts = 5
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/pricing/config.toml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Fatal(context.Background(), "pricing service exited", "error", err)
	}
}

func run(configPath string) error {
	// 1. 加载配置
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info(ctx, "starting service", "service", cfg.ServiceName, "version", cfg.Version, "env", cfg.Environment)

	// 3. 链路追踪
	if cfg.Tracing.Enabled {
		shutdown, err := trace.Init(ctx, trace.Config{
			ServiceName:  cfg.ServiceName,
			Version:      cfg.Version,
			Environment:  cfg.Environment,
			Endpoint:     cfg.Tracing.CollectorEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error(sctx, "failed to shutdown tracer", "error", err)
			}
		}()
	}

	// 4. 数据库
	var database *db.DB
	err = utils.RetryWithBackoff(ctx, connectAttempts, time.Second, 10*time.Second, func() error {
		var err error
		database, err = db.Init(ctx, db.Config{
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
			logger.Warn(ctx, "database not ready", "error", err)
		}
		return err
	})
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := mysql.Migrate(database.DB); err != nil {
			return err
		}
		if err := messaging.Migrate(database.DB); err != nil {
			return err
		}
	}

	// 5. 指标
	m := metrics.New(cfg.ServiceName)
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, registry)
		metrics.Serve(ctx, metricsSrv)
		defer shutdownHTTP(metricsSrv)
	}

	// 6. 缓存与限流
	var (
		resultCache domain.PricingCache
		limiter     ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter()
	)
	if cfg.Redis.Enabled {
		var redisCache *cache.RedisCache
		err = utils.RetryWithBackoff(ctx, connectAttempts, time.Second, 10*time.Second, func() error {
			var err error
			redisCache, err = cache.New(ctx, cache.Config{
				Host:         cfg.Redis.Host,
				Port:         cfg.Redis.Port,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				MaxPoolSize:  cfg.Redis.MaxPoolSize,
				ConnTimeout:  cfg.Redis.ConnTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
			})
			return err
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()

		var local *cache.LocalCache
		if cfg.Pricing.LocalCache {
			if local, err = cache.NewLocal(ctx, cfg.Pricing.CacheTTL); err != nil {
				return err
			}
			defer local.Close()
		}
		resultCache = redis.NewPricingResultCache(redisCache, local, cfg.Pricing.CacheTTL)
		limiter = ratelimit.NewRedisRateLimiter(redisCache.Client())
	}

	// 7. Outbox 与 Kafka 转发
	publisher := messaging.NewOutboxEventPublisher(database.DB, cfg.Pricing.EventsTopic)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			return err
		}
		defer producer.Close()

		relay := messaging.NewOutboxRelay(database.DB, producer, m, messaging.RelayConfig{
			Interval:  cfg.Pricing.OutboxInterval,
			BatchSize: cfg.Pricing.OutboxBatchSize,
		})
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	}

	// 8. 应用服务
	appService := application.NewPricingService(
		mysql.NewPricingRepository(database.DB),
		resultCache,
		publisher,
		m,
		application.Defaults{
			Degree:           utils.Ptr(cfg.Pricing.DefaultDegree),
			Paths:            cfg.Pricing.DefaultPaths,
			Steps:            cfg.Pricing.DefaultSteps,
			Seed:             cfg.Pricing.DefaultSeed,
			Workers:          cfg.Pricing.Workers,
			MaxGridCells:     cfg.Pricing.MaxGridCells,
			MaxTreeSteps:     cfg.Pricing.MaxTreeSteps,
			BatchConcurrency: cfg.Pricing.BatchConcurrency,
			HistoryLimit:     cfg.Pricing.HistoryLimit,
		},
	)

	// 9. HTTP 服务
	maxBody := int64(cfg.HTTP.MaxBodyMB) << 20
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		otelgin.Middleware(cfg.ServiceName),
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinCORSMiddleware(),
		middleware.GinMetricsMiddleware(m),
	)
	if cfg.RateLimit.Enabled {
		engine.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   BootstrapName,
			"timestamp": time.Now().Unix(),
		})
	})
	httphandler.NewPricingHandler(appService, maxBody, cfg.Pricing.MaxGridCells).RegisterRoutes(&engine.RouterGroup)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		logger.Info(gctx, "HTTP server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 10. gRPC 服务
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(),
		middleware.GRPCMetricsInterceptor(m),
	}
	if cfg.RateLimit.Enabled {
		interceptors = append(interceptors, middleware.GRPCRateLimitInterceptor(limiter, cfg.RateLimit))
	}
	grpcSrv := grpchandler.NewServer(
		grpchandler.NewGRPCHandler(appService, cfg.Pricing.MaxGridCells),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgMB<<20),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
	)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		return err
	}
	g.Go(func() error {
		logger.Info(gctx, "gRPC server listening", "addr", cfg.GRPC.Addr())
		return grpcSrv.Serve(lis)
	})

	// 11. 优雅退出
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down servers")
		shutdownHTTP(httpSrv)
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	logger.Info(context.Background(), "service stopped", "service", cfg.ServiceName)
	return nil
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(ctx, "HTTP server shutdown failed", "addr", srv.Addr, "error", err)
	}
}
