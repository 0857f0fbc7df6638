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
	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	ledgercache "github.com/wyfcoding/bankledger/internal/ledger/infrastructure/cache"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/lock"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/messaging"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/persistence/memory"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/persistence/mysql"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/policy"
	grpcserver "github.com/wyfcoding/bankledger/internal/ledger/interfaces/grpc"
	httpserver "github.com/wyfcoding/bankledger/internal/ledger/interfaces/http"
	"github.com/wyfcoding/bankledger/pkg/cache"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/db"
	"github.com/wyfcoding/bankledger/pkg/idgen"
	"github.com/wyfcoding/bankledger/pkg/logger"
	"github.com/wyfcoding/bankledger/pkg/metrics"
	"github.com/wyfcoding/bankledger/pkg/middleware"
	"github.com/wyfcoding/bankledger/pkg/mq"
	"github.com/wyfcoding/bankledger/pkg/ratelimit"
	"github.com/wyfcoding/bankledger/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/ledger/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
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
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	if err := run(cfg); err != nil {
		logger.Error(context.Background(), "server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 链路追踪
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
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
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// 4. 指标
	var m *metrics.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
		if err := m.Register(registry); err != nil {
			return err
		}
	}

	// 5. 存储
	deps := application.Deps{Metrics: m}
	closeStore, err := openStore(cfg, &deps)
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := idgen.New(cfg.Ledger.NodeID)
	if err != nil {
		return err
	}
	deps.IDs = ids

	// 6. Redis：分布式锁、分析缓存、限流
	var (
		projection application.ProjectionCache
		limiter    ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter()
	)
	deps.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Addr:         cfg.Redis.Addr(),
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
		deps.Locker = lock.NewRedisLocker(redisCache, 0)
		limiter = ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		if cfg.Ledger.AnalyticsCacheTTL > 0 {
			projection = ledgercache.NewProjectionCache(redisCache, time.Duration(cfg.Ledger.AnalyticsCacheTTL)*time.Second)
		}
	}

	// 7. 通知
	var publisher domain.EventPublisher = messaging.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = messaging.NewKafkaPublisher(producer, cfg.Kafka.NotificationTopic)
	}
	dispatcher := application.NewNotificationDispatcher(publisher, m, cfg.Ledger.NotifyBuffer)
	deps.Notifier = dispatcher

	// 8. 应用服务
	accountPolicy, err := policy.FromConfig(cfg.Ledger)
	if err != nil {
		return err
	}
	opts, err := application.OptionsFromConfig(cfg.Ledger, accountPolicy)
	if err != nil {
		return err
	}
	svc := application.NewLedgerService(deps, opts, projection)

	// 9. 接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.GinLoggingMiddleware(),
		middleware.GinCORSMiddleware(),
		middleware.GinMetricsMiddleware(m),
		middleware.GinIdentityMiddleware(cfg.Auth),
		middleware.RateLimitMiddleware(limiter, cfg.RateLimit),
	)
	httpserver.NewLedgerHandler(svc).RegisterRoutes(r)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	grpcSrv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: time.Duration(cfg.GRPC.IdleTimeout) * time.Second,
		}),
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
			middleware.GRPCMetricsInterceptor(m),
			middleware.GRPCIdentityInterceptor(cfg.Auth),
			middleware.GRPCRateLimitInterceptor(limiter, cfg.RateLimit),
		),
	)
	grpcserver.RegisterLedgerServiceServer(grpcSrv, grpcserver.NewLedgerGrpcServer(svc))
	reflection.Register(grpcSrv)

	// 10. 启动服务
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	if cfg.Ledger.InterestInterval > 0 {
		job := application.NewInterestAccrualJob(deps, svc.Processor, time.Duration(cfg.Ledger.InterestInterval)*time.Second)
		g.Go(func() error {
			return job.Start(gctx)
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		logger.Info(gctx, "gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(registry))
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info(gctx, "metrics server starting", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// 11. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore 按驱动装配仓储，返回的函数释放连接
func openStore(cfg *config.Config, deps *application.Deps) (func(), error) {
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		deps.Accounts = store
		deps.Transactions = store
		deps.Owners = store.Owners()
		deps.UoW = store
		logger.Warn(context.Background(), "using in-memory store, data is lost on restart")
		return func() {}, nil
	}

	conn, err := db.Init(db.Config{
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
		return nil, err
	}
	// Auto Migrate
	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(conn.DB); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	store := mysql.NewStore(conn.DB)
	deps.Accounts = store.Accounts
	deps.Transactions = store.Transactions
	deps.Owners = store.Owners
	deps.UoW = store.TM
	return func() { _ = conn.Close() }, nil
}
