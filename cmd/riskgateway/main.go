package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/application"
	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/internal/riskgateway/infrastructure/messaging"
	"github.com/wyfcoding/riskgateway/internal/riskgateway/infrastructure/persistence/mysql"
	riskhttp "github.com/wyfcoding/riskgateway/internal/riskgateway/interfaces/http"
	"github.com/wyfcoding/riskgateway/pkg/cache"
	"github.com/wyfcoding/riskgateway/pkg/config"
	"github.com/wyfcoding/riskgateway/pkg/db"
	"github.com/wyfcoding/riskgateway/pkg/logger"
	"github.com/wyfcoding/riskgateway/pkg/metrics"
	"github.com/wyfcoding/riskgateway/pkg/middleware"
	"github.com/wyfcoding/riskgateway/pkg/mq"
	"github.com/wyfcoding/riskgateway/pkg/ratelimit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/riskgateway/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
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
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	ctx := context.Background()
	logger.Info(ctx, "starting risk gateway", "version", cfg.Version, "environment", cfg.Environment)

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		panic(fmt.Sprintf("register metrics failed: %v", err))
	}

	// 4. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	defer database.Close()

	models := mysql.AutoMigrateModels()
	models = append(models, &messaging.OutboxMessage{})
	if err := database.AutoMigrate(models...); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	// 5. Redis
	redisCache, err := cache.New(cache.Config{
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
		panic(fmt.Sprintf("connect redis failed: %v", err))
	}
	defer redisCache.Close()

	// 6. Repositories & rule snapshot cache
	feeRepo := mysql.NewFeeRuleRepository(database.DB)
	flowRepo := mysql.NewFlowCtrlRuleRepository(database.DB)
	selfTradeRepo := mysql.NewSelfTradeRangeRepository(database.DB)
	pnlRepo := mysql.NewPnlMonitorRangeRepository(database.DB)
	symbolListRepo := mysql.NewSymbolListRepository(database.DB)
	decisionRepo := mysql.NewDecisionRepository(database.DB)

	ruleCache := application.NewRuleCache(
		feeRepo, flowRepo, selfTradeRepo, pnlRepo, symbolListRepo,
		time.Duration(cfg.RiskCtrl.RefreshIntervalMs)*time.Millisecond,
		m,
	)
	if err := ruleCache.Refresh(ctx); err != nil {
		// 启动时先行加载失败不致命，评估路径按 fail closed 拒绝，周期刷新重试
		logger.Error(ctx, "initial rule refresh failed, gateway will fail closed until rules load", "error", err)
	}

	// 7. Domain evaluators
	ledger := domain.NewMemoryLedger(cfg.RiskCtrl.DailyReset)
	flowEval := domain.NewFlowControlEvaluator()
	chain := domain.OrderEvaluatorChain(
		domain.NewSymbolListEvaluator(),
		domain.NewSelfTradeEvaluator(cfg.RiskCtrl.SelfTradeTolerance),
		flowEval,
		domain.NewPnlMonitorEvaluator(time.Duration(cfg.RiskCtrl.PnlStalenessMs)*time.Millisecond),
	)

	gateway := application.NewRiskGateway(
		ruleCache, ledger, chain, flowEval, domain.NewFeeCalculator(),
		decisionRepo, cfg.RiskCtrl.AuditEnabled, cfg.RiskCtrl.ScopeLockStripes, m,
	)
	admin := application.NewRuleAdmin(feeRepo, flowRepo, selfTradeRepo, pnlRepo, symbolListRepo, ruleCache)

	// 8. Kafka
	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer, err := mq.NewProducer(kafkaCfg)
	if err != nil {
		panic(fmt.Sprintf("create kafka producer failed: %v", err))
	}
	defer producer.Close()

	pnlConsumer, err := mq.NewConsumer(kafkaCfg, cfg.Kafka.Topics.PnlSnapshots)
	if err != nil {
		panic(fmt.Sprintf("create pnl consumer failed: %v", err))
	}
	positionConsumer, err := mq.NewConsumer(kafkaCfg, cfg.Kafka.Topics.PositionUpdates)
	if err != nil {
		panic(fmt.Sprintf("create position consumer failed: %v", err))
	}

	dlq := mq.NewDeadLetterQueue(producer, cfg.Kafka.Topics.DeadLetter)
	snapshots := messaging.NewSnapshotConsumer(pnlConsumer, positionConsumer, ledger, redisCache, dlq, m)
	if err := snapshots.WarmStart(ctx); err != nil {
		logger.Warn(ctx, "ledger warm start failed, starting cold", "error", err)
	}
	defer snapshots.Close()

	relay := messaging.NewOutboxRelay(database.DB, producer, cfg.Kafka.Topics.RiskDecisions)

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware())
	r.Use(middleware.GinLoggingMiddleware())
	r.Use(middleware.GinCORSMiddleware())

	handler := riskhttp.NewRiskHandler(gateway, admin)
	var adminMiddleware []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		adminMiddleware = append(adminMiddleware, middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}
	handler.RegisterRoutes(&r.RouterGroup, adminMiddleware...)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) {
			if _, err := ruleCache.Snapshot(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "RULES_NOT_LOADED"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "READY"})
		})
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	// 10. Start
	g, runCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	g.Go(func() error {
		ruleCache.Start(runCtx)
		return nil
	})
	g.Go(func() error {
		snapshots.Start(runCtx)
		return nil
	})
	g.Go(func() error {
		relay.Start(runCtx)
		return nil
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		logger.Info(runCtx, "HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			logger.Info(runCtx, "metrics server starting", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			return metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
		})
	}

	// 11. Graceful shutdown
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(runCtx, "shutting down servers...")
		case <-runCtx.Done():
			logger.Info(runCtx, "context cancelled, shutting down...")
		}
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
	}
}
