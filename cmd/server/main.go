package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "aliasflare/backend/internal/auth/jwt"
	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/config"
	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/health"
	"aliasflare/backend/internal/logger"
	"aliasflare/backend/internal/monitoring"
	"aliasflare/backend/internal/service"
	"aliasflare/backend/internal/storage"
	"aliasflare/backend/internal/storage/filesystem"
	"aliasflare/backend/internal/storage/memory"
	redisstore "aliasflare/backend/internal/storage/redis"
	sqlstore "aliasflare/backend/internal/storage/sql"
	syncpkg "aliasflare/backend/internal/sync"
	httptransport "aliasflare/backend/internal/transport/http"
	"aliasflare/backend/internal/websocket"
)

// main 启动别名同步服务：HTTP API、同步协调器和复制订阅。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting aliasflare server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("zones", cfg.Cloudflare.Zones),
	)

	// 初始化本地存储
	var store storage.Store
	if cfg.Database.Type == "file" {
		fsStore, err := filesystem.NewStore(cfg.Database.DSN)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize filesystem storage: %v", err))
		}
		store = fsStore
		log.Info("using filesystem storage", zap.String("path", cfg.Database.DSN))
	} else if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		dbStore, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		if err := dbStore.Migrate(); err != nil {
			panic(fmt.Sprintf("failed to migrate database: %v", err))
		}
		store = dbStore
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化复制存储（可选）
	var replica storage.ReplicaStore
	var redisClient *redisstore.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisstore.New(redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			// 复制存储不可达不阻塞启动，回填引擎把它当空操作
			log.Warn("replica store unreachable at startup, continuing without it", zap.Error(err))
			redisClient = nil
		} else {
			replica = redisstore.NewReplicaStore(redisClient, log)
			defer redisClient.Close()
		}
	}

	// 初始化监控
	metrics := monitoring.NewMetrics()

	// 初始化远端客户端与同步引擎
	cfAPI := cloudflare.NewClient(cfg.Cloudflare.BaseURL, cfg.Cloudflare.APIToken, cfg.Cloudflare.Timeout, log)
	reconciler := syncpkg.NewReconciler(store, cfAPI, log)
	dedup := syncpkg.NewDeduplicator(store, log)
	backfill := syncpkg.NewBackfiller(store, replicaOrNoop(replica), log)

	// WebSocket Hub 作为同步事件出口
	tokenManager := jwtpkg.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionExpiry)
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, tokenManager, log)

	coordinator := syncpkg.NewCoordinator(
		syncpkg.Config{
			Zones:          cfg.Cloudflare.Zones,
			Interval:       cfg.Sync.Interval,
			Cooldown:       cfg.Sync.Cooldown,
			Debounce:       cfg.Sync.Debounce,
			StartupRetries: cfg.Sync.StartupRetries,
		},
		reconciler,
		dedup,
		backfill,
		wsHub,
		metrics,
		log,
	)

	aliasService := service.NewAliasService(store, cfAPI, replica, metrics, cfg.Sync.OwnerTag, log)

	// 告警规则
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0))
	alertManager.AddRule(monitoring.StoreHealthRule(store))
	alertManager.AddRule(monitoring.SyncStalenessRule(func() *time.Time {
		return coordinator.Status().LastRun
	}, 3*cfg.Sync.Interval))

	// 健康检查
	var goRedis *goredis.Client
	if redisClient != nil {
		goRedis = redisClient.Client()
	}
	checker := health.NewChecker(store, goRedis)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		AliasService: aliasService,
		Coordinator:  coordinator,
		TokenManager: tokenManager,
		WebSocketHub: wsHub,
		Metrics:      metrics,
		HealthLive:   checker.Live(),
		HealthReady:  checker.Ready(),
		Logger:       log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 同步协调器：先启动工作协程，再做启动同步
	group.Go(func() error {
		coordinator.Start(groupCtx)
		coordinator.StartupSync(groupCtx)
		return nil
	})

	// 复制推送订阅 goroutine
	if replicaStore, ok := replica.(*redisstore.ReplicaStore); ok {
		group.Go(func() error {
			sub := replicaStore.SubscribeChanges(groupCtx)
			defer sub.Close()

			log.Info("subscribed to replica change events")
			ch := sub.Channel()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case msg, ok := <-ch:
					if !ok {
						return nil
					}
					log.Debug("replication push received", zap.String("identity", msg.Payload))
					coordinator.NotifyReplicationPush()
				}
			}
		})
	}

	// 告警监控 goroutine
	group.Go(func() error {
		alertManager.StartMonitoring(groupCtx, time.Minute)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// replicaOrNoop 未配置复制存储时回填引擎拿到一个永远为空的实现。
func replicaOrNoop(replica storage.ReplicaStore) storage.ReplicaStore {
	if replica != nil {
		return replica
	}
	return noopReplica{}
}

type noopReplica struct{}

func (noopReplica) Snapshot(ctx context.Context) ([]domain.ReplicatedAlias, error) {
	return nil, nil
}

func (noopReplica) Publish(ctx context.Context, alias *domain.AliasRecord) error {
	return nil
}
