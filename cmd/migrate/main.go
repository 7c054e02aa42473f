package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"aliasflare/backend/internal/config"
	"aliasflare/backend/internal/logger"
	sqlstore "aliasflare/backend/internal/storage/sql"
)

// main 执行数据库结构迁移后退出。
// 部署到新环境或升级版本时先跑一次这个命令。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Fatal("database migration requires a configured database",
			zap.String("hint", "set ALIASFLARE_DATABASE_TYPE and ALIASFLARE_DATABASE_DSN"),
		)
	}

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	log.Info("database migration completed", zap.String("type", cfg.Database.Type))
}
