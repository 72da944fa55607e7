package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/internal/database"
	"github.com/BaSui01/imageflow/store"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// runMigrate 创建或更新生成记录表，serve 启动时也会执行同样的迁移
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := migrate(cfg.Database, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations applied successfully")
}

// migrate 打开数据库并执行 AutoMigrate
func migrate(cfg config.DatabaseConfig, logger *zap.Logger) error {
	if cfg.Driver == "memory" {
		return fmt.Errorf("database driver %q has no schema to migrate", cfg.Driver)
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if err := store.NewGormStore(db, logger).AutoMigrate(); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	logger.Info("database migrated",
		zap.String("driver", cfg.Driver),
		zap.String("table", store.GenerationRecord{}.TableName()),
	)
	return nil
}
