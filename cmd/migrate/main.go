// Package main 数据库迁移与初始化数据工具
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/config"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
	pricingService "github.com/dumeirei/school-portal-backend/internal/service/pricing"
	"github.com/dumeirei/school-portal-backend/migrations"
)

func main() {
	var (
		configPath    string
		adminUser     string
		adminPassword string
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "配置文件路径")
	flag.StringVar(&adminUser, "admin-user", os.Getenv("SEED_ADMIN_USERNAME"), "seed 时创建的超级管理员用户名")
	flag.StringVar(&adminPassword, "admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "seed 时创建的超级管理员密码")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.GetLogger()

	db, err := database.Init(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if args[0] == "seed" {
		if err := seed(cfg, adminUser, adminPassword, log); err != nil {
			log.Fatal("Seed failed", zap.Error(err))
		}
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	m, err := database.NewMigrator(sqlDB, migrations.FS, cfg.Database.MigrationsTable, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	if err := run(m, args); err != nil {
		log.Fatal("Migration failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(m *database.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(n)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	return n, nil
}

// seed 写入默认套餐，并在提供账号时创建超级管理员
func seed(cfg *config.Config, username, password string, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.GetDB()
	pricing := pricingService.NewPricingService(repository.NewPricingRepository(db), nil, pricingService.DefaultConfig())
	if err := pricing.EnsureDefaultPlans(ctx); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	log.Info("Default plans ensured")

	if username == "" {
		return nil
	}
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})
	auth := adminService.NewAdminAuthService(repository.NewAdminRepository(db), jwtManager)
	admin, err := auth.CreateAdmin(ctx, &adminService.CreateAdminRequest{
		Username: username,
		Password: password,
		Name:     username,
		Role:     models.RoleSuperAdmin,
	})
	if errors.Is(err, errors.ErrAlreadyExists) {
		log.Info("Admin already exists", zap.String("username", username))
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("Super admin created", zap.Int64("admin_id", admin.ID), zap.String("username", admin.Username))
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up              执行全部未应用的迁移
  down            回滚全部迁移
  steps N         迁移 N 步（负数表示回滚）
  version         显示当前版本
  force N         强制设置版本
  seed            写入默认套餐，可选创建超级管理员

Flags:`)
	flag.PrintDefaults()
}
