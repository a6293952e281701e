package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/internal/migration"
)

// =============================================================================
// 🗃️ 迁移命令
// =============================================================================

// runMigrate 执行检查点表迁移，flag 之后的参数为迁移子命令（默认 up）
func runMigrate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbURL := fs.String("db-url", "", "Postgres connection URL (default: checkpoint DSN from config)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Migration timeout")

	// 子命令在前时先取出，再解析其后的 flag
	var sub []string
	for len(args) > 0 && isMigrateArg(args[0]) {
		sub = append(sub, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	sub = append(sub, fs.Args()...)

	migrator, err := newMigrator(*configPath, *dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	return cli.Run(ctx, sub)
}

func newMigrator(configPath, dbURL string) (*migration.PostgresMigrator, error) {
	if dbURL != "" {
		return migration.NewMigratorFromURL(dbURL)
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return migration.NewMigratorFromConfig(cfg)
}

// isMigrateArg 子命令名或数字参数（steps -1）
func isMigrateArg(s string) bool {
	if _, err := strconv.Atoi(s); err == nil {
		return true
	}
	return s != "" && !strings.HasPrefix(s, "-")
}
