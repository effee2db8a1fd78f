// @title Assessment 后端 API
// @version 1.0
// @description 测验上传、题目生成、作答评分与个性化评语服务。
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
package main

import (
	"assessment_backend/internal/app"
	"assessment_backend/internal/config"
	"assessment_backend/pkg/logger"
	"flag"
	"fmt"
	"os"
)

type options struct {
	configDir   string
	migrate     bool
	migrateOnly bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configDir, "config", "configs", "配置目录，包含 config.yaml")
	flag.BoolVar(&o.migrate, "migrate", false, "release 模式下也执行数据库迁移")
	flag.BoolVar(&o.migrateOnly, "migrate-only", false, "迁移后退出")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config from %s: %v\n", opts.configDir, err)
		os.Exit(1)
	}
	cfg.MigrateOnly = opts.migrateOnly
	cfg.ForceMigrate = opts.migrate || opts.migrateOnly

	a := app.NewApp(cfg)
	defer logger.Log.Sync()

	if cfg.MigrateOnly {
		logger.Log.Info("migration finished")
		return
	}
	a.Run()
}
