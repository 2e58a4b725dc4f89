package main

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"msgsync/internal/app"
	"msgsync/pkg/banner"
	"msgsync/pkg/config"
	"msgsync/pkg/logger"
	"msgsync/pkg/shutdown"
)

func main() {
	// build metadata - set via ldflags during build/release
	var version = "dev"

	_ = godotenv.Load(".env")
	apiVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// flags win over config/env when provided by the user
	if setFlags["api"] {
		cfg.Server.APIBase = apiVal
	}
	cfg.Normalize()

	logger.InitWithLevel(cfg.Logging.Level)

	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}
	banner.Print(cfg, strings.Join(srcs, ", "), version)

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("engine init failed", err, cfg.Auth.StatePath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("engine_exit", "error", err)
		log.Fatalf("engine exit: %v", err)
	}
}
