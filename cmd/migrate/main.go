// migrate applies the postgres key-value schema from embedded SQL; run with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/config"
	"github.com/jcarweb/repuestospro-sub005/internal/db/migrate"
	"github.com/jcarweb/repuestospro-sub005/internal/logger"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Error("migration failed", zap.String("direction", *direction), zap.Error(err))
		os.Exit(1)
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		log.Warn("migration applied; version unavailable", zap.Error(err))
		return
	}
	log.Info("migration applied", zap.String("direction", *direction), zap.Uint("version", v), zap.Bool("dirty", dirty))
}
