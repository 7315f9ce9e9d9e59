package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/config"
	"github.com/jcarweb/repuestospro-sub005/internal/db"
	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/file"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/memory"
	kvpostgres "github.com/jcarweb/repuestospro-sub005/internal/kv/postgres"
	kvredis "github.com/jcarweb/repuestospro-sub005/internal/kv/redis"
)

// OpenStore returns the key-value backend selected by cfg.StoreBackend. The postgres
// schema must already be applied (cmd/migrate).
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (kv.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("memory store selected; nothing survives a restart")
		return memory.New(), nil
	case config.BackendFile:
		return file.Open(cfg.StoreFilePath)
	case config.BackendRedis:
		return kvredis.Dial(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	case config.BackendPostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, kv.Wrap("open", "", err)
		}
		return kvpostgres.NewOwned(conn)
	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.StoreBackend)
	}
}
