package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
)

// Open constructs the configured storage backend.
func Open(cfg config.StorageConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "file":
		return NewFileStore(cfg.BaseDir, logger)
	case "sqlite", "postgres", "mysql":
		return OpenGorm(cfg.Driver, cfg.DSN, logger)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:      redisCfg.Addr,
			Password:  redisCfg.Password,
			DB:        redisCfg.DB,
			PoolSize:  redisCfg.PoolSize,
			KeyPrefix: redisCfg.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
