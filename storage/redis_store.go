package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// RedisStore persists entries as JSON values under a key prefix. Suitable for
// deployments that already run Redis with persistence (AOF/RDB) enabled.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, persistenceErr("failed to connect to Redis", err)
	}

	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "memflow:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "record:",
		logger:    logger.With(zap.String("component", "storage_redis")),
	}, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Write(ctx context.Context, entry *types.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry with id is required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return persistenceErr("failed to encode record", err).WithEntryID(entry.ID)
	}

	// 持久化记录不设置过期时间，保留策略由长期层的 cleanup 控制。
	if err := s.client.Set(ctx, s.recordKey(entry.ID), data, 0).Err(); err != nil {
		return persistenceErr("failed to write record", err).WithEntryID(entry.ID)
	}
	return nil
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]*types.MemoryEntry, int, error) {
	var (
		entries []*types.MemoryEntry
		corrupt int
		cursor  uint64
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, corrupt, persistenceErr("failed to enumerate records", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return nil, corrupt, persistenceErr("failed to read record", err)
			}

			var entry types.MemoryEntry
			if err := json.Unmarshal(data, &entry); err != nil || entry.ID == "" {
				corrupt++
				s.logger.Warn("skipping corrupt record", zap.String("key", key), zap.Error(err))
				continue
			}
			entries = append(entries, &entry)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return entries, corrupt, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.recordKey(id)).Err(); err != nil {
		return persistenceErr("failed to delete record", err).WithEntryID(id)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
