// =============================================================================
// 📦 memflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ShortTerm:     DefaultShortTermConfig(),
		LongTerm:      DefaultLongTermConfig(),
		Consolidation: DefaultConsolidationConfig(),
		Context:       DefaultContextConfig(),
		Storage:       DefaultStorageConfig(),
		Redis:         DefaultRedisConfig(),
		Log:           DefaultLogConfig(),
	}
}

// DefaultShortTermConfig 返回默认短期记忆配置
func DefaultShortTermConfig() ShortTermConfig {
	return ShortTermConfig{
		Capacity:            50,
		TTL:                 30 * time.Minute,
		ConversationHistory: 20,
	}
}

// DefaultLongTermConfig 返回默认长期记忆配置
func DefaultLongTermConfig() LongTermConfig {
	return LongTermConfig{
		RetentionDays:      365,
		SearchLimit:        10,
		ScoringTimeout:     2 * time.Second,
		KeepMinAccessCount: 5,
		KeepMinImportance:  0.8,
	}
}

// DefaultConsolidationConfig 返回默认整合配置
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		Interval:            5 * time.Minute,
		ImportanceThreshold: 0.7,
		ConfidenceThreshold: 0.8,
		FrequencyThreshold:  5,
		LongResponseBytes:   500,
	}
}

// DefaultContextConfig 返回默认上下文组装配置
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxEntries:      5,
		TokenBudget:     0,
		TokenEncoding:   "cl100k_base",
		RelevanceWeight: 0.7,
	}
}

// DefaultStorageConfig 返回默认持久化存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:  "file",
		BaseDir: "data/memory",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "memflow:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
