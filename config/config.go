// =============================================================================
// 📦 memflow 配置结构
// =============================================================================
// 统一配置定义，支持 YAML 文件 + 环境变量覆盖
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/memflow/types"
)

// Config 是 memflow 的完整配置结构
type Config struct {
	// ShortTerm 短期记忆配置
	ShortTerm ShortTermConfig `yaml:"short_term" env:"SHORT_TERM"`

	// LongTerm 长期记忆配置
	LongTerm LongTermConfig `yaml:"long_term" env:"LONG_TERM"`

	// Consolidation 记忆整合配置
	Consolidation ConsolidationConfig `yaml:"consolidation" env:"CONSOLIDATION"`

	// Context 上下文组装配置
	Context ContextConfig `yaml:"context" env:"CONTEXT"`

	// Storage 持久化存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Redis 缓存配置（storage.driver = redis 时使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ShortTermConfig 短期记忆配置
type ShortTermConfig struct {
	// 容量上限，超出时按 LRU 淘汰
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 条目存活时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 对话历史保留轮数
	ConversationHistory int `yaml:"conversation_history" env:"CONVERSATION_HISTORY"`
}

// LongTermConfig 长期记忆配置
type LongTermConfig struct {
	// 保留天数（cleanup 的默认阈值）
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS"`
	// 搜索结果默认条数
	SearchLimit int `yaml:"search_limit" env:"SEARCH_LIMIT"`
	// 外部相关性评分调用的超时时间
	ScoringTimeout time.Duration `yaml:"scoring_timeout" env:"SCORING_TIMEOUT"`
	// 访问次数达到该值的条目不参与按龄清理
	KeepMinAccessCount int `yaml:"keep_min_access_count" env:"KEEP_MIN_ACCESS_COUNT"`
	// 重要性达到该值的条目不参与按龄清理
	KeepMinImportance float64 `yaml:"keep_min_importance" env:"KEEP_MIN_IMPORTANCE"`
}

// ConsolidationConfig 记忆整合配置
type ConsolidationConfig struct {
	// 自动整合周期
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 重要性晋升阈值
	ImportanceThreshold float64 `yaml:"importance_threshold" env:"IMPORTANCE_THRESHOLD"`
	// 置信度晋升阈值
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	// 访问频次晋升阈值（access_count 超过该值即晋升）
	FrequencyThreshold int `yaml:"frequency_threshold" env:"FREQUENCY_THRESHOLD"`
	// 对话条目按内容长度晋升的阈值（字节）
	LongResponseBytes int `yaml:"long_response_bytes" env:"LONG_RESPONSE_BYTES"`
}

// ContextConfig 上下文组装配置
type ContextConfig struct {
	// 单次组装返回的最大条目数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// 可选 token 预算，0 表示不限制
	TokenBudget int `yaml:"token_budget" env:"TOKEN_BUDGET"`
	// token 计数使用的 tiktoken 编码
	TokenEncoding string `yaml:"token_encoding" env:"TOKEN_ENCODING"`
	// 长期结果得分权重：relevance 与 importance 的混合比
	RelevanceWeight float64 `yaml:"relevance_weight" env:"RELEVANCE_WEIGHT"`
}

// StorageConfig 持久化存储配置
type StorageConfig struct {
	// 驱动类型: file, sqlite, postgres, mysql, redis
	Driver string `yaml:"driver" env:"DRIVER"`
	// 文件存储根目录（driver = file 时使用）
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// 数据库连接串（driver = sqlite/postgres/mysql 时使用）
	DSN string `yaml:"dsn" env:"DSN"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// Validate 验证配置，越界值直接拒绝而不是静默收敛。
// The engine refuses to start with an invalid configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.ShortTerm.Capacity <= 0 {
		errs = append(errs, "short_term.capacity must be positive")
	}
	if c.ShortTerm.TTL <= 0 {
		errs = append(errs, "short_term.ttl must be positive")
	}
	if c.ShortTerm.ConversationHistory <= 0 {
		errs = append(errs, "short_term.conversation_history must be positive")
	}

	if c.LongTerm.RetentionDays <= 0 {
		errs = append(errs, "long_term.retention_days must be positive")
	}
	if c.LongTerm.SearchLimit <= 0 {
		errs = append(errs, "long_term.search_limit must be positive")
	}
	if c.LongTerm.ScoringTimeout <= 0 {
		errs = append(errs, "long_term.scoring_timeout must be positive")
	}
	if c.LongTerm.KeepMinImportance < 0 || c.LongTerm.KeepMinImportance > 1 {
		errs = append(errs, "long_term.keep_min_importance must be in [0,1]")
	}

	if c.Consolidation.Interval <= 0 {
		errs = append(errs, "consolidation.interval must be positive")
	}
	if c.Consolidation.ImportanceThreshold < 0 || c.Consolidation.ImportanceThreshold > 1 {
		errs = append(errs, "consolidation.importance_threshold must be in [0,1]")
	}
	if c.Consolidation.ConfidenceThreshold < 0 || c.Consolidation.ConfidenceThreshold > 1 {
		errs = append(errs, "consolidation.confidence_threshold must be in [0,1]")
	}
	if c.Consolidation.FrequencyThreshold < 0 {
		errs = append(errs, "consolidation.frequency_threshold must not be negative")
	}
	if c.Consolidation.LongResponseBytes < 0 {
		errs = append(errs, "consolidation.long_response_bytes must not be negative")
	}

	if c.Context.MaxEntries <= 0 {
		errs = append(errs, "context.max_entries must be positive")
	}
	if c.Context.TokenBudget < 0 {
		errs = append(errs, "context.token_budget must not be negative")
	}
	if c.Context.RelevanceWeight < 0 || c.Context.RelevanceWeight > 1 {
		errs = append(errs, "context.relevance_weight must be in [0,1]")
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "postgres", "mysql", "redis":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported", c.Storage.Driver))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfigurationInvalid,
			"config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}

// Retention 返回按龄清理的时间阈值。
func (c *LongTermConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
