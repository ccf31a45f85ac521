package memory

import (
	"time"

	"github.com/BaSui01/memflow/types"
)

// TierStats 单层存储统计
type TierStats struct {
	Total             int                      `json:"total"`
	ByType            map[types.MemoryType]int `json:"by_type"`
	AvgImportance     float64                  `json:"avg_importance"`
	Oldest            time.Time                `json:"oldest,omitzero"`
	Newest            time.Time                `json:"newest,omitzero"`
	ConversationTurns int                      `json:"conversation_turns,omitempty"`
	CorruptRecords    int                      `json:"corrupt_records,omitempty"`
}

// Stats 双层记忆系统整体统计快照
type Stats struct {
	InstanceID         string    `json:"instance_id"`
	ShortTerm          TierStats `json:"short_term"`
	LongTerm           TierStats `json:"long_term"`
	ConsolidationState string    `json:"consolidation_state"`
	ConsolidationCycle uint64    `json:"consolidation_cycle"`
	LastConsolidation  time.Time `json:"last_consolidation,omitzero"`
}

// CleanupResult 过期清理结果
type CleanupResult struct {
	ShortTermSwept  int `json:"short_term_swept"`
	LongTermRemoved int `json:"long_term_removed"`
}
