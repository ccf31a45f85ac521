package types

import (
	"time"
)

// MemoryType classifies a memory entry. Immutable after creation.
type MemoryType string

const (
	// MemoryConversation 对话轮次记忆（问答对）。
	MemoryConversation MemoryType = "conversation"

	// MemoryFactual represents factual knowledge added explicitly.
	MemoryFactual MemoryType = "factual"

	// MemoryPreference represents learned user preferences.
	MemoryPreference MemoryType = "preference"

	// MemoryInsight represents derived insights and summaries.
	MemoryInsight MemoryType = "insight"
)

// Valid reports whether t is one of the known memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryConversation, MemoryFactual, MemoryPreference, MemoryInsight:
		return true
	}
	return false
}

// MemoryEntry is the unit of storage in both memory tiers.
//
// ID, Content, Type, Timestamp, Source and the metadata payload are fixed at
// creation. Importance, AccessCount and LastAccessed are mutated by the
// access-tracking paths. Importance is always kept within [0,1]; writers
// clamp, they never reject.
type MemoryEntry struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Type         MemoryType `json:"memory_type"`
	Importance   float64    `json:"importance"`
	Timestamp    time.Time  `json:"timestamp"`
	Source       string     `json:"source"`
	Metadata     Metadata   `json:"metadata,omitempty"`
	AccessCount  int        `json:"access_count"`
	LastAccessed time.Time  `json:"last_accessed,omitempty"`
}

// Clone returns a deep copy of the entry. Stores hand out clones so callers
// can never mutate indexed state behind the store's lock.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Metadata = e.Metadata.Clone()
	return &cp
}

// EffectiveLastAccess returns LastAccessed, falling back to the creation
// timestamp for entries that have never been read. LRU eviction orders by
// this value.
func (e *MemoryEntry) EffectiveLastAccess() time.Time {
	if e.LastAccessed.IsZero() {
		return e.Timestamp
	}
	return e.LastAccessed
}

// Age returns the entry age relative to now.
func (e *MemoryEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// ClampImportance 将重要性分数收敛到 [0,1] 区间。
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConversationTurn represents a single user/assistant exchange kept in the
// short-term conversation history ring.
type ConversationTurn struct {
	TurnID            string    `json:"turn_id"`
	UserInput         string    `json:"user_input"`
	AssistantResponse string    `json:"assistant_response"`
	ContextUsed       []string  `json:"context_used,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	ProcessingTime    float64   `json:"processing_time"`
	ConfidenceScore   float64   `json:"confidence_score"`
}

// Metadata is the closed, versioned metadata payload attached to an entry.
// Known fields are typed; Extra carries forward-compatible extensions.
// Unknown fields in durable records are ignored on decode.
type Metadata struct {
	// Confidence 置信度（由写入方提供，参与晋升判定）。
	Confidence *float64 `json:"confidence,omitempty"`

	// ProcessingTime is the seconds spent producing the related response.
	ProcessingTime float64 `json:"processing_time,omitempty"`

	// ContextUsed lists the context entry ids consumed by the turn.
	ContextUsed []string `json:"context_used,omitempty"`

	// Promotion is set by the consolidation engine when the entry is copied
	// into the long-term tier.
	Promotion *PromotionInfo `json:"promotion,omitempty"`

	// Extra holds open extension values (scalar payloads only).
	Extra map[string]any `json:"extra,omitempty"`
}

// PromotionInfo records how an entry graduated to long-term storage.
type PromotionInfo struct {
	PromotedAt time.Time `json:"promoted_at"`
	Reason     string    `json:"reason"`
	Cycle      uint64    `json:"cycle"`
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	cp := m
	if m.Confidence != nil {
		c := *m.Confidence
		cp.Confidence = &c
	}
	if m.ContextUsed != nil {
		cp.ContextUsed = append([]string(nil), m.ContextUsed...)
	}
	if m.Promotion != nil {
		p := *m.Promotion
		cp.Promotion = &p
	}
	if m.Extra != nil {
		cp.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

// ConfidenceOr returns the confidence value, or def when absent.
func (m Metadata) ConfidenceOr(def float64) float64 {
	if m.Confidence == nil {
		return def
	}
	return *m.Confidence
}

// Promoted reports whether the entry has already been copied to long-term
// storage. Promoted entries are skipped by later consolidation cycles.
func (m Metadata) Promoted() bool {
	return m.Promotion != nil
}
