// Package types provides unified type definitions for the memflow engine:
// the memory entry data model, conversation turns, typed entry metadata, and
// the structured error taxonomy shared by both memory tiers.
package types
