// Package memory implements the dual-tier conversational memory engine: a
// bounded, time-limited short-term store for recent interaction context, a
// durable indexed long-term store for promoted knowledge, the consolidation
// engine that moves qualifying entries between the tiers, and the manager
// façade that assembles relevance-ranked context for prompt construction.
//
// Concurrency model: short-term mutations are serialized against each other
// but never against long-term operations; long-term mutations are serialized
// against each other. Promotion snapshots the short-term tier first, then
// writes long-term, so the two locks are never held together.
package memory
