// Package memflow provides a top-level convenience entry point for creating
// a dual-tier memory manager with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	m, err := memflow.New(context.Background())
//	m, err := memflow.NewWithConfigPath(ctx, "memflow.yaml")
//	m, err := memflow.New(ctx, memflow.WithScorer(myScorer))
//
// This is a thin wrapper around [memory.NewManager]; both produce identical
// results. Use this package when you prefer the shorter import path.
package memflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/memory"
)

// Option configures the manager created by [New].
type Option = memory.Option

// TurnOptions carries the optional signals attached to a conversation turn.
type TurnOptions = memory.TurnOptions

// New creates a [memory.Manager] from defaults, a YAML file when one is
// supplied via [WithConfigFile], and MEMFLOW_* environment overrides.
func New(ctx context.Context, opts ...Option) (*memory.Manager, error) {
	return NewWithConfigPath(ctx, "", opts...)
}

// NewWithConfigPath loads configuration from the given YAML path (may be
// empty) before applying environment overrides, then builds the manager.
func NewWithConfigPath(ctx context.Context, path string, opts ...Option) (*memory.Manager, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return memory.NewManager(ctx, cfg, opts...)
}

// NewLogger builds a zap logger from the log section of the configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}

// Re-export manager options so callers never need to import memory/.

// WithLogger sets a custom zap logger.
var WithLogger = memory.WithLogger

// WithStore injects a pre-built persistence store.
var WithStore = memory.WithStore

// WithScorer injects a relevance scorer.
var WithScorer = memory.WithScorer

// WithCollector injects a metrics collector.
var WithCollector = memory.WithCollector

// WithClock injects a clock, mainly for tests.
var WithClock = memory.WithClock
