package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// FileStore persists one JSON file per entry under a base directory.
// Suitable for single-node deployments. Writes are atomic: the record is
// written to a temp file and renamed into place, so a crash never leaves a
// half-written record.
type FileStore struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.Mutex
	closed  bool
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, persistenceErr("failed to create storage directory", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "storage_file")),
	}, nil
}

func (s *FileStore) Write(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return persistenceErr("failed to encode record", err).WithEntryID(entry.ID)
	}

	path := s.recordPath(entry.ID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return persistenceErr("failed to write record", err).WithEntryID(entry.ID)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return persistenceErr("failed to commit record", err).WithEntryID(entry.ID)
	}
	return nil
}

func (s *FileStore) ReadAll(ctx context.Context) ([]*types.MemoryEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, errClosed()
	}

	paths, err := filepath.Glob(filepath.Join(s.baseDir, "*.json"))
	if err != nil {
		return nil, 0, persistenceErr("failed to enumerate records", err)
	}

	var (
		entries []*types.MemoryEntry
		corrupt int
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, corrupt, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			corrupt++
			s.logger.Warn("failed to read record file", zap.String("path", path), zap.Error(err))
			continue
		}

		var entry types.MemoryEntry
		if err := json.Unmarshal(data, &entry); err != nil || entry.ID == "" {
			corrupt++
			s.logger.Warn("skipping corrupt record", zap.String("path", path), zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, corrupt, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return persistenceErr("failed to delete record", err).WithEntryID(id)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordPath maps an id to its file. IDs are ULID-based and therefore safe
// path components, but anything else is sanitized to stay inside baseDir.
func (s *FileStore) recordPath(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, id)
	return filepath.Join(s.baseDir, safe+".json")
}

var _ Store = (*FileStore)(nil)
