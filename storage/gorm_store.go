package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/memflow/types"
)

// memoryRecord is the database row for one durable entry. The full entry is
// kept as a self-describing JSON payload; a few columns are lifted out for
// operator queries.
type memoryRecord struct {
	ID         string    `gorm:"primaryKey;column:id"`
	MemoryType string    `gorm:"column:memory_type;index"`
	Importance float64   `gorm:"column:importance"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
	Payload    string    `gorm:"column:payload"`
}

func (memoryRecord) TableName() string { return "memory_records" }

// GormStore persists entries in a relational database through GORM.
// Driver selection follows the configured driver name: sqlite (pure Go,
// embedded), postgres, or mysql.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// OpenGorm opens (and migrates) a database-backed store.
func OpenGorm(driver, dsn string, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, persistenceErr("failed to open database", err)
	}

	if err := db.AutoMigrate(&memoryRecord{}); err != nil {
		return nil, persistenceErr("failed to migrate schema", err)
	}

	return NewGormStore(db, logger), nil
}

// NewGormStore wraps an existing gorm.DB. The schema must already exist;
// OpenGorm handles migration for the common case.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "storage_gorm")),
	}
}

func (s *GormStore) Write(ctx context.Context, entry *types.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry with id is required")
	}
	if s.isClosed() {
		return errClosed()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return persistenceErr("failed to encode record", err).WithEntryID(entry.ID)
	}

	rec := memoryRecord{
		ID:         entry.ID,
		MemoryType: string(entry.Type),
		Importance: entry.Importance,
		CreatedAt:  entry.Timestamp,
		Payload:    string(payload),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return persistenceErr("failed to write record", err).WithEntryID(entry.ID)
	}
	return nil
}

func (s *GormStore) ReadAll(ctx context.Context) ([]*types.MemoryEntry, int, error) {
	if s.isClosed() {
		return nil, 0, errClosed()
	}

	var records []memoryRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, 0, persistenceErr("failed to enumerate records", err)
	}

	var (
		entries []*types.MemoryEntry
		corrupt int
	)
	for _, rec := range records {
		var entry types.MemoryEntry
		if err := json.Unmarshal([]byte(rec.Payload), &entry); err != nil || entry.ID == "" {
			corrupt++
			s.logger.Warn("skipping corrupt record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, corrupt, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return errClosed()
	}

	err := s.db.WithContext(ctx).Delete(&memoryRecord{}, "id = ?", id).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return persistenceErr("failed to delete record", err).WithEntryID(id)
	}
	return nil
}

func (s *GormStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

func (s *GormStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ Store = (*GormStore)(nil)
