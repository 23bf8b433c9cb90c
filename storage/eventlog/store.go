// Package eventlog persists committed engine events in a relational table so
// operators can query recent activity without replaying the ledger.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poolhost/core/events"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errClosed = errors.New("eventlog: store closed")

// Record is one persisted event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"index;not null"`
	Pool       string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "pool_events" }

// Decode returns the attribute map stored with the record.
func (r Record) Decode() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("eventlog: decode record %d: %w", r.ID, err)
	}
	return attrs, nil
}

// Store appends events to the configured database. It satisfies
// events.Emitter; write failures are logged, never returned to the engine,
// because events are only emitted after the ledger has committed.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open connects to dsn. A postgres:// or postgresql:// URL selects the
// Postgres driver; anything else is treated as a SQLite file path.
func Open(dsn string, log *slog.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("eventlog: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("eventlog: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, logger: log, nowFn: time.Now}, nil
}

// Emit implements events.Emitter.
func (s *Store) Emit(evt events.Event) {
	if err := s.Append(context.Background(), evt); err != nil {
		s.logger.Warn("event not persisted",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append stores evt and its attributes.
func (s *Store) Append(ctx context.Context, evt events.Event) error {
	if s == nil || s.db == nil {
		return errClosed
	}
	if evt == nil {
		return nil
	}
	record := Record{
		EventID:   uuid.New(),
		Type:      evt.EventType(),
		CreatedAt: s.nowFn().UTC(),
	}
	if payload := events.Attributes(evt); payload != nil && len(payload.Attributes) > 0 {
		encoded, err := json.Marshal(payload.Attributes)
		if err != nil {
			return fmt.Errorf("eventlog: encode attributes: %w", err)
		}
		record.Attributes = string(encoded)
		record.Pool = payload.Attr("pool")
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("eventlog: insert %s: %w", record.Type, err)
	}
	return nil
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	Type  string
	Pool  string
	Limit int
}

// Recent returns the newest records first. The limit defaults to 50 and is
// capped at 1000.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errClosed
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	query := s.db.WithContext(ctx).Model(&Record{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Pool != "" {
		query = query.Where("pool = ?", filter.Pool)
	}
	var records []Record
	if err := query.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}
