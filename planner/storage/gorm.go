package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// memoryDSN is a process-wide in-memory SQLite database
const memoryDSN = "file::memory:?cache=shared"

// Entry is one stored blob
type Entry struct {
	Bucket    string         `gorm:"primaryKey;size:64"`
	Name      string         `gorm:"primaryKey;size:128"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "kv_entries" }

// GormStore keeps blobs in a SQL table through gorm
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects the store for driver. dsn is a file path for sqlite (empty for
// in-memory) and a connection string for postgres.
func Open(driver, dsn string, log zerolog.Logger) (KVStore, error) {
	var (
		store *GormStore
		err   error
	)
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		store, err = OpenSQLite(dsn, log)
	case DriverPostgres:
		store, err = OpenPostgres(dsn, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenSQLite opens (or creates) a SQLite database at path; empty path keeps it in memory
func OpenSQLite(path string, log zerolog.Logger) (*GormStore, error) {
	target := path
	if target == "" {
		target = memoryDSN
	}

	db, err := gorm.Open(sqlite.Open(target), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, unavailable("set pragma", err)
		}
	}

	if path == "" {
		log.Info().Msg("Using in-memory SQLite plan store")
	} else {
		log.Info().Str("path", path).Msg("Using local SQLite plan store")
	}
	return NewGormStore(db, log)
}

// OpenPostgres connects to a Postgres database
func OpenPostgres(dsn string, log zerolog.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, unavailable("open postgres", err)
	}
	log.Info().Msg("Using Postgres plan store")
	return NewGormStore(db, log)
}

// NewGormStore wraps an open connection and migrates the entries table
func NewGormStore(db *gorm.DB, log zerolog.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, unavailable("migrate", err)
	}
	return &GormStore{db: db, logger: log}, nil
}

// Put upserts value, which must be valid JSON
func (s *GormStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if !json.Valid(value) {
		return unavailable("put", errors.New("value is not valid JSON"))
	}

	entry := Entry{Bucket: bucket, Name: key, Value: datatypes.JSON(value), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "name"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return unavailable("put", err)
	}

	s.logger.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(value)).Msg("stored entry")
	return nil
}

func (s *GormStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND name = ?", bucket, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return []byte(entry.Value), nil
}

func (s *GormStore) Delete(ctx context.Context, bucket, key string) error {
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND name = ?", bucket, key).
		Delete(&Entry{}).Error
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
