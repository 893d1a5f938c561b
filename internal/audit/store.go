// Package audit persists the client lifecycle history served by
// /debug/history. Frames are never stored.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/registry"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
)

// ErrInvalidDatabaseType is returned for unsupported database types
var ErrInvalidDatabaseType = errors.New("invalid database type")

// Store records client lifecycle events in a SQL database
type Store struct {
	logger *zap.Logger
	db     *gorm.DB
	limit  int
}

// NewStore creates a store from the audit configuration
func NewStore(lg *zap.Logger, cfg *config.AuditConfig) (*Store, error) {
	dsn, err := cfg.Database.GetDSN()
	if err != nil {
		return nil, err
	}
	s, err := NewDBStore(lg, DatabaseType(cfg.Database.Type), dsn)
	if err != nil {
		return nil, err
	}
	s.limit = cfg.HistoryLimit
	return s, nil
}

// NewDBStore opens dsn and migrates the schema
func NewDBStore(lg *zap.Logger, dbType DatabaseType, dsn string) (*Store, error) {
	lg = lg.Named("audit.store")

	var dialector gorm.Dialector
	switch dbType {
	case PostgreSQL:
		dialector = postgres.Open(dsn)
	case MySQL:
		dialector = mysql.Open(dsn)
	case SQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDatabaseType, dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if dbType == SQLite {
		// one writer; also keeps :memory: databases on a single connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ClientRecord{}); err != nil {
		return nil, err
	}

	lg.Info("Initialized audit store", zap.String("type", string(dbType)))
	return &Store{logger: lg, db: db, limit: 100}, nil
}

// Notify records ev. It lets the store sit behind the event dispatcher.
func (s *Store) Notify(ctx context.Context, ev registry.Event) error {
	return s.db.WithContext(ctx).Create(FromEvent(ev)).Error
}

// History returns the most recent records, newest first. A non-positive
// limit uses the configured default.
func (s *Store) History(ctx context.Context, limit int) ([]ClientRecord, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	var records []ClientRecord
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

// ClientHistory returns every record of one client in insertion order
func (s *Store) ClientHistory(ctx context.Context, clientID int64) ([]ClientRecord, error) {
	var records []ClientRecord
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).Order("id asc").Find(&records).Error
	return records, err
}

// Prune keeps the newest keep records and deletes the rest
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	var cutoff ClientRecord
	err := s.db.WithContext(ctx).Order("id desc").Offset(keep).Limit(1).Take(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("id <= ?", cutoff.ID).Delete(&ClientRecord{})
	return res.RowsAffected, res.Error
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
