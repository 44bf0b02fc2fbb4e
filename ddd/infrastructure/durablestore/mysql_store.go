// Package durablestore mirrors terminal job snapshots into MySQL via gorm,
// purely for audit/reporting outside the server's own lifetime. It is never
// consulted by the Registry: Registry.Get always answers from the
// in-memory record, and this store is write-only from the pipeline's
// perspective (see the Open Question decision in DESIGN.md on registry
// persistence).
package durablestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipforge/ddd/domain/entity"
	"clipforge/pkg/config"
)

// jobRecord is the gorm model mirroring one terminal entity.JobSnapshot.
type jobRecord struct {
	JobID       string `gorm:"primaryKey;column:job_id;size:64"`
	TraceID     string `gorm:"column:trace_id;size:64"`
	Status      string `gorm:"column:status;size:16;index"`
	Stage       string `gorm:"column:stage;size:16"`
	Message     string `gorm:"column:message;size:1024"`
	OutputsJSON string `gorm:"column:outputs_json;type:text"`
	ErrorJSON   string `gorm:"column:error_json;type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	MirroredAt  time.Time `gorm:"column:mirrored_at"`
}

func (jobRecord) TableName() string { return "clipforge_jobs" }

// Store is the MySQL-backed audit mirror.
type Store struct {
	db *gorm.DB
}

// Open dials MySQL per cfg and auto-migrates the mirror table.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("durablestore: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("durablestore: underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("durablestore: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Mirror upserts snap's terminal state. Callers only invoke this once a Job
// reaches done/failed; mirroring a non-terminal snapshot is harmless but
// pointless, so the Orchestrator only calls it on terminal transitions.
func (s *Store) Mirror(ctx context.Context, snap entity.JobSnapshot) error {
	outputsJSON, err := json.Marshal(snap.Outputs)
	if err != nil {
		return fmt.Errorf("durablestore: marshal outputs: %w", err)
	}
	var errorJSON []byte
	if snap.Error != nil {
		errorJSON, err = json.Marshal(snap.Error)
		if err != nil {
			return fmt.Errorf("durablestore: marshal error: %w", err)
		}
	}

	rec := jobRecord{
		JobID:       snap.JobID,
		TraceID:     snap.TraceID,
		Status:      string(snap.Status),
		Stage:       string(snap.Stage),
		Message:     snap.Message,
		OutputsJSON: string(outputsJSON),
		ErrorJSON:   string(errorJSON),
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
		MirroredAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
