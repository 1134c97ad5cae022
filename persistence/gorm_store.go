package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/consortium/types"
)

// DBConfig selects and addresses the database backend.
type DBConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// OpenDatabase connects using the configured driver.
func OpenDatabase(cfg DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "consortium.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// iterationRow is the table shape of one round. The structured payloads are
// JSON text so the table survives schema evolution of the in-memory types.
type iterationRow struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index;size:64"`
	Round       int
	Prompt      string `gorm:"type:text"`
	Responses   string `gorm:"type:text"`
	Synthesis   string `gorm:"type:text"`
	Confidence  float64
	StartedAt   time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
}

func (iterationRow) TableName() string { return "iteration_records" }

// GormStore is the gorm-backed RecordStore.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore migrates the schema and returns the store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&iterationRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "record_store")),
	}, nil
}

func (s *GormStore) Append(ctx context.Context, rec types.IterationRecord) error {
	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	synthesis, err := json.Marshal(rec.Synthesis)
	if err != nil {
		return fmt.Errorf("marshal synthesis: %w", err)
	}

	row := iterationRow{
		RunID:       rec.RunID,
		Round:       rec.Round,
		Prompt:      rec.Prompt,
		Responses:   string(responses),
		Synthesis:   string(synthesis),
		Confidence:  rec.Synthesis.Confidence,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert iteration record: %w", err)
	}
	return nil
}

func (s *GormStore) ListByRun(ctx context.Context, runID string) ([]types.IterationRecord, error) {
	var rows []iterationRow
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("round ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query iteration records: %w", err)
	}

	records := make([]types.IterationRecord, 0, len(rows))
	for _, row := range rows {
		rec := types.IterationRecord{
			RunID:       row.RunID,
			Round:       row.Round,
			Prompt:      row.Prompt,
			StartedAt:   row.StartedAt,
			CompletedAt: row.CompletedAt,
		}
		if err := json.Unmarshal([]byte(row.Responses), &rec.Responses); err != nil {
			return nil, fmt.Errorf("unmarshal responses for run %s round %d: %w", row.RunID, row.Round, err)
		}
		if err := json.Unmarshal([]byte(row.Synthesis), &rec.Synthesis); err != nil {
			return nil, fmt.Errorf("unmarshal synthesis for run %s round %d: %w", row.RunID, row.Round, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
