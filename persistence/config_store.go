package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/consortium/consortium"
	"github.com/BaSui01/consortium/types"
)

// ErrConfigNotFound is returned when a named consortium does not exist.
var ErrConfigNotFound = errors.New("consortium config not found")

// savedConfigRow holds one named consortium definition.
type savedConfigRow struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128"`
	Config    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (savedConfigRow) TableName() string { return "consortium_configs" }

// ConfigStore persists named consortium definitions so a tuned roster can
// be reused by name instead of re-specified flag by flag.
type ConfigStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewConfigStore migrates the schema and returns the store.
func NewConfigStore(db *gorm.DB, logger *zap.Logger) (*ConfigStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&savedConfigRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &ConfigStore{
		db:     db,
		logger: logger.With(zap.String("component", "config_store")),
	}, nil
}

// Save upserts a named definition.
func (s *ConfigStore) Save(ctx context.Context, name string, cfg consortium.Config) error {
	if name == "" {
		return types.NewError(types.ErrConfigInvalid, "consortium name must not be empty")
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	row := savedConfigRow{Name: name, Config: string(payload)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save consortium %q: %w", name, err)
	}

	s.logger.Info("consortium saved", zap.String("name", name))
	return nil
}

// Get loads a named definition.
func (s *ConfigStore) Get(ctx context.Context, name string) (consortium.Config, error) {
	var row savedConfigRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return consortium.Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	if err != nil {
		return consortium.Config{}, fmt.Errorf("load consortium %q: %w", name, err)
	}

	var cfg consortium.Config
	if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
		return consortium.Config{}, fmt.Errorf("unmarshal consortium %q: %w", name, err)
	}
	return cfg, nil
}

// List returns all saved names, alphabetically.
func (s *ConfigStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&savedConfigRow{}).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list consortiums: %w", err)
	}
	return names, nil
}

// Remove deletes a named definition.
func (s *ConfigStore) Remove(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&savedConfigRow{})
	if res.Error != nil {
		return fmt.Errorf("remove consortium %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	s.logger.Info("consortium removed", zap.String("name", name))
	return nil
}
