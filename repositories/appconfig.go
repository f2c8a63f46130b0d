//go:generate go run go.uber.org/mock/mockgen -source=appconfig.go -destination=../mocks/mock_appconfig_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IAppConfigRepository holds runtime-persisted settings that must survive
// restarts and be shared by all processes: the token entropy ratchet and the
// signaling ticket secrets.
type IAppConfigRepository interface {
	// Get returns "" when the key was never set.
	Get(key string) (string, error)
	GetInt(key string, fallback int) (int, error)
	Set(key, value string) error
	SetInt(key string, value int) error
}

type appConfigRecord struct {
	Key   string `gorm:"primaryKey;column:config_key;size:128"`
	Value string `gorm:"column:config_value;size:1024"`
}

func (appConfigRecord) TableName() string { return "talk_app_config" }

type AppConfigRepository struct {
	db *gorm.DB
}

func NewAppConfigRepository(db *gorm.DB) IAppConfigRepository {
	return &AppConfigRepository{db: db}
}

func (r *AppConfigRepository) Get(key string) (string, error) {
	var record appConfigRecord
	err := r.db.First(&record, "config_key = ?", key).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("config get %s: %w", key, err)
	}
	return record.Value, nil
}

func (r *AppConfigRepository) GetInt(key string, fallback int) (int, error) {
	value, err := r.Get(key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}

func (r *AppConfigRepository) Set(key, value string) error {
	record := appConfigRecord{Key: key, Value: value}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("config set %s: %w", key, err)
	}
	return nil
}

func (r *AppConfigRepository) SetInt(key string, value int) error {
	return r.Set(key, strconv.Itoa(value))
}
