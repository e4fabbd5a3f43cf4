package repository

import (
	"context"
	"errors"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"

	"gorm.io/gorm"
)

// GormTenantSettingsRepository implements the TenantSettingsRepository interface
type GormTenantSettingsRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormTenantSettingsRepository creates a new GORM tenant settings repository
func NewGormTenantSettingsRepository(db *gorm.DB, logger logger.Logger) repository.TenantSettingsRepository {
	return &GormTenantSettingsRepository{
		db:     db,
		logger: logger,
	}
}

// TenantSettingsRow GORM model for database mapping
type TenantSettingsRow struct {
	TenantID         string  `gorm:"column:tenant_id;primaryKey"`
	QuietHoursStart  string  `gorm:"column:quiet_hours_start"`
	QuietHoursEnd    string  `gorm:"column:quiet_hours_end"`
	MaxRetries       int     `gorm:"column:max_retries"`
	RetryBaseSeconds int     `gorm:"column:retry_base_seconds"`
	RetryFactor      float64 `gorm:"column:retry_factor"`
	RetryCapSeconds  int     `gorm:"column:retry_cap_seconds"`
	HourlySendCap    int     `gorm:"column:hourly_send_cap"`
	DailySendCap     int     `gorm:"column:daily_send_cap"`
	RemindersEnabled bool    `gorm:"column:reminders_enabled"`
	BoardingEnabled  bool    `gorm:"column:boarding_enabled"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides the default table name
func (TenantSettingsRow) TableName() string {
	return "tenant_settings"
}

// GetSettings finds settings for a tenant. Missing or malformed rows fall
// back to the hardcoded defaults; a config problem is never fatal to a tick.
func (r *GormTenantSettingsRepository) GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error) {
	var row TenantSettingsRow
	result := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&row)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return entity.DefaultTenantSettings(tenantID), nil
		}
		return nil, result.Error
	}

	settings := &entity.TenantSettings{
		TenantID:         row.TenantID,
		QuietHoursStart:  row.QuietHoursStart,
		QuietHoursEnd:    row.QuietHoursEnd,
		MaxRetries:       row.MaxRetries,
		RetryBase:        time.Duration(row.RetryBaseSeconds) * time.Second,
		RetryFactor:      row.RetryFactor,
		RetryCap:         time.Duration(row.RetryCapSeconds) * time.Second,
		HourlySendCap:    row.HourlySendCap,
		DailySendCap:     row.DailySendCap,
		RemindersEnabled: row.RemindersEnabled,
		BoardingEnabled:  row.BoardingEnabled,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}

	if err := validateSettings(settings); err != nil {
		r.logger.Warn("Malformed tenant settings, using defaults", "tenantID", tenantID, "error", err)
		return entity.DefaultTenantSettings(tenantID), nil
	}

	return settings, nil
}

func validateSettings(s *entity.TenantSettings) error {
	if _, err := time.Parse("15:04", s.QuietHoursStart); err != nil {
		return errors.New("invalid quiet hours start")
	}
	if _, err := time.Parse("15:04", s.QuietHoursEnd); err != nil {
		return errors.New("invalid quiet hours end")
	}
	if s.MaxRetries <= 0 {
		return errors.New("max retries must be positive")
	}
	if s.RetryBase <= 0 || s.RetryFactor < 1 || s.RetryCap < s.RetryBase {
		return errors.New("invalid retry policy")
	}
	if s.HourlySendCap <= 0 || s.DailySendCap <= 0 {
		return errors.New("send caps must be positive")
	}
	return nil
}
