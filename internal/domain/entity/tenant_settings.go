// internal/domain/entity/tenant_settings.go
package entity

import (
	"time"
)

// TenantSettings holds per-tenant delivery rules. Created with defaults on
// onboarding, updated by tenant admins, read-only to the engine.
type TenantSettings struct {
	TenantID         string
	QuietHoursStart  string // local "HH:MM"
	QuietHoursEnd    string // local "HH:MM"; first eligible minute
	MaxRetries       int
	RetryBase        time.Duration
	RetryFactor      float64
	RetryCap         time.Duration
	HourlySendCap    int
	DailySendCap     int
	RemindersEnabled bool
	BoardingEnabled  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultTenantSettings returns the hardcoded fallback used when a tenant
// has no stored override or the stored row fails validation.
func DefaultTenantSettings(tenantID string) *TenantSettings {
	return &TenantSettings{
		TenantID:         tenantID,
		QuietHoursStart:  "22:00",
		QuietHoursEnd:    "09:00",
		MaxRetries:       3,
		RetryBase:        5 * time.Second,
		RetryFactor:      2,
		RetryCap:         5 * time.Minute,
		HourlySendCap:    20,
		DailySendCap:     200,
		RemindersEnabled: true,
		BoardingEnabled:  true,
	}
}
