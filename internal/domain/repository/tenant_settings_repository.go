package repository

import (
	"context"

	"flightwatch-service/internal/domain/entity"
)

// TenantSettingsRepository reads per-tenant delivery rules. Implementations
// fall back to entity.DefaultTenantSettings when no override exists or the
// stored row is malformed; they never return an empty settings object.
type TenantSettingsRepository interface {
	GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error)
}
