package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// User carries the slice of identity state this subsystem owns: the
// denormalized plan tier and the per-gateway customer mapping. Identity
// itself (credentials, profile) lives with the external provider.
type User struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string          `gorm:"type:text;not null;uniqueIndex"`
	Plan             enums.PlanTier  `gorm:"column:plan;not null;default:'free'"`
	GatewayCustomers json.RawMessage `gorm:"column:gateway_customers;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
