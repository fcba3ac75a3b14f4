package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// Subscription persists a user's paid entitlement. One row per user; the
// latest update wins for entitlement checks.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Plan               enums.PlanTier           `gorm:"column:plan;not null"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	Gateway            enums.Provider           `gorm:"column:gateway;not null"`
	GatewayCode        *string                  `gorm:"column:gateway_code"`
	Interval           enums.BillingInterval    `gorm:"column:interval;not null;default:'monthly'"`
	CurrentPeriodStart *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null"`
	AutoRenew          bool                     `gorm:"column:auto_renew;not null;default:true"`
	CanceledAt         *time.Time               `gorm:"column:canceled_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
