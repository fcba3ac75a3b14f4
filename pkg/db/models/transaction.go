package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// Transaction records one attempt to purchase a subscription tier. The
// reference is chosen by this service, never by a gateway, and is the join
// key between session creation, verification and reconciliation.
type Transaction struct {
	ID            uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Reference     string                  `gorm:"column:reference;not null;uniqueIndex"`
	UserID        *uuid.UUID              `gorm:"column:user_id;type:uuid;index"`
	Email         string                  `gorm:"column:email;not null"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(18,3);not null"`
	Currency      string                  `gorm:"column:currency;not null"`
	Status        enums.TransactionStatus `gorm:"column:status;not null;default:'pending';index"`
	Gateway       enums.Provider          `gorm:"column:gateway;not null"`
	PaymentMethod enums.PaymentMethod     `gorm:"column:payment_method;not null;default:'card'"`
	Plan          enums.PlanTier          `gorm:"column:plan;not null"`
	Interval      enums.BillingInterval   `gorm:"column:interval;not null;default:'monthly'"`
	CheckoutURL   *string                 `gorm:"column:checkout_url"`
	GatewayRef    *string                 `gorm:"column:gateway_ref;index"`
	Metadata      json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	PaidAt        *time.Time              `gorm:"column:paid_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
