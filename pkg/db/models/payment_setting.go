package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// PaymentSetting holds per-gateway configuration. Secret-classified fields
// inside Fields are stored only as ciphertext; plaintext never reaches the
// database or any API response.
type PaymentSetting struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider         enums.Provider  `gorm:"column:provider;not null;uniqueIndex"`
	Active           bool            `gorm:"column:active;not null;default:false"`
	Fields           json.RawMessage `gorm:"column:fields;type:jsonb;not null"`
	CountryAllowList *string         `gorm:"column:country_allow_list"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceOverride lets operators pin local-currency prices and FX rates per
// currency, overriding the built-in defaults.
type PriceOverride struct {
	ID            uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Currency      string              `gorm:"column:currency;not null;uniqueIndex"`
	ProPrice      decimal.NullDecimal `gorm:"column:pro_price;type:numeric(18,3)"`
	BusinessPrice decimal.NullDecimal `gorm:"column:business_price;type:numeric(18,3)"`
	FxRate        decimal.NullDecimal `gorm:"column:fx_rate;type:numeric(18,6)"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
