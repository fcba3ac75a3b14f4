package settings

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// Repository handles payment setting persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProvider(ctx context.Context, provider enums.Provider) (*models.PaymentSetting, error)
	Upsert(ctx context.Context, setting *models.PaymentSetting) error
	FindPriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error)
	UpsertPriceOverride(ctx context.Context, override *models.PriceOverride) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByProvider(ctx context.Context, provider enums.Provider) (*models.PaymentSetting, error) {
	var setting models.PaymentSetting
	if err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		First(&setting).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

func (r *repository) Upsert(ctx context.Context, setting *models.PaymentSetting) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"active", "fields", "country_allow_list", "updated_at",
			}),
		}).
		Create(setting).Error
}

func (r *repository) FindPriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error) {
	var override models.PriceOverride
	if err := r.db.WithContext(ctx).
		Where("currency = ?", currency).
		First(&override).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &override, nil
}

func (r *repository) UpsertPriceOverride(ctx context.Context, override *models.PriceOverride) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "currency"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"pro_price", "business_price", "fx_rate", "updated_at",
			}),
		}).
		Create(override).Error
}
