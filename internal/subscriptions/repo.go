package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qrmint/qrmint-backend/pkg/db/models"
)

// Repository handles subscription persistence. One row per user; upserts
// carry the latest entitlement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Upsert(ctx context.Context, subscription *models.Subscription) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) Upsert(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan", "status", "gateway", "gateway_code", "interval",
				"current_period_start", "current_period_end", "auto_renew",
				"canceled_at", "updated_at",
			}),
		}).
		Create(subscription).Error
}
