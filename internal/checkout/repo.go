package checkout

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// Repository handles transaction persistence across the session lifecycle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindByGatewayRef(ctx context.Context, provider enums.Provider, gatewayRef string) (*models.Transaction, error)
	SetSessionResult(ctx context.Context, reference, checkoutURL, gatewayRef string, metadata json.RawMessage) error
	// Complete flips a transaction to completed only if it is not already
	// there. The conditional write is the idempotency gate for
	// reconciliation: of N concurrent attempts exactly one observes
	// applied=true.
	Complete(ctx context.Context, reference, gatewayRef string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, reference string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided
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

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByGatewayRef(ctx context.Context, provider enums.Provider, gatewayRef string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_ref = ?", provider, gatewayRef).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) SetSessionResult(ctx context.Context, reference, checkoutURL, gatewayRef string, metadata json.RawMessage) error {
	updates := map[string]any{
		"checkout_url": checkoutURL,
		"metadata":     metadata,
	}
	if gatewayRef != "" {
		updates["gateway_ref"] = gatewayRef
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ?", reference).
		Updates(updates).Error
}

func (r *repository) Complete(ctx context.Context, reference, gatewayRef string, paidAt time.Time) (bool, error) {
	updates := map[string]any{
		"status":  enums.TransactionStatusCompleted,
		"paid_at": paidAt,
	}
	if gatewayRef != "" {
		updates["gateway_ref"] = gatewayRef
	}
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status <> ?", reference, enums.TransactionStatusCompleted).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkFailed(ctx context.Context, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, enums.TransactionStatusPending).
		Update("status", enums.TransactionStatusFailed).Error
}
