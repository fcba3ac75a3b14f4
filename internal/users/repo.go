package users

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// Repository handles user persistence for the billing subsystem.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, plan enums.PlanTier) error
	GatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider) (string, error)
	SetGatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider, customerID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdatePlan(ctx context.Context, id uuid.UUID, plan enums.PlanTier) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("plan", plan).Error
}

func (r *repository) GatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider) (string, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil || user == nil {
		return "", err
	}
	if len(user.GatewayCustomers) == 0 {
		return "", nil
	}
	mapping := map[string]string{}
	if err := json.Unmarshal(user.GatewayCustomers, &mapping); err != nil {
		return "", err
	}
	return mapping[provider.String()], nil
}

func (r *repository) SetGatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider, customerID string) error {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return gorm.ErrRecordNotFound
	}
	mapping := map[string]string{}
	if len(user.GatewayCustomers) > 0 {
		if err := json.Unmarshal(user.GatewayCustomers, &mapping); err != nil {
			return err
		}
	}
	mapping[provider.String()] = customerID
	payload, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("gateway_customers", json.RawMessage(payload)).Error
}
