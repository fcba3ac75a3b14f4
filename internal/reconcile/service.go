package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/internal/checkout"
	"github.com/qrmint/qrmint-backend/internal/eligibility"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	"github.com/qrmint/qrmint-backend/internal/providers"
	"github.com/qrmint/qrmint-backend/internal/subscriptions"
	"github.com/qrmint/qrmint-backend/internal/users"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
	"github.com/qrmint/qrmint-backend/pkg/metrics"
)

// amountTolerance absorbs gateway-side rounding of minor units.
var amountTolerance = decimal.RequireFromString("0.05")

// TxRunner executes fn inside a database transaction. *db.Client
// satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outcome reports what a reconciliation run concluded. Applied is false
// when an earlier run already granted the charge.
type Outcome struct {
	Reference string                   `json:"reference"`
	Plan      enums.PlanTier           `json:"plan"`
	Status    enums.SubscriptionStatus `json:"status"`
	Applied   bool                     `json:"applied"`
}

// Service re-verifies transactions with the gateway and applies entitlement
// state. The same verified input always converges to the same final state,
// no matter how many times or from which path it runs.
type Service struct {
	transactions  checkout.Repository
	subscriptions subscriptions.Repository
	users         users.Repository
	pricing       *pricing.Service
	adapters      checkout.AdapterRegistry
	creds         eligibility.CredentialSource
	tx            TxRunner
	logg          *logger.Logger
	metrics       *metrics.BillingMetrics
	trialDays     int
}

// ServiceParams groups dependencies for the reconciliation service.
type ServiceParams struct {
	Transactions  checkout.Repository
	Subscriptions subscriptions.Repository
	Users         users.Repository
	Pricing       *pricing.Service
	Adapters      checkout.AdapterRegistry
	Credentials   eligibility.CredentialSource
	Tx            TxRunner
	Logger        *logger.Logger
	Metrics       *metrics.BillingMetrics
	Billing       config.BillingConfig
}

// NewService builds a reconciliation service with the required
// dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repo required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Pricing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing service required")
	}
	if params.Adapters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "adapter registry required")
	}
	if params.Credentials == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credential source required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	trialDays := params.Billing.TrialDays
	if trialDays <= 0 {
		trialDays = 14
	}
	return &Service{
		transactions:  params.Transactions,
		subscriptions: params.Subscriptions,
		users:         params.Users,
		pricing:       params.Pricing,
		adapters:      params.Adapters,
		creds:         params.Credentials,
		tx:            params.Tx,
		logg:          params.Logger,
		metrics:       params.Metrics,
		trialDays:     trialDays,
	}, nil
}

// Reconcile verifies a gateway charge and grants the entitlement it paid
// for. expectedUserID is set on the authenticated confirm path and must
// match the verified metadata; the webhook path passes nil.
//
// Every failure return is a "no value granted" outcome with no partial
// state: verification, metadata validation and the amount check all happen
// before the write transaction, and the conditional status flip inside it
// makes concurrent runs converge.
func (s *Service) Reconcile(ctx context.Context, provider enums.Provider, gatewayRef string, expectedUserID *uuid.UUID) (*Outcome, error) {
	gatewayRef = strings.TrimSpace(gatewayRef)
	if gatewayRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}
	ctx = s.logg.WithProvider(ctx, provider.String())

	creds, err := s.creds.Credentials(ctx, provider)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.ForProvider(provider)
	if err != nil {
		return nil, err
	}

	verified, err := adapter.VerifyTransaction(ctx, creds, gatewayRef)
	if err != nil {
		s.metrics.IncReconciliation("verify_error")
		return nil, err
	}
	if !verified.Succeeded {
		s.metrics.IncReconciliation("not_successful")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reports transaction not successful")
	}

	userID, err := uuid.Parse(strings.TrimSpace(verified.Metadata.UserID))
	if err != nil {
		s.metrics.IncReconciliation("bad_user_id")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verified metadata carries no valid user id")
	}
	if expectedUserID != nil && *expectedUserID != userID {
		s.metrics.IncReconciliation("user_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another user")
	}

	plan, err := enums.ParsePaidPlanTier(strings.ToLower(verified.Metadata.Plan))
	if err != nil {
		s.metrics.IncReconciliation("bad_plan")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verified metadata carries no paid plan")
	}
	interval := enums.BillingIntervalMonthly
	if raw := strings.ToLower(verified.Metadata.Interval); raw != "" {
		if parsed, err := enums.ParseBillingInterval(raw); err == nil {
			interval = parsed
		}
	}

	if err := s.checkAmount(ctx, plan, interval, verified.Currency, verified.Amount); err != nil {
		s.metrics.IncReconciliation("amount_mismatch")
		return nil, err
	}

	txn, err := s.resolveTransaction(ctx, provider, gatewayRef, verified, userID, plan, interval)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithReference(ctx, txn.Reference)

	paidAt := time.Now().UTC()
	if verified.PaidAt != nil {
		paidAt = verified.PaidAt.UTC()
	}

	outcome := &Outcome{Reference: txn.Reference, Plan: plan, Status: subscriptionStatus(interval)}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.transactions.WithTx(tx).Complete(ctx, txn.Reference, verified.GatewayRef, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
		}
		if !applied {
			// another run already granted this charge
			return nil
		}

		subscription := &models.Subscription{
			UserID:             userID,
			Plan:               plan,
			Status:             subscriptionStatus(interval),
			Gateway:            provider,
			GatewayCode:        &verified.GatewayRef,
			Interval:           interval,
			CurrentPeriodStart: &paidAt,
			CurrentPeriodEnd:   s.periodEnd(paidAt, interval),
			AutoRenew:          interval != enums.BillingIntervalTrial,
		}
		if err := s.subscriptions.WithTx(tx).Upsert(ctx, subscription); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
		}
		if err := s.users.WithTx(tx).UpdatePlan(ctx, userID, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "denormalize user plan")
		}
		outcome.Applied = true
		return nil
	})
	if err != nil {
		s.metrics.IncReconciliation("write_error")
		return nil, err
	}

	if outcome.Applied {
		s.logg.Info(ctx, "reconciliation applied")
		s.metrics.IncReconciliation("applied")
	} else {
		s.metrics.IncReconciliation("duplicate")
	}
	return outcome, nil
}

// checkAmount compares the gateway-verified amount against the price this
// service would charge for the same (plan, currency, interval).
func (s *Service) checkAmount(ctx context.Context, plan enums.PlanTier, interval enums.BillingInterval, currency string, amount decimal.Decimal) error {
	expected, err := s.pricing.Amount(ctx, plan, currency, interval)
	if err != nil {
		return err
	}
	if expected.Sub(amount).Abs().GreaterThan(amountTolerance) {
		return pkgerrors.New(pkgerrors.CodeValidation, "verified amount does not match expected price").
			WithDetails(map[string]any{
				"expected": expected.String(),
				"verified": amount.String(),
				"currency": currency,
			})
	}
	return nil
}

// resolveTransaction finds the local row for a verified charge, preferring
// the reference embedded in the session metadata. A webhook can land for a
// row this instance never persisted (e.g. a partial session failure), in
// which case the row is created from verified data.
func (s *Service) resolveTransaction(ctx context.Context, provider enums.Provider, gatewayRef string, verified *providers.VerifiedTransaction, userID uuid.UUID, plan enums.PlanTier, interval enums.BillingInterval) (*models.Transaction, error) {
	reference := strings.TrimSpace(verified.Metadata.Reference)
	if reference != "" {
		txn, err := s.transactions.FindByReference(ctx, reference)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if txn != nil {
			return txn, nil
		}
	}

	txn, err := s.transactions.FindByGatewayRef(ctx, provider, gatewayRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction by gateway ref")
	}
	if txn != nil {
		return txn, nil
	}

	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verified metadata carries no reference")
	}
	txn = &models.Transaction{
		Reference:     reference,
		UserID:        &userID,
		Email:         verified.Metadata.Email,
		Amount:        verified.Amount,
		Currency:      verified.Currency,
		Status:        enums.TransactionStatusPending,
		Gateway:       provider,
		PaymentMethod: enums.PaymentMethodCard,
		Plan:          plan,
		Interval:      interval,
	}
	if method, err := enums.ParsePaymentMethod(verified.Metadata.PaymentMethod); err == nil {
		txn.PaymentMethod = method
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		// concurrent run created it first
		existing, findErr := s.transactions.FindByReference(ctx, reference)
		if findErr != nil || existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction for verified charge")
		}
		return existing, nil
	}
	return txn, nil
}

func subscriptionStatus(interval enums.BillingInterval) enums.SubscriptionStatus {
	if interval == enums.BillingIntervalTrial {
		return enums.SubscriptionStatusTrialing
	}
	return enums.SubscriptionStatusActive
}

func (s *Service) periodEnd(start time.Time, interval enums.BillingInterval) time.Time {
	switch interval {
	case enums.BillingIntervalTrial:
		return start.AddDate(0, 0, s.trialDays)
	case enums.BillingIntervalYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}
