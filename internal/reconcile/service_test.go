package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrmint/qrmint-backend/internal/checkout"
	"github.com/qrmint/qrmint-backend/internal/pricing"
	"github.com/qrmint/qrmint-backend/internal/providers"
	"github.com/qrmint/qrmint-backend/internal/settings"
	"github.com/qrmint/qrmint-backend/internal/subscriptions"
	"github.com/qrmint/qrmint-backend/internal/users"
	"github.com/qrmint/qrmint-backend/pkg/config"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

type memTransactions struct {
	mu   sync.Mutex
	rows map[string]*models.Transaction
}

func newMemTransactions() *memTransactions {
	return &memTransactions{rows: map[string]*models.Transaction{}}
}

func (m *memTransactions) WithTx(tx *gorm.DB) checkout.Repository { return m }

func (m *memTransactions) Create(ctx context.Context, txn *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[txn.Reference]; exists {
		return gorm.ErrDuplicatedKey
	}
	clone := *txn
	m.rows[txn.Reference] = &clone
	return nil
}

func (m *memTransactions) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[reference]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (m *memTransactions) FindByGatewayRef(ctx context.Context, provider enums.Provider, gatewayRef string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Gateway == provider && row.GatewayRef != nil && *row.GatewayRef == gatewayRef {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memTransactions) SetSessionResult(ctx context.Context, reference, checkoutURL, gatewayRef string, metadata json.RawMessage) error {
	return nil
}

func (m *memTransactions) Complete(ctx context.Context, reference, gatewayRef string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[reference]
	if !ok || row.Status == enums.TransactionStatusCompleted {
		return false, nil
	}
	row.Status = enums.TransactionStatusCompleted
	row.PaidAt = &paidAt
	if gatewayRef != "" {
		row.GatewayRef = &gatewayRef
	}
	return true, nil
}

func (m *memTransactions) MarkFailed(ctx context.Context, reference string) error { return nil }

func (m *memTransactions) completedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.Status == enums.TransactionStatusCompleted {
			count++
		}
	}
	return count
}

type memSubscriptions struct {
	mu      sync.Mutex
	byUser  map[uuid.UUID]*models.Subscription
	upserts int
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{byUser: map[uuid.UUID]*models.Subscription{}}
}

func (m *memSubscriptions) WithTx(tx *gorm.DB) subscriptions.Repository { return m }

func (m *memSubscriptions) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (m *memSubscriptions) Upsert(ctx context.Context, subscription *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	clone := *subscription
	m.byUser[subscription.UserID] = &clone
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	plans map[uuid.UUID]enums.PlanTier
}

func newMemUsers() *memUsers {
	return &memUsers{plans: map[uuid.UUID]enums.PlanTier{}}
}

func (m *memUsers) WithTx(tx *gorm.DB) users.Repository { return m }

func (m *memUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (m *memUsers) UpdatePlan(ctx context.Context, id uuid.UUID, plan enums.PlanTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[id] = plan
	return nil
}

func (m *memUsers) GatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider) (string, error) {
	return "", nil
}

func (m *memUsers) SetGatewayCustomerID(ctx context.Context, id uuid.UUID, provider enums.Provider, customerID string) error {
	return nil
}

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type verifyAdapter struct {
	verified *providers.VerifiedTransaction
	err      error
	calls    int
}

func (a *verifyAdapter) CreateSession(ctx context.Context, creds *settings.Credentials, params providers.SessionParams) (*providers.SessionResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (a *verifyAdapter) VerifyTransaction(ctx context.Context, creds *settings.Credentials, gatewayRef string) (*providers.VerifiedTransaction, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.verified, nil
}

type verifyRegistry struct {
	adapter *verifyAdapter
}

func (r *verifyRegistry) ForProvider(provider enums.Provider) (providers.Adapter, error) {
	return r.adapter, nil
}

type reconcileCreds struct{}

func (reconcileCreds) Credentials(ctx context.Context, provider enums.Provider) (*settings.Credentials, error) {
	return &settings.Credentials{
		Provider: provider,
		Active:   true,
		Fields:   map[string]string{"secret_key": "sk_test_abc"},
	}, nil
}

type emptySettingsRepo struct{}

func (r *emptySettingsRepo) WithTx(tx *gorm.DB) settings.Repository { return r }
func (r *emptySettingsRepo) FindByProvider(ctx context.Context, provider enums.Provider) (*models.PaymentSetting, error) {
	return nil, nil
}
func (r *emptySettingsRepo) Upsert(ctx context.Context, setting *models.PaymentSetting) error {
	return nil
}
func (r *emptySettingsRepo) FindPriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error) {
	return nil, nil
}
func (r *emptySettingsRepo) UpsertPriceOverride(ctx context.Context, override *models.PriceOverride) error {
	return nil
}

type fixture struct {
	svc           *Service
	transactions  *memTransactions
	subscriptions *memSubscriptions
	users         *memUsers
	adapter       *verifyAdapter
}

func newFixture(t *testing.T, verified *providers.VerifiedTransaction) *fixture {
	t.Helper()

	billing := config.BillingConfig{
		BaseCurrency:       "USD",
		TrialDays:          14,
		TrialPriceFraction: "0.1",
		YearlyMultiplier:   10,
	}
	pricingSvc, err := pricing.NewService(pricing.ServiceParams{
		Repo:    &emptySettingsRepo{},
		Billing: billing,
	})
	require.NoError(t, err)

	fx := &fixture{
		transactions:  newMemTransactions(),
		subscriptions: newMemSubscriptions(),
		users:         newMemUsers(),
		adapter:       &verifyAdapter{verified: verified},
	}
	fx.svc, err = NewService(ServiceParams{
		Transactions:  fx.transactions,
		Subscriptions: fx.subscriptions,
		Users:         fx.users,
		Pricing:       pricingSvc,
		Adapters:      &verifyRegistry{adapter: fx.adapter},
		Credentials:   reconcileCreds{},
		Tx:            inlineTx{},
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Billing:       billing,
	})
	require.NoError(t, err)
	return fx
}

func verifiedCharge(userID uuid.UUID, reference string) *providers.VerifiedTransaction {
	return &providers.VerifiedTransaction{
		Provider:   enums.ProviderPaystack,
		GatewayRef: "gw_1",
		Succeeded:  true,
		Amount:     decimal.NewFromInt(15000),
		Currency:   "NGN",
		Metadata: providers.Metadata{
			UserID:    userID.String(),
			Plan:      "pro",
			Interval:  "monthly",
			Email:     "payer@example.com",
			Currency:  "NGN",
			Reference: reference,
		},
	}
}

func seedPending(fx *fixture, userID uuid.UUID, reference string) {
	fx.transactions.rows[reference] = &models.Transaction{
		Reference: reference,
		UserID:    &userID,
		Email:     "payer@example.com",
		Amount:    decimal.NewFromInt(15000),
		Currency:  "NGN",
		Status:    enums.TransactionStatusPending,
		Gateway:   enums.ProviderPaystack,
		Plan:      enums.PlanTierPro,
		Interval:  enums.BillingIntervalMonthly,
	}
}

func TestReconcileConvergesAcrossRepeats(t *testing.T) {
	userID := uuid.New()
	fx := newFixture(t, verifiedCharge(userID, "qr_ref1"))
	seedPending(fx, userID, "qr_ref1")

	var applied int
	var firstEnd time.Time
	for i := 0; i < 3; i++ {
		outcome, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
		require.NoError(t, err)
		if outcome.Applied {
			applied++
			sub, err := fx.subscriptions.FindByUserID(context.Background(), userID)
			require.NoError(t, err)
			firstEnd = sub.CurrentPeriodEnd
		}
		assert.Equal(t, "qr_ref1", outcome.Reference)
		assert.Equal(t, enums.PlanTierPro, outcome.Plan)
	}

	assert.Equal(t, 1, applied, "exactly one run grants value")
	assert.Equal(t, 1, fx.transactions.completedCount())
	assert.Equal(t, 1, fx.subscriptions.upserts, "no double period extension")

	sub, err := fx.subscriptions.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, firstEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, enums.PlanTierPro, fx.users.plans[userID])
}

func TestReconcileMalformedUserIDGrantsNothing(t *testing.T) {
	userID := uuid.New()
	verified := verifiedCharge(userID, "qr_ref2")
	verified.Metadata.UserID = "not-a-uuid"
	fx := newFixture(t, verified)
	seedPending(fx, userID, "qr_ref2")

	_, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	assert.Equal(t, 0, fx.transactions.completedCount())
	assert.Equal(t, 0, fx.subscriptions.upserts)
}

func TestReconcileRejectsUnsuccessfulCharge(t *testing.T) {
	userID := uuid.New()
	verified := verifiedCharge(userID, "qr_ref3")
	verified.Succeeded = false
	fx := newFixture(t, verified)
	seedPending(fx, userID, "qr_ref3")

	_, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.Error(t, err)
	assert.Equal(t, 0, fx.transactions.completedCount())
}

func TestReconcileAmountMismatchAborts(t *testing.T) {
	userID := uuid.New()
	verified := verifiedCharge(userID, "qr_ref4")
	verified.Amount = decimal.NewFromInt(100)
	fx := newFixture(t, verified)
	seedPending(fx, userID, "qr_ref4")

	_, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	assert.Equal(t, 0, fx.subscriptions.upserts)
}

func TestReconcileAmountWithinToleranceApplies(t *testing.T) {
	userID := uuid.New()
	verified := verifiedCharge(userID, "qr_ref5")
	verified.Amount = decimal.RequireFromString("15000.04")
	fx := newFixture(t, verified)
	seedPending(fx, userID, "qr_ref5")

	outcome, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
}

func TestReconcileCallerMismatchForbidden(t *testing.T) {
	userID := uuid.New()
	fx := newFixture(t, verifiedCharge(userID, "qr_ref6"))
	seedPending(fx, userID, "qr_ref6")

	other := uuid.New()
	_, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", &other)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
	assert.Equal(t, 0, fx.transactions.completedCount())
}

func TestReconcileTrialIntervalTrialing(t *testing.T) {
	userID := uuid.New()
	verified := verifiedCharge(userID, "qr_ref7")
	verified.Metadata.Interval = "trial"
	verified.Amount = decimal.NewFromInt(1500)
	fx := newFixture(t, verified)
	seedPending(fx, userID, "qr_ref7")
	fx.transactions.rows["qr_ref7"].Interval = enums.BillingIntervalTrial

	outcome, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, enums.SubscriptionStatusTrialing, outcome.Status)

	sub, err := fx.subscriptions.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.CurrentPeriodStart)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 0, 14), sub.CurrentPeriodEnd)
}

func TestReconcileCreatesMissingTransactionRow(t *testing.T) {
	userID := uuid.New()
	fx := newFixture(t, verifiedCharge(userID, "qr_ref8"))

	outcome, err := fx.svc.Reconcile(context.Background(), enums.ProviderPaystack, "gw_1", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	txn, err := fx.transactions.FindByReference(context.Background(), "qr_ref8")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
}
