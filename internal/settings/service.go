package settings

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/qrmint/qrmint-backend/pkg/crypto"
	"github.com/qrmint/qrmint-backend/pkg/db/models"
	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

// MaskToken is what API responses show in place of any stored secret. A
// write that submits the mask keeps the stored ciphertext untouched.
const MaskToken = "********"

// fieldSpec classifies one credential field for a provider.
type fieldSpec struct {
	name     string
	secret   bool
	required bool
}

var providerFieldSpecs = map[enums.Provider][]fieldSpec{
	enums.ProviderPaystack: {
		{name: "secret_key", secret: true, required: true},
		{name: "public_key", secret: false, required: true},
	},
	enums.ProviderFlutterwave: {
		{name: "secret_key", secret: true, required: true},
		{name: "public_key", secret: false, required: true},
		{name: "webhook_hash", secret: true, required: true},
	},
	enums.ProviderStripe: {
		{name: "secret_key", secret: true, required: true},
		{name: "publishable_key", secret: false, required: true},
		{name: "webhook_secret", secret: true, required: true},
	},
}

// storedField is the on-disk shape of a single credential field. Plaintext
// fields carry Value; secret fields carry ciphertext, nonce and the index of
// the key that sealed them.
type storedField struct {
	Value  string `json:"value,omitempty"`
	Cipher string `json:"cipher,omitempty"`
	Nonce  string `json:"nonce,omitempty"`
	Key    int    `json:"key,omitempty"`
	Secret bool   `json:"secret"`
}

// Credentials is the decrypted runtime view of a provider's configuration.
// It never leaves server-internal call paths.
type Credentials struct {
	Provider         enums.Provider
	Active           bool
	Fields           map[string]string
	CountryAllowList []string
	NeedsRotation    bool
}

// Field returns a decrypted field value, empty when absent.
func (c *Credentials) Field(name string) string {
	if c == nil {
		return ""
	}
	return c.Fields[name]
}

// MaskedSetting is the admin-facing read model. Secrets are replaced with
// the mask token and are never decrypted for reads.
type MaskedSetting struct {
	Provider         enums.Provider    `json:"provider"`
	Active           bool              `json:"active"`
	Fields           map[string]string `json:"fields"`
	CountryAllowList *string           `json:"country_allow_list,omitempty"`
}

// UpsertInput captures an admin credential write.
type UpsertInput struct {
	Provider         enums.Provider
	Active           bool
	Fields           map[string]string
	CountryAllowList *string
}

// Service owns credential storage, masking and runtime decryption.
type Service struct {
	repo     Repository
	keychain *crypto.Keychain

	mu       sync.Mutex
	memoKey  map[enums.Provider]string
	memoCred map[enums.Provider]*Credentials
}

// ServiceParams groups dependencies for the settings service.
type ServiceParams struct {
	Repo     Repository
	Keychain *crypto.Keychain
}

// NewService builds a settings service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings repo required")
	}
	if params.Keychain == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "keychain required")
	}
	return &Service{
		repo:     params.Repo,
		keychain: params.Keychain,
		memoKey:  map[enums.Provider]string{},
		memoCred: map[enums.Provider]*Credentials{},
	}, nil
}

// Upsert stores a provider's credential record, encrypting secret fields.
// Submitting the mask token for a secret keeps the stored ciphertext.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) error {
	specs, ok := providerFieldSpecs[input.Provider]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown provider")
	}

	existing, err := s.repo.FindByProvider(ctx, input.Provider)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment setting")
	}
	var existingFields map[string]storedField
	if existing != nil && len(existing.Fields) > 0 {
		if err := json.Unmarshal(existing.Fields, &existingFields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored fields")
		}
	}

	stored := map[string]storedField{}
	for _, spec := range specs {
		raw := strings.TrimSpace(input.Fields[spec.name])
		if !spec.secret {
			stored[spec.name] = storedField{Value: raw}
			continue
		}
		if raw == MaskToken && existingFields != nil {
			if prior, ok := existingFields[spec.name]; ok {
				stored[spec.name] = prior
				continue
			}
		}
		if raw == "" || raw == MaskToken {
			stored[spec.name] = storedField{Secret: true}
			continue
		}
		ciphertext, nonce, err := s.keychain.Encrypt([]byte(raw))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt credential field")
		}
		stored[spec.name] = storedField{
			Cipher: base64.StdEncoding.EncodeToString(ciphertext),
			Nonce:  base64.StdEncoding.EncodeToString(nonce),
			Secret: true,
		}
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode fields")
	}

	setting := &models.PaymentSetting{
		Provider:         input.Provider,
		Active:           input.Active,
		Fields:           payload,
		CountryAllowList: input.CountryAllowList,
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment setting")
	}

	s.invalidate(input.Provider)
	return nil
}

// Masked returns the admin read model with secrets replaced by the mask.
func (s *Service) Masked(ctx context.Context, provider enums.Provider) (*MaskedSetting, error) {
	specs, ok := providerFieldSpecs[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown provider")
	}
	setting, err := s.repo.FindByProvider(ctx, provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment setting")
	}
	if setting == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment setting not found")
	}

	var stored map[string]storedField
	if err := json.Unmarshal(setting.Fields, &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored fields")
	}

	fields := map[string]string{}
	for _, spec := range specs {
		field, ok := stored[spec.name]
		if !ok {
			fields[spec.name] = ""
			continue
		}
		if spec.secret {
			if field.Cipher == "" {
				fields[spec.name] = ""
			} else {
				fields[spec.name] = MaskToken
			}
			continue
		}
		fields[spec.name] = field.Value
	}

	return &MaskedSetting{
		Provider:         provider,
		Active:           setting.Active,
		Fields:           fields,
		CountryAllowList: setting.CountryAllowList,
	}, nil
}

// Credentials resolves the decrypted runtime configuration for a provider.
// Results are memoized keyed by the stored ciphertext, so a credential
// change invalidates the cache automatically on the next read.
func (s *Service) Credentials(ctx context.Context, provider enums.Provider) (*Credentials, error) {
	specs, ok := providerFieldSpecs[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown provider")
	}
	setting, err := s.repo.FindByProvider(ctx, provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment setting")
	}
	if setting == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment setting not found")
	}

	memoKey := string(setting.Fields)
	s.mu.Lock()
	if s.memoKey[provider] == memoKey {
		if cached, ok := s.memoCred[provider]; ok {
			// hand out a snapshot; earlier callers hold the previous one
			snapshot := *cached
			snapshot.Active = setting.Active
			s.mu.Unlock()
			return &snapshot, nil
		}
	}
	s.mu.Unlock()

	var stored map[string]storedField
	if err := json.Unmarshal(setting.Fields, &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored fields")
	}

	creds := &Credentials{
		Provider:         provider,
		Active:           setting.Active,
		Fields:           map[string]string{},
		CountryAllowList: parseAllowList(setting.CountryAllowList),
	}
	for _, spec := range specs {
		field, ok := stored[spec.name]
		if !ok {
			continue
		}
		if !spec.secret {
			creds.Fields[spec.name] = field.Value
			continue
		}
		if field.Cipher == "" {
			continue
		}
		ciphertext, err := base64.StdEncoding.DecodeString(field.Cipher)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode ciphertext")
		}
		nonce, err := base64.StdEncoding.DecodeString(field.Nonce)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode nonce")
		}
		plaintext, keyIndex, err := s.keychain.Decrypt(ciphertext, nonce)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrypt credential field")
		}
		if keyIndex > 0 {
			creds.NeedsRotation = true
		}
		creds.Fields[spec.name] = string(plaintext)
	}

	s.mu.Lock()
	s.memoKey[provider] = memoKey
	s.memoCred[provider] = creds
	s.mu.Unlock()

	return creds, nil
}

// PriceOverrideInput captures an operator price or FX pin for one currency.
type PriceOverrideInput struct {
	Currency      string
	ProPrice      *decimal.Decimal
	BusinessPrice *decimal.Decimal
	FxRate        *decimal.Decimal
}

// SetPriceOverride stores operator pricing for a currency. Nil fields clear
// the corresponding pin.
func (s *Service) SetPriceOverride(ctx context.Context, input PriceOverrideInput) error {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}
	if input.ProPrice == nil && input.BusinessPrice == nil && input.FxRate == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one override value required")
	}
	override := &models.PriceOverride{
		Currency:      currency,
		ProPrice:      nullDecimal(input.ProPrice),
		BusinessPrice: nullDecimal(input.BusinessPrice),
		FxRate:        nullDecimal(input.FxRate),
	}
	if err := s.repo.UpsertPriceOverride(ctx, override); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist price override")
	}
	return nil
}

// PriceOverride returns the stored override for a currency, if any.
func (s *Service) PriceOverride(ctx context.Context, currency string) (*models.PriceOverride, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	override, err := s.repo.FindPriceOverride(ctx, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price override")
	}
	if override == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "price override not found")
	}
	return override, nil
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

// RequiredFieldsPresent reports whether every required field for the
// provider has a non-empty decrypted value.
func RequiredFieldsPresent(provider enums.Provider, creds *Credentials) (bool, string) {
	specs, ok := providerFieldSpecs[provider]
	if !ok {
		return false, "unknown provider"
	}
	for _, spec := range specs {
		if !spec.required {
			continue
		}
		if creds == nil || strings.TrimSpace(creds.Fields[spec.name]) == "" {
			return false, "missing " + spec.name
		}
	}
	return true, ""
}

func (s *Service) invalidate(provider enums.Provider) {
	s.mu.Lock()
	delete(s.memoKey, provider)
	delete(s.memoCred, provider)
	s.mu.Unlock()
}

func parseAllowList(csv *string) []string {
	if csv == nil {
		return nil
	}
	parts := strings.Split(*csv, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToUpper(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
