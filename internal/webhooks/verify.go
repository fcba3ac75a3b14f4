package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/qrmint/qrmint-backend/pkg/enums"
)

// stripeFreshnessWindow bounds how old a signed timestamp may be before the
// event is treated as a replay.
const stripeFreshnessWindow = 5 * time.Minute

// Verify checks a provider's webhook signature against the raw, unparsed
// request body. Missing header or missing secret is always a hard
// rejection.
func Verify(provider enums.Provider, signatureHeader string, rawBody []byte, secret string) bool {
	return verifyAt(provider, signatureHeader, rawBody, secret, time.Now())
}

func verifyAt(provider enums.Provider, signatureHeader string, rawBody []byte, secret string, now time.Time) bool {
	if strings.TrimSpace(signatureHeader) == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	switch provider {
	case enums.ProviderPaystack:
		return verifyPaystack(signatureHeader, rawBody, secret)
	case enums.ProviderFlutterwave:
		return verifyFlutterwave(signatureHeader, secret)
	case enums.ProviderStripe:
		return verifyStripe(signatureHeader, rawBody, secret, now)
	default:
		return false
	}
}

// verifyPaystack checks the x-paystack-signature header: hex HMAC-SHA512 of
// the raw body keyed with the account secret key.
func verifyPaystack(signature string, rawBody []byte, secret string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) == 1
}

// verifyFlutterwave checks the verif-hash header, which carries the
// configured webhook hash verbatim rather than a digest of the body.
func verifyFlutterwave(signature, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(signature)), []byte(secret)) == 1
}

// verifyStripe checks the Stripe-Signature header: comma-separated
// `t=<unix>` and `v1=<hex hmac-sha256 of "<t>.<body>">` pairs. The signed
// timestamp must fall inside the freshness window.
func verifyStripe(header string, rawBody []byte, secret string, now time.Time) bool {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	signedAt := time.Unix(unix, 0)
	if now.Sub(signedAt) > stripeFreshnessWindow || signedAt.Sub(now) > stripeFreshnessWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(candidate))) == 1 {
			return true
		}
	}
	return false
}
