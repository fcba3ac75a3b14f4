package webhooks

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// StripeWebhook handles stripe checkout events. The Stripe-Signature
// header carries a timestamped HMAC-SHA256 and stale deliveries are
// rejected.
func StripeWebhook(params Params) http.HandlerFunc {
	return handle(params, enums.ProviderStripe, "Stripe-Signature", "webhook_secret", parseStripeEvent)
}

func parseStripeEvent(payload []byte) (parsedEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return parsedEvent{}, err
	}
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return parsedEvent{}, nil
	}
	sessionID := strings.TrimSpace(event.Data.Object.ID)
	if sessionID == "" {
		return parsedEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event missing session id")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = sessionID
	}
	return parsedEvent{EventID: eventID, GatewayRef: sessionID, Relevant: true}, nil
}
