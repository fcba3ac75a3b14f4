package webhooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	} `json:"data"`
}

// PaystackWebhook handles paystack charge events. The signature is an
// HMAC-SHA512 of the raw body keyed with the secret key.
func PaystackWebhook(params Params) http.HandlerFunc {
	return handle(params, enums.ProviderPaystack, "x-paystack-signature", "secret_key", parsePaystackEvent)
}

func parsePaystackEvent(payload []byte) (parsedEvent, error) {
	var event paystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return parsedEvent{}, err
	}
	if event.Event != "charge.success" {
		return parsedEvent{}, nil
	}
	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return parsedEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event missing charge reference")
	}
	eventID := reference
	if event.Data.ID != 0 {
		eventID = fmt.Sprintf("%s:%d", event.Event, event.Data.ID)
	}
	return parsedEvent{EventID: eventID, GatewayRef: reference, Relevant: true}, nil
}
