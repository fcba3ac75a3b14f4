package webhooks

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qrmint/qrmint-backend/pkg/enums"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
)

type flutterwaveEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// FlutterwaveWebhook handles flutterwave charge events. The verif-hash
// header must equal the configured webhook hash.
func FlutterwaveWebhook(params Params) http.HandlerFunc {
	return handle(params, enums.ProviderFlutterwave, "verif-hash", "webhook_hash", parseFlutterwaveEvent)
}

func parseFlutterwaveEvent(payload []byte) (parsedEvent, error) {
	var event flutterwaveEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return parsedEvent{}, err
	}
	if event.Event != "charge.completed" {
		return parsedEvent{}, nil
	}
	if event.Data.ID == 0 {
		return parsedEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "event missing transaction id")
	}
	id := fmt.Sprintf("%d", event.Data.ID)
	return parsedEvent{
		EventID:    event.Event + ":" + id,
		GatewayRef: id,
		Relevant:   true,
	}, nil
}
