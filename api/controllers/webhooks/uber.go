package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	uberwebhook "github.com/angelmondragon/misterfood-backend/internal/webhooks/uber"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/uber"
)

type UberWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*uberwebhook.Result, error)
}

// UberWebhook reconciles courier status callbacks. The signature header is
// optional; the service verifies it when a secret is configured.
func UberWebhook(svc UberWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := readPayload(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, uberSignature(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil && result != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":    result.EventID,
				"event_type":  result.Type,
				"delivery_id": result.DeliveryID,
				"duplicate":   result.Duplicate,
				"ignored":     result.Ignored,
			}), "uber.webhook.acknowledged")
		}
		responses.WriteAck(w)
	}
}

func uberSignature(r *http.Request) string {
	for _, name := range uber.SignatureHeaders {
		if sig := strings.TrimSpace(r.Header.Get(name)); sig != "" {
			return sig
		}
	}
	return ""
}
