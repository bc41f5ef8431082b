package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	stripewebhook "github.com/angelmondragon/misterfood-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	stripeclient "github.com/angelmondragon/misterfood-backend/pkg/stripe"
)

const maxWebhookBytes = 1 << 20

type StripeWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*stripewebhook.Result, error)
}

// StripeWebhook verifies and reconciles payment events. Duplicates are
// acknowledged like first deliveries.
func StripeWebhook(svc StripeWebhookService, logg *logger.Logger) http.HandlerFunc {
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

		sigHeader := r.Header.Get(stripeclient.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil && result != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":   result.EventID,
				"event_type": result.Type,
				"duplicate":  result.Duplicate,
			}), "stripe.webhook.acknowledged")
		}
		responses.WriteAck(w)
	}
}

func readPayload(r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if len(payload) > maxWebhookBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body too large")
	}
	return payload, nil
}
