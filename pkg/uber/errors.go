package uber

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
)

// Provider is the label used in gateway error details and metrics.
const Provider = "uber_direct"

// GatewayError is a non-2xx courier response.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	body := e.Body
	if body == "" {
		body = "unknown error"
	}
	return fmt.Sprintf("uber api %d: %s", e.Status, body)
}

// Retryable reports whether the status is worth another attempt.
func (e *GatewayError) Retryable() bool {
	return shouldRetry(e.Status)
}

// APIError maps any courier failure to a GATEWAY_ERROR; typed errors pass through.
func APIError(op string, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	details := map[string]any{"provider": Provider}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		details["status"] = gwErr.Status
		details["body"] = gwErr.Body
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op).WithDetails(details)
}

func shouldRetry(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}
