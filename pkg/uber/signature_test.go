package uber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_id":"evt_1","status":"delivered"}`)
	secret := "uber-secret"
	sig := Sign(body, secret)

	assert.NoError(t, VerifySignature(body, sig, secret))
	assert.NoError(t, VerifySignature(body, "sha256="+sig, secret))

	assert.ErrorIs(t, VerifySignature(body, sig, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{}`), sig, secret), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, sig[:10], secret), ErrInvalidSignature, "length mismatch")
	assert.ErrorIs(t, VerifySignature(body, "not-hex", secret), ErrInvalidSignature)
}
