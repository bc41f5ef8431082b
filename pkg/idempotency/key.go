// Package idempotency derives stable request keys so that semantically equal
// submissions collapse onto one order, payment intent or courier dispatch.
package idempotency

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Prefixes used by the orchestrators. Changing one invalidates every stored key.
const (
	PrefixCheckout       = "checkout"
	PrefixDeliveryQuote  = "uber-quote"
	PrefixDeliveryCreate = "uber-create"
	PrefixDeliveryCancel = "uber-cancel"
)

// HeaderName is the request header a client may use to pin the derived key.
const HeaderName = "Idempotency-Key"

// Derive hashes prefix and the canonical JSON form of payload with SHA-256.
// Object keys are emitted in sorted order whatever the input shape (struct or
// map), so only values and array order influence the key. Callers sort arrays
// with the helpers below first.
func Derive(prefix string, payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if prefix != "" {
		h.Write([]byte(prefix))
		h.Write([]byte{':'})
	}
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize re-encodes payload through a generic tree so map and struct
// keys come out sorted and numbers keep their literal form.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode idempotency payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode idempotency payload: %w", err)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("re-encode idempotency payload: %w", err)
	}
	return out, nil
}

// Matches reports whether a client supplied key equals the derived one.
// Comparison ignores surrounding whitespace and hex case.
func Matches(supplied, derived string) bool {
	return strings.EqualFold(strings.TrimSpace(supplied), derived)
}

// LineItem is the normalized checkout line used in key derivation.
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unitAmount"`
	Quantity   int64  `json:"quantity"`
}

// SortLineItems orders checkout lines by name, then unit amount, then quantity.
func SortLineItems(items []LineItem) []LineItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b LineItem) int {
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			cmp.Compare(a.UnitAmount, b.UnitAmount),
			cmp.Compare(a.Quantity, b.Quantity),
		)
	})
	return out
}

// ManifestItem is the normalized courier manifest line. Absent price and
// weight are encoded as null so that "missing" and "zero" differ.
type ManifestItem struct {
	Title    string   `json:"title"`
	Quantity int64    `json:"quantity"`
	Price    *int64   `json:"price"`
	Weight   *float64 `json:"weight"`
}

// SortManifestItems orders manifest lines by title, then price (missing as 0),
// then quantity.
func SortManifestItems(items []ManifestItem) []ManifestItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b ManifestItem) int {
		return cmp.Or(
			strings.Compare(a.Title, b.Title),
			cmp.Compare(deref(a.Price), deref(b.Price)),
			cmp.Compare(a.Quantity, b.Quantity),
		)
	})
	return out
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
