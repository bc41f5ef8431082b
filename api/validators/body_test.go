package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/types"
)

type line struct {
	Name     string `json:"name" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

type payload struct {
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
	Items    []line `json:"items" validate:"required,min=1,dive"`
}

func newRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func issuesOf(t *testing.T, err error) []types.ValidationIssue {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	issues, ok := typed.Details().([]types.ValidationIssue)
	if !ok {
		t.Fatalf("expected issue list, got %T", typed.Details())
	}
	return issues
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest payload
	if err := DecodeJSONBody(newRequest(`{"currency":"eur","items":[{"name":"Menu Tacos","quantity":1}]}`), &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Currency != "eur" || len(dest.Items) != 1 {
		t.Fatalf("unexpected payload: %+v", dest)
	}
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	var dest payload
	err := DecodeJSONBody(newRequest(`{"currency":"euro","items":[{"name":"","quantity":0}]}`), &dest)

	issues := issuesOf(t, err)
	paths := map[string]string{}
	for _, issue := range issues {
		paths[issue.Path] = issue.Code
	}
	want := map[string]string{
		"currency":          "len",
		"items[0].name":     "required",
		"items[0].quantity": "gt",
	}
	for path, code := range want {
		if paths[path] != code {
			t.Fatalf("expected %s=%s in %+v", path, code, issues)
		}
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var dest payload
	err := DecodeJSONBody(newRequest(`{"items":[{"name":"a","quantity":1}],"coupon":"X"}`), &dest)
	issues := issuesOf(t, err)
	if issues[0].Code != "invalid_json" {
		t.Fatalf("unexpected issue: %+v", issues[0])
	}
}

func TestDecodeJSONBodyRequiresBody(t *testing.T) {
	var dest payload
	issues := issuesOf(t, DecodeJSONBody(newRequest(""), &dest))
	if issues[0].Path != "body" || issues[0].Code != "required" {
		t.Fatalf("unexpected issue: %+v", issues[0])
	}
}

func TestDecodeOptionalJSONBodyAllowsEmptyBody(t *testing.T) {
	var dest struct {
		Reason string `json:"reason,omitempty" validate:"omitempty,max=5"`
	}
	if err := DecodeOptionalJSONBody(newRequest("  "), &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := DecodeOptionalJSONBody(newRequest(`{"reason":"too long reason"}`), &dest)
	if issues := issuesOf(t, err); issues[0].Path != "reason" {
		t.Fatalf("unexpected issue: %+v", issues[0])
	}
}
