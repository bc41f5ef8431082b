package errors

import (
	"fmt"
	"testing"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"pgx", &pgconn.PgError{Code: "23505", ConstraintName: "orders_idempotency_key_key", TableName: "orders"}},
		{"pgconn v1", &pgconnv1.PgError{Code: "23505", ConstraintName: "orders_idempotency_key_key", TableName: "orders"}},
		{"lib/pq", &pq.Error{Code: "23505", Constraint: "orders_idempotency_key_key", Table: "orders"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", tc.err), "create order")

			d := Dump(err)
			if d.Code != CodeConflict || d.HTTPStatus != 409 {
				t.Fatalf("unexpected code/status: %s %d", d.Code, d.HTTPStatus)
			}
			if d.Postgres == nil {
				t.Fatal("expected postgres details")
			}
			if d.Postgres.Code != "23505" || d.Postgres.Constraint != "orders_idempotency_key_key" || d.Postgres.Table != "orders" {
				t.Fatalf("unexpected pg fields: %+v", d.Postgres)
			}
			if len(d.Chain) < 3 {
				t.Fatalf("expected full chain, got %v", d.Chain)
			}
			if got := d.Fields()["pg_constraint"]; got != "orders_idempotency_key_key" {
				t.Fatalf("pg_constraint field = %v", got)
			}
		})
	}
}

func TestDumpMarksRetryableCodes(t *testing.T) {
	if d := Dump(New(CodeGateway, "courier down")); !d.Retryable {
		t.Fatalf("gateway errors should be retryable")
	}
	if d := Dump(New(CodeValidation, "bad")); d.Retryable {
		t.Fatalf("validation errors are not retryable")
	}
	if d := Dump(nil); d.TopMessage != "" {
		t.Fatalf("nil error should dump empty")
	}
}

func TestDumpUntypedErrorIsInternal(t *testing.T) {
	d := Dump(fmt.Errorf("boom"))
	if d.Code != CodeInternal || d.HTTPStatus != 500 || d.Postgres != nil {
		t.Fatalf("unexpected dump: %+v", d)
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatal("pg fields should be absent")
	}
}

func TestDumpCarriesGatewayDetails(t *testing.T) {
	err := New(CodeGateway, "delivery create").WithDetails(map[string]any{"provider": "uber_direct", "status": 422})
	fields := Dump(err).Fields()
	details, ok := fields["error_details"].(map[string]any)
	if !ok || details["status"] != 422 {
		t.Fatalf("expected gateway details in fields, got %v", fields["error_details"])
	}
}
