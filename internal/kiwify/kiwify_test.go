package kiwify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fincontrol/internal/core"
)

const testSecret = "s3cret"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"order_id":"o1"}`)
	good := Sign(body, testSecret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   error
	}{
		{"valid", body, good, testSecret, nil},
		{"valid with sha256 prefix", body, "sha256=" + good, testSecret, nil},
		{"tampered body", []byte(`{"order_id":"o2"}`), good, testSecret, ErrInvalidSignature},
		{"wrong secret", body, good, "other", ErrInvalidSignature},
		{"not hex", body, "zz", testSecret, ErrInvalidSignature},
		{"missing", body, "", testSecret, ErrMissingSignature},
		{"no secret configured", body, good, "", ErrMissingSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.body, tt.signature, tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySignature() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignatureFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/kiwify?signature=fromquery", nil)
	if got := SignatureFromRequest(r); got != "fromquery" {
		t.Errorf("query fallback = %q", got)
	}
	r.Header.Set(SignatureHeader, "fromheader")
	if got := SignatureFromRequest(r); got != "fromheader" {
		t.Errorf("header = %q", got)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want core.SaleStatus
	}{
		{"order_approved", core.SalePaid},
		{"PAID", core.SalePaid},
		{"approved", core.SalePaid},
		{"order_refunded", core.SaleRefunded},
		{"refunded", core.SaleRefunded},
		{"chargeback", core.SaleChargeback},
		{"waiting_payment", core.SalePending},
		{"billet_created", core.SalePending},
		{"pix_created", core.SalePending},
		{"order_rejected", core.SaleRefused},
		{" refused ", core.SaleRefused},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := MapStatus(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("MapStatus(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}

	if _, err := MapStatus("subscription_renewed"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event error = %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{`9700`, 9700, false},
		{`"97.00"`, 9700, false},
		{`"97,5"`, 9750, false},
		{`"1.234,56"`, 123456, false},
		{`97.5`, 0, true},
		{`0`, 0, true},
		{`-100`, 0, true},
		{`null`, 0, true},
		{``, 0, true},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("approved order", func(t *testing.T) {
		body := []byte(`{
			"order_id": " ord-1 ",
			"order_status": "paid",
			"webhook_event_type": "order_approved",
			"approved_date": "2024-03-05 10:30",
			"Product": {"product_id": "prod-9", "product_name": "Curso X"},
			"Customer": {"email": " Buyer@Example.com "},
			"Commissions": {"charge_amount": 19700}
		}`)
		order, err := Parse(body, loc, now)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if order.OrderID != "ord-1" || order.Status != core.SalePaid || order.Amount.Cents != 19700 {
			t.Errorf("unexpected order: %+v", order)
		}
		if order.ProductID != "prod-9" || order.ProductName != "Curso X" {
			t.Errorf("product = %q/%q", order.ProductID, order.ProductName)
		}
		if order.CustomerEmail != "buyer@example.com" {
			t.Errorf("email = %q", order.CustomerEmail)
		}
		// 10:30 in São Paulo (UTC-3) is 13:30 UTC
		if want := time.Date(2024, 3, 5, 13, 30, 0, 0, time.UTC); !order.OccurredAt.Equal(want) {
			t.Errorf("OccurredAt = %v, want %v", order.OccurredAt, want)
		}
	})

	t.Run("status fallback and default time", func(t *testing.T) {
		body := []byte(`{"order_id":"o2","order_status":"refunded","Product":{"product_name":"Y"},"Commissions":{"charge_amount":"50.00"}}`)
		order, err := Parse(body, loc, now)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if order.Status != core.SaleRefunded || order.Amount.Cents != 5000 || !order.OccurredAt.Equal(now) {
			t.Errorf("unexpected order: %+v", order)
		}
	})

	failures := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"malformed json", `{`, ErrInvalidPayload},
		{"unknown event", `{"order_id":"o","webhook_event_type":"cart_abandoned","Product":{"product_id":"p"},"Commissions":{"charge_amount":1}}`, ErrUnknownEvent},
		{"missing order id", `{"order_status":"paid","Product":{"product_id":"p"},"Commissions":{"charge_amount":1}}`, ErrInvalidPayload},
		{"missing product", `{"order_id":"o","order_status":"paid","Commissions":{"charge_amount":1}}`, ErrInvalidPayload},
		{"missing amount", `{"order_id":"o","order_status":"paid","Product":{"product_id":"p"}}`, ErrInvalidPayload},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.body), loc, now); !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
