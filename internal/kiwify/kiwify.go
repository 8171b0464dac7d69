// Package kiwify verifies and decodes order webhooks sent by the Kiwify
// payment provider.
package kiwify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Kiwify-Signature"
	// SignatureQuery is the fallback used when the header is absent.
	SignatureQuery = "signature"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrUnknownEvent     = errors.New("unknown webhook event")
)

// statusByEvent maps provider event names and order statuses to sale statuses.
var statusByEvent = map[string]core.SaleStatus{
	"order_approved":  core.SalePaid,
	"paid":            core.SalePaid,
	"approved":        core.SalePaid,
	"order_refunded":  core.SaleRefunded,
	"refunded":        core.SaleRefunded,
	"chargeback":      core.SaleChargeback,
	"waiting_payment": core.SalePending,
	"billet_created":  core.SalePending,
	"pix_created":     core.SalePending,
	"order_rejected":  core.SaleRefused,
	"refused":         core.SaleRefused,
}

// MapStatus resolves an event name or order status. Matching ignores case
// and surrounding whitespace.
func MapStatus(event string) (core.SaleStatus, error) {
	status, ok := statusByEvent[strings.ToLower(strings.TrimSpace(event))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return status, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the raw body in constant time.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(signature), "sha256="))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignatureFromRequest reads the header first, then the query parameter.
func SignatureFromRequest(r *http.Request) string {
	if sig := r.Header.Get(SignatureHeader); sig != "" {
		return sig
	}
	return r.URL.Query().Get(SignatureQuery)
}

// Order is the normalised content of a webhook delivery.
type Order struct {
	OrderID       string
	EventType     string
	Status        core.SaleStatus
	Amount        core.Money
	ProductID     string
	ProductName   string
	CustomerEmail string
	OccurredAt    time.Time
}

type payload struct {
	OrderID          string `json:"order_id"`
	OrderStatus      string `json:"order_status"`
	WebhookEventType string `json:"webhook_event_type"`
	CreatedAt        string `json:"created_at"`
	ApprovedDate     string `json:"approved_date"`
	Product          struct {
		ProductID   string `json:"product_id"`
		ProductName string `json:"product_name"`
	} `json:"Product"`
	Customer struct {
		Email string `json:"email"`
	} `json:"Customer"`
	Commissions struct {
		ChargeAmount json.RawMessage `json:"charge_amount"`
	} `json:"Commissions"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse decodes a webhook body. Zone-less timestamps are read in loc and a
// missing timestamp falls back to now.
func Parse(body []byte, loc *time.Location, now time.Time) (*Order, error) {
	var p payload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	event := p.WebhookEventType
	if strings.TrimSpace(event) == "" {
		event = p.OrderStatus
	}
	status, err := MapStatus(event)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(p.OrderID) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, core.ErrMissingOrderID)
	}
	if strings.TrimSpace(p.Product.ProductID) == "" && strings.TrimSpace(p.Product.ProductName) == "" {
		return nil, fmt.Errorf("%w: product id or name is required", ErrInvalidPayload)
	}

	cents, err := ParseAmount(p.Commissions.ChargeAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: charge_amount: %v", ErrInvalidPayload, err)
	}

	occurred := now
	for _, raw := range []string{p.ApprovedDate, p.CreatedAt} {
		if t, ok := parseTime(raw, loc); ok {
			occurred = t
			break
		}
	}

	return &Order{
		OrderID:       strings.TrimSpace(p.OrderID),
		EventType:     strings.ToLower(strings.TrimSpace(event)),
		Status:        status,
		Amount:        core.Money{Cents: cents},
		ProductID:     strings.TrimSpace(p.Product.ProductID),
		ProductName:   strings.TrimSpace(p.Product.ProductName),
		CustomerEmail: core.NormalizeEmail(p.Customer.Email),
		OccurredAt:    occurred.UTC(),
	}, nil
}

// ParseAmount reads a JSON number as integer cents and a JSON string as a
// decimal amount in currency units ("97.00", "97,00").
func ParseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, core.ErrInvalidAmount
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, core.ErrInvalidAmount
		}
		return core.ParseDecimalToCents(s)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return 0, core.ErrInvalidAmount
	}
	return d.IntPart(), nil
}

func parseTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
