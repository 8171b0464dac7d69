package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventSaleRecorded    = "sale.recorded"
	EventFixedBillPosted = "fixed_bill.posted"
)

// Event is the envelope published on the fincontrol exchange. It carries
// everything a consumer needs, so the export worker never reads the database.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Sale      *SalePayload      `json:"sale,omitempty"`
	FixedBill *FixedBillPayload `json:"fixed_bill,omitempty"`
}

type SalePayload struct {
	SaleID        string    `json:"sale_id"`
	OfferID       string    `json:"offer_id"`
	OfferName     string    `json:"offer_name"`
	Source        string    `json:"source"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amount_cents"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type FixedBillPayload struct {
	BillID        string `json:"bill_id"`
	BillName      string `json:"bill_name"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Date          string `json:"date"`
}

// NewSaleRecorded builds a sale.recorded event.
func NewSaleRecorded(userID string, p SalePayload) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventSaleRecorded,
		UserID:    userID,
		Timestamp: time.Now(),
		Sale:      &p,
	}
}

// NewFixedBillPosted builds a fixed_bill.posted event.
func NewFixedBillPosted(userID string, p FixedBillPayload) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventFixedBillPosted,
		UserID:    userID,
		Timestamp: time.Now(),
		FixedBill: &p,
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and checks its payload matches its type.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventSaleRecorded:
		if e.Sale == nil {
			return nil, errors.New("sale.recorded event without sale payload")
		}
	case EventFixedBillPosted:
		if e.FixedBill == nil {
			return nil, errors.New("fixed_bill.posted event without fixed bill payload")
		}
	default:
		return nil, errors.New("unknown event type " + e.Type)
	}
	return &e, nil
}
