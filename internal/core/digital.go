package core

import (
	"strings"
	"time"
)

const (
	OfferActive   OfferStatus = "active"
	OfferPaused   OfferStatus = "paused"
	OfferArchived OfferStatus = "archived"

	PlatformMeta    Platform = "meta"
	PlatformGoogle  Platform = "google"
	PlatformTikTok  Platform = "tiktok"
	PlatformYouTube Platform = "youtube"
	PlatformOther   Platform = "other"

	SourceKiwify SaleSource = "kiwify"
	SourceManual SaleSource = "manual"

	SalePaid       SaleStatus = "paid"
	SalePending    SaleStatus = "pending"
	SaleRefused    SaleStatus = "refused"
	SaleRefunded   SaleStatus = "refunded"
	SaleChargeback SaleStatus = "chargeback"
)

type (
	OfferStatus string
	Platform    string
	SaleSource  string
	SaleStatus  string

	Offer struct {
		ID         string
		UserID     string
		Name       string
		ExternalID string
		Price      Money
		Status     OfferStatus
		CreatedAt  time.Time
	}

	SpendEvent struct {
		ID        string
		UserID    string
		OfferID   string
		Date      Date
		Amount    Money
		Platform  Platform
		Note      string
		CreatedAt time.Time
	}

	Sale struct {
		ID            string
		UserID        string
		OfferID       string
		Source        SaleSource
		OrderID       string
		Status        SaleStatus
		Amount        Money
		CustomerEmail string
		OccurredAt    time.Time
		CreatedAt     time.Time
	}

	WorkSession struct {
		ID        string
		UserID    string
		OfferID   string
		Date      Date
		Minutes   int
		Note      string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidStatus   = invalid("invalid status")
	ErrInvalidPlatform = invalid("invalid platform")
	ErrMissingOffer    = invalid("offer is required")
	ErrMissingOrderID  = invalid("order id is required")
	ErrInvalidMinutes  = invalid("minutes must be positive")
)

func (s OfferStatus) Valid() bool {
	return s == OfferActive || s == OfferPaused || s == OfferArchived
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformMeta, PlatformGoogle, PlatformTikTok, PlatformYouTube, PlatformOther:
		return true
	}
	return false
}

func (s SaleStatus) Valid() bool {
	switch s {
	case SalePaid, SalePending, SaleRefused, SaleRefunded, SaleChargeback:
		return true
	}
	return false
}

// Settled reports whether the payment went through at some point. Refunds
// and chargebacks are settled orders that were later paid back.
func (s SaleStatus) Settled() bool {
	return s == SalePaid || s == SaleRefunded || s == SaleChargeback
}

// NextSaleStatus is the status stored when incoming is delivered for an
// order currently in current. A late pending notice never reverts a
// settled order.
func NextSaleStatus(current, incoming SaleStatus) SaleStatus {
	if incoming == SalePending && current.Settled() {
		return current
	}
	return incoming
}

func (o Offer) Validate() error {
	if err := validateName(o.Name); err != nil {
		return err
	}
	if o.Price.Cents < 0 {
		return ErrInvalidAmount
	}
	if !o.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (e SpendEvent) Validate() error {
	if strings.TrimSpace(e.OfferID) == "" {
		return ErrMissingOffer
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Platform.Valid() {
		return ErrInvalidPlatform
	}
	return nil
}

func (s Sale) Validate() error {
	if strings.TrimSpace(s.OfferID) == "" {
		return ErrMissingOffer
	}
	if strings.TrimSpace(s.OrderID) == "" {
		return ErrMissingOrderID
	}
	if s.Source != SourceKiwify && s.Source != SourceManual {
		return invalid("invalid sale source")
	}
	if !s.Status.Valid() {
		return ErrInvalidStatus
	}
	if s.OccurredAt.IsZero() {
		return invalid("sale time is required")
	}
	return s.Amount.Validate()
}

func (w WorkSession) Validate() error {
	if err := w.Date.Validate(); err != nil {
		return err
	}
	if w.Minutes <= 0 {
		return ErrInvalidMinutes
	}
	return nil
}
