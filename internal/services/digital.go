package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// DigitalService covers offers, ad spend, manual sales and work sessions.
type DigitalService struct {
	repo       *storage.SQLiteRepository
	publisher  EventPublisher
	clock      Clock
	logger     *applog.Logger
	structured *applog.StructuredLogger
}

// NewDigitalService creates the service. publisher may be nil.
func NewDigitalService(repo *storage.SQLiteRepository, publisher EventPublisher, clock Clock, logger *applog.Logger) *DigitalService {
	l := logger.WithComponent(applog.ComponentDigital)
	return &DigitalService{
		repo:       repo,
		publisher:  publisher,
		clock:      clock,
		logger:     l,
		structured: applog.NewStructuredLogger(l),
	}
}

// Offers

func (s *DigitalService) CreateOffer(ctx context.Context, userID string, o core.Offer) (core.Offer, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.ExternalID = strings.TrimSpace(o.ExternalID)
	if o.Status == "" {
		o.Status = core.OfferActive
	}
	if err := o.Validate(); err != nil {
		return core.Offer{}, fmt.Errorf("create offer: %w", err)
	}
	return s.repo.CreateOffer(ctx, userID, o)
}

func (s *DigitalService) ListOffers(ctx context.Context, userID string) ([]core.Offer, error) {
	return s.repo.ListOffers(ctx, userID)
}

func (s *DigitalService) UpdateOffer(ctx context.Context, userID string, o core.Offer) (core.Offer, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.ExternalID = strings.TrimSpace(o.ExternalID)
	if o.Status == "" {
		o.Status = core.OfferActive
	}
	if err := o.Validate(); err != nil {
		return core.Offer{}, fmt.Errorf("update offer: %w", err)
	}
	if err := s.repo.UpdateOffer(ctx, userID, o); err != nil {
		return core.Offer{}, err
	}
	return s.repo.GetOffer(ctx, userID, o.ID)
}

// DeleteOffer fails with storage.ErrConflict while sales or spend reference it.
func (s *DigitalService) DeleteOffer(ctx context.Context, userID, id string) error {
	return s.repo.DeleteOffer(ctx, userID, id)
}

// Spend events

func (s *DigitalService) CreateSpend(ctx context.Context, userID string, e core.SpendEvent) (core.SpendEvent, error) {
	e.Note = strings.TrimSpace(e.Note)
	if e.Platform == "" {
		e.Platform = core.PlatformOther
	}
	if err := e.Validate(); err != nil {
		return core.SpendEvent{}, fmt.Errorf("create spend: %w", err)
	}
	if _, err := checkOffer(ctx, s.repo, userID, e.OfferID); err != nil {
		return core.SpendEvent{}, fmt.Errorf("create spend: %w", err)
	}
	return s.repo.CreateSpendEvent(ctx, userID, e)
}

func (s *DigitalService) ListSpend(ctx context.Context, userID string, f storage.DigitalFilter) ([]core.SpendEvent, error) {
	return s.repo.ListSpendEvents(ctx, userID, f)
}

func (s *DigitalService) DeleteSpend(ctx context.Context, userID, id string) error {
	return s.repo.DeleteSpendEvent(ctx, userID, id)
}

// Sales

// CreateSale records a hand-entered sale. A blank order id gets a generated
// "manual-" id so the (user, source, order) key stays unique.
func (s *DigitalService) CreateSale(ctx context.Context, userID string, sale core.Sale) (core.Sale, error) {
	sale.Source = core.SourceManual
	sale.OrderID = strings.TrimSpace(sale.OrderID)
	if sale.OrderID == "" {
		sale.OrderID = "manual-" + uuid.NewString()
	}
	if sale.Status == "" {
		sale.Status = core.SalePaid
	}
	if sale.OccurredAt.IsZero() {
		sale.OccurredAt = s.clock.now().UTC()
	}
	sale.CustomerEmail = core.NormalizeEmail(sale.CustomerEmail)
	if err := sale.Validate(); err != nil {
		return core.Sale{}, fmt.Errorf("create sale: %w", err)
	}
	offer, err := checkOffer(ctx, s.repo, userID, sale.OfferID)
	if err != nil {
		return core.Sale{}, fmt.Errorf("create sale: %w", err)
	}

	created, err := s.repo.CreateSale(ctx, userID, sale)
	if err != nil {
		return core.Sale{}, err
	}
	publish(ctx, s.publisher, s.logger, amqp.NewSaleRecorded(userID, salePayload(created, offer)))
	s.structured.LogSaleRecorded(ctx, userID, created.OfferID, created.OrderID,
		string(created.Status), created.Amount.Cents, true)
	return created, nil
}

func (s *DigitalService) ListSales(ctx context.Context, userID string, f storage.DigitalFilter) ([]core.Sale, error) {
	return s.repo.ListSales(ctx, userID, f)
}

func (s *DigitalService) DeleteSale(ctx context.Context, userID, id string) error {
	return s.repo.DeleteSale(ctx, userID, id)
}

// Work sessions

func (s *DigitalService) CreateWorkSession(ctx context.Context, userID string, w core.WorkSession) (core.WorkSession, error) {
	w.Note = strings.TrimSpace(w.Note)
	if err := w.Validate(); err != nil {
		return core.WorkSession{}, fmt.Errorf("create work session: %w", err)
	}
	if w.OfferID != "" {
		if _, err := checkOffer(ctx, s.repo, userID, w.OfferID); err != nil {
			return core.WorkSession{}, fmt.Errorf("create work session: %w", err)
		}
	}
	return s.repo.CreateWorkSession(ctx, userID, w)
}

func (s *DigitalService) ListWorkSessions(ctx context.Context, userID string, f storage.DigitalFilter) ([]core.WorkSession, error) {
	return s.repo.ListWorkSessions(ctx, userID, f)
}

func (s *DigitalService) DeleteWorkSession(ctx context.Context, userID, id string) error {
	return s.repo.DeleteWorkSession(ctx, userID, id)
}

func salePayload(sale core.Sale, offer core.Offer) amqp.SalePayload {
	return amqp.SalePayload{
		SaleID:        sale.ID,
		OfferID:       sale.OfferID,
		OfferName:     offer.Name,
		Source:        string(sale.Source),
		OrderID:       sale.OrderID,
		Status:        string(sale.Status),
		AmountCents:   sale.Amount.Cents,
		CustomerEmail: sale.CustomerEmail,
		OccurredAt:    sale.OccurredAt,
	}
}
