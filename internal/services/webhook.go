package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	"fincontrol/internal/kiwify"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// Webhook failure stages, reported back to the provider.
const (
	StageAuth       = "auth"
	StageValidation = "validation"
	StageInsert     = "insert"
	StageException  = "exception"
)

// WebhookError tells at which stage an ingestion failed.
type WebhookError struct {
	Stage string
	Err   error
}

func (e *WebhookError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *WebhookError) Unwrap() error { return e.Err }

func stageError(stage string, err error) *WebhookError {
	return &WebhookError{Stage: stage, Err: err}
}

// WebhookConfig holds the ingestion settings. SkipSignature must only be
// set when dev tools are enabled.
type WebhookConfig struct {
	Secret        string
	UserID        string
	SkipSignature bool
	Location      *time.Location
}

// WebhookResult describes a stored sale.
type WebhookResult struct {
	UserID   string
	SaleID   string
	OfferID  string
	OrderID  string
	Status   core.SaleStatus
	Inserted bool
}

// WebhookService ingests signed Kiwify order notifications.
type WebhookService struct {
	repo       *storage.SQLiteRepository
	publisher  EventPublisher
	cfg        WebhookConfig
	now        func() time.Time
	logger     *applog.Logger
	structured *applog.StructuredLogger
}

// NewWebhookService creates the service. publisher may be nil.
func NewWebhookService(repo *storage.SQLiteRepository, publisher EventPublisher, cfg WebhookConfig, logger *applog.Logger) *WebhookService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	l := logger.WithComponent(applog.ComponentWebhook)
	return &WebhookService{
		repo:       repo,
		publisher:  publisher,
		cfg:        cfg,
		now:        time.Now,
		logger:     l,
		structured: applog.NewStructuredLogger(l),
	}
}

// Ingest verifies, decodes and upserts one delivery. Every failure is a
// *WebhookError; replaying the same order updates the stored sale.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, signature string) (res WebhookResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Webhook ingestion panicked", "panic", r)
			err = stageError(StageException, fmt.Errorf("panic: %v", r))
		}
	}()

	if s.cfg.SkipSignature {
		s.logger.WarnContext(ctx, "Webhook signature check skipped")
	} else if err := kiwify.VerifySignature(body, signature, s.cfg.Secret); err != nil {
		return res, stageError(StageAuth, err)
	}

	order, err := kiwify.Parse(body, s.cfg.Location, s.now())
	if err != nil {
		return res, stageError(StageValidation, err)
	}

	if s.cfg.UserID == "" {
		return res, stageError(StageException, errors.New("no webhook user configured"))
	}
	if _, err := s.repo.GetUser(ctx, s.cfg.UserID); err != nil {
		return res, stageError(StageException, fmt.Errorf("webhook user: %w", err))
	}
	userID := s.cfg.UserID

	offer, err := s.resolveOffer(ctx, userID, order)
	if err != nil {
		return res, stageError(StageInsert, err)
	}

	sale := core.Sale{
		OfferID:       offer.ID,
		Source:        core.SourceKiwify,
		OrderID:       order.OrderID,
		Status:        order.Status,
		Amount:        order.Amount,
		CustomerEmail: order.CustomerEmail,
		OccurredAt:    order.OccurredAt,
	}
	if err := sale.Validate(); err != nil {
		return res, stageError(StageValidation, err)
	}

	stored, inserted, err := s.repo.UpsertSale(ctx, userID, sale)
	if err != nil {
		return res, stageError(StageInsert, err)
	}

	publish(ctx, s.publisher, s.logger, amqp.NewSaleRecorded(userID, salePayload(stored, offer)))
	s.structured.LogSaleRecorded(ctx, userID, offer.ID, stored.OrderID, string(stored.Status),
		stored.Amount.Cents, inserted)

	return WebhookResult{
		UserID:   userID,
		SaleID:   stored.ID,
		OfferID:  offer.ID,
		OrderID:  stored.OrderID,
		Status:   stored.Status,
		Inserted: inserted,
	}, nil
}

// resolveOffer finds the order's offer by product id, then by name, and
// creates it when neither matches. A name match learns the product id.
func (s *WebhookService) resolveOffer(ctx context.Context, userID string, order *kiwify.Order) (core.Offer, error) {
	if order.ProductID != "" {
		o, err := s.repo.FindOfferByExternalID(ctx, userID, order.ProductID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return core.Offer{}, fmt.Errorf("find offer by product id: %w", err)
		}
	}

	if order.ProductName != "" {
		o, err := s.repo.FindOfferByName(ctx, userID, order.ProductName)
		switch {
		case err == nil:
			if o.ExternalID == "" && order.ProductID != "" {
				o.ExternalID = order.ProductID
				if err := s.repo.UpdateOffer(ctx, userID, o); err != nil {
					return core.Offer{}, fmt.Errorf("link offer to product: %w", err)
				}
			}
			return o, nil
		case !errors.Is(err, storage.ErrNotFound):
			return core.Offer{}, fmt.Errorf("find offer by name: %w", err)
		}
	}

	name := order.ProductName
	if name == "" {
		name = "Produto " + order.ProductID
	}
	o, err := s.repo.CreateOffer(ctx, userID, core.Offer{
		Name:       strings.TrimSpace(name),
		ExternalID: order.ProductID,
		Price:      order.Amount,
		Status:     core.OfferActive,
	})
	if err != nil {
		return core.Offer{}, fmt.Errorf("create offer: %w", err)
	}
	s.logger.InfoContext(ctx, "Offer created from webhook",
		applog.FieldUserID, userID,
		applog.FieldOfferID, o.ID,
		"product_id", order.ProductID)
	return o, nil
}
