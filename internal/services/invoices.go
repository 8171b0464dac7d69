package services

import (
	"context"
	"fmt"

	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// CardInvoice is a card with its current and closed billing cycles.
type CardInvoice struct {
	Card          core.Card
	Cycles        core.CardCycles
	CurrentAmount core.Money
	ClosedAmount  core.Money
}

// CardLedger is the part of the repository invoices read from.
type CardLedger interface {
	ListCards(ctx context.Context, userID string, includeArchived bool) ([]core.Card, error)
	SumCardExpenses(ctx context.Context, userID, cardID string, dr storage.DateRange) (core.Money, error)
}

type InvoiceService struct {
	repo   CardLedger
	clock  Clock
	logger *applog.Logger
}

func NewInvoiceService(repo CardLedger, clock Clock, logger *applog.Logger) *InvoiceService {
	return &InvoiceService{
		repo:   repo,
		clock:  clock,
		logger: logger.WithComponent(applog.ComponentInvoices),
	}
}

// CardInvoices computes both cycles for every non-archived card. A card
// whose totals cannot be read is logged and left out.
func (s *InvoiceService) CardInvoices(ctx context.Context, userID string) ([]CardInvoice, error) {
	cards, err := s.repo.ListCards(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	today := s.clock.Today()
	invoices := make([]CardInvoice, 0, len(cards))
	for _, card := range cards {
		inv, err := s.invoice(ctx, userID, card, today)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping card invoice",
				applog.FieldUserID, userID,
				applog.FieldCardID, card.ID,
				applog.FieldError, err)
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func (s *InvoiceService) invoice(ctx context.Context, userID string, card core.Card, today core.Date) (CardInvoice, error) {
	cycles := core.ComputeCycles(card.ClosingDay, card.DueDay, today)

	current, err := s.repo.SumCardExpenses(ctx, userID, card.ID,
		storage.DateRange{From: cycles.Current.Start, To: cycles.Current.End})
	if err != nil {
		return CardInvoice{}, fmt.Errorf("current cycle: %w", err)
	}
	closed, err := s.repo.SumCardExpenses(ctx, userID, card.ID,
		storage.DateRange{From: cycles.Closed.Start, To: cycles.Closed.End})
	if err != nil {
		return CardInvoice{}, fmt.Errorf("closed cycle: %w", err)
	}

	return CardInvoice{
		Card:          card,
		Cycles:        cycles,
		CurrentAmount: current,
		ClosedAmount:  closed,
	}, nil
}
