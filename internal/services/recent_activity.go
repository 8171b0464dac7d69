package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

const (
	DefaultActivityLimit = 10
	MaxActivityLimit     = 50
)

// Activity kinds.
const (
	ActivityTransaction = "transaction"
	ActivitySale        = "sale"
	ActivitySpend       = "spend"
)

// Activity is one entry of the merged recent activity feed.
type Activity struct {
	Kind        string
	ID          string
	Description string
	Amount      core.Money
	Date        core.Date
	at          time.Time
}

type RecentActivity struct {
	repo   *storage.SQLiteRepository
	clock  Clock
	logger *applog.Logger
}

func NewRecentActivity(repo *storage.SQLiteRepository, clock Clock, logger *applog.Logger) *RecentActivity {
	return &RecentActivity{
		repo:   repo,
		clock:  clock,
		logger: logger.WithComponent(applog.ComponentDashboard),
	}
}

// ClampActivityLimit applies the default and the maximum to a requested limit.
func ClampActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultActivityLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	}
	return limit
}

// List merges the latest transactions, sales and spend events newest first.
// The incoming leg of a transfer is left out so each transfer shows once.
func (a *RecentActivity) List(ctx context.Context, userID string, limit int) ([]Activity, error) {
	limit = ClampActivityLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, dashboardTimeout)
	defer cancel()

	var (
		txs    []core.Transaction
		sales  []core.Sale
		spend  []core.SpendEvent
		offers []core.Offer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		// twice the limit leaves room for skipped transfer legs
		txs, err = a.repo.ListTransactions(gctx, userID, storage.TransactionFilter{Limit: 2 * limit})
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = a.repo.ListSales(gctx, userID, storage.DigitalFilter{Limit: limit})
		return err
	})
	g.Go(func() error {
		var err error
		spend, err = a.repo.ListSpendEvents(gctx, userID, storage.DigitalFilter{Limit: limit})
		return err
	})
	g.Go(func() error {
		var err error
		offers, err = a.repo.ListOffers(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}

	names := make(map[string]string, len(offers))
	for _, o := range offers {
		names[o.ID] = o.Name
	}

	items := make([]Activity, 0, len(txs)+len(sales)+len(spend))
	for _, t := range txs {
		if t.Kind == core.KindTransfer && t.Direction == core.DirectionIn {
			continue
		}
		items = append(items, Activity{
			Kind:        ActivityTransaction,
			ID:          t.ID,
			Description: t.Description,
			Amount:      t.Amount,
			Date:        t.Date,
			at:          t.CreatedAt,
		})
	}
	loc := a.clock.loc()
	for _, s := range sales {
		items = append(items, Activity{
			Kind:        ActivitySale,
			ID:          s.ID,
			Description: strings.TrimSpace("Sale " + s.OrderID + " " + names[s.OfferID]),
			Amount:      s.Amount,
			Date:        core.DateOf(s.OccurredAt.In(loc)),
			at:          s.OccurredAt,
		})
	}
	for _, e := range spend {
		items = append(items, Activity{
			Kind:        ActivitySpend,
			ID:          e.ID,
			Description: strings.TrimSpace("Spend " + string(e.Platform) + " " + names[e.OfferID]),
			Amount:      e.Amount,
			Date:        e.Date,
			at:          e.CreatedAt,
		})
	}

	slices.SortStableFunc(items, func(x, y Activity) int {
		if c := y.Date.Compare(x.Date.Time); c != 0 {
			return c
		}
		return y.at.Compare(x.at)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
