package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fincontrol/internal/cache"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

const (
	reportCacheSize = 256
	reportCacheTTL  = time.Minute
)

// OfferMetrics is one row of the per-offer breakdown.
type OfferMetrics struct {
	Offer   core.Offer
	Metrics core.DigitalMetrics
}

// DigitalReport is the campaign dashboard for a date range.
type DigitalReport struct {
	Range   storage.DateRange
	OfferID string
	Metrics core.DigitalMetrics
	Offers  []OfferMetrics
}

type DigitalDashboard struct {
	repo   *storage.SQLiteRepository
	clock  Clock
	cache  *cache.LRUCache[DigitalReport]
	logger *applog.Logger
}

func NewDigitalDashboard(repo *storage.SQLiteRepository, clock Clock, logger *applog.Logger) *DigitalDashboard {
	return &DigitalDashboard{
		repo:   repo,
		clock:  clock,
		cache:  cache.NewLRUCache[DigitalReport](reportCacheSize, reportCacheTTL),
		logger: logger.WithComponent(applog.ComponentDashboard),
	}
}

// Cleaner exposes the report cache for periodic cleanup.
func (d *DigitalDashboard) Cleaner() cache.Cleaner {
	return d.cache
}

// Invalidate drops every cached report of the user.
func (d *DigitalDashboard) Invalidate(userID string) {
	d.cache.DeletePrefix(userID + ":")
}

// Report computes the metrics for dr (the current month when zero),
// optionally narrowed to one offer.
func (d *DigitalDashboard) Report(ctx context.Context, userID string, dr storage.DateRange, offerID string) (DigitalReport, error) {
	if dr.From.IsZero() && dr.To.IsZero() {
		dr = storage.MonthRange(d.clock.ThisMonth())
	}
	if dr.From.IsZero() || dr.To.IsZero() || dr.To.Before(dr.From.Time) {
		return DigitalReport{}, fmt.Errorf("digital report: %w", core.ErrInvalidDate)
	}

	key := fmt.Sprintf("%s:digital:%s:%s:%s", userID, dr.From, dr.To, offerID)
	if r, ok := d.cache.Get(key); ok {
		return r, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dashboardTimeout)
	defer cancel()

	filter := storage.DigitalFilter{Range: dr, OfferID: offerID}
	var (
		offers  []core.Offer
		sales   map[string]storage.SaleTotals
		spend   map[string]core.Money
		minutes map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offers, err = d.repo.ListOffers(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = d.repo.SumSales(gctx, userID, filter)
		return err
	})
	g.Go(func() error {
		var err error
		spend, err = d.repo.SumSpend(gctx, userID, filter)
		return err
	})
	g.Go(func() error {
		var err error
		minutes, err = d.repo.SumMinutes(gctx, userID, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return DigitalReport{}, fmt.Errorf("digital report: %w", err)
	}

	report := DigitalReport{
		Range:   dr,
		OfferID: offerID,
		Metrics: core.ComputeDigitalMetrics(totalsFor("", sales, spend, minutes)),
		Offers:  []OfferMetrics{},
	}
	for _, o := range offers {
		if offerID != "" && o.ID != offerID {
			continue
		}
		report.Offers = append(report.Offers, OfferMetrics{
			Offer:   o,
			Metrics: core.ComputeDigitalMetrics(totalsFor(o.ID, sales, spend, minutes)),
		})
	}

	d.cache.Set(key, report)
	return report, nil
}

func totalsFor(key string, sales map[string]storage.SaleTotals, spend map[string]core.Money, minutes map[string]int) core.DigitalTotals {
	st := sales[key]
	return core.DigitalTotals{
		Revenue:   st.Revenue,
		Refunds:   st.Refunds,
		Spend:     spend[key],
		PaidCount: st.PaidCount,
		Minutes:   minutes[key],
	}
}
