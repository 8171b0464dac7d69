package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fincontrol/internal/cache"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// runwayMonths is how many full months before the report month feed the
// average used for runway.
const runwayMonths = 3

// FinanceReport is the personal finance dashboard for one month.
type FinanceReport struct {
	Month          core.Month
	Income         core.Money
	Expenses       core.Money
	Net            core.Money
	TotalBalance   core.Money
	FixedCommitted core.Money
	ByCategory     []core.CategoryAmount
	Budgets        []core.BudgetUsage
	Runway         *decimal.Decimal
}

type FinanceDashboard struct {
	repo   *storage.SQLiteRepository
	clock  Clock
	cache  *cache.LRUCache[FinanceReport]
	logger *applog.Logger
}

func NewFinanceDashboard(repo *storage.SQLiteRepository, clock Clock, logger *applog.Logger) *FinanceDashboard {
	return &FinanceDashboard{
		repo:   repo,
		clock:  clock,
		cache:  cache.NewLRUCache[FinanceReport](reportCacheSize, reportCacheTTL),
		logger: logger.WithComponent(applog.ComponentDashboard),
	}
}

func (d *FinanceDashboard) Cleaner() cache.Cleaner {
	return d.cache
}

func (d *FinanceDashboard) Invalidate(userID string) {
	d.cache.DeletePrefix(userID + ":")
}

// Report builds the dashboard for month (the current month when zero).
func (d *FinanceDashboard) Report(ctx context.Context, userID string, month core.Month) (FinanceReport, error) {
	if month.IsZero() {
		month = d.clock.ThisMonth()
	}
	key := fmt.Sprintf("%s:finance:%s", userID, month)
	if r, ok := d.cache.Get(key); ok {
		return r, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dashboardTimeout)
	defer cancel()

	dr := storage.MonthRange(month)
	report := FinanceReport{Month: month}
	past := make([]core.Money, runwayMonths)
	var (
		accounts   []core.AccountBalance
		budgets    []core.Budget
		categories []core.Category
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report.Income, err = d.repo.SumTransactions(gctx, userID, core.KindIncome, dr)
		return err
	})
	g.Go(func() error {
		var err error
		report.Expenses, err = d.repo.SumTransactions(gctx, userID, core.KindExpense, dr)
		return err
	})
	g.Go(func() error {
		var err error
		report.ByCategory, err = d.repo.ExpensesByCategory(gctx, userID, dr)
		return err
	})
	g.Go(func() error {
		var err error
		report.FixedCommitted, err = d.repo.SumActiveFixedBills(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = d.repo.ListAccounts(gctx, userID, false)
		return err
	})
	g.Go(func() error {
		var err error
		budgets, err = d.repo.ListBudgets(gctx, userID, month)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = d.repo.ListCategories(gctx, userID, core.CategoryExpense)
		return err
	})
	for i := range past {
		g.Go(func() error {
			var err error
			past[i], err = d.repo.SumTransactions(gctx, userID, core.KindExpense, storage.MonthRange(month.Add(-(i + 1))))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return FinanceReport{}, fmt.Errorf("finance report: %w", err)
	}

	report.Net = report.Income.Sub(report.Expenses)
	for _, a := range accounts {
		report.TotalBalance = report.TotalBalance.Add(a.Balance)
	}

	spent := make(map[string]core.Money, len(report.ByCategory))
	for _, ca := range report.ByCategory {
		spent[ca.CategoryID] = ca.Amount
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	report.Budgets = make([]core.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		report.Budgets = append(report.Budgets, core.ComputeBudgetUsage(b, names[b.CategoryID], spent[b.CategoryID]))
	}

	var pastTotal int64
	for _, m := range past {
		pastTotal += m.Cents
	}
	if pastTotal > 0 {
		report.Runway = core.Runway(report.TotalBalance, past)
	}

	d.cache.Set(key, report)
	return report, nil
}
