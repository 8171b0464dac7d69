package http

import (
	"time"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
	"fincontrol/internal/services"
	"fincontrol/internal/storage"
)

// Response bodies. Amounts are always integer cents.

type userJSON struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	OnboardedAt *time.Time `json:"onboarded_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUser(u core.User) userJSON {
	out := userJSON{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
	if !u.OnboardedAt.IsZero() {
		t := u.OnboardedAt
		out.OnboardedAt = &t
	}
	return out
}

type sessionJSON struct {
	User      userJSON  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type categoryJSON struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Kind  core.CategoryKind `json:"kind"`
	Color string            `json:"color"`
}

func toCategory(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Kind: c.Kind, Color: c.Color}
}

type accountJSON struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Kind                core.AccountKind `json:"kind"`
	InitialBalanceCents int64            `json:"initial_balance_cents"`
	BalanceCents        int64            `json:"balance_cents"`
	Archived            bool             `json:"archived"`
}

func toAccount(a core.AccountBalance) accountJSON {
	return accountJSON{
		ID:                  a.ID,
		Name:                a.Name,
		Kind:                a.Kind,
		InitialBalanceCents: a.InitialBalance.Cents,
		BalanceCents:        a.Balance.Cents,
		Archived:            a.Archived,
	}
}

type cardJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
	LimitCents int64  `json:"limit_cents"`
	Archived   bool   `json:"archived"`
}

func toCard(c core.Card) cardJSON {
	return cardJSON{
		ID:         c.ID,
		Name:       c.Name,
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
		LimitCents: c.Limit.Cents,
		Archived:   c.Archived,
	}
}

type transactionJSON struct {
	ID              string                 `json:"id"`
	Kind            core.TransactionKind   `json:"kind"`
	AmountCents     int64                  `json:"amount_cents"`
	Date            core.Date              `json:"date"`
	Description     string                 `json:"description"`
	CategoryID      string                 `json:"category_id,omitempty"`
	AccountID       string                 `json:"account_id,omitempty"`
	CardID          string                 `json:"card_id,omitempty"`
	Direction       core.TransferDirection `json:"direction,omitempty"`
	TransferGroupID string                 `json:"transfer_group_id,omitempty"`
	FixedBillID     string                 `json:"fixed_bill_id,omitempty"`
}

func toTransaction(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:              t.ID,
		Kind:            t.Kind,
		AmountCents:     t.Amount.Cents,
		Date:            t.Date,
		Description:     t.Description,
		CategoryID:      t.CategoryID,
		AccountID:       t.Destination.AccountID,
		CardID:          t.Destination.CardID,
		Direction:       t.Direction,
		TransferGroupID: t.TransferGroupID,
		FixedBillID:     t.FixedBillID,
	}
}

type budgetJSON struct {
	ID          string     `json:"id"`
	CategoryID  string     `json:"category_id"`
	Month       core.Month `json:"month"`
	AmountCents int64      `json:"amount_cents"`
}

func toBudget(b core.Budget) budgetJSON {
	return budgetJSON{ID: b.ID, CategoryID: b.CategoryID, Month: b.Month, AmountCents: b.Amount.Cents}
}

type fixedBillJSON struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	AmountCents        int64  `json:"amount_cents"`
	Day                int    `json:"day"`
	AccountID          string `json:"account_id,omitempty"`
	CardID             string `json:"card_id,omitempty"`
	CategoryID         string `json:"category_id,omitempty"`
	Active             bool   `json:"active"`
	LastProcessedMonth string `json:"last_processed_month"`
}

func toFixedBill(b core.FixedBill) fixedBillJSON {
	return fixedBillJSON{
		ID:                 b.ID,
		Name:               b.Name,
		AmountCents:        b.Amount.Cents,
		Day:                b.Day,
		AccountID:          b.Destination.AccountID,
		CardID:             b.Destination.CardID,
		CategoryID:         b.CategoryID,
		Active:             b.Active,
		LastProcessedMonth: b.LastProcessedMonth,
	}
}

type offerJSON struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ExternalID string           `json:"external_id,omitempty"`
	PriceCents int64            `json:"price_cents"`
	Status     core.OfferStatus `json:"status"`
}

func toOffer(o core.Offer) offerJSON {
	return offerJSON{ID: o.ID, Name: o.Name, ExternalID: o.ExternalID, PriceCents: o.Price.Cents, Status: o.Status}
}

type spendJSON struct {
	ID          string        `json:"id"`
	OfferID     string        `json:"offer_id"`
	Date        core.Date     `json:"date"`
	AmountCents int64         `json:"amount_cents"`
	Platform    core.Platform `json:"platform"`
	Note        string        `json:"note,omitempty"`
}

func toSpend(e core.SpendEvent) spendJSON {
	return spendJSON{ID: e.ID, OfferID: e.OfferID, Date: e.Date, AmountCents: e.Amount.Cents, Platform: e.Platform, Note: e.Note}
}

type saleJSON struct {
	ID            string          `json:"id"`
	OfferID       string          `json:"offer_id"`
	Source        core.SaleSource `json:"source"`
	OrderID       string          `json:"order_id"`
	Status        core.SaleStatus `json:"status"`
	AmountCents   int64           `json:"amount_cents"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func toSale(s core.Sale) saleJSON {
	return saleJSON{
		ID:            s.ID,
		OfferID:       s.OfferID,
		Source:        s.Source,
		OrderID:       s.OrderID,
		Status:        s.Status,
		AmountCents:   s.Amount.Cents,
		CustomerEmail: s.CustomerEmail,
		OccurredAt:    s.OccurredAt,
	}
}

type workSessionJSON struct {
	ID      string    `json:"id"`
	OfferID string    `json:"offer_id,omitempty"`
	Date    core.Date `json:"date"`
	Minutes int       `json:"minutes"`
	Note    string    `json:"note,omitempty"`
}

func toWorkSession(w core.WorkSession) workSessionJSON {
	return workSessionJSON{ID: w.ID, OfferID: w.OfferID, Date: w.Date, Minutes: w.Minutes, Note: w.Note}
}

type cycleJSON struct {
	Start core.Date `json:"start"`
	End   core.Date `json:"end"`
	Due   core.Date `json:"due"`
}

func toCycle(c core.Cycle) cycleJSON {
	return cycleJSON{Start: c.Start, End: c.End, Due: c.Due}
}

type invoiceJSON struct {
	Card               cardJSON  `json:"card"`
	CurrentCycle       cycleJSON `json:"current_cycle"`
	ClosedCycle        cycleJSON `json:"closed_cycle"`
	DaysToDue          int       `json:"days_to_due"`
	CurrentAmountCents int64     `json:"current_amount_cents"`
	ClosedAmountCents  int64     `json:"closed_amount_cents"`
}

func toInvoice(inv services.CardInvoice) invoiceJSON {
	return invoiceJSON{
		Card:               toCard(inv.Card),
		CurrentCycle:       toCycle(inv.Cycles.Current),
		ClosedCycle:        toCycle(inv.Cycles.Closed),
		DaysToDue:          inv.Cycles.DaysToDue,
		CurrentAmountCents: inv.CurrentAmount.Cents,
		ClosedAmountCents:  inv.ClosedAmount.Cents,
	}
}

type metricsJSON struct {
	RevenueCents    int64            `json:"revenue_cents"`
	RefundsCents    int64            `json:"refunds_cents"`
	NetRevenueCents int64            `json:"net_revenue_cents"`
	SpendCents      int64            `json:"spend_cents"`
	ProfitCents     int64            `json:"profit_cents"`
	PaidCount       int              `json:"paid_count"`
	Minutes         int              `json:"minutes"`
	Hours           decimal.Decimal  `json:"hours"`
	ROI             *decimal.Decimal `json:"roi"`
	ROAS            *decimal.Decimal `json:"roas"`
	CAC             *decimal.Decimal `json:"cac"`
	AvgTicket       *decimal.Decimal `json:"avg_ticket"`
	RevenuePerHour  *decimal.Decimal `json:"revenue_per_hour"`
}

func toMetrics(m core.DigitalMetrics) metricsJSON {
	return metricsJSON{
		RevenueCents:    m.Revenue.Cents,
		RefundsCents:    m.Refunds.Cents,
		NetRevenueCents: m.NetRevenue.Cents,
		SpendCents:      m.Spend.Cents,
		ProfitCents:     m.Profit.Cents,
		PaidCount:       m.PaidCount,
		Minutes:         m.Minutes,
		Hours:           m.Hours,
		ROI:             m.ROI,
		ROAS:            m.ROAS,
		CAC:             m.CAC,
		AvgTicket:       m.AvgTicket,
		RevenuePerHour:  m.RevenuePerHour,
	}
}

type offerMetricsJSON struct {
	Offer   offerJSON   `json:"offer"`
	Metrics metricsJSON `json:"metrics"`
}

type digitalReportJSON struct {
	From    core.Date          `json:"from"`
	To      core.Date          `json:"to"`
	OfferID string             `json:"offer_id,omitempty"`
	Metrics metricsJSON        `json:"metrics"`
	Offers  []offerMetricsJSON `json:"offers"`
}

func toDigitalReport(r services.DigitalReport) digitalReportJSON {
	out := digitalReportJSON{
		From:    r.Range.From,
		To:      r.Range.To,
		OfferID: r.OfferID,
		Metrics: toMetrics(r.Metrics),
		Offers:  make([]offerMetricsJSON, 0, len(r.Offers)),
	}
	for _, o := range r.Offers {
		out.Offers = append(out.Offers, offerMetricsJSON{Offer: toOffer(o.Offer), Metrics: toMetrics(o.Metrics)})
	}
	return out
}

type categoryAmountJSON struct {
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

type budgetUsageJSON struct {
	BudgetID       string          `json:"budget_id"`
	CategoryID     string          `json:"category_id"`
	CategoryName   string          `json:"category_name"`
	BudgetCents    int64           `json:"budget_cents"`
	SpentCents     int64           `json:"spent_cents"`
	RemainingCents int64           `json:"remaining_cents"`
	Percent        decimal.Decimal `json:"percent"`
	Over           bool            `json:"over"`
}

type financeReportJSON struct {
	Month               core.Month           `json:"month"`
	IncomeCents         int64                `json:"income_cents"`
	ExpensesCents       int64                `json:"expenses_cents"`
	NetCents            int64                `json:"net_cents"`
	TotalBalanceCents   int64                `json:"total_balance_cents"`
	FixedCommittedCents int64                `json:"fixed_committed_cents"`
	ByCategory          []categoryAmountJSON `json:"by_category"`
	Budgets             []budgetUsageJSON    `json:"budgets"`
	RunwayMonths        *decimal.Decimal     `json:"runway_months"`
}

func toFinanceReport(r services.FinanceReport) financeReportJSON {
	out := financeReportJSON{
		Month:               r.Month,
		IncomeCents:         r.Income.Cents,
		ExpensesCents:       r.Expenses.Cents,
		NetCents:            r.Net.Cents,
		TotalBalanceCents:   r.TotalBalance.Cents,
		FixedCommittedCents: r.FixedCommitted.Cents,
		ByCategory:          make([]categoryAmountJSON, 0, len(r.ByCategory)),
		Budgets:             make([]budgetUsageJSON, 0, len(r.Budgets)),
		RunwayMonths:        r.Runway,
	}
	for _, c := range r.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountJSON{CategoryID: c.CategoryID, Name: c.Name, AmountCents: c.Amount.Cents})
	}
	for _, b := range r.Budgets {
		out.Budgets = append(out.Budgets, budgetUsageJSON{
			BudgetID:       b.BudgetID,
			CategoryID:     b.CategoryID,
			CategoryName:   b.CategoryName,
			BudgetCents:    b.Budget.Cents,
			SpentCents:     b.Spent.Cents,
			RemainingCents: b.Remaining.Cents,
			Percent:        b.Percent,
			Over:           b.Over,
		})
	}
	return out
}

type activityJSON struct {
	Kind        string    `json:"kind"`
	ID          string    `json:"id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Date        core.Date `json:"date"`
}

func toActivity(a services.Activity) activityJSON {
	return activityJSON{Kind: a.Kind, ID: a.ID, Description: a.Description, AmountCents: a.Amount.Cents, Date: a.Date}
}

type onboardingJSON struct {
	Accounts   []accountJSON  `json:"accounts"`
	Cards      []cardJSON     `json:"cards"`
	Categories []categoryJSON `json:"categories"`
}

func toOnboarding(o storage.Onboarding) onboardingJSON {
	out := onboardingJSON{
		Accounts:   make([]accountJSON, 0, len(o.Accounts)),
		Cards:      mapSlice(o.Cards, toCard),
		Categories: mapSlice(o.Categories, toCategory),
	}
	for _, a := range o.Accounts {
		out.Accounts = append(out.Accounts, toAccount(core.AccountBalance{Account: a, Balance: a.InitialBalance}))
	}
	return out
}

// mapSlice converts every element and never returns nil.
func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
