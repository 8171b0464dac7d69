package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string
	Name       string
	Amount     Money
}

// BudgetUsage is the consumption of one monthly budget.
type BudgetUsage struct {
	BudgetID     string
	CategoryID   string
	CategoryName string
	Budget       Money
	Spent        Money
	Remaining    Money
	Percent      decimal.Decimal
	Over         bool
}

// DigitalTotals are the raw sums a digital dashboard is computed from.
type DigitalTotals struct {
	Revenue   Money
	Refunds   Money
	Spend     Money
	PaidCount int
	Minutes   int
}

// DigitalMetrics are the derived campaign ratios. Nil ratios mean the
// denominator was zero. Revenue is gross; NetRevenue drops refunds.
type DigitalMetrics struct {
	DigitalTotals
	NetRevenue     Money
	Profit         Money
	Hours          decimal.Decimal
	ROI            *decimal.Decimal
	ROAS           *decimal.Decimal
	CAC            *decimal.Decimal
	AvgTicket      *decimal.Decimal
	RevenuePerHour *decimal.Decimal
}

func ratio(num, den decimal.Decimal, places int32) *decimal.Decimal {
	if den.IsZero() {
		return nil
	}
	r := num.DivRound(den, places+4).Round(places)
	return &r
}

// ComputeDigitalMetrics applies the campaign formulas to the totals.
func ComputeDigitalMetrics(t DigitalTotals) DigitalMetrics {
	net := t.Revenue.Sub(t.Refunds)
	profit := net.Sub(t.Spend)
	revenue := net.Decimal()
	spend := t.Spend.Decimal()
	paid := decimal.NewFromInt(int64(t.PaidCount))
	hours := decimal.NewFromInt(int64(t.Minutes)).DivRound(decimal.NewFromInt(60), 2)

	m := DigitalMetrics{
		DigitalTotals: t,
		NetRevenue:    net,
		Profit:        profit,
		Hours:         hours,
		ROI:           ratio(profit.Decimal(), spend, 4),
		ROAS:          ratio(revenue, spend, 4),
		CAC:           ratio(spend, paid, 2),
		AvgTicket:     ratio(revenue, paid, 2),
	}
	if t.Minutes > 0 {
		m.RevenuePerHour = ratio(revenue.Mul(decimal.NewFromInt(60)), decimal.NewFromInt(int64(t.Minutes)), 2)
	}
	return m
}

// ComputeBudgetUsage compares spent against the budget amount.
func ComputeBudgetUsage(b Budget, categoryName string, spent Money) BudgetUsage {
	u := BudgetUsage{
		BudgetID:     b.ID,
		CategoryID:   b.CategoryID,
		CategoryName: categoryName,
		Budget:       b.Amount,
		Spent:        spent,
		Remaining:    b.Amount.Sub(spent),
		Percent:      decimal.Zero,
		Over:         spent.Cents > b.Amount.Cents,
	}
	if p := ratio(spent.Decimal().Mul(hundred), b.Amount.Decimal(), 2); p != nil {
		u.Percent = *p
	}
	return u
}

// Runway is the number of months the balance covers at the average monthly
// expense, nil when there were no expenses.
func Runway(balance Money, monthlyExpenses []Money) *decimal.Decimal {
	if len(monthlyExpenses) == 0 {
		return nil
	}
	var total int64
	for _, e := range monthlyExpenses {
		total += e.Cents
	}
	avg := decimal.New(total, -2).Div(decimal.NewFromInt(int64(len(monthlyExpenses))))
	return ratio(balance.Decimal(), avg, 2)
}
