package storage

import (
	"context"
	"fmt"

	"fincontrol/internal/core"
)

// SumTransactions totals the user's transactions of one kind within dr.
func (r *SQLiteRepository) SumTransactions(ctx context.Context, userID string, kind core.TransactionKind, dr DateRange) (core.Money, error) {
	from, to := dr.args()
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE user_id = ? AND kind = ? AND date BETWEEN ? AND ?`,
		userID, kind, from, to).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s transactions: %w", kind, err)
	}
	return core.Money{Cents: total}, nil
}

// ExpensesByCategory groups expense transactions within dr by category,
// largest first. Uncategorized expenses have an empty CategoryID.
func (r *SQLiteRepository) ExpensesByCategory(ctx context.Context, userID string, dr DateRange) ([]core.CategoryAmount, error) {
	from, to := dr.args()
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(t.category_id, ''), COALESCE(c.name, ''), SUM(t.amount_cents) AS total
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id
		 WHERE t.user_id = ? AND t.kind = 'expense' AND t.date BETWEEN ? AND ?
		 GROUP BY t.category_id
		 ORDER BY total DESC`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	out := []core.CategoryAmount{}
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.CategoryID, &ca.Name, &ca.Amount.Cents); err != nil {
			return nil, err
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// SaleTotals sums sales by outcome.
type SaleTotals struct {
	Revenue   core.Money
	Refunds   core.Money
	PaidCount int
}

// SumSales totals sales keyed by offer id; the "" key holds the grand
// total. Revenue is gross: refunded and chargeback orders were paid
// first, so they count in Revenue and again in Refunds.
func (r *SQLiteRepository) SumSales(ctx context.Context, userID string, f DigitalFilter) (map[string]SaleTotals, error) {
	where, args := f.where(userID, saleDate)
	rows, err := r.db.QueryContext(ctx,
		`SELECT offer_id,
		        COALESCE(SUM(CASE WHEN status IN ('paid', 'refunded', 'chargeback') THEN amount_cents END), 0),
		        COALESCE(SUM(CASE WHEN status IN ('refunded', 'chargeback') THEN amount_cents END), 0),
		        COUNT(CASE WHEN status = 'paid' THEN 1 END)
		 FROM sales WHERE `+where+` GROUP BY offer_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sum sales: %w", err)
	}
	defer rows.Close()

	out := map[string]SaleTotals{}
	var grand SaleTotals
	for rows.Next() {
		var (
			offerID string
			st      SaleTotals
		)
		if err := rows.Scan(&offerID, &st.Revenue.Cents, &st.Refunds.Cents, &st.PaidCount); err != nil {
			return nil, err
		}
		out[offerID] = st
		grand.Revenue = grand.Revenue.Add(st.Revenue)
		grand.Refunds = grand.Refunds.Add(st.Refunds)
		grand.PaidCount += st.PaidCount
	}
	out[""] = grand
	return out, rows.Err()
}

// SumSpend totals spend events keyed by offer id, "" holding the grand total.
func (r *SQLiteRepository) SumSpend(ctx context.Context, userID string, f DigitalFilter) (map[string]core.Money, error) {
	where, args := f.where(userID, "date")
	totals, err := r.sumGrouped(ctx,
		`SELECT offer_id, SUM(amount_cents) FROM spend_events WHERE `+where+` GROUP BY offer_id`, args)
	if err != nil {
		return nil, fmt.Errorf("sum spend: %w", err)
	}
	out := make(map[string]core.Money, len(totals))
	for k, v := range totals {
		out[k] = core.Money{Cents: v}
	}
	return out, nil
}

// SumMinutes totals logged work keyed by offer id, "" holding the grand
// total. Sessions without an offer only count towards the grand total.
func (r *SQLiteRepository) SumMinutes(ctx context.Context, userID string, f DigitalFilter) (map[string]int, error) {
	where, args := f.where(userID, "date")
	totals, err := r.sumGrouped(ctx,
		`SELECT COALESCE(offer_id, ''), SUM(minutes) FROM work_sessions WHERE `+where+` GROUP BY offer_id`, args)
	if err != nil {
		return nil, fmt.Errorf("sum minutes: %w", err)
	}
	out := make(map[string]int, len(totals))
	for k, v := range totals {
		out[k] = int(v)
	}
	return out, nil
}

func (r *SQLiteRepository) sumGrouped(ctx context.Context, query string, args []any) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	var grand int64
	for rows.Next() {
		var (
			key   string
			total int64
		)
		if err := rows.Scan(&key, &total); err != nil {
			return nil, err
		}
		if key != "" {
			out[key] = total
		}
		grand += total
	}
	out[""] = grand
	return out, rows.Err()
}
