package storage

import (
	"context"
	"fmt"

	"fincontrol/internal/core"
)

// UpsertBudget creates the budget for (user, category, month) or replaces its amount.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error) {
	b.UserID = userID
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO budgets (id, user_id, category_id, month, amount_cents) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, category_id, month) DO UPDATE SET amount_cents = excluded.amount_cents
		 RETURNING id`,
		newID(), userID, b.CategoryID, b.Month.String(), b.Amount.Cents).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", classify(err))
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string, month core.Month) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, month, amount_cents FROM budgets
		 WHERE user_id = ? AND month = ? ORDER BY category_id`, userID, month.String())
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	budgets := []core.Budget{}
	for rows.Next() {
		var (
			b     core.Budget
			month string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &month, &b.Amount.Cents); err != nil {
			return nil, err
		}
		b.Month, _ = core.ParseMonth(month)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return requireAffected(res)
}
