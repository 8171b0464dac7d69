package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fincontrol/internal/core"
)

const fixedBillColumns = `id, user_id, name, amount_cents, day, account_id, card_id, category_id,
	active, last_processed_month, created_at`

func scanFixedBill(row interface{ Scan(...any) error }) (core.FixedBill, error) {
	var (
		b                       core.FixedBill
		account, card, category sql.NullString
		active                  int
		created                 string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount.Cents, &b.Day, &account, &card, &category,
		&active, &b.LastProcessedMonth, &created)
	if err != nil {
		return core.FixedBill{}, classify(err)
	}
	b.Destination = core.Destination{AccountID: account.String, CardID: card.String}
	b.CategoryID = category.String
	b.Active = active == 1
	b.CreatedAt = parseTime(created)
	return b, nil
}

func (r *SQLiteRepository) CreateFixedBill(ctx context.Context, userID string, b core.FixedBill) (core.FixedBill, error) {
	b.ID = newID()
	b.UserID = userID
	at := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fixed_bills (`+fixedBillColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, userID, b.Name, b.Amount.Cents, b.Day, nullString(b.Destination.AccountID),
		nullString(b.Destination.CardID), nullString(b.CategoryID), boolInt(b.Active), b.LastProcessedMonth, at)
	if err != nil {
		return core.FixedBill{}, fmt.Errorf("create fixed bill: %w", classify(err))
	}
	b.CreatedAt = parseTime(at)
	return b, nil
}

func (r *SQLiteRepository) GetFixedBill(ctx context.Context, userID, id string) (core.FixedBill, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fixedBillColumns+` FROM fixed_bills WHERE id = ? AND user_id = ?`, id, userID)
	return scanFixedBill(row)
}

// ListFixedBills returns the user's bills ordered by day of month.
func (r *SQLiteRepository) ListFixedBills(ctx context.Context, userID string, activeOnly bool) ([]core.FixedBill, error) {
	query := `SELECT ` + fixedBillColumns + ` FROM fixed_bills WHERE user_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY day, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list fixed bills: %w", err)
	}
	defer rows.Close()

	bills := []core.FixedBill{}
	for rows.Next() {
		b, err := scanFixedBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *SQLiteRepository) UpdateFixedBill(ctx context.Context, userID string, b core.FixedBill) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fixed_bills SET name = ?, amount_cents = ?, day = ?, account_id = ?, card_id = ?,
		 category_id = ?, active = ? WHERE id = ? AND user_id = ?`,
		b.Name, b.Amount.Cents, b.Day, nullString(b.Destination.AccountID), nullString(b.Destination.CardID),
		nullString(b.CategoryID), boolInt(b.Active), b.ID, userID)
	if err != nil {
		return fmt.Errorf("update fixed bill: %w", classify(err))
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteFixedBill(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fixed_bills WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete fixed bill: %w", classify(err))
	}
	return requireAffected(res)
}

// MarkFixedBillProcessed stamps the last month the bill was posted for.
func (r *SQLiteRepository) MarkFixedBillProcessed(ctx context.Context, userID, id string, month core.Month) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fixed_bills SET last_processed_month = ? WHERE id = ? AND user_id = ?`,
		month.String(), id, userID)
	if err != nil {
		return fmt.Errorf("mark fixed bill processed: %w", err)
	}
	return requireAffected(res)
}

// SumActiveFixedBills totals the monthly amount committed to active bills.
func (r *SQLiteRepository) SumActiveFixedBills(ctx context.Context, userID string) (core.Money, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM fixed_bills WHERE user_id = ? AND active = 1`,
		userID).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum fixed bills: %w", err)
	}
	return core.Money{Cents: total}, nil
}
