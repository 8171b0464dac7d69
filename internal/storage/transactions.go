package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fincontrol/internal/core"
)

const transactionColumns = `id, user_id, kind, amount_cents, date, description, category_id,
	account_id, card_id, direction, transfer_group_id, fixed_bill_id, created_at`

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
type TransactionFilter struct {
	Range      DateRange
	AccountID  string
	CardID     string
	CategoryID string
	Kind       core.TransactionKind
	Limit      int
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t                                  core.Transaction
		date, created                      string
		category, account, card, direction sql.NullString
		group, fixedBill                   sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount.Cents, &date, &t.Description, &category,
		&account, &card, &direction, &group, &fixedBill, &created)
	if err != nil {
		return core.Transaction{}, classify(err)
	}
	t.Date = parseDate(date)
	t.CategoryID = category.String
	t.Destination = core.Destination{AccountID: account.String, CardID: card.String}
	t.Direction = core.TransferDirection(direction.String)
	t.TransferGroupID = group.String
	t.FixedBillID = fixedBill.String
	t.CreatedAt = parseTime(created)
	return t, nil
}

func insertTransaction(ctx context.Context, q dbtx, userID string, t core.Transaction, at string) (core.Transaction, error) {
	t.ID = newID()
	t.UserID = userID
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, t.Kind, t.Amount.Cents, formatDate(t.Date), t.Description,
		nullString(t.CategoryID), nullString(t.Destination.AccountID), nullString(t.Destination.CardID),
		nullString(string(t.Direction)), nullString(t.TransferGroupID), nullString(t.FixedBillID), at)
	if err != nil {
		return core.Transaction{}, classify(err)
	}
	t.CreatedAt = parseTime(at)
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	created, err := insertTransaction(ctx, r.db, userID, t, r.timestamp())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

// CreateTransfer writes both legs of a transfer in one SQL transaction.
func (r *SQLiteRepository) CreateTransfer(ctx context.Context, userID string, tr core.Transfer) (out, in core.Transaction, err error) {
	outLeg, inLeg := tr.Legs(userID, newID())
	at := r.timestamp()
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if out, err = insertTransaction(ctx, tx, userID, outLeg, at); err != nil {
			return err
		}
		in, err = insertTransaction(ctx, tx, userID, inLeg, at)
		return err
	})
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("create transfer: %w", err)
	}
	return out, in, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	return scanTransaction(row)
}

// ListTransactions returns the user's transactions newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !f.Range.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(f.Range.To))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CardID != "" {
		where = append(where, "card_id = ?")
		args = append(args, f.CardID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// DeleteTransaction removes a transaction. Deleting either leg of a transfer
// removes the whole transfer group. It returns the number of rows deleted.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	var deleted int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var group sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT transfer_group_id FROM transactions WHERE id = ? AND user_id = ?`, id, userID).Scan(&group)
		if err != nil {
			return classify(err)
		}

		var res sql.Result
		if group.Valid {
			res, err = tx.ExecContext(ctx,
				`DELETE FROM transactions WHERE transfer_group_id = ? AND user_id = ?`, group.String, userID)
		} else {
			res, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
		}
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	return deleted, nil
}

// HasFixedBillPosting reports whether the bill already produced a
// transaction in month m, whatever its current name or day.
func (r *SQLiteRepository) HasFixedBillPosting(ctx context.Context, userID, billID string, m core.Month) (bool, error) {
	from, to := MonthRange(m).args()
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions
		 WHERE user_id = ? AND fixed_bill_id = ? AND date BETWEEN ? AND ?`,
		userID, billID, from, to).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check fixed bill posting: %w", err)
	}
	return n > 0, nil
}

// SumCardExpenses totals the card's expense transactions within dr.
func (r *SQLiteRepository) SumCardExpenses(ctx context.Context, userID, cardID string, dr DateRange) (core.Money, error) {
	from, to := dr.args()
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE user_id = ? AND card_id = ? AND kind = 'expense' AND date BETWEEN ? AND ?`,
		userID, cardID, from, to).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum card expenses: %w", err)
	}
	return core.Money{Cents: total}, nil
}
