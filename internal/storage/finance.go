package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fincontrol/internal/core"
)

// accountBalanceSQL derives the balance from the initial balance and every
// transaction booked on the account.
const accountBalanceSQL = `
SELECT a.id, a.user_id, a.name, a.kind, a.initial_balance_cents, a.archived, a.created_at,
       a.initial_balance_cents + COALESCE(SUM(
           CASE
               WHEN t.kind = 'income' OR (t.kind = 'transfer' AND t.direction = 'in') THEN t.amount_cents
               WHEN t.kind = 'expense' OR (t.kind = 'transfer' AND t.direction = 'out') THEN -t.amount_cents
               ELSE 0
           END), 0) AS balance
FROM accounts a
LEFT JOIN transactions t ON t.account_id = a.id AND t.user_id = a.user_id
WHERE a.user_id = ?`

func scanAccountBalance(row interface{ Scan(...any) error }) (core.AccountBalance, error) {
	var (
		ab       core.AccountBalance
		archived int
		created  string
	)
	err := row.Scan(&ab.ID, &ab.UserID, &ab.Name, &ab.Kind, &ab.InitialBalance.Cents,
		&archived, &created, &ab.Balance.Cents)
	if err != nil {
		return core.AccountBalance{}, classify(err)
	}
	ab.Archived = archived == 1
	ab.CreatedAt = parseTime(created)
	return ab, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, userID string, a core.Account) (core.Account, error) {
	return insertAccount(ctx, r.db, userID, a, r.timestamp())
}

func insertAccount(ctx context.Context, q dbtx, userID string, a core.Account, at string) (core.Account, error) {
	a.ID = newID()
	a.UserID = userID
	_, err := q.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, kind, initial_balance_cents, archived, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, userID, a.Name, a.Kind, a.InitialBalance.Cents, boolInt(a.Archived), at)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", classify(err))
	}
	a.CreatedAt = parseTime(at)
	return a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, userID, id string) (core.AccountBalance, error) {
	row := r.db.QueryRowContext(ctx, accountBalanceSQL+` AND a.id = ? GROUP BY a.id`, userID, id)
	return scanAccountBalance(row)
}

// ListAccounts returns the user's accounts with derived balances.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string, includeArchived bool) ([]core.AccountBalance, error) {
	query := accountBalanceSQL
	if !includeArchived {
		query += ` AND a.archived = 0`
	}
	query += ` GROUP BY a.id ORDER BY a.name`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.AccountBalance{}
	for rows.Next() {
		ab, err := scanAccountBalance(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, ab)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, userID string, a core.Account) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, kind = ?, initial_balance_cents = ?, archived = ?
		 WHERE id = ? AND user_id = ?`,
		a.Name, a.Kind, a.InitialBalance.Cents, boolInt(a.Archived), a.ID, userID)
	if err != nil {
		return fmt.Errorf("update account: %w", classify(err))
	}
	return requireAffected(res)
}

// DeleteAccount removes an account; accounts still referenced by
// transactions or bills yield ErrConflict.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", classify(err))
	}
	return requireAffected(res)
}

const cardColumns = `id, user_id, name, closing_day, due_day, limit_cents, archived, created_at`

func scanCard(row interface{ Scan(...any) error }) (core.Card, error) {
	var (
		c        core.Card
		archived int
		created  string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.ClosingDay, &c.DueDay, &c.Limit.Cents, &archived, &created)
	if err != nil {
		return core.Card{}, classify(err)
	}
	c.Archived = archived == 1
	c.CreatedAt = parseTime(created)
	return c, nil
}

func (r *SQLiteRepository) CreateCard(ctx context.Context, userID string, c core.Card) (core.Card, error) {
	return insertCard(ctx, r.db, userID, c, r.timestamp())
}

func insertCard(ctx context.Context, q dbtx, userID string, c core.Card, at string) (core.Card, error) {
	c.ID = newID()
	c.UserID = userID
	_, err := q.ExecContext(ctx,
		`INSERT INTO cards (id, user_id, name, closing_day, due_day, limit_cents, archived, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, userID, c.Name, c.ClosingDay, c.DueDay, c.Limit.Cents, boolInt(c.Archived), at)
	if err != nil {
		return core.Card{}, fmt.Errorf("create card: %w", classify(err))
	}
	c.CreatedAt = parseTime(at)
	return c, nil
}

func (r *SQLiteRepository) GetCard(ctx context.Context, userID, id string) (core.Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ? AND user_id = ?`, id, userID)
	return scanCard(row)
}

func (r *SQLiteRepository) ListCards(ctx context.Context, userID string, includeArchived bool) ([]core.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []core.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *SQLiteRepository) UpdateCard(ctx context.Context, userID string, c core.Card) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET name = ?, closing_day = ?, due_day = ?, limit_cents = ?, archived = ?
		 WHERE id = ? AND user_id = ?`,
		c.Name, c.ClosingDay, c.DueDay, c.Limit.Cents, boolInt(c.Archived), c.ID, userID)
	if err != nil {
		return fmt.Errorf("update card: %w", classify(err))
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteCard(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", classify(err))
	}
	return requireAffected(res)
}

const categoryColumns = `id, user_id, name, kind, color, created_at`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c       core.Category
		created string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.Color, &created); err != nil {
		return core.Category{}, classify(err)
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

// CreateCategory inserts a category; (user, name, kind) must be unique.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	return insertCategory(ctx, r.db, userID, c, r.timestamp())
}

func insertCategory(ctx context.Context, q dbtx, userID string, c core.Category, at string) (core.Category, error) {
	c.ID = newID()
	c.UserID = userID
	_, err := q.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, kind, color, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, userID, c.Name, c.Kind, c.Color, at)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", classify(err))
	}
	c.CreatedAt = parseTime(at)
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	return scanCategory(row)
}

// ListCategories returns the user's categories, optionally restricted to one kind.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY kind, name`, userID)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND kind = ? ORDER BY name`, userID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, userID string, c core.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, kind = ?, color = ? WHERE id = ? AND user_id = ?`,
		c.Name, c.Kind, c.Color, c.ID, userID)
	if err != nil {
		return fmt.Errorf("update category: %w", classify(err))
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", classify(err))
	}
	return requireAffected(res)
}

// Onboarding is the initial set of entities created for a new user.
type Onboarding struct {
	Accounts   []core.Account
	Cards      []core.Card
	Categories []core.Category
}

// Onboard creates every entity of o and stamps the user as onboarded in a
// single transaction.
func (r *SQLiteRepository) Onboard(ctx context.Context, userID string, o Onboarding) (Onboarding, error) {
	var out Onboarding
	at := r.timestamp()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range o.Accounts {
			created, err := insertAccount(ctx, tx, userID, a, at)
			if err != nil {
				return err
			}
			out.Accounts = append(out.Accounts, created)
		}
		for _, c := range o.Cards {
			created, err := insertCard(ctx, tx, userID, c, at)
			if err != nil {
				return err
			}
			out.Cards = append(out.Cards, created)
		}
		for _, c := range o.Categories {
			created, err := insertCategory(ctx, tx, userID, c, at)
			if err != nil {
				return err
			}
			out.Categories = append(out.Categories, created)
		}
		return markOnboarded(ctx, tx, userID, at)
	})
	if err != nil {
		return Onboarding{}, fmt.Errorf("onboard user: %w", err)
	}
	return out, nil
}
