package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fincontrol/internal/core"
)

// DigitalFilter narrows spend, sale and work-session listings.
type DigitalFilter struct {
	Range   DateRange
	OfferID string
	Limit   int
}

// where builds the shared predicate; dateExpr is the column holding the date.
func (f DigitalFilter) where(userID, dateExpr string) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if !f.Range.From.IsZero() {
		clauses = append(clauses, dateExpr+" >= ?")
		args = append(args, formatDate(f.Range.From))
	}
	if !f.Range.To.IsZero() {
		clauses = append(clauses, dateExpr+" <= ?")
		args = append(args, formatDate(f.Range.To))
	}
	if f.OfferID != "" {
		clauses = append(clauses, "offer_id = ?")
		args = append(args, f.OfferID)
	}
	return strings.Join(clauses, " AND "), args
}

func (f DigitalFilter) limit(query string, args []any) (string, []any) {
	if f.Limit > 0 {
		return query + ` LIMIT ?`, append(args, f.Limit)
	}
	return query, args
}

const offerColumns = `id, user_id, name, external_id, price_cents, status, created_at`

func scanOffer(row interface{ Scan(...any) error }) (core.Offer, error) {
	var (
		o        core.Offer
		external sql.NullString
		created  string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Name, &external, &o.Price.Cents, &o.Status, &created); err != nil {
		return core.Offer{}, classify(err)
	}
	o.ExternalID = external.String
	o.CreatedAt = parseTime(created)
	return o, nil
}

func (r *SQLiteRepository) CreateOffer(ctx context.Context, userID string, o core.Offer) (core.Offer, error) {
	o.ID = newID()
	o.UserID = userID
	at := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offers (`+offerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, userID, o.Name, nullString(o.ExternalID), o.Price.Cents, o.Status, at)
	if err != nil {
		return core.Offer{}, fmt.Errorf("create offer: %w", classify(err))
	}
	o.CreatedAt = parseTime(at)
	return o, nil
}

func (r *SQLiteRepository) GetOffer(ctx context.Context, userID, id string) (core.Offer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ? AND user_id = ?`, id, userID)
	return scanOffer(row)
}

// FindOfferByExternalID looks an offer up by the payment provider's product id.
func (r *SQLiteRepository) FindOfferByExternalID(ctx context.Context, userID, externalID string) (core.Offer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE user_id = ? AND external_id = ? ORDER BY created_at LIMIT 1`,
		userID, externalID)
	return scanOffer(row)
}

// FindOfferByName matches the offer name case-insensitively.
func (r *SQLiteRepository) FindOfferByName(ctx context.Context, userID, name string) (core.Offer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE user_id = ? AND lower(name) = lower(?) ORDER BY created_at LIMIT 1`,
		userID, strings.TrimSpace(name))
	return scanOffer(row)
}

func (r *SQLiteRepository) ListOffers(ctx context.Context, userID string) ([]core.Offer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE user_id = ? ORDER BY status, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	offers := []core.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (r *SQLiteRepository) UpdateOffer(ctx context.Context, userID string, o core.Offer) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE offers SET name = ?, external_id = ?, price_cents = ?, status = ? WHERE id = ? AND user_id = ?`,
		o.Name, nullString(o.ExternalID), o.Price.Cents, o.Status, o.ID, userID)
	if err != nil {
		return fmt.Errorf("update offer: %w", classify(err))
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteOffer(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete offer: %w", classify(err))
	}
	return requireAffected(res)
}

const spendColumns = `id, user_id, offer_id, date, amount_cents, platform, note, created_at`

func scanSpend(row interface{ Scan(...any) error }) (core.SpendEvent, error) {
	var (
		e             core.SpendEvent
		date, created string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.OfferID, &date, &e.Amount.Cents, &e.Platform, &e.Note, &created); err != nil {
		return core.SpendEvent{}, classify(err)
	}
	e.Date = parseDate(date)
	e.CreatedAt = parseTime(created)
	return e, nil
}

func (r *SQLiteRepository) CreateSpendEvent(ctx context.Context, userID string, e core.SpendEvent) (core.SpendEvent, error) {
	e.ID = newID()
	e.UserID = userID
	at := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO spend_events (`+spendColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, userID, e.OfferID, formatDate(e.Date), e.Amount.Cents, e.Platform, e.Note, at)
	if err != nil {
		return core.SpendEvent{}, fmt.Errorf("create spend event: %w", classify(err))
	}
	e.CreatedAt = parseTime(at)
	return e, nil
}

func (r *SQLiteRepository) ListSpendEvents(ctx context.Context, userID string, f DigitalFilter) ([]core.SpendEvent, error) {
	where, args := f.where(userID, "date")
	query, args := f.limit(`SELECT `+spendColumns+` FROM spend_events WHERE `+where+` ORDER BY date DESC, created_at DESC`, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list spend events: %w", err)
	}
	defer rows.Close()

	events := []core.SpendEvent{}
	for rows.Next() {
		e, err := scanSpend(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) DeleteSpendEvent(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spend_events WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete spend event: %w", err)
	}
	return requireAffected(res)
}

const saleColumns = `id, user_id, offer_id, source, order_id, status, amount_cents, customer_email,
	occurred_at, created_at`

// saleDate is the calendar day of a sale; occurred_at is stored in UTC.
const saleDate = `substr(occurred_at, 1, 10)`

func scanSale(row interface{ Scan(...any) error }) (core.Sale, error) {
	var (
		s                 core.Sale
		occurred, created string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.OfferID, &s.Source, &s.OrderID, &s.Status, &s.Amount.Cents,
		&s.CustomerEmail, &occurred, &created)
	if err != nil {
		return core.Sale{}, classify(err)
	}
	s.OccurredAt = parseTime(occurred)
	s.CreatedAt = parseTime(created)
	return s, nil
}

// CreateSale inserts a sale; a duplicate (user, source, order id) is ErrConflict.
func (r *SQLiteRepository) CreateSale(ctx context.Context, userID string, s core.Sale) (core.Sale, error) {
	s.ID = newID()
	s.UserID = userID
	at := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (`+saleColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, userID, s.OfferID, s.Source, s.OrderID, s.Status, s.Amount.Cents, s.CustomerEmail,
		s.OccurredAt.UTC().Format(timeLayout), at, at)
	if err != nil {
		return core.Sale{}, fmt.Errorf("create sale: %w", classify(err))
	}
	s.CreatedAt = parseTime(at)
	return s, nil
}

// UpsertSale inserts the sale or updates the existing row with the same
// (user, source, order id). inserted reports which of the two happened.
// The stored status follows core.NextSaleStatus.
func (r *SQLiteRepository) UpsertSale(ctx context.Context, userID string, s core.Sale) (sale core.Sale, inserted bool, err error) {
	s.UserID = userID
	at := r.timestamp()
	occurred := s.OccurredAt.UTC().Format(timeLayout)

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sales (`+saleColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, source, order_id) DO NOTHING`,
			newID(), userID, s.OfferID, s.Source, s.OrderID, s.Status, s.Amount.Cents, s.CustomerEmail,
			occurred, at, at)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 1 {
			inserted = true
		}

		var current, created string
		err = tx.QueryRowContext(ctx,
			`SELECT id, status, created_at FROM sales WHERE user_id = ? AND source = ? AND order_id = ?`,
			userID, s.Source, s.OrderID).Scan(&s.ID, &current, &created)
		if err != nil {
			return err
		}
		s.CreatedAt = parseTime(created)
		if inserted {
			return nil
		}

		s.Status = core.NextSaleStatus(core.SaleStatus(current), s.Status)
		_, err = tx.ExecContext(ctx,
			`UPDATE sales SET offer_id = ?, status = ?, amount_cents = ?, customer_email = ?,
			     occurred_at = ?, updated_at = ?
			 WHERE id = ?`,
			s.OfferID, s.Status, s.Amount.Cents, s.CustomerEmail, occurred, at, s.ID)
		return err
	})
	if err != nil {
		return core.Sale{}, false, fmt.Errorf("upsert sale: %w", classify(err))
	}
	return s, inserted, nil
}

func (r *SQLiteRepository) GetSale(ctx context.Context, userID, id string) (core.Sale, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ? AND user_id = ?`, id, userID)
	return scanSale(row)
}

func (r *SQLiteRepository) ListSales(ctx context.Context, userID string, f DigitalFilter) ([]core.Sale, error) {
	where, args := f.where(userID, saleDate)
	query, args := f.limit(`SELECT `+saleColumns+` FROM sales WHERE `+where+` ORDER BY occurred_at DESC`, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := []core.Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (r *SQLiteRepository) DeleteSale(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	return requireAffected(res)
}

const workColumns = `id, user_id, offer_id, date, minutes, note, created_at`

func scanWork(row interface{ Scan(...any) error }) (core.WorkSession, error) {
	var (
		w             core.WorkSession
		offer         sql.NullString
		date, created string
	)
	if err := row.Scan(&w.ID, &w.UserID, &offer, &date, &w.Minutes, &w.Note, &created); err != nil {
		return core.WorkSession{}, classify(err)
	}
	w.OfferID = offer.String
	w.Date = parseDate(date)
	w.CreatedAt = parseTime(created)
	return w, nil
}

func (r *SQLiteRepository) CreateWorkSession(ctx context.Context, userID string, w core.WorkSession) (core.WorkSession, error) {
	w.ID = newID()
	w.UserID = userID
	at := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO work_sessions (`+workColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, userID, nullString(w.OfferID), formatDate(w.Date), w.Minutes, w.Note, at)
	if err != nil {
		return core.WorkSession{}, fmt.Errorf("create work session: %w", classify(err))
	}
	w.CreatedAt = parseTime(at)
	return w, nil
}

func (r *SQLiteRepository) ListWorkSessions(ctx context.Context, userID string, f DigitalFilter) ([]core.WorkSession, error) {
	where, args := f.where(userID, "date")
	query, args := f.limit(`SELECT `+workColumns+` FROM work_sessions WHERE `+where+` ORDER BY date DESC, created_at DESC`, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work sessions: %w", err)
	}
	defer rows.Close()

	sessions := []core.WorkSession{}
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, w)
	}
	return sessions, rows.Err()
}

func (r *SQLiteRepository) DeleteWorkSession(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete work session: %w", err)
	}
	return requireAffected(res)
}
