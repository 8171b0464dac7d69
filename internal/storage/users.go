package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fincontrol/internal/core"
)

// Session is a server-side login session.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

const userColumns = `id, email, name, password_hash, onboarded_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u         core.User
		onboarded sql.NullString
		created   string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &onboarded, &created); err != nil {
		return core.User{}, classify(err)
	}
	u.OnboardedAt = parseNullTime(onboarded)
	u.CreatedAt = parseTime(created)
	return u, nil
}

// CreateUser inserts a user; a duplicate email yields ErrConflict.
func (r *SQLiteRepository) CreateUser(ctx context.Context, email, name, passwordHash string) (core.User, error) {
	u := core.User{
		ID:           newID(),
		Email:        core.NormalizeEmail(email),
		Name:         name,
		PasswordHash: passwordHash,
	}
	created := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, created)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", classify(err))
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, core.NormalizeEmail(email))
	return scanUser(row)
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt.UTC().Format(timeLayout), r.timestamp())
	if err != nil {
		return fmt.Errorf("create session: %w", classify(err))
	}
	return nil
}

// GetSession returns an unexpired session; expired sessions are ErrNotFound.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (Session, error) {
	var (
		s                Session
		expires, created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &expires, &created)
	if err != nil {
		return Session{}, classify(err)
	}
	s.ExpiresAt = parseTime(expires)
	s.CreatedAt = parseTime(created)
	if !s.ExpiresAt.After(r.now()) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry and reports how many.
func (r *SQLiteRepository) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, r.timestamp())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func markOnboarded(ctx context.Context, q dbtx, userID, at string) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET onboarded_at = ? WHERE id = ?`, at, userID)
	if err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}
	return requireAffected(res)
}

// UsersWithActiveFixedBills lists the ids of users owning at least one active bill.
func (r *SQLiteRepository) UsersWithActiveFixedBills(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM fixed_bills WHERE active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users with fixed bills: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
