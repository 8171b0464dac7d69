package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *storage.SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), email, "Test", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func newTestAccount(t *testing.T, repo *storage.SQLiteRepository, userID, name string) core.Account {
	t.Helper()
	a, err := repo.CreateAccount(context.Background(), userID, core.Account{Name: name, Kind: core.AccountChecking})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
}

// fixedClock is 2026-03-15 12:00 UTC.
func fixedClock() Clock {
	return Clock{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC) },
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestClockToday(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	c := Clock{
		Location: sp,
		Now:      func() time.Time { return time.Date(2026, time.April, 1, 1, 30, 0, 0, time.UTC) },
	}
	if got := c.Today().String(); got != "2026-03-31" {
		t.Errorf("Today() = %s, want 2026-03-31", got)
	}
	if got := c.ThisMonth().String(); got != "2026-03" {
		t.Errorf("ThisMonth() = %s, want 2026-03", got)
	}
}
