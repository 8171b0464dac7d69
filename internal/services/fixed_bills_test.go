package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

func TestFixedBillServiceValidation(t *testing.T) {
	repo := newTestRepo(t)
	s := NewFixedBillService(repo, quietLogger())
	ctx := context.Background()
	u := newTestUser(t, repo, "fb@example.com")
	acc := newTestAccount(t, repo, u.ID, "Checking")
	card, err := repo.CreateCard(ctx, u.ID, core.Card{Name: "Visa", ClosingDay: 5, DueDay: 12})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	tests := []struct {
		name string
		bill core.FixedBill
		want error
	}{
		{
			name: "both destinations",
			bill: core.FixedBill{Name: "Rent", Amount: core.Money{Cents: 100}, Day: 5,
				Destination: core.Destination{AccountID: acc.ID, CardID: card.ID}},
			want: core.ErrDestinationXOR,
		},
		{
			name: "day out of range",
			bill: core.FixedBill{Name: "Rent", Amount: core.Money{Cents: 100}, Day: 32,
				Destination: core.Destination{AccountID: acc.ID}},
			want: core.ErrInvalidDay,
		},
		{
			name: "unknown account",
			bill: core.FixedBill{Name: "Rent", Amount: core.Money{Cents: 100}, Day: 5,
				Destination: core.Destination{AccountID: "missing"}},
			want: storage.ErrNotFound,
		},
		{
			name: "card destination",
			bill: core.FixedBill{Name: "Streaming", Amount: core.Money{Cents: 3990}, Day: 20, Active: true,
				Destination: core.Destination{CardID: card.ID}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, u.ID, tt.bill)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	total, err := s.MonthlyCommitted(ctx, u.ID)
	if err != nil || total.Cents != 3990 {
		t.Fatalf("MonthlyCommitted() = %v, %v; want 3990", total, err)
	}
}

func TestRunForMonthIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	pub := &fakePublisher{}
	bills := NewFixedBillService(repo, quietLogger())
	runner := NewFixedBillRunner(repo, pub, quietLogger())
	ctx := context.Background()
	u := newTestUser(t, repo, "run@example.com")
	acc := newTestAccount(t, repo, u.ID, "Checking")

	rent, err := bills.Create(ctx, u.ID, core.FixedBill{
		Name: "Aluguel", Amount: core.Money{Cents: 150000}, Day: 31, Active: true,
		Destination: core.Destination{AccountID: acc.ID},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if _, err := bills.Create(ctx, u.ID, core.FixedBill{
		Name: "Old gym", Amount: core.Money{Cents: 9900}, Day: 10, Active: false,
		Destination: core.Destination{AccountID: acc.ID},
	}); err != nil {
		t.Fatalf("create inactive bill: %v", err)
	}

	res, err := runner.RunForMonth(ctx, u.ID, 2026, time.February)
	if err != nil {
		t.Fatalf("RunForMonth() error = %v", err)
	}
	if res != (RunResult{Created: 1}) {
		t.Fatalf("first run = %+v, want 1 created", res)
	}

	res, err = runner.RunForMonth(ctx, u.ID, 2026, time.February)
	if err != nil {
		t.Fatalf("RunForMonth() error = %v", err)
	}
	if res != (RunResult{Skipped: 1}) {
		t.Fatalf("second run = %+v, want 1 skipped", res)
	}

	txs, err := repo.ListTransactions(ctx, u.ID, storage.TransactionFilter{Range: storage.MonthRange(core.Month{Year: 2026, Month: time.February})})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Date.String() != "2026-02-28" {
		t.Errorf("date = %s, want clamped 2026-02-28", tx.Date)
	}
	if tx.Description != rent.Tag() || tx.FixedBillID != rent.ID || tx.Kind != core.KindExpense {
		t.Errorf("unexpected transaction %+v", tx)
	}

	stored, err := repo.GetFixedBill(ctx, u.ID, rent.ID)
	if err != nil || stored.LastProcessedMonth != "2026-02" {
		t.Fatalf("last processed month = %q, %v", stored.LastProcessedMonth, err)
	}
	if got := pub.count(amqp.EventFixedBillPosted); got != 1 {
		t.Errorf("published %d fixed bill events, want 1", got)
	}
}

func TestRunForMonthSurvivesRenameAndDayChange(t *testing.T) {
	repo := newTestRepo(t)
	bills := NewFixedBillService(repo, quietLogger())
	runner := NewFixedBillRunner(repo, nil, quietLogger())
	ctx := context.Background()
	u := newTestUser(t, repo, "rename@example.com")
	acc := newTestAccount(t, repo, u.ID, "Checking")
	march := storage.MonthRange(core.Month{Year: 2026, Month: time.March})

	rent, err := bills.Create(ctx, u.ID, core.FixedBill{
		Name: "Rent", Amount: core.Money{Cents: 150000}, Day: 5, Active: true,
		Destination: core.Destination{AccountID: acc.ID},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if res, err := runner.RunForMonth(ctx, u.ID, 2026, time.March); err != nil || res.Created != 1 {
		t.Fatalf("first run = %+v, %v", res, err)
	}

	rent.Name = "Rent (apartment)"
	rent.Day = 20
	if _, err := bills.Update(ctx, u.ID, rent); err != nil {
		t.Fatalf("update bill: %v", err)
	}
	res, err := runner.RunForMonth(ctx, u.ID, 2026, time.March)
	if err != nil || res != (RunResult{Skipped: 1}) {
		t.Fatalf("run after rename = %+v, %v; want 1 skipped", res, err)
	}

	// A posting made before the month was stamped is still found by bill id.
	water, err := bills.Create(ctx, u.ID, core.FixedBill{
		Name: "Water", Amount: core.Money{Cents: 8000}, Day: 12, Active: true,
		Destination: core.Destination{AccountID: acc.ID},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, u.ID, core.Transaction{
		Kind: core.KindExpense, Amount: water.Amount, Date: core.NewDate(2026, 3, 3),
		Description: "water by hand", Destination: water.Destination, FixedBillID: water.ID,
	}); err != nil {
		t.Fatalf("seed posting: %v", err)
	}
	res, err = runner.RunForMonth(ctx, u.ID, 2026, time.March)
	if err != nil || res != (RunResult{Skipped: 2}) {
		t.Fatalf("run with existing posting = %+v, %v; want 2 skipped", res, err)
	}

	txs, err := repo.ListTransactions(ctx, u.ID, storage.TransactionFilter{Range: march})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("March has %d transactions, want 2", len(txs))
	}
	stored, err := repo.GetFixedBill(ctx, u.ID, water.ID)
	if err != nil || stored.LastProcessedMonth != "2026-03" {
		t.Fatalf("water last processed month = %q, %v", stored.LastProcessedMonth, err)
	}
}

func TestRunForMonthRejectsInvalidMonth(t *testing.T) {
	repo := newTestRepo(t)
	runner := NewFixedBillRunner(repo, nil, quietLogger())
	u := newTestUser(t, repo, "m@example.com")

	if _, err := runner.RunForMonth(context.Background(), u.ID, 2026, 13); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRunAllForMonth(t *testing.T) {
	repo := newTestRepo(t)
	pub := &fakePublisher{err: errors.New("broker down")}
	bills := NewFixedBillService(repo, quietLogger())
	runner := NewFixedBillRunner(repo, pub, quietLogger())
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		u := newTestUser(t, repo, email)
		acc := newTestAccount(t, repo, u.ID, "Checking")
		if _, err := bills.Create(ctx, u.ID, core.FixedBill{
			Name: "Internet", Amount: core.Money{Cents: 9990}, Day: 15, Active: true,
			Destination: core.Destination{AccountID: acc.ID},
		}); err != nil {
			t.Fatalf("create bill: %v", err)
		}
	}
	newTestUser(t, repo, "nobills@example.com")

	// a failing publisher must not fail the run
	res, err := runner.RunAllForMonth(ctx, 2026, time.March)
	if err != nil {
		t.Fatalf("RunAllForMonth() error = %v", err)
	}
	if res != (RunResult{Created: 2}) {
		t.Fatalf("RunAllForMonth() = %+v, want 2 created", res)
	}
}
