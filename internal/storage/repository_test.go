package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fincontrol/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), email, "Test", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	newTestUser(t, repo, "a@example.com")
	_, err := repo.CreateUser(context.Background(), "A@Example.com", "Other", "hash")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "s@example.com")

	if err := repo.CreateSession(ctx, "live", u.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := repo.CreateSession(ctx, "stale", u.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	s, err := repo.GetSession(ctx, "live")
	if err != nil || s.UserID != u.ID {
		t.Fatalf("expected live session, got %+v %v", s, err)
	}
	if _, err := repo.GetSession(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
	n, err := repo.PurgeExpiredSessions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged session, got %d %v", n, err)
	}
}

func TestRowsAreUserScoped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := newTestUser(t, repo, "alice@example.com")
	bob := newTestUser(t, repo, "bob@example.com")

	acc, err := repo.CreateAccount(ctx, alice.ID, core.Account{Name: "Main", Kind: core.AccountChecking})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := repo.GetAccount(ctx, bob.ID, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob read alice's account: %v", err)
	}
	acc.Name = "Hijacked"
	if err := repo.UpdateAccount(ctx, bob.ID, acc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob updated alice's account: %v", err)
	}
	if err := repo.DeleteAccount(ctx, bob.ID, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob deleted alice's account: %v", err)
	}
	list, err := repo.ListAccounts(ctx, bob.ID, true)
	if err != nil || len(list) != 0 {
		t.Fatalf("bob listed %d accounts (err=%v)", len(list), err)
	}

	got, err := repo.GetAccount(ctx, alice.ID, acc.ID)
	if err != nil || got.Name != "Main" {
		t.Fatalf("alice lost her account: %+v %v", got, err)
	}
}

func TestAccountBalanceAndTransfers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "t@example.com")

	checking, _ := repo.CreateAccount(ctx, u.ID, core.Account{Name: "Checking", Kind: core.AccountChecking, InitialBalance: core.Money{Cents: 10000}})
	savings, _ := repo.CreateAccount(ctx, u.ID, core.Account{Name: "Savings", Kind: core.AccountSavings})
	day := core.NewDate(2025, 5, 10)

	if _, err := repo.CreateTransaction(ctx, u.ID, core.Transaction{
		Kind: core.KindIncome, Amount: core.Money{Cents: 5000}, Date: day, Description: "salary",
		Destination: core.Destination{AccountID: checking.ID},
	}); err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, u.ID, core.Transaction{
		Kind: core.KindExpense, Amount: core.Money{Cents: 2000}, Date: day, Description: "market",
		Destination: core.Destination{AccountID: checking.ID},
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	out, in, err := repo.CreateTransfer(ctx, u.ID, core.Transfer{
		FromAccountID: checking.ID, To: core.Destination{AccountID: savings.ID},
		Amount: core.Money{Cents: 3000}, Date: day, Description: "save",
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if out.TransferGroupID == "" || out.TransferGroupID != in.TransferGroupID {
		t.Fatalf("legs must share a group id: %q / %q", out.TransferGroupID, in.TransferGroupID)
	}

	balances := map[string]int64{}
	list, err := repo.ListAccounts(ctx, u.ID, false)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	for _, a := range list {
		balances[a.ID] = a.Balance.Cents
	}
	if balances[checking.ID] != 10000 {
		t.Fatalf("checking balance = %d, want 10000", balances[checking.ID])
	}
	if balances[savings.ID] != 3000 {
		t.Fatalf("savings balance = %d, want 3000", balances[savings.ID])
	}

	n, err := repo.DeleteTransaction(ctx, u.ID, in.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected both legs deleted, got %d %v", n, err)
	}
	if _, err := repo.GetTransaction(ctx, u.ID, out.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out leg survived: %v", err)
	}

	// Accounts referenced by transactions cannot be removed.
	if err := repo.DeleteAccount(ctx, u.ID, checking.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict deleting used account, got %v", err)
	}
}

func TestDestinationCheckConstraint(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "x@example.com")
	_, err := repo.CreateTransaction(ctx, u.ID, core.Transaction{
		Kind: core.KindExpense, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1), Description: "orphan",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestFixedBillUniqueIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "f@example.com")
	acc, _ := repo.CreateAccount(ctx, u.ID, core.Account{Name: "Main", Kind: core.AccountChecking})
	bill, err := repo.CreateFixedBill(ctx, u.ID, core.FixedBill{
		Name: "Rent", Amount: core.Money{Cents: 150000}, Day: 5, Active: true,
		Destination: core.Destination{AccountID: acc.ID},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	tx := core.Transaction{
		Kind: core.KindExpense, Amount: bill.Amount, Date: core.NewDate(2025, 2, 5), Description: bill.Tag(),
		Destination: bill.Destination, FixedBillID: bill.ID,
	}
	if _, err := repo.CreateTransaction(ctx, u.ID, tx); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, u.ID, tx); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second post, got %v", err)
	}
	// A renamed bill posted on another day of the same month is still a duplicate.
	moved := tx
	moved.Date = core.NewDate(2025, 2, 20)
	moved.Description = "[fixed:" + bill.ID + "] Rent (apartment)"
	if _, err := repo.CreateTransaction(ctx, u.ID, moved); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a second posting in the month, got %v", err)
	}
	has, err := repo.HasFixedBillPosting(ctx, u.ID, bill.ID, core.Month{Year: 2025, Month: time.February})
	if err != nil || !has {
		t.Fatalf("expected existing posting, got %v %v", has, err)
	}
	has, err = repo.HasFixedBillPosting(ctx, u.ID, bill.ID, core.Month{Year: 2025, Month: time.March})
	if err != nil || has {
		t.Fatalf("expected no March posting, got %v %v", has, err)
	}

	users, err := repo.UsersWithActiveFixedBills(ctx)
	if err != nil || len(users) != 1 || users[0] != u.ID {
		t.Fatalf("unexpected users %v %v", users, err)
	}
}

func TestUpsertSaleIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "k@example.com")
	offer, _ := repo.CreateOffer(ctx, u.ID, core.Offer{Name: "Course", Status: core.OfferActive})

	sale := core.Sale{
		OfferID: offer.ID, Source: core.SourceKiwify, OrderID: "ord-1", Status: core.SalePending,
		Amount: core.Money{Cents: 9790}, OccurredAt: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	first, inserted, err := repo.UpsertSale(ctx, u.ID, sale)
	if err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}

	sale.Status = core.SalePaid
	second, inserted, err := repo.UpsertSale(ctx, u.ID, sale)
	if err != nil || inserted {
		t.Fatalf("second upsert: inserted=%v err=%v", inserted, err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new row: %s != %s", second.ID, first.ID)
	}

	sales, err := repo.ListSales(ctx, u.ID, DigitalFilter{})
	if err != nil || len(sales) != 1 || sales[0].Status != core.SalePaid {
		t.Fatalf("unexpected sales %+v %v", sales, err)
	}

	totals, err := repo.SumSales(ctx, u.ID, DigitalFilter{Range: MonthRange(core.Month{Year: 2025, Month: time.April})})
	if err != nil || totals[""].Revenue.Cents != 9790 || totals[offer.ID].PaidCount != 1 {
		t.Fatalf("unexpected totals %+v %v", totals, err)
	}
}

func TestUpsertSaleStatusTransitions(t *testing.T) {
	repo := newTestRepo(t)
	// Every delivery lands on the same clock tick.
	frozen := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }
	ctx := context.Background()
	u := newTestUser(t, repo, "flow@example.com")
	offer, _ := repo.CreateOffer(ctx, u.ID, core.Offer{Name: "Course", Status: core.OfferActive})

	deliveries := []struct {
		status       core.SaleStatus
		wantStored   core.SaleStatus
		wantInserted bool
	}{
		{core.SalePaid, core.SalePaid, true},
		{core.SalePending, core.SalePaid, false},
		{core.SaleRefunded, core.SaleRefunded, false},
		{core.SalePending, core.SaleRefunded, false},
		{core.SaleChargeback, core.SaleChargeback, false},
	}
	for i, d := range deliveries {
		got, inserted, err := repo.UpsertSale(ctx, u.ID, core.Sale{
			OfferID: offer.ID, Source: core.SourceKiwify, OrderID: "ord-9", Status: d.status,
			Amount: core.Money{Cents: 9700}, OccurredAt: frozen,
		})
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if inserted != d.wantInserted || got.Status != d.wantStored {
			t.Errorf("delivery %d (%s): inserted=%v status=%s, want %v %s",
				i, d.status, inserted, got.Status, d.wantInserted, d.wantStored)
		}
	}

	sales, err := repo.ListSales(ctx, u.ID, DigitalFilter{})
	if err != nil || len(sales) != 1 || sales[0].Status != core.SaleChargeback {
		t.Fatalf("unexpected sales %+v %v", sales, err)
	}
	totals, err := repo.SumSales(ctx, u.ID, DigitalFilter{})
	if err != nil {
		t.Fatalf("sum sales: %v", err)
	}
	if g := totals[""]; g.Revenue.Cents != 9700 || g.Refunds.Cents != 9700 || g.PaidCount != 0 {
		t.Fatalf("charged-back order totals = %+v", g)
	}
}

func TestUpsertSaleKeepsPendingUntilSettled(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "pix@example.com")
	offer, _ := repo.CreateOffer(ctx, u.ID, core.Offer{Name: "Course", Status: core.OfferActive})
	sale := core.Sale{
		OfferID: offer.ID, Source: core.SourceKiwify, OrderID: "ord-2", Status: core.SalePending,
		Amount: core.Money{Cents: 5000}, OccurredAt: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, _, err := repo.UpsertSale(ctx, u.ID, sale); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	sale.Status = core.SaleRefused
	got, inserted, err := repo.UpsertSale(ctx, u.ID, sale)
	if err != nil || inserted || got.Status != core.SaleRefused {
		t.Fatalf("pending -> refused: %+v inserted=%v err=%v", got, inserted, err)
	}
}

func TestUpsertBudget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "b@example.com")
	cat, _ := repo.CreateCategory(ctx, u.ID, core.Category{Name: "Food", Kind: core.CategoryExpense})
	month := core.Month{Year: 2025, Month: time.June}

	first, err := repo.UpsertBudget(ctx, u.ID, core.Budget{CategoryID: cat.ID, Month: month, Amount: core.Money{Cents: 100}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := repo.UpsertBudget(ctx, u.ID, core.Budget{CategoryID: cat.ID, Month: month, Amount: core.Money{Cents: 200}})
	if err != nil || second.ID != first.ID {
		t.Fatalf("expected same budget id, got %s vs %s (%v)", second.ID, first.ID, err)
	}
	budgets, err := repo.ListBudgets(ctx, u.ID, month)
	if err != nil || len(budgets) != 1 || budgets[0].Amount.Cents != 200 {
		t.Fatalf("unexpected budgets %+v %v", budgets, err)
	}
}

func TestCategoryUniqueness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "c@example.com")
	if _, err := repo.CreateCategory(ctx, u.ID, core.Category{Name: "Food", Kind: core.CategoryExpense}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateCategory(ctx, u.ID, core.Category{Name: "Food", Kind: core.CategoryIncome}); err != nil {
		t.Fatalf("same name with other kind must be allowed: %v", err)
	}
	if _, err := repo.CreateCategory(ctx, u.ID, core.Category{Name: "Food", Kind: core.CategoryExpense}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestOnboardIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser(t, repo, "o@example.com")

	_, err := repo.Onboard(ctx, u.ID, Onboarding{
		Accounts:   []core.Account{{Name: "Main", Kind: core.AccountChecking}},
		Categories: []core.Category{{Name: "Food", Kind: core.CategoryExpense}, {Name: "Food", Kind: core.CategoryExpense}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	accounts, _ := repo.ListAccounts(ctx, u.ID, true)
	if len(accounts) != 0 {
		t.Fatalf("failed onboarding left %d accounts behind", len(accounts))
	}
	got, _ := repo.GetUser(ctx, u.ID)
	if !got.OnboardedAt.IsZero() {
		t.Fatalf("failed onboarding stamped the user")
	}
}
