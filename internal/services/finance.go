package services

import (
	"context"
	"fmt"
	"strings"

	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

const defaultCategoryColor = "#64748b"

// ErrAlreadyOnboarded is returned by Onboard for users that finished the wizard.
var ErrAlreadyOnboarded = fmt.Errorf("%w: user already onboarded", storage.ErrConflict)

// FinanceService covers categories, accounts, cards, transactions, budgets
// and the onboarding wizard.
type FinanceService struct {
	repo   *storage.SQLiteRepository
	logger *applog.Logger
}

func NewFinanceService(repo *storage.SQLiteRepository, logger *applog.Logger) *FinanceService {
	return &FinanceService{
		repo:   repo,
		logger: logger.WithComponent(applog.ComponentFinance),
	}
}

// Categories

func (s *FinanceService) CreateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = defaultCategoryColor
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return s.repo.CreateCategory(ctx, userID, c)
}

func (s *FinanceService) ListCategories(ctx context.Context, userID string, kind core.CategoryKind) ([]core.Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("list categories: %w", core.ErrInvalidKind)
	}
	return s.repo.ListCategories(ctx, userID, kind)
}

func (s *FinanceService) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	return s.repo.GetCategory(ctx, userID, id)
}

func (s *FinanceService) UpdateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = defaultCategoryColor
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if err := s.repo.UpdateCategory(ctx, userID, c); err != nil {
		return core.Category{}, err
	}
	return s.repo.GetCategory(ctx, userID, c.ID)
}

func (s *FinanceService) DeleteCategory(ctx context.Context, userID, id string) error {
	return s.repo.DeleteCategory(ctx, userID, id)
}

// Accounts

func (s *FinanceService) CreateAccount(ctx context.Context, userID string, a core.Account) (core.AccountBalance, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Kind == "" {
		a.Kind = core.AccountChecking
	}
	if err := a.Validate(); err != nil {
		return core.AccountBalance{}, fmt.Errorf("create account: %w", err)
	}
	created, err := s.repo.CreateAccount(ctx, userID, a)
	if err != nil {
		return core.AccountBalance{}, err
	}
	return s.repo.GetAccount(ctx, userID, created.ID)
}

// ListAccounts returns accounts with their derived balances.
func (s *FinanceService) ListAccounts(ctx context.Context, userID string, includeArchived bool) ([]core.AccountBalance, error) {
	return s.repo.ListAccounts(ctx, userID, includeArchived)
}

func (s *FinanceService) UpdateAccount(ctx context.Context, userID string, a core.Account) (core.AccountBalance, error) {
	a.Name = strings.TrimSpace(a.Name)
	if err := a.Validate(); err != nil {
		return core.AccountBalance{}, fmt.Errorf("update account: %w", err)
	}
	if err := s.repo.UpdateAccount(ctx, userID, a); err != nil {
		return core.AccountBalance{}, err
	}
	return s.repo.GetAccount(ctx, userID, a.ID)
}

// DeleteAccount fails with storage.ErrConflict while transactions or bills
// still point at the account; archive it instead.
func (s *FinanceService) DeleteAccount(ctx context.Context, userID, id string) error {
	return s.repo.DeleteAccount(ctx, userID, id)
}

// Cards

func (s *FinanceService) CreateCard(ctx context.Context, userID string, c core.Card) (core.Card, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Card{}, fmt.Errorf("create card: %w", err)
	}
	return s.repo.CreateCard(ctx, userID, c)
}

func (s *FinanceService) ListCards(ctx context.Context, userID string, includeArchived bool) ([]core.Card, error) {
	return s.repo.ListCards(ctx, userID, includeArchived)
}

func (s *FinanceService) UpdateCard(ctx context.Context, userID string, c core.Card) (core.Card, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Card{}, fmt.Errorf("update card: %w", err)
	}
	if err := s.repo.UpdateCard(ctx, userID, c); err != nil {
		return core.Card{}, err
	}
	return s.repo.GetCard(ctx, userID, c.ID)
}

func (s *FinanceService) DeleteCard(ctx context.Context, userID, id string) error {
	return s.repo.DeleteCard(ctx, userID, id)
}

// Transactions

// CreateTransaction records an expense or an income after checking that the
// destination and category belong to the user.
func (s *FinanceService) CreateTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	t.Description = strings.TrimSpace(t.Description)
	if t.Kind == core.KindTransfer {
		return core.Transaction{}, fmt.Errorf("create transaction: %w: use a transfer", core.ErrInvalidKind)
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := checkDestination(ctx, s.repo, userID, t.Destination); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := checkCategory(ctx, s.repo, userID, t.CategoryID, core.CategoryKind(t.Kind)); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	created, err := s.repo.CreateTransaction(ctx, userID, t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "Transaction created",
		applog.FieldTransactionID, created.ID,
		"kind", created.Kind,
		applog.FieldAmountCents, created.Amount.Cents)
	return created, nil
}

// CreateTransfer writes both legs of a transfer in one SQL transaction.
func (s *FinanceService) CreateTransfer(ctx context.Context, userID string, tr core.Transfer) (out, in core.Transaction, err error) {
	tr.Description = strings.TrimSpace(tr.Description)
	if tr.Description == "" {
		tr.Description = "Transfer"
	}
	if err := tr.Validate(); err != nil {
		return out, in, fmt.Errorf("create transfer: %w", err)
	}
	if err := checkDestination(ctx, s.repo, userID, core.Destination{AccountID: tr.FromAccountID}); err != nil {
		return out, in, fmt.Errorf("create transfer: %w", err)
	}
	if err := checkDestination(ctx, s.repo, userID, tr.To); err != nil {
		return out, in, fmt.Errorf("create transfer: %w", err)
	}

	out, in, err = s.repo.CreateTransfer(ctx, userID, tr)
	if err != nil {
		return out, in, err
	}
	s.logger.InfoContext(ctx, "Transfer created",
		"transfer_group_id", out.TransferGroupID,
		applog.FieldAmountCents, out.Amount.Cents)
	return out, in, nil
}

// ListTransactions lists one month, newest first. f.Range is overwritten by month.
func (s *FinanceService) ListTransactions(ctx context.Context, userID string, month core.Month, f storage.TransactionFilter) ([]core.Transaction, error) {
	if month.IsZero() {
		return nil, fmt.Errorf("list transactions: %w", core.ErrInvalidDate)
	}
	if f.Kind != "" && f.Kind != core.KindExpense && f.Kind != core.KindIncome && f.Kind != core.KindTransfer {
		return nil, fmt.Errorf("list transactions: %w", core.ErrInvalidKind)
	}
	f.Range = storage.MonthRange(month)
	return s.repo.ListTransactions(ctx, userID, f)
}

// DeleteTransaction removes a transaction, or both legs of a transfer.
func (s *FinanceService) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	n, err := s.repo.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Transaction deleted", applog.FieldTransactionID, id, "rows", n)
	return n, nil
}

// Budgets

// UpsertBudget sets the monthly amount for an expense category.
func (s *FinanceService) UpsertBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	if err := checkCategory(ctx, s.repo, userID, b.CategoryID, core.CategoryExpense); err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return s.repo.UpsertBudget(ctx, userID, b)
}

func (s *FinanceService) ListBudgets(ctx context.Context, userID string, month core.Month) ([]core.Budget, error) {
	return s.repo.ListBudgets(ctx, userID, month)
}

func (s *FinanceService) DeleteBudget(ctx context.Context, userID, id string) error {
	return s.repo.DeleteBudget(ctx, userID, id)
}

// Onboarding

// DefaultCategories seeds users who skip the category step.
func DefaultCategories() []core.Category {
	expense := []struct{ name, color string }{
		{"Alimentação", "#f97316"},
		{"Moradia", "#0ea5e9"},
		{"Transporte", "#8b5cf6"},
		{"Saúde", "#ef4444"},
		{"Lazer", "#eab308"},
		{"Marketing", "#ec4899"},
	}
	income := []struct{ name, color string }{
		{"Salário", "#22c55e"},
		{"Vendas", "#14b8a6"},
	}
	out := make([]core.Category, 0, len(expense)+len(income))
	for _, c := range expense {
		out = append(out, core.Category{Name: c.name, Kind: core.CategoryExpense, Color: c.color})
	}
	for _, c := range income {
		out = append(out, core.Category{Name: c.name, Kind: core.CategoryIncome, Color: c.color})
	}
	return out
}

// Onboard creates the wizard's accounts, cards and categories and stamps the
// user as onboarded, all or nothing. Missing accounts or categories fall
// back to defaults; cards are optional.
func (s *FinanceService) Onboard(ctx context.Context, userID string, in storage.Onboarding) (storage.Onboarding, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return storage.Onboarding{}, fmt.Errorf("onboard: %w", err)
	}
	if !user.OnboardedAt.IsZero() {
		return storage.Onboarding{}, ErrAlreadyOnboarded
	}

	if len(in.Accounts) == 0 {
		in.Accounts = []core.Account{{Name: "Conta corrente", Kind: core.AccountChecking}}
	}
	if len(in.Categories) == 0 {
		in.Categories = DefaultCategories()
	}

	for i := range in.Accounts {
		a := &in.Accounts[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.Kind == "" {
			a.Kind = core.AccountChecking
		}
		if err := a.Validate(); err != nil {
			return storage.Onboarding{}, fmt.Errorf("onboard account %d: %w", i+1, err)
		}
	}
	for i := range in.Cards {
		c := &in.Cards[i]
		c.Name = strings.TrimSpace(c.Name)
		if err := c.Validate(); err != nil {
			return storage.Onboarding{}, fmt.Errorf("onboard card %d: %w", i+1, err)
		}
	}
	for i := range in.Categories {
		c := &in.Categories[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Color == "" {
			c.Color = defaultCategoryColor
		}
		if err := c.Validate(); err != nil {
			return storage.Onboarding{}, fmt.Errorf("onboard category %d: %w", i+1, err)
		}
	}

	out, err := s.repo.Onboard(ctx, userID, in)
	if err != nil {
		return storage.Onboarding{}, err
	}
	s.logger.InfoContext(ctx, "User onboarded",
		applog.FieldUserID, userID,
		"accounts", len(out.Accounts),
		"cards", len(out.Cards),
		"categories", len(out.Categories))
	return out, nil
}
