package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	applog "fincontrol/internal/log"
	"fincontrol/internal/storage"
)

// FixedBillService manages the user's recurring monthly bills.
type FixedBillService struct {
	repo   *storage.SQLiteRepository
	logger *applog.Logger
}

func NewFixedBillService(repo *storage.SQLiteRepository, logger *applog.Logger) *FixedBillService {
	return &FixedBillService{
		repo:   repo,
		logger: logger.WithComponent(applog.ComponentFixedBill),
	}
}

func (s *FixedBillService) check(ctx context.Context, userID string, b core.FixedBill) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := checkDestination(ctx, s.repo, userID, b.Destination); err != nil {
		return err
	}
	return checkCategory(ctx, s.repo, userID, b.CategoryID, core.CategoryExpense)
}

func (s *FixedBillService) Create(ctx context.Context, userID string, b core.FixedBill) (core.FixedBill, error) {
	b.Name = strings.TrimSpace(b.Name)
	if err := s.check(ctx, userID, b); err != nil {
		return core.FixedBill{}, fmt.Errorf("create fixed bill: %w", err)
	}
	created, err := s.repo.CreateFixedBill(ctx, userID, b)
	if err != nil {
		return core.FixedBill{}, err
	}
	s.logger.InfoContext(ctx, "Fixed bill created",
		applog.FieldFixedBillID, created.ID,
		"day", created.Day,
		applog.FieldAmountCents, created.Amount.Cents)
	return created, nil
}

func (s *FixedBillService) List(ctx context.Context, userID string, activeOnly bool) ([]core.FixedBill, error) {
	return s.repo.ListFixedBills(ctx, userID, activeOnly)
}

func (s *FixedBillService) Get(ctx context.Context, userID, id string) (core.FixedBill, error) {
	return s.repo.GetFixedBill(ctx, userID, id)
}

func (s *FixedBillService) Update(ctx context.Context, userID string, b core.FixedBill) (core.FixedBill, error) {
	b.Name = strings.TrimSpace(b.Name)
	if err := s.check(ctx, userID, b); err != nil {
		return core.FixedBill{}, fmt.Errorf("update fixed bill: %w", err)
	}
	if err := s.repo.UpdateFixedBill(ctx, userID, b); err != nil {
		return core.FixedBill{}, err
	}
	return s.repo.GetFixedBill(ctx, userID, b.ID)
}

func (s *FixedBillService) Delete(ctx context.Context, userID, id string) error {
	return s.repo.DeleteFixedBill(ctx, userID, id)
}

// MonthlyCommitted totals the amounts of the user's active bills.
func (s *FixedBillService) MonthlyCommitted(ctx context.Context, userID string) (core.Money, error) {
	return s.repo.SumActiveFixedBills(ctx, userID)
}

// RunResult counts the outcome of one runner pass.
type RunResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *RunResult) add(o RunResult) {
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// FixedBillRunner posts the expense transactions for active fixed bills.
// Running it again for the same month creates nothing new.
type FixedBillRunner struct {
	repo       *storage.SQLiteRepository
	publisher  EventPublisher
	logger     *applog.Logger
	structured *applog.StructuredLogger
}

// NewFixedBillRunner creates a runner. publisher may be nil.
func NewFixedBillRunner(repo *storage.SQLiteRepository, publisher EventPublisher, logger *applog.Logger) *FixedBillRunner {
	l := logger.WithComponent(applog.ComponentFixedBill)
	return &FixedBillRunner{
		repo:       repo,
		publisher:  publisher,
		logger:     l,
		structured: applog.NewStructuredLogger(l),
	}
}

// RunForMonth posts every active bill of the user for the given month.
// Per-bill failures are logged and counted; only a failure to list the
// bills aborts the pass.
func (r *FixedBillRunner) RunForMonth(ctx context.Context, userID string, year int, month time.Month) (RunResult, error) {
	var res RunResult
	target := core.Month{Year: year, Month: month}
	if target.IsZero() || month < time.January || month > time.December {
		return res, fmt.Errorf("run fixed bills: %w", core.ErrInvalidDate)
	}

	bills, err := r.repo.ListFixedBills(ctx, userID, true)
	if err != nil {
		return res, fmt.Errorf("run fixed bills: %w", err)
	}

	for _, bill := range bills {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		created, err := r.post(ctx, userID, bill, target)
		switch {
		case err != nil:
			res.Failed++
			r.logger.ErrorContext(ctx, "Failed to post fixed bill",
				applog.FieldUserID, userID,
				applog.FieldFixedBillID, bill.ID,
				applog.FieldMonth, target.String(),
				applog.FieldError, err)
		case created:
			res.Created++
		default:
			res.Skipped++
		}
	}

	r.logger.InfoContext(ctx, "Fixed bills run completed",
		applog.FieldUserID, userID,
		applog.FieldMonth, target.String(),
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}

// post creates the bill's transaction for target unless it already exists.
func (r *FixedBillRunner) post(ctx context.Context, userID string, bill core.FixedBill, target core.Month) (bool, error) {
	if bill.LastProcessedMonth == target.String() {
		return false, nil
	}
	date := core.ClampedDate(target.Year, target.Month, bill.Day)

	exists, err := r.repo.HasFixedBillPosting(ctx, userID, bill.ID, target)
	if err != nil {
		return false, err
	}
	if exists {
		return false, r.repo.MarkFixedBillProcessed(ctx, userID, bill.ID, target)
	}

	tx, err := r.repo.CreateTransaction(ctx, userID, core.Transaction{
		Kind:        core.KindExpense,
		Amount:      bill.Amount,
		Date:        date,
		Description: bill.Tag(),
		CategoryID:  bill.CategoryID,
		Destination: bill.Destination,
		FixedBillID: bill.ID,
	})
	if errors.Is(err, storage.ErrConflict) {
		// a concurrent run inserted the same row
		return false, r.repo.MarkFixedBillProcessed(ctx, userID, bill.ID, target)
	}
	if err != nil {
		return false, err
	}
	if err := r.repo.MarkFixedBillProcessed(ctx, userID, bill.ID, target); err != nil {
		return true, err
	}

	publish(ctx, r.publisher, r.logger, amqp.NewFixedBillPosted(userID, amqp.FixedBillPayload{
		BillID:        bill.ID,
		BillName:      bill.Name,
		TransactionID: tx.ID,
		AmountCents:   tx.Amount.Cents,
		Date:          tx.Date.String(),
	}))
	r.structured.LogFixedBillPosted(ctx, userID, bill.ID, tx.ID, tx.Amount.Cents, target.String())
	return true, nil
}

// RunAllForMonth runs RunForMonth for every user with active bills.
func (r *FixedBillRunner) RunAllForMonth(ctx context.Context, year int, month time.Month) (RunResult, error) {
	var total RunResult
	users, err := r.repo.UsersWithActiveFixedBills(ctx)
	if err != nil {
		return total, fmt.Errorf("list users with fixed bills: %w", err)
	}

	for _, userID := range users {
		res, err := r.RunForMonth(ctx, userID, year, month)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			total.Failed++
			r.structured.LogError(ctx, "Fixed bills run failed for user", err,
				applog.ComponentFixedBill, applog.OpRun,
				applog.NewFields().WithUser(userID).WithErrorType(applog.ErrorTypeDatabase))
			continue
		}
		total.add(res)
	}
	return total, nil
}
