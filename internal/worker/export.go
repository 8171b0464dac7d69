// Package worker holds the long-running loops behind the fixedbills-worker
// and export-worker binaries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/cache"
	applog "fincontrol/internal/log"
	"fincontrol/internal/sheets"
)

const (
	seenCacheSize = 10000
	seenCacheTTL  = 24 * time.Hour
	maxRetryDelay = time.Minute
)

// Consumer delivers events until ctx is cancelled. *amqp.Client satisfies it.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.Event) error) error
}

// ExportWorker appends every sale and posted fixed bill to the export sheet.
// Events already exported by this process are acknowledged without a
// second append.
type ExportWorker struct {
	rows   sheets.RowWriter
	seen   *cache.LRUCache[string]
	logger *applog.Logger
	sleep  func(context.Context, time.Duration) bool
}

func NewExportWorker(rows sheets.RowWriter, logger *applog.Logger) *ExportWorker {
	return &ExportWorker{
		rows:   rows,
		seen:   cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
		logger: logger.WithComponent(applog.ComponentWorker),
		sleep:  sleepCtx,
	}
}

// Cleaner exposes the dedup cache for periodic expiry.
func (w *ExportWorker) Cleaner() cache.Cleaner {
	return w.seen
}

// HandleEvent exports one event. A returned error makes the broker requeue it.
func (w *ExportWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	if ref, ok := w.seen.Get(e.ID); ok {
		w.logger.DebugContext(ctx, "Event already exported",
			applog.FieldEventID, e.ID,
			"row", ref)
		return nil
	}

	var (
		ref string
		err error
	)
	switch e.Type {
	case amqp.EventSaleRecorded:
		ref, err = w.rows.AppendSale(ctx, saleRow(e))
	case amqp.EventFixedBillPosted:
		ref, err = w.rows.AppendFixedBill(ctx, fixedBillRow(e))
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type",
			applog.FieldEventID, e.ID,
			applog.FieldEventType, e.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("export %s %s: %w", e.Type, e.ID, err)
	}

	w.seen.Set(e.ID, ref)
	w.logger.InfoContext(ctx, "Event exported",
		applog.FieldEventID, e.ID,
		applog.FieldEventType, e.Type,
		applog.FieldUserID, e.UserID,
		"row", ref)
	return nil
}

func saleRow(e *amqp.Event) sheets.SaleRow {
	s := e.Sale
	return sheets.SaleRow{
		SaleID:        s.SaleID,
		UserID:        e.UserID,
		OfferName:     s.OfferName,
		OrderID:       s.OrderID,
		Source:        s.Source,
		Status:        s.Status,
		AmountCents:   s.AmountCents,
		CustomerEmail: s.CustomerEmail,
		OccurredAt:    s.OccurredAt,
	}
}

func fixedBillRow(e *amqp.Event) sheets.FixedBillRow {
	b := e.FixedBill
	return sheets.FixedBillRow{
		TransactionID: b.TransactionID,
		UserID:        e.UserID,
		BillID:        b.BillID,
		BillName:      b.BillName,
		AmountCents:   b.AmountCents,
		Date:          b.Date,
	}
}

// Run consumes until ctx is cancelled, restarting the consumer with
// exponential backoff when the broker connection drops.
func (w *ExportWorker) Run(ctx context.Context, c Consumer) error {
	delay := time.Second
	for {
		start := time.Now()
		err := c.Consume(ctx, w.HandleEvent)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("consumer stopped")
		}
		if time.Since(start) > maxRetryDelay {
			delay = time.Second
		}
		w.logger.WarnContext(ctx, "Consumer stopped, restarting",
			applog.FieldError, err,
			"retry_in", delay.String())
		if !w.sleep(ctx, delay) {
			return nil
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
