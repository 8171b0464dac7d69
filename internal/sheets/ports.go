package sheets

import (
	"context"
	"time"
)

// Rows written by the export worker. Money is integer cents.
type (
	SaleRow struct {
		SaleID        string
		UserID        string
		OfferName     string
		OrderID       string
		Source        string
		Status        string
		AmountCents   int64
		CustomerEmail string
		OccurredAt    time.Time
	}

	FixedBillRow struct {
		TransactionID string
		UserID        string
		BillID        string
		BillName      string
		AmountCents   int64
		Date          string // YYYY-MM-DD
	}
)

// RowWriter appends rows to an export target and returns a row reference.
type RowWriter interface {
	AppendSale(ctx context.Context, row SaleRow) (rowRef string, err error)
	AppendFixedBill(ctx context.Context, row FixedBillRow) (rowRef string, err error)
}
