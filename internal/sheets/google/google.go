package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "fincontrol/internal/log"
	ports "fincontrol/internal/sheets"
)

const (
	defaultSalesSheet      = "Sales"
	defaultFixedBillsSheet = "FixedBills"
	callTimeout            = 30 * time.Second
)

var _ ports.RowWriter = (*Client)(nil)

type Config struct {
	SpreadsheetID   string
	SalesSheet      string
	FixedBillsSheet string
	// Service account credentials: inline JSON wins over the file path.
	CredentialsJSON string
	CredentialsFile string
	// Location formats sale timestamps; UTC when nil.
	Location *time.Location
}

type Client struct {
	svc             *gsheet.Service
	spreadsheetID   string
	salesSheet      string
	fixedBillsSheet string
	loc             *time.Location
	logger          *applog.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	var auth goption.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		auth = goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		auth = goption.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	return NewWithOptions(ctx, cfg, logger, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds the client from explicit API options, e.g. a test
// endpoint.
func NewWithOptions(ctx context.Context, cfg Config, logger *applog.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	c := &Client{
		svc:             svc,
		spreadsheetID:   cfg.SpreadsheetID,
		salesSheet:      orDefault(cfg.SalesSheet, defaultSalesSheet),
		fixedBillsSheet: orDefault(cfg.FixedBillsSheet, defaultFixedBillsSheet),
		loc:             cfg.Location,
		logger:          logger.WithComponent(applog.ComponentSheets),
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	c.logger.InfoContext(ctx, "Google Sheets client ready",
		"spreadsheet_id", c.spreadsheetID,
		"sales_sheet", c.salesSheet,
		"fixed_bills_sheet", c.fixedBillsSheet)
	return c, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// AppendSale writes one sale row: date, order, offer, status, source,
// amount, customer, sale id, user id.
func (c *Client) AppendSale(ctx context.Context, row ports.SaleRow) (string, error) {
	return c.append(ctx, c.salesSheet, "A:I", []any{
		row.OccurredAt.In(c.loc).Format("2006-01-02 15:04"),
		row.OrderID,
		row.OfferName,
		row.Status,
		row.Source,
		FormatCents(row.AmountCents),
		row.CustomerEmail,
		row.SaleID,
		row.UserID,
	})
}

// AppendFixedBill writes one posted bill: date, bill, amount, transaction
// id, bill id, user id.
func (c *Client) AppendFixedBill(ctx context.Context, row ports.FixedBillRow) (string, error) {
	return c.append(ctx, c.fixedBillsSheet, "A:F", []any{
		row.Date,
		row.BillName,
		FormatCents(row.AmountCents),
		row.TransactionID,
		row.BillID,
		row.UserID,
	})
}

func (c *Client) append(ctx context.Context, sheet, cols string, values []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rng := fmt.Sprintf("%s!%s", sheet, cols)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Row appended", "range", ref)
	return ref, nil
}

// FormatCents renders cents as a plain decimal ("1234.50") so the sheet
// parses it as a number regardless of locale.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
