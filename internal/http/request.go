package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidBody  = fmt.Errorf("%w: invalid request body", core.ErrValidation)
	errInvalidQuery = fmt.Errorf("%w: invalid query parameter", core.ErrValidation)
)

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errInvalidBody)
	}
	return nil
}

// Money is accepted either as integer cents or as a decimal string.
type moneyInput struct {
	AmountCents *int64 `json:"amount_cents"`
	Amount      string `json:"amount"`
}

func (m moneyInput) money() (core.Money, error) {
	if m.AmountCents != nil {
		return core.Money{Cents: *m.AmountCents}, nil
	}
	if strings.TrimSpace(m.Amount) == "" {
		return core.Money{}, core.ErrInvalidAmount
	}
	cents, err := core.ParseDecimalToCents(m.Amount)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// parseMonth reads ?month=YYYY-MM, or the ?year=&month= pair. Without
// parameters it returns the zero month.
func parseMonth(r *http.Request) (core.Month, error) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("month"))
	if raw == "" {
		return core.Month{}, nil
	}
	if strings.Contains(raw, "-") {
		m, err := core.ParseMonth(raw)
		if err != nil {
			return core.Month{}, fmt.Errorf("%w: month: %v", errInvalidQuery, err)
		}
		return m, nil
	}

	month, err := strconv.Atoi(raw)
	if err != nil || month < 1 || month > 12 {
		return core.Month{}, fmt.Errorf("%w: month %q", errInvalidQuery, raw)
	}
	year := time.Now().Year()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return core.Month{}, fmt.Errorf("%w: year %q", errInvalidQuery, v)
		}
	}
	return core.Month{Year: year, Month: time.Month(month)}, nil
}

// parseDateRange reads ?from=&to= (YYYY-MM-DD). Both or neither must be set.
func parseDateRange(r *http.Request) (storage.DateRange, error) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return storage.DateRange{}, nil
	}
	if from == "" || to == "" {
		return storage.DateRange{}, fmt.Errorf("%w: from and to go together", errInvalidQuery)
	}
	f, err := core.ParseDate(from)
	if err != nil {
		return storage.DateRange{}, err
	}
	t, err := core.ParseDate(to)
	if err != nil {
		return storage.DateRange{}, err
	}
	return storage.DateRange{From: f, To: t}, nil
}

func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: limit %q", errInvalidQuery, v)
	}
	return n, nil
}

func parseBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// digitalFilter reads the range, offer and limit shared by digital listings.
func digitalFilter(r *http.Request) (storage.DigitalFilter, error) {
	dr, err := parseDateRange(r)
	if err != nil {
		return storage.DigitalFilter{}, err
	}
	limit, err := parseLimit(r)
	if err != nil {
		return storage.DigitalFilter{}, err
	}
	return storage.DigitalFilter{
		Range:   dr,
		OfferID: strings.TrimSpace(r.URL.Query().Get("offer_id")),
		Limit:   limit,
	}, nil
}

// sanitizeInput removes control characters except tab, newline and CR.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
