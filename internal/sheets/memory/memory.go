// Package memory is an in-process RowWriter for dry runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "fincontrol/internal/sheets"
)

var _ ports.RowWriter = (*Store)(nil)

type Store struct {
	mu         sync.Mutex
	sales      []ports.SaleRow
	fixedBills []ports.FixedBillRow
	failNext   int
}

func New() *Store {
	return &Store{}
}

// FailNext makes the next n appends fail, simulating an unavailable sheet.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Store) fail() error {
	if s.failNext > 0 {
		s.failNext--
		return errors.New("memory store: simulated failure")
	}
	return nil
}

// AppendSale stores the row and returns a synthetic row reference.
func (s *Store) AppendSale(_ context.Context, row ports.SaleRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return "", err
	}
	s.sales = append(s.sales, row)
	return fmt.Sprintf("mem:sales:%d", len(s.sales)), nil
}

func (s *Store) AppendFixedBill(_ context.Context, row ports.FixedBillRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return "", err
	}
	s.fixedBills = append(s.fixedBills, row)
	return fmt.Sprintf("mem:fixed_bills:%d", len(s.fixedBills)), nil
}

// Sales returns a copy of the stored sale rows.
func (s *Store) Sales() []ports.SaleRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.SaleRow(nil), s.sales...)
}

func (s *Store) FixedBills() []ports.FixedBillRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.FixedBillRow(nil), s.fixedBills...)
}
