package http

import (
	"net/http"
	"strings"

	"fincontrol/internal/core"
)

type fixedBillRequest struct {
	moneyInput
	Name       string `json:"name"`
	Day        int    `json:"day"`
	AccountID  string `json:"account_id"`
	CardID     string `json:"card_id"`
	CategoryID string `json:"category_id"`
	Active     *bool  `json:"active"`
}

func (req fixedBillRequest) bill(id string) (core.FixedBill, error) {
	amount, err := req.money()
	if err != nil {
		return core.FixedBill{}, err
	}
	b := core.FixedBill{
		ID:     id,
		Name:   sanitizeInput(req.Name),
		Amount: amount,
		Day:    req.Day,
		Destination: core.Destination{
			AccountID: strings.TrimSpace(req.AccountID),
			CardID:    strings.TrimSpace(req.CardID),
		},
		CategoryID: strings.TrimSpace(req.CategoryID),
		Active:     true,
	}
	if req.Active != nil {
		b.Active = *req.Active
	}
	return b, nil
}

func (s *Server) handleListFixedBills(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.FixedBills.List(r.Context(), currentUser(r), parseBool(r, "active"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	committed, err := s.deps.FixedBills.MonthlyCommitted(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"bills":                   mapSlice(list, toFixedBill),
		"monthly_committed_cents": committed.Cents,
	})
}

func (s *Server) handleCreateFixedBill(w http.ResponseWriter, r *http.Request) {
	var req fixedBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	b, err := req.bill("")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.deps.FixedBills.Create(r.Context(), currentUser(r), b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toFixedBill(created))
}

func (s *Server) handleGetFixedBill(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.FixedBills.Get(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toFixedBill(b))
}

func (s *Server) handleUpdateFixedBill(w http.ResponseWriter, r *http.Request) {
	var req fixedBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	b, err := req.bill(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := s.deps.FixedBills.Update(r.Context(), currentUser(r), b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toFixedBill(updated))
}

func (s *Server) handleDeleteFixedBill(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.FixedBills.Delete(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunFixedBills posts the caller's bills for ?month (default current).
func (s *Server) handleRunFixedBills(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if month.IsZero() {
		month = s.deps.Clock.ThisMonth()
	}
	res, err := s.deps.Runner.RunForMonth(r.Context(), currentUser(r), month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"month":  month,
		"result": res,
	})
}
