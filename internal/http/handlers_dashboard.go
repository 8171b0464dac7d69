package http

import (
	"net/http"

	"fincontrol/internal/services"
)

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Invoices.CardInvoices(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toInvoice))
}

func (s *Server) handleFinanceDashboard(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := s.deps.FinanceDash.Report(r.Context(), currentUser(r), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toFinanceReport(report))
}

func (s *Server) handleDigitalDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := digitalFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := s.deps.DigitalDash.Report(r.Context(), currentUser(r), f.Range, f.OfferID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toDigitalReport(report))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, err := s.deps.Activity.List(r.Context(), currentUser(r), services.ClampActivityLimit(limit))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(items, toActivity))
}
