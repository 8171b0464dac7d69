package http

import (
	"net/http"
	"strings"
	"time"

	"fincontrol/internal/core"
)

// Offers

type offerRequest struct {
	Name       string           `json:"name"`
	ExternalID string           `json:"external_id"`
	PriceCents int64            `json:"price_cents"`
	Status     core.OfferStatus `json:"status"`
}

func (o offerRequest) offer(id string) core.Offer {
	return core.Offer{
		ID:         id,
		Name:       sanitizeInput(o.Name),
		ExternalID: o.ExternalID,
		Price:      core.Money{Cents: o.PriceCents},
		Status:     o.Status,
	}
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Digital.ListOffers(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toOffer))
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	o, err := s.deps.Digital.CreateOffer(r.Context(), currentUser(r), req.offer(""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toOffer(o))
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	o, err := s.deps.Digital.UpdateOffer(r.Context(), currentUser(r), req.offer(r.PathValue("id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toOffer(o))
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Digital.DeleteOffer(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Spend events

type spendRequest struct {
	moneyInput
	OfferID  string        `json:"offer_id"`
	Date     string        `json:"date"`
	Platform core.Platform `json:"platform"`
	Note     string        `json:"note"`
}

func (s *Server) handleListSpend(w http.ResponseWriter, r *http.Request) {
	f, err := digitalFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Digital.ListSpend(r.Context(), currentUser(r), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toSpend))
}

func (s *Server) handleCreateSpend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := req.money()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	e, err := s.deps.Digital.CreateSpend(r.Context(), currentUser(r), core.SpendEvent{
		OfferID:  strings.TrimSpace(req.OfferID),
		Date:     date,
		Amount:   amount,
		Platform: req.Platform,
		Note:     sanitizeInput(req.Note),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toSpend(e))
}

func (s *Server) handleDeleteSpend(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Digital.DeleteSpend(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sales

type saleRequest struct {
	moneyInput
	OfferID       string          `json:"offer_id"`
	OrderID       string          `json:"order_id"`
	Status        core.SaleStatus `json:"status"`
	CustomerEmail string          `json:"customer_email"`
	OccurredAt    *time.Time      `json:"occurred_at"`
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	f, err := digitalFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Digital.ListSales(r.Context(), currentUser(r), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toSale))
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := req.money()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sale := core.Sale{
		OfferID:       strings.TrimSpace(req.OfferID),
		OrderID:       sanitizeInput(req.OrderID),
		Status:        req.Status,
		Amount:        amount,
		CustomerEmail: req.CustomerEmail,
	}
	if req.OccurredAt != nil {
		sale.OccurredAt = req.OccurredAt.UTC()
	}

	created, err := s.deps.Digital.CreateSale(r.Context(), currentUser(r), sale)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toSale(created))
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Digital.DeleteSale(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Work sessions

type workSessionRequest struct {
	OfferID string `json:"offer_id"`
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
	Note    string `json:"note"`
}

func (s *Server) handleListWorkSessions(w http.ResponseWriter, r *http.Request) {
	f, err := digitalFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Digital.ListWorkSessions(r.Context(), currentUser(r), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toWorkSession))
}

func (s *Server) handleCreateWorkSession(w http.ResponseWriter, r *http.Request) {
	var req workSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	date, err := s.dateOrToday(req.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	ws, err := s.deps.Digital.CreateWorkSession(r.Context(), currentUser(r), core.WorkSession{
		OfferID: strings.TrimSpace(req.OfferID),
		Date:    date,
		Minutes: req.Minutes,
		Note:    sanitizeInput(req.Note),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toWorkSession(ws))
}

func (s *Server) handleDeleteWorkSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Digital.DeleteWorkSession(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
