package http

import (
	"net/http"
	"strings"

	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

type categoryRequest struct {
	Name  string            `json:"name"`
	Kind  core.CategoryKind `json:"kind"`
	Color string            `json:"color"`
}

func (c categoryRequest) category(id string) core.Category {
	return core.Category{ID: id, Name: sanitizeInput(c.Name), Kind: c.Kind, Color: strings.TrimSpace(c.Color)}
}

type accountRequest struct {
	Name                string           `json:"name"`
	Kind                core.AccountKind `json:"kind"`
	InitialBalanceCents int64            `json:"initial_balance_cents"`
	Archived            bool             `json:"archived"`
}

func (a accountRequest) account(id string) core.Account {
	return core.Account{
		ID:             id,
		Name:           sanitizeInput(a.Name),
		Kind:           a.Kind,
		InitialBalance: core.Money{Cents: a.InitialBalanceCents},
		Archived:       a.Archived,
	}
}

type cardRequest struct {
	Name       string `json:"name"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
	LimitCents int64  `json:"limit_cents"`
	Archived   bool   `json:"archived"`
}

func (c cardRequest) card(id string) core.Card {
	return core.Card{
		ID:         id,
		Name:       sanitizeInput(c.Name),
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
		Limit:      core.Money{Cents: c.LimitCents},
		Archived:   c.Archived,
	}
}

// Onboarding

type onboardingRequest struct {
	Accounts   []accountRequest  `json:"accounts"`
	Cards      []cardRequest     `json:"cards"`
	Categories []categoryRequest `json:"categories"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in storage.Onboarding
	for _, a := range req.Accounts {
		in.Accounts = append(in.Accounts, a.account(""))
	}
	for _, c := range req.Cards {
		in.Cards = append(in.Cards, c.card(""))
	}
	for _, c := range req.Categories {
		in.Categories = append(in.Categories, c.category(""))
	}

	out, err := s.deps.Finance.Onboard(r.Context(), currentUser(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toOnboarding(out))
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := core.CategoryKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	list, err := s.deps.Finance.ListCategories(r.Context(), currentUser(r), kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toCategory))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.deps.Finance.CreateCategory(r.Context(), currentUser(r), req.category(""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toCategory(c))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Finance.GetCategory(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.deps.Finance.UpdateCategory(r.Context(), currentUser(r), req.category(r.PathValue("id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Finance.DeleteCategory(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accounts

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Finance.ListAccounts(r.Context(), currentUser(r), parseBool(r, "include_archived"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toAccount))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a, err := s.deps.Finance.CreateAccount(r.Context(), currentUser(r), req.account(""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toAccount(a))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a, err := s.deps.Finance.UpdateAccount(r.Context(), currentUser(r), req.account(r.PathValue("id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAccount(a))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Finance.DeleteAccount(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cards

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Finance.ListCards(r.Context(), currentUser(r), parseBool(r, "include_archived"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toCard))
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.deps.Finance.CreateCard(r.Context(), currentUser(r), req.card(""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toCard(c))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.deps.Finance.UpdateCard(r.Context(), currentUser(r), req.card(r.PathValue("id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCard(c))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Finance.DeleteCard(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transactions

type transactionRequest struct {
	moneyInput
	Kind        core.TransactionKind `json:"kind"`
	Date        string               `json:"date"`
	Description string               `json:"description"`
	CategoryID  string               `json:"category_id"`
	AccountID   string               `json:"account_id"`
	CardID      string               `json:"card_id"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
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

	t, err := s.deps.Finance.CreateTransaction(r.Context(), currentUser(r), core.Transaction{
		Kind:        req.Kind,
		Amount:      amount,
		Date:        date,
		Description: sanitizeInput(req.Description),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Destination: core.Destination{
			AccountID: strings.TrimSpace(req.AccountID),
			CardID:    strings.TrimSpace(req.CardID),
		},
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toTransaction(t))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if month.IsZero() {
		month = s.deps.Clock.ThisMonth()
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := s.deps.Finance.ListTransactions(r.Context(), currentUser(r), month, storage.TransactionFilter{
		AccountID:  strings.TrimSpace(q.Get("account_id")),
		CardID:     strings.TrimSpace(q.Get("card_id")),
		CategoryID: strings.TrimSpace(q.Get("category_id")),
		Kind:       core.TransactionKind(strings.TrimSpace(q.Get("kind"))),
		Limit:      limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toTransaction))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Finance.DeleteTransaction(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type transferRequest struct {
	moneyInput
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	ToCardID      string `json:"to_card_id"`
	Date          string `json:"date"`
	Description   string `json:"description"`
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
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

	out, in, err := s.deps.Finance.CreateTransfer(r.Context(), currentUser(r), core.Transfer{
		FromAccountID: strings.TrimSpace(req.FromAccountID),
		To: core.Destination{
			AccountID: strings.TrimSpace(req.ToAccountID),
			CardID:    strings.TrimSpace(req.ToCardID),
		},
		Amount:      amount,
		Date:        date,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]transactionJSON{
		"out": toTransaction(out),
		"in":  toTransaction(in),
	})
}

// Budgets

type budgetRequest struct {
	moneyInput
	CategoryID string `json:"category_id"`
	Month      string `json:"month"`
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := req.money()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	month := s.deps.Clock.ThisMonth()
	if strings.TrimSpace(req.Month) != "" {
		if month, err = core.ParseMonth(req.Month); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	b, err := s.deps.Finance.UpsertBudget(r.Context(), currentUser(r), core.Budget{
		CategoryID: strings.TrimSpace(req.CategoryID),
		Month:      month,
		Amount:     amount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBudget(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if month.IsZero() {
		month = s.deps.Clock.ThisMonth()
	}
	list, err := s.deps.Finance.ListBudgets(r.Context(), currentUser(r), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mapSlice(list, toBudget))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Finance.DeleteBudget(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dateOrToday parses YYYY-MM-DD, defaulting to today in the app timezone.
func (s *Server) dateOrToday(raw string) (core.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.deps.Clock.Today(), nil
	}
	return core.ParseDate(raw)
}
