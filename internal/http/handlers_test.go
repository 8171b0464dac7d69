package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fincontrol/internal/auth"
	"fincontrol/internal/core"
	"fincontrol/internal/kiwify"
	"fincontrol/internal/services"
	"fincontrol/internal/storage"
)

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "Ana@Example.com",
		"name":     "Ana",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup = %d %s", rec.Code, rec.Body)
	}
	var session sessionJSON
	decode(t, rec, &session)
	if session.Token == "" || session.User.Email != "ana@example.com" {
		t.Fatalf("unexpected session %+v", session)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value != session.Token {
		t.Fatalf("session cookie = %+v", cookie)
	}

	if rec := env.do(http.MethodGet, "/api/auth/me", session.Token, nil); rec.Code != http.StatusOK {
		t.Errorf("me with bearer = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	cookieRec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(cookieRec, req)
	if cookieRec.Code != http.StatusOK {
		t.Errorf("me with cookie = %d", cookieRec.Code)
	}

	tests := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"duplicate email", "/api/auth/signup", map[string]string{"email": "ana@example.com", "password": "another-pass"}, http.StatusConflict},
		{"weak password", "/api/auth/signup", map[string]string{"email": "bob@example.com", "password": "short"}, http.StatusUnprocessableEntity},
		{"invalid email", "/api/auth/signup", map[string]string{"email": "nope", "password": "long-enough"}, http.StatusUnprocessableEntity},
		{"wrong password", "/api/auth/login", map[string]string{"email": "ana@example.com", "password": "wrong-horse"}, http.StatusUnauthorized},
		{"unknown user", "/api/auth/login", map[string]string{"email": "who@example.com", "password": "whatever1"}, http.StatusUnauthorized},
		{"good login", "/api/auth/login", map[string]string{"email": "ANA@example.com", "password": "correct-horse"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(http.MethodPost, tt.path, "", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	if rec := env.do(http.MethodPost, "/api/auth/logout", session.Token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/auth/me", session.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout = %d, want 401", rec.Code)
	}
}

func TestFinanceEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	var account accountJSON
	rec := env.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Nubank", "initial_balance_cents": 100000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account = %d %s", rec.Code, rec.Body)
	}
	decode(t, rec, &account)

	var category categoryJSON
	rec = env.do(http.MethodPost, "/api/categories", token, map[string]any{"name": "Mercado", "kind": "expense"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category = %d %s", rec.Code, rec.Body)
	}
	decode(t, rec, &category)

	rec = env.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"kind":        "expense",
		"amount":      "12,50",
		"date":        "2026-03-10",
		"description": "Feira",
		"category_id": category.ID,
		"account_id":  account.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction = %d %s", rec.Code, rec.Body)
	}
	var tx transactionJSON
	decode(t, rec, &tx)
	if tx.AmountCents != 1250 || tx.Date.String() != "2026-03-10" {
		t.Errorf("transaction = %+v", tx)
	}

	var list []transactionJSON
	rec = env.do(http.MethodGet, "/api/transactions?month=2026-03", token, nil)
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != tx.ID {
		t.Errorf("list = %+v", list)
	}
	rec = env.do(http.MethodGet, "/api/transactions?month=2&year=2026", token, nil)
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Errorf("february should be empty, got %d", len(list))
	}

	var accounts []accountJSON
	decode(t, env.do(http.MethodGet, "/api/accounts", token, nil), &accounts)
	if len(accounts) != 1 || accounts[0].BalanceCents != 98750 {
		t.Errorf("accounts = %+v", accounts)
	}

	rejects := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown field", "/api/accounts", `{"name":"X","colour":"red"}`, http.StatusUnprocessableEntity},
		{"malformed json", "/api/accounts", `{"name":`, http.StatusUnprocessableEntity},
		{"trailing data", "/api/accounts", `{"name":"X"} {}`, http.StatusUnprocessableEntity},
		{"bad kind", "/api/categories", map[string]any{"name": "X", "kind": "gift"}, http.StatusUnprocessableEntity},
		{"no destination", "/api/transactions", map[string]any{"kind": "expense", "amount_cents": 100, "description": "x"}, http.StatusUnprocessableEntity},
		{"bad amount", "/api/transactions", map[string]any{"kind": "expense", "amount": "abc", "description": "x", "account_id": account.ID}, http.StatusUnprocessableEntity},
		{"bad date", "/api/transactions", map[string]any{"kind": "expense", "amount_cents": 100, "description": "x", "date": "10/03/2026", "account_id": account.ID}, http.StatusUnprocessableEntity},
		{"unknown account", "/api/transactions", map[string]any{"kind": "expense", "amount_cents": 100, "description": "x", "account_id": "missing"}, http.StatusNotFound},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(http.MethodPost, tt.path, token, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	if rec := env.do(http.MethodGet, "/api/transactions?month=2026-13", token, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad month query = %d, want 422", rec.Code)
	}

	other, _ := env.signup("intruder@example.com")
	if rec := env.do(http.MethodDelete, "/api/transactions/"+tx.ID, other, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete = %d, want 404", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/categories/"+category.ID, other, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign category = %d, want 404", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/api/transactions/"+tx.ID, token, nil); rec.Code != http.StatusOK {
		t.Errorf("owner delete = %d", rec.Code)
	}
}

func TestTransferAndBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	var from, to accountJSON
	decode(t, env.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Corrente", "initial_balance_cents": 50000}), &from)
	decode(t, env.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Reserva", "kind": "savings"}), &to)

	rec := env.do(http.MethodPost, "/api/transfers", token, map[string]any{
		"from_account_id": from.ID,
		"to_account_id":   to.ID,
		"amount_cents":    20000,
		"date":            "2026-03-05",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer = %d %s", rec.Code, rec.Body)
	}
	var legs map[string]transactionJSON
	decode(t, rec, &legs)
	if legs["out"].TransferGroupID == "" || legs["out"].TransferGroupID != legs["in"].TransferGroupID {
		t.Errorf("legs not linked: %+v", legs)
	}

	rec = env.do(http.MethodDelete, "/api/transactions/"+legs["in"].ID, token, nil)
	var deleted map[string]int64
	decode(t, rec, &deleted)
	if deleted["deleted"] != 2 {
		t.Errorf("deleting a transfer leg removed %d rows, want 2", deleted["deleted"])
	}

	var category categoryJSON
	decode(t, env.do(http.MethodPost, "/api/categories", token, map[string]any{"name": "Lazer", "kind": "expense"}), &category)
	for _, cents := range []int{30000, 45000} {
		rec := env.do(http.MethodPost, "/api/budgets", token, map[string]any{"category_id": category.ID, "month": "2026-03", "amount_cents": cents})
		if rec.Code != http.StatusOK {
			t.Fatalf("upsert budget = %d %s", rec.Code, rec.Body)
		}
	}
	var budgets []budgetJSON
	decode(t, env.do(http.MethodGet, "/api/budgets?month=2026-03", token, nil), &budgets)
	if len(budgets) != 1 || budgets[0].AmountCents != 45000 {
		t.Errorf("budgets = %+v", budgets)
	}
}

func TestOnboardingEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("new@example.com")

	rec := env.do(http.MethodPost, "/api/onboarding", token, map[string]any{
		"cards": []map[string]any{{"name": "Visa", "closing_day": 3, "due_day": 10}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("onboarding = %d %s", rec.Code, rec.Body)
	}
	var out onboardingJSON
	decode(t, rec, &out)
	if len(out.Accounts) != 1 || len(out.Cards) != 1 || len(out.Categories) != len(services.DefaultCategories()) {
		t.Errorf("onboarding result = %+v", out)
	}

	var me userJSON
	decode(t, env.do(http.MethodGet, "/api/auth/me", token, nil), &me)
	if me.OnboardedAt == nil {
		t.Error("user should be stamped as onboarded")
	}
	if rec := env.do(http.MethodPost, "/api/onboarding", token, map[string]any{}); rec.Code != http.StatusConflict {
		t.Errorf("second onboarding = %d, want 409", rec.Code)
	}
}

func TestFixedBillEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	var account accountJSON
	decode(t, env.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Corrente"}), &account)

	rec := env.do(http.MethodPost, "/api/fixed-bills", token, map[string]any{
		"name":         "Aluguel",
		"amount_cents": 150000,
		"day":          31,
		"account_id":   account.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill = %d %s", rec.Code, rec.Body)
	}
	var bill fixedBillJSON
	decode(t, rec, &bill)
	if !bill.Active {
		t.Error("new bills default to active")
	}

	for i, wantCreated := range []int{1, 0} {
		rec := env.do(http.MethodPost, "/api/fixed-bills/run?month=2026-02", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("run %d = %d %s", i, rec.Code, rec.Body)
		}
		var out struct {
			Month  string             `json:"month"`
			Result services.RunResult `json:"result"`
		}
		decode(t, rec, &out)
		if out.Month != "2026-02" || out.Result.Created != wantCreated {
			t.Errorf("run %d = %+v, want %d created", i, out, wantCreated)
		}
	}

	var list []transactionJSON
	decode(t, env.do(http.MethodGet, "/api/transactions?month=2026-02", token, nil), &list)
	if len(list) != 1 || list[0].Date.String() != "2026-02-28" || list[0].FixedBillID != bill.ID {
		t.Errorf("posted transactions = %+v", list)
	}

	var listed struct {
		Bills     []fixedBillJSON `json:"bills"`
		Committed int64           `json:"monthly_committed_cents"`
	}
	decode(t, env.do(http.MethodGet, "/api/fixed-bills", token, nil), &listed)
	if len(listed.Bills) != 1 || listed.Committed != 150000 || listed.Bills[0].LastProcessedMonth != "2026-02" {
		t.Errorf("fixed bills = %+v", listed)
	}
}

func TestFinanceDashboardIsInvalidatedOnWrite(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	var account accountJSON
	decode(t, env.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Corrente", "initial_balance_cents": 10000}), &account)

	var before financeReportJSON
	decode(t, env.do(http.MethodGet, "/api/dashboard/finance", token, nil), &before)
	if before.ExpensesCents != 0 || before.Month.String() != "2026-03" {
		t.Fatalf("initial report = %+v", before)
	}

	rec := env.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"kind":         "expense",
		"amount_cents": 2500,
		"description":  "Padaria",
		"account_id":   account.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction = %d %s", rec.Code, rec.Body)
	}

	var after financeReportJSON
	decode(t, env.do(http.MethodGet, "/api/dashboard/finance", token, nil), &after)
	if after.ExpensesCents != 2500 || after.TotalBalanceCents != 7500 {
		t.Errorf("report after write = %+v", after)
	}
	if after.ByCategory == nil || after.Budgets == nil {
		t.Error("report slices should encode as arrays")
	}
}

func TestDigitalEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	var offer offerJSON
	rec := env.do(http.MethodPost, "/api/offers", token, map[string]any{"name": "Curso", "price_cents": 9700})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create offer = %d %s", rec.Code, rec.Body)
	}
	decode(t, rec, &offer)

	steps := []struct {
		path string
		body map[string]any
	}{
		{"/api/sales", map[string]any{"offer_id": offer.ID, "amount_cents": 9700}},
		{"/api/sales", map[string]any{"offer_id": offer.ID, "amount": "97.00", "order_id": "A-2"}},
		{"/api/spend", map[string]any{"offer_id": offer.ID, "amount_cents": 4850, "date": "2026-03-02", "platform": "meta"}},
		{"/api/work-sessions", map[string]any{"offer_id": offer.ID, "minutes": 120, "date": "2026-03-03"}},
	}
	for _, st := range steps {
		if rec := env.do(http.MethodPost, st.path, token, st.body); rec.Code != http.StatusCreated {
			t.Fatalf("POST %s = %d %s", st.path, rec.Code, rec.Body)
		}
	}
	if rec := env.do(http.MethodPost, "/api/sales", token, map[string]any{"offer_id": offer.ID, "amount_cents": 100, "order_id": "A-2"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate order = %d, want 409", rec.Code)
	}

	var report digitalReportJSON
	decode(t, env.do(http.MethodGet, "/api/dashboard/digital", token, nil), &report)
	m := report.Metrics
	if m.RevenueCents != 19400 || m.SpendCents != 4850 || m.PaidCount != 2 || m.ROAS == nil || m.ROAS.String() != "4" {
		t.Errorf("metrics = %+v", m)
	}
	if len(report.Offers) != 1 {
		t.Errorf("offers breakdown = %+v", report.Offers)
	}

	if rec := env.do(http.MethodGet, "/api/dashboard/digital?from=2026-03-10", token, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("half range = %d, want 422", rec.Code)
	}

	var activity []activityJSON
	decode(t, env.do(http.MethodGet, "/api/activity?limit=2", token, nil), &activity)
	if len(activity) != 2 {
		t.Errorf("activity = %+v", activity)
	}

	if rec := env.do(http.MethodDelete, "/api/offers/"+offer.ID, token, nil); rec.Code != http.StatusConflict {
		t.Errorf("deleting a referenced offer = %d, want 409", rec.Code)
	}
}

func TestInvoicesEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	token, _ := env.signup("owner@example.com")

	rec := env.do(http.MethodPost, "/api/cards", token, map[string]any{"name": "Visa", "closing_day": 10, "due_day": 20})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card = %d %s", rec.Code, rec.Body)
	}
	var invoices []invoiceJSON
	decode(t, env.do(http.MethodGet, "/api/invoices", token, nil), &invoices)
	if len(invoices) != 1 {
		t.Fatalf("invoices = %+v", invoices)
	}
	if got := invoices[0].CurrentCycle.Start.String(); got != "2026-03-11" {
		t.Errorf("current cycle start = %s, want 2026-03-11", got)
	}
}

func TestKiwifyWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, userID := env.signup("seller@example.com")
	env.server.deps.Webhook = services.NewWebhookService(env.repo, nil,
		services.WebhookConfig{Secret: webhookSecret, UserID: userID}, env.server.deps.Logger)

	body := `{"order_id":"K-1","webhook_event_type":"order_approved","Product":{"product_id":"p1","product_name":"Mentoria"},"Commissions":{"charge_amount":19700}}`

	send := func(payload, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/kiwify", strings.NewReader(payload))
		if signature != "" {
			req.Header.Set(kiwify.SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		env.server.Handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send(body, kiwify.Sign([]byte(body), webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook = %d %s", rec.Code, rec.Body)
	}
	var ok webhookResponse
	decode(t, rec, &ok)
	if !ok.OK || !ok.Inserted || ok.Status != string(core.SalePaid) {
		t.Errorf("response = %+v", ok)
	}

	unknown := `{"order_id":"K-2","webhook_event_type":"order_teleported","Product":{"product_id":"p1"},"Commissions":{"charge_amount":100}}`
	tests := []struct {
		name      string
		payload   string
		signature string
		status    int
		stage     string
	}{
		{"missing signature", body, "", http.StatusUnauthorized, services.StageAuth},
		{"wrong signature", body, kiwify.Sign([]byte(body), "other"), http.StatusUnauthorized, services.StageAuth},
		{"unknown event", unknown, kiwify.Sign([]byte(unknown), webhookSecret), http.StatusBadRequest, services.StageValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(tt.payload, tt.signature)
			var out webhookResponse
			decode(t, rec, &out)
			if rec.Code != tt.status || out.OK || out.Stage != tt.stage {
				t.Errorf("got %d %+v, want %d stage %s", rec.Code, out, tt.status, tt.stage)
			}
		})
	}

	sales, err := env.repo.ListSales(context.Background(), userID, storage.DigitalFilter{})
	if err != nil || len(sales) != 1 {
		t.Errorf("stored sales = %d, %v", len(sales), err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("create: %w", core.ErrDestinationXOR), http.StatusUnprocessableEntity},
		{storage.ErrNotFound, http.StatusNotFound},
		{services.ErrAlreadyOnboarded, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"", "0000-00", false},
		{"month=2026-03", "2026-03", false},
		{"month=4&year=2025", "2025-04", false},
		{"month=13", "", true},
		{"month=2026-3x", "", true},
		{"month=1&year=abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			m, err := parseMonth(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMonth(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Errorf("error %v should be a validation error", err)
				}
				return
			}
			if tt.query == "" {
				if !m.IsZero() {
					t.Errorf("empty query should give the zero month, got %v", m)
				}
				return
			}
			if m.String() != tt.want {
				t.Errorf("parseMonth(%q) = %s, want %s", tt.query, m, tt.want)
			}
		})
	}
}
