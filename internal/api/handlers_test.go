package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/api"
	"github.com/courtside/matchbook/internal/market"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/oracle"
	"github.com/courtside/matchbook/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates an API service over an in-memory store with a fixture
// oracle and the routes it serves.
func newTestEnv(t *testing.T) (*store.MemoryStore, *oracle.Static, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	orc := oracle.NewStatic()
	eng := market.NewEngine(ms, orc, nil, 0)
	svc := api.NewService(ms, eng)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/matches", svc.ListMatches)
		r.Post("/matches", svc.CreateMatch)
		r.Get("/events", svc.ListEvents)
		r.Get("/events/{eventID}", svc.GetEvent)
		r.Get("/events/{eventID}/quote", svc.GetQuote)
		r.Get("/events/{eventID}/history", svc.GetHistory)
		r.Post("/orders", svc.PlaceOrder)
		r.Post("/users", svc.CreateUser)
		r.Get("/users/{userID}/balance", svc.GetBalance)
		r.Get("/users/{userID}/positions", svc.GetPositions)
		r.Post("/admin/settle/{eventID}", svc.SettleEvent)
	})
	return ms, orc, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedEvent(t *testing.T, ms *store.MemoryStore, eventID string, matchTime time.Time) {
	t.Helper()
	ctx := context.Background()
	err := ms.CreateMatch(ctx, &model.Match{
		ID:           "match-" + eventID,
		Team1:        "Lakers",
		Team2:        "Celtics",
		League:       "NBA",
		MatchTime:    matchTime,
		BetStartTime: matchTime.Add(-24 * time.Hour),
		BetEndTime:   matchTime,
	})
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}
	err = ms.CreateEvent(ctx, &model.Event{
		ID:        eventID,
		MatchID:   "match-" + eventID,
		Question:  "Will Lakers win against Celtics?",
		TotalYes:  decimal.Zero,
		TotalNo:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func createUser(t *testing.T, router chi.Router, userID string) {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/users", api.CreateUserRequest{UserID: userID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Accounts ---

func TestCreateUser_StartingBalance(t *testing.T) {
	_, _, router := newTestEnv(t)
	createUser(t, router, "alice")

	w := doJSON(t, router, "GET", "/api/v1/users/alice/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Balance.Equal(model.StartingBalance) {
		t.Errorf("balance = %s, want %s", resp.Balance, model.StartingBalance)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	_, _, router := newTestEnv(t)
	createUser(t, router, "alice")

	w := doJSON(t, router, "POST", "/api/v1/users", api.CreateUserRequest{UserID: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate user, got %d", w.Code)
	}
}

func TestGetBalance_UnknownUser(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doJSON(t, router, "GET", "/api/v1/users/ghost/balance", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Matches and events ---

func TestCreateMatch_CreatesEvent(t *testing.T) {
	ms, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/matches", api.CreateMatchRequest{
		Team1:     "Lakers",
		Team2:     "Celtics",
		League:    "NBA",
		MatchTime: time.Now().Add(24 * time.Hour).UTC(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.CreateMatchResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Event.Question != "Will Lakers win against Celtics?" {
		t.Errorf("question = %q", resp.Event.Question)
	}
	if resp.Event.MatchID != resp.Match.ID {
		t.Errorf("event not linked to match: %s vs %s", resp.Event.MatchID, resp.Match.ID)
	}

	events, _ := ms.ListEvents(context.Background())
	if len(events) != 1 {
		t.Errorf("expected 1 stored event, got %d", len(events))
	}
}

func TestCreateMatch_MissingFields(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doJSON(t, router, "POST", "/api/v1/matches", api.CreateMatchRequest{Team1: "Lakers"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doJSON(t, router, "GET", "/api/v1/events/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetQuote_DefaultsToBuy(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(time.Hour))

	w := doJSON(t, router, "GET", "/api/v1/events/ev1/quote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.QuoteResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Side != "buy" {
		t.Errorf("side = %q, want buy", resp.Side)
	}
	if !resp.Yes.Equal(d(52)) || !resp.No.Equal(d(52)) {
		t.Errorf("quote = %s/%s, want 52/52", resp.Yes, resp.No)
	}
}

func TestGetQuote_InvalidSide(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(time.Hour))

	w := doJSON(t, router, "GET", "/api/v1/events/ev1/quote?side=hold", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Orders ---

func TestPlaceOrder_HTTPFlow(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(time.Hour))
	createUser(t, router, "alice")

	w := doJSON(t, router, "POST", "/api/v1/orders", market.OrderRequest{
		UserID:   "alice",
		EventID:  "ev1",
		Outcome:  model.OutcomeYes,
		Side:     model.SideBuy,
		Quantity: d(10),
		Price:    d(52),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res market.OrderResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.FilledQuantity.Equal(d(10)) {
		t.Errorf("filled = %s, want 10", res.FilledQuantity)
	}

	// Position shows up on the user's positions endpoint.
	w = doJSON(t, router, "GET", "/api/v1/users/alice/positions?event=ev1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("positions: expected 200, got %d", w.Code)
	}
	var positions []model.Position
	json.Unmarshal(w.Body.Bytes(), &positions)
	if len(positions) != 1 || !positions[0].Amount.Equal(d(10)) {
		t.Errorf("positions = %+v, want one of amount 10", positions)
	}

	// History records the move.
	w = doJSON(t, router, "GET", "/api/v1/events/ev1/history", nil)
	var history []model.PricePoint
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 {
		t.Errorf("expected 1 history point, got %d", len(history))
	}
}

func TestPlaceOrder_StatusMapping(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(time.Hour))
	createUser(t, router, "alice")

	cases := []struct {
		name string
		req  market.OrderRequest
		want int
	}{
		{
			name: "invalid side",
			req: market.OrderRequest{
				UserID: "alice", EventID: "ev1",
				Outcome: model.OutcomeYes, Side: "hold",
				Quantity: d(1), Price: d(50),
			},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown event",
			req: market.OrderRequest{
				UserID: "alice", EventID: "missing",
				Outcome: model.OutcomeYes, Side: model.SideBuy,
				Quantity: d(1), Price: d(50),
			},
			want: http.StatusNotFound,
		},
		{
			name: "unknown user",
			req: market.OrderRequest{
				UserID: "ghost", EventID: "ev1",
				Outcome: model.OutcomeYes, Side: model.SideBuy,
				Quantity: d(1), Price: d(50),
			},
			want: http.StatusNotFound,
		},
		{
			name: "insufficient funds",
			req: market.OrderRequest{
				UserID: "alice", EventID: "ev1",
				Outcome: model.OutcomeYes, Side: model.SideBuy,
				Quantity: d(100000), Price: d(52),
			},
			want: http.StatusPaymentRequired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/orders", tc.req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestPlaceOrder_ConflictingOutcomeIs409(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(time.Hour))
	createUser(t, router, "alice")

	first := market.OrderRequest{
		UserID: "alice", EventID: "ev1",
		Outcome: model.OutcomeYes, Side: model.SideBuy,
		Quantity: d(10), Price: d(52),
	}
	if w := doJSON(t, router, "POST", "/api/v1/orders", first); w.Code != http.StatusOK {
		t.Fatalf("first order: %d", w.Code)
	}

	second := first
	second.Outcome = model.OutcomeNo
	if w := doJSON(t, router, "POST", "/api/v1/orders", second); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for conflicting outcome, got %d", w.Code)
	}
}

// --- Settlement ---

func TestSettleEndpoint(t *testing.T) {
	ms, orc, router := newTestEnv(t)
	seedEvent(t, ms, "early", time.Now().Add(time.Hour))
	seedEvent(t, ms, "done", time.Now().Add(-4*time.Hour))
	orc.Set("Lakers", "Celtics", oracle.HomeWin)

	// Too early: the match has not even started.
	if w := doJSON(t, router, "POST", "/api/v1/admin/settle/early", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for ineligible event, got %d", w.Code)
	}

	w := doJSON(t, router, "POST", "/api/v1/admin/settle/done", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ev model.Event
	json.Unmarshal(w.Body.Bytes(), &ev)
	if !ev.Resolved || ev.Winner != "Lakers" {
		t.Errorf("event = resolved %v winner %q", ev.Resolved, ev.Winner)
	}

	// Settling again conflicts.
	if w := doJSON(t, router, "POST", "/api/v1/admin/settle/done", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for re-settlement, got %d", w.Code)
	}
}

func TestSettleEndpoint_OracleUnavailable(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedEvent(t, ms, "ev1", time.Now().Add(-4*time.Hour))

	w := doJSON(t, router, "POST", "/api/v1/admin/settle/ev1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without oracle result, got %d", w.Code)
	}
}
