// Package api provides the HTTP handlers for the exchange: match and event
// listing, quoting, order submission, account management, and the manual
// settlement trigger.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/market"
	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/store"
)

// Service handles the HTTP surface. Business rules live in the engine; the
// service validates request shapes and maps engine errors to status codes.
type Service struct {
	store  store.Store
	engine *market.Engine
}

// NewService creates a new API service.
func NewService(st store.Store, eng *market.Engine) *Service {
	return &Service{store: st, engine: eng}
}

// --- Request/Response types ---

// CreateMatchRequest is the JSON body for match creation. The betting window
// defaults to [now, match_time] when not given.
type CreateMatchRequest struct {
	Team1        string     `json:"team1"`
	Team2        string     `json:"team2"`
	League       string     `json:"league"`
	MatchTime    time.Time  `json:"match_time"`
	BetStartTime *time.Time `json:"bet_start_time,omitempty"`
	BetEndTime   *time.Time `json:"bet_end_time,omitempty"`
}

// CreateMatchResponse returns the created match and its market event.
type CreateMatchResponse struct {
	Match model.Match `json:"match"`
	Event model.Event `json:"event"`
}

// CreateUserRequest is the JSON body for account creation.
type CreateUserRequest struct {
	UserID string `json:"user_id"`
}

// QuoteResponse is the JSON body for quote queries.
type QuoteResponse struct {
	EventID string          `json:"event_id"`
	Side    string          `json:"side"`
	Yes     decimal.Decimal `json:"yes"`
	No      decimal.Decimal `json:"no"`
}

// BalanceResponse is the JSON body for balance queries.
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// --- HTTP Handlers ---

// CreateMatch handles POST /api/v1/matches
// Creates the match and its binary market event in one call.
func (s *Service) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Team1 == "" || req.Team2 == "" {
		writeError(w, "team1 and team2 are required", http.StatusBadRequest)
		return
	}
	if req.MatchTime.IsZero() {
		writeError(w, "match_time is required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	betStart := now
	if req.BetStartTime != nil {
		betStart = *req.BetStartTime
	}
	betEnd := req.MatchTime
	if req.BetEndTime != nil {
		betEnd = *req.BetEndTime
	}

	m := &model.Match{
		ID:           uuid.New().String(),
		Team1:        req.Team1,
		Team2:        req.Team2,
		League:       req.League,
		MatchTime:    req.MatchTime,
		BetStartTime: betStart,
		BetEndTime:   betEnd,
	}
	ev := &model.Event{
		ID:        uuid.New().String(),
		MatchID:   m.ID,
		Question:  "Will " + req.Team1 + " win against " + req.Team2 + "?",
		TotalYes:  decimal.Zero,
		TotalNo:   decimal.Zero,
		CreatedAt: now,
	}

	ctx := r.Context()
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.CreateMatch(ctx, m); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, ev)
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("match created",
		"match", m.ID,
		"event", ev.ID,
		"team1", m.Team1,
		"team2", m.Team2,
	)

	writeJSON(w, http.StatusCreated, CreateMatchResponse{Match: *m, Event: *ev})
}

// ListMatches handles GET /api/v1/matches
func (s *Service) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.store.ListMatches(r.Context())
	if err != nil {
		writeError(w, "failed to list matches", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// ListEvents handles GET /api/v1/events
// Returns all events, optionally filtered by ?resolved=true|false.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context())
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	if v := r.URL.Query().Get("resolved"); v == "true" || v == "false" {
		want := v == "true"
		filtered := []model.Event{}
		for _, e := range events {
			if e.Resolved == want {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GetQuote handles GET /api/v1/events/{eventID}/quote?side=buy|sell
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	side := model.Side(r.URL.Query().Get("side"))
	if side == "" {
		side = model.SideBuy
	}

	quote, err := s.engine.Quote(r.Context(), eventID, side)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		EventID: eventID,
		Side:    string(side),
		Yes:     quote.Yes,
		No:      quote.No,
	})
}

// GetHistory handles GET /api/v1/events/{eventID}/history
// Returns the event's price history in append order.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if _, err := s.store.GetEvent(r.Context(), eventID); err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	history, err := s.store.GetPriceHistory(r.Context(), eventID)
	if err != nil {
		writeError(w, "failed to get price history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, history)
}

// PlaceOrder handles POST /api/v1/orders
// Executes the order atomically and returns the fill and realized P&L.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req market.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.PlaceOrder(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateUser handles POST /api/v1/users
// Opens an account funded with the starting balance.
func (s *Service) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	acct := &model.Account{
		UserID:    req.UserID,
		Balance:   model.StartingBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), acct); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("account created", "user", acct.UserID, "balance", acct.Balance.String())
	writeJSON(w, http.StatusCreated, acct)
}

// GetBalance handles GET /api/v1/users/{userID}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.GetAccount(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: acct.UserID, Balance: acct.Balance})
}

// GetPositions handles GET /api/v1/users/{userID}/positions
// Returns the user's open positions, optionally scoped by ?event=<eventID>.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	var (
		positions []model.Position
		err       error
	)
	if eventID := r.URL.Query().Get("event"); eventID != "" {
		positions, err = s.store.ListPositionsByUserAndEvent(ctx, userID, eventID)
	} else {
		positions, err = s.store.ListPositionsByUser(ctx, userID)
	}
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// SettleEvent handles POST /api/v1/admin/settle/{eventID}
// Settles one event immediately if it is eligible.
func (s *Service) SettleEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if err := s.engine.SettleEvent(r.Context(), eventID, time.Now().UTC()); err != nil {
		writeEngineError(w, err)
		return
	}

	ev, err := s.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// writeEngineError maps engine sentinel errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, market.ErrInsufficientFunds):
		writeError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, market.ErrEventNotFound), errors.Is(err, market.ErrUserNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, market.ErrConflictingOutcome),
		errors.Is(err, market.ErrEventResolved),
		errors.Is(err, market.ErrNotYetEligible):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, market.ErrOracleUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
