package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every method
// works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// RunInTx runs fn against a transactional view. Nested calls reuse the
// enclosing transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Matches ---

func (s *PostgresStore) CreateMatch(ctx context.Context, m *model.Match) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO matches (id, team1, team2, league, match_time, bet_start_time, bet_end_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Team1, m.Team2, m.League, m.MatchTime, m.BetStartTime, m.BetEndTime,
	)
	return err
}

func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	err := s.q.QueryRow(ctx,
		`SELECT id, team1, team2, league, match_time, bet_start_time, bet_end_time
		 FROM matches WHERE id = $1`, id).
		Scan(&m.ID, &m.Team1, &m.Team2, &m.League, &m.MatchTime, &m.BetStartTime, &m.BetEndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context) ([]model.Match, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, team1, team2, league, match_time, bet_start_time, bet_end_time
		 FROM matches ORDER BY match_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.ID, &m.Team1, &m.Team2, &m.League,
			&m.MatchTime, &m.BetStartTime, &m.BetEndTime); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- Events ---

const eventColumns = `id, match_id, question,
	total_yes::TEXT, total_no::TEXT,
	resolved, COALESCE(winner, ''), created_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO events (id, match_id, question, total_yes, total_no, resolved, winner, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, NULLIF($7, ''), $8)`,
		e.ID, e.MatchID, e.Question,
		e.TotalYes.String(), e.TotalNo.String(),
		e.Resolved, e.Winner, e.CreatedAt,
	)
	return err
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	var totalYes, totalNo string
	if err := row.Scan(&e.ID, &e.MatchID, &e.Question,
		&totalYes, &totalNo, &e.Resolved, &e.Winner, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.TotalYes, _ = decimal.NewFromString(totalYes)
	e.TotalNo, _ = decimal.NewFromString(totalNo)
	return &e, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) listEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListUnresolvedEvents(ctx context.Context) ([]model.Event, error) {
	return s.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE NOT resolved ORDER BY created_at`)
}

func (s *PostgresStore) UpdateAggregates(ctx context.Context, id string, deltaYes, deltaNo decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE events
		 SET total_yes = total_yes + $2::NUMERIC,
		     total_no  = total_no  + $3::NUMERIC
		 WHERE id = $1`,
		id, deltaYes.String(), deltaNo.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendPricePoint(ctx context.Context, p *model.PricePoint) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO price_history (event_id, timestamp, yes_pct, no_pct)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)`,
		p.EventID, p.Timestamp, p.YesPct.String(), p.NoPct.String(),
	)
	return err
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, eventID string) ([]model.PricePoint, error) {
	rows, err := s.q.Query(ctx,
		`SELECT event_id, timestamp, yes_pct::TEXT, no_pct::TEXT
		 FROM price_history WHERE event_id = $1 ORDER BY timestamp`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var yes, no string
		if err := rows.Scan(&p.EventID, &p.Timestamp, &yes, &no); err != nil {
			return nil, err
		}
		p.YesPct, _ = decimal.NewFromString(yes)
		p.NoPct, _ = decimal.NewFromString(no)
		history = append(history, p)
	}
	return history, rows.Err()
}

func (s *PostgresStore) MarkResolved(ctx context.Context, id, winner string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE events SET resolved = TRUE, winner = $2 WHERE id = $1`,
		id, winner,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Positions ---

const positionColumns = `id, user_id, event_id, outcome, side,
	amount::TEXT, entry_price::TEXT, limit_price::TEXT, created_at`

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	var limit any
	if p.LimitPrice != nil {
		limit = p.LimitPrice.String()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO positions (id, user_id, event_id, outcome, side, amount, entry_price, limit_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		p.ID, p.UserID, p.EventID, string(p.Outcome), string(p.Side),
		p.Amount.String(), p.EntryPrice.String(), limit, p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) listPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var amount, entry string
		var limit *string
		if err := rows.Scan(&p.ID, &p.UserID, &p.EventID, &p.Outcome, &p.Side,
			&amount, &entry, &limit, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount, _ = decimal.NewFromString(amount)
		p.EntryPrice, _ = decimal.NewFromString(entry)
		if limit != nil {
			lp, _ := decimal.NewFromString(*limit)
			p.LimitPrice = &lp
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListPositionsByUserAndEvent(ctx context.Context, userID, eventID string) ([]model.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 AND event_id = $2 ORDER BY created_at, id`,
		userID, eventID)
}

func (s *PostgresStore) ListPositionsByEvent(ctx context.Context, eventID string) ([]model.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE event_id = $1 ORDER BY created_at, id`, eventID)
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

func (s *PostgresStore) ListPositionsWithLimit(ctx context.Context) ([]model.Position, error) {
	return s.listPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE limit_price IS NOT NULL ORDER BY created_at, id`)
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	var limit any
	if p.LimitPrice != nil {
		limit = p.LimitPrice.String()
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE positions SET amount = $2::NUMERIC, limit_price = $3::NUMERIC WHERE id = $1`,
		p.ID, p.Amount.String(), limit,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		a.UserID, a.Balance.String(), a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	var balance string
	err := s.q.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, created_at FROM accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	a.Balance, _ = decimal.NewFromString(balance)
	return &a, nil
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.ApplyBalance(ctx, userID, amount)
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC
		 WHERE user_id = $1 AND balance >= $2::NUMERIC`,
		userID, amount.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing account from an overdraw.
		if _, err := s.GetAccount(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("account %s: %w", userID, ErrInsufficientFunds)
	}
	return nil
}

func (s *PostgresStore) ApplyBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2::NUMERIC WHERE user_id = $1`,
		userID, delta.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return nil
}
