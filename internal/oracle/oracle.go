// Package oracle defines the source of ground-truth match results consumed
// by settlement, plus an HTTP-backed client and a static fixture oracle.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Result is the outcome of a finished match as reported by the oracle.
// Unavailable and Ambiguous are retryable: settlement leaves the event
// unresolved and tries again on a later sweep.
type Result string

const (
	HomeWin     Result = "homeWin"
	AwayWin     Result = "awayWin"
	Draw        Result = "draw"
	Unavailable Result = "unavailable"
	Ambiguous   Result = "ambiguous"
)

// Final reports whether the result can settle an event.
func (r Result) Final() bool {
	return r == HomeWin || r == AwayWin || r == Draw
}

// MatchOracle resolves a finished match to its result. Implementations
// perform network I/O; callers invoke it outside any per-event critical
// section.
type MatchOracle interface {
	GetResult(ctx context.Context, team1, team2 string) (Result, error)
}

// HTTPOracle queries a results endpoint:
//
//	GET {base}/result?team1=...&team2=... → {"team1_score": n, "team2_score": m}
//
// Any transport error, non-2xx status, or unparsable body maps to
// Unavailable so settlement retries on the next sweep instead of failing.
type HTTPOracle struct {
	base   string
	client *http.Client
}

// NewHTTPOracle creates an oracle client against the given base URL.
func NewHTTPOracle(base string) *HTTPOracle {
	return &HTTPOracle{
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (o *HTTPOracle) GetResult(ctx context.Context, team1, team2 string) (Result, error) {
	q := url.Values{}
	q.Set("team1", team1)
	q.Set("team2", team2)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/result?"+q.Encode(), nil)
	if err != nil {
		return Unavailable, fmt.Errorf("oracle: build request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return Unavailable, fmt.Errorf("oracle: %s vs %s: %w", team1, team2, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unavailable, fmt.Errorf("oracle: %s vs %s: status %d", team1, team2, resp.StatusCode)
	}

	var body struct {
		Team1Score *int `json:"team1_score"`
		Team2Score *int `json:"team2_score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unavailable, fmt.Errorf("oracle: decode result: %w", err)
	}
	if body.Team1Score == nil || body.Team2Score == nil {
		return Ambiguous, nil
	}

	switch {
	case *body.Team1Score > *body.Team2Score:
		return HomeWin, nil
	case *body.Team2Score > *body.Team1Score:
		return AwayWin, nil
	default:
		return Draw, nil
	}
}

// Static is a fixture oracle for tests and development. Keys are
// "team1|team2"; missing fixtures report Unavailable.
type Static struct {
	Results map[string]Result
}

// NewStatic creates an empty fixture oracle.
func NewStatic() *Static {
	return &Static{Results: make(map[string]Result)}
}

// Set records the result for a fixture.
func (s *Static) Set(team1, team2 string, r Result) {
	s.Results[team1+"|"+team2] = r
}

func (s *Static) GetResult(_ context.Context, team1, team2 string) (Result, error) {
	if r, ok := s.Results[team1+"|"+team2]; ok {
		return r, nil
	}
	return Unavailable, nil
}
