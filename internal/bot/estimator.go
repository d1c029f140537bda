package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPEstimator queries an external prediction service:
//
//	GET {base}/predict?team1=X&team2=Y
//	-> {"team1_win_prob": 0.62, "team2_win_prob": 0.38}
type HTTPEstimator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEstimator creates an estimator against baseURL.
func NewHTTPEstimator(baseURL string) *HTTPEstimator {
	return &HTTPEstimator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *HTTPEstimator) WinProbabilities(ctx context.Context, team1, team2 string) (float64, float64, error) {
	q := url.Values{}
	q.Set("team1", team1)
	q.Set("team2", team2)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/predict?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("predictor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("predictor status %d", resp.StatusCode)
	}

	var body struct {
		Team1WinProb float64 `json:"team1_win_prob"`
		Team2WinProb float64 `json:"team2_win_prob"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("predictor decode: %w", err)
	}
	return body.Team1WinProb, body.Team2WinProb, nil
}
