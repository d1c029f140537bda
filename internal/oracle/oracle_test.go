package oracle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/courtside/matchbook/internal/oracle"
)

func resultServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/result" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("team1") == "" || r.URL.Query().Get("team2") == "" {
			t.Error("missing team query parameters")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPOracle_Results(t *testing.T) {
	cases := []struct {
		name string
		body string
		want oracle.Result
	}{
		{"home win", `{"team1_score": 102, "team2_score": 99}`, oracle.HomeWin},
		{"away win", `{"team1_score": 95, "team2_score": 101}`, oracle.AwayWin},
		{"draw", `{"team1_score": 100, "team2_score": 100}`, oracle.Draw},
		{"scores missing", `{"team1_score": null, "team2_score": null}`, oracle.Ambiguous},
		{"partial scores", `{"team1_score": 100}`, oracle.Ambiguous},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := resultServer(t, http.StatusOK, tc.body)
			orc := oracle.NewHTTPOracle(srv.URL)

			got, err := orc.GetResult(context.Background(), "Lakers", "Celtics")
			if err != nil {
				t.Fatalf("get result: %v", err)
			}
			if got != tc.want {
				t.Errorf("result = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHTTPOracle_ServerErrorIsUnavailable(t *testing.T) {
	srv := resultServer(t, http.StatusInternalServerError, `{}`)
	orc := oracle.NewHTTPOracle(srv.URL)

	got, err := orc.GetResult(context.Background(), "Lakers", "Celtics")
	if err == nil {
		t.Error("expected an error for server failure")
	}
	if got != oracle.Unavailable {
		t.Errorf("result = %s, want unavailable", got)
	}
}

func TestHTTPOracle_UnreachableIsUnavailable(t *testing.T) {
	orc := oracle.NewHTTPOracle("http://127.0.0.1:0")
	got, err := orc.GetResult(context.Background(), "Lakers", "Celtics")
	if err == nil {
		t.Error("expected a transport error")
	}
	if got != oracle.Unavailable {
		t.Errorf("result = %s, want unavailable", got)
	}
}

func TestStatic_MissingFixture(t *testing.T) {
	orc := oracle.NewStatic()
	got, err := orc.GetResult(context.Background(), "Lakers", "Celtics")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got != oracle.Unavailable {
		t.Errorf("result = %s, want unavailable", got)
	}
}

func TestResult_Final(t *testing.T) {
	finals := map[oracle.Result]bool{
		oracle.HomeWin:     true,
		oracle.AwayWin:     true,
		oracle.Draw:        true,
		oracle.Unavailable: false,
		oracle.Ambiguous:   false,
	}
	for r, want := range finals {
		if r.Final() != want {
			t.Errorf("%s.Final() = %v, want %v", r, r.Final(), want)
		}
	}
}
