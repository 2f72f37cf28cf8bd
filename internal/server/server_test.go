package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teem-market/teem/internal/engine"
	"github.com/teem-market/teem/internal/gateway"
	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/internal/poller"
	"github.com/teem-market/teem/pkg/logger"
)

// stubLedger backs the full pipeline with one always-succeeding fixture.
type stubLedger struct{}

func (stubLedger) FetchOffers(_ context.Context, kind market.OfferKind, _ string) ([]market.ResourceOffer, error) {
	return []market.ResourceOffer{{
		ProviderID:      "p-" + string(kind),
		Kind:            kind,
		Tag:             market.TagConfidentialRuntime,
		Price:           math.NewInt(1),
		TotalVolume:     1,
		RemainingVolume: 1,
	}}, nil
}

func (stubLedger) MatchOrders(context.Context, market.SignedRequest, []market.ResourceOffer) (market.CommitmentID, error) {
	return "0xc1", nil
}

func (stubLedger) GetCommitment(_ context.Context, id market.CommitmentID) (market.CommitmentDetails, error) {
	return market.CommitmentDetails{ID: id}, nil
}

func (stubLedger) GetJobState(context.Context, market.JobID) (market.RemoteState, error) {
	return market.RemoteStateCompleted, nil
}

func (stubLedger) FetchPayload(context.Context, string) (string, error) {
	return "84", nil
}

type stubSigner struct{}

func (stubSigner) SignRequest(desc market.RequestDescriptor) (market.SignedRequest, error) {
	return market.SignedRequest{Descriptor: desc, Signer: "0xwallet"}, nil
}

func newTestServer(t *testing.T, gatewayHealthy bool) (*Server, *engine.Orchestrator) {
	t.Helper()

	code := http.StatusOK
	if !gatewayHealthy {
		code = http.StatusInternalServerError
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(upstream.Close)

	log := logger.NewWithWriter("test", io.Discard, zerolog.Disabled)
	m := metrics.New()
	ledger := stubLedger{}

	cfg := engine.Config{
		MaxPrices: market.MaxPrices{
			App:       math.NewInt(100),
			Pool:      math.NewInt(100),
			Requester: math.NewInt(100),
		},
		Requirement: market.TagConfidentialRuntime,
	}
	eng := engine.New(ledger, ledger, stubSigner{}, cfg, log, m)
	resolver := engine.NewResolver(ledger, log)
	watch := poller.New(ledger, ledger, poller.Config{MaxPolls: 5}, log, m)
	orch := engine.NewOrchestrator(eng, resolver, watch, engine.NewTracker(16), nil, log, m)

	probe := gateway.NewProbe(upstream.URL, "", time.Second)
	srv := New(Config{CORSOrigins: []string{"*"}}, orch, probe, log)
	return srv, orch
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string                   `json:"status"`
		Checks []gateway.EndpointHealth `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 1)
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitAndFollow(t *testing.T) {
	srv, orch := newTestServer(t, true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions",
		strings.NewReader(`{"target":"score-app","plain_value":42}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		SubmissionID string `json:"submission_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.SubmissionID)

	// The pipeline runs detached; poll the tracker until it lands.
	require.Eventually(t, func() bool {
		status, ok := orch.Tracker().Get(accepted.SubmissionID)
		return ok && status.Stage == engine.StageDone
	}, 5*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+accepted.SubmissionID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status engine.SubmissionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "completed", status.JobState)
	require.NotNil(t, status.Outcome)
	require.Equal(t, 84.0, status.Outcome.Value)
}

func TestSubmitValidation(t *testing.T) {
	srv, _ := newTestServer(t, true)

	tests := []struct {
		name string
		body string
	}{
		{"missing target", `{"plain_value":42}`},
		{"no input", `{"target":"score-app"}`},
		{"both inputs", `{"target":"score-app","plain_value":42,"protected_ref":"0xd"}`},
		{"bad json", `{`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			srv.Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetSubmission_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSubmissions(t *testing.T) {
	srv, orch := newTestServer(t, true)
	orch.Tracker().Put(engine.SubmissionStatus{ID: "s1", Target: "score-app", Stage: engine.StageDone})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/submissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Submissions []engine.SubmissionStatus `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Submissions, 1)
	require.Equal(t, "s1", body.Submissions[0].ID)
}
