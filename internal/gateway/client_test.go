package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/pkg/logger"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logger.NewWithWriter("test", io.Discard, zerolog.Disabled)
	return NewClient(Config{BaseURL: srv.URL}, log)
}

func TestFetchOffers(t *testing.T) {
	var gotQuery map[string]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/offers", r.URL.Path)
		gotQuery = map[string]string{
			"kind":   r.URL.Query().Get("kind"),
			"target": r.URL.Query().Get("target"),
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"offers":[{"provider_id":"p1","kind":"app","category":0,"tag":3,"price":"5","total_volume":1,"remaining_volume":1}]}`)
	}))

	offers, err := c.FetchOffers(context.Background(), market.OfferKindApp, "score-app")
	require.NoError(t, err)
	require.Equal(t, "app", gotQuery["kind"])
	require.Equal(t, "score-app", gotQuery["target"])
	require.Len(t, offers, 1)
	require.Equal(t, "p1", offers[0].ProviderID)
	require.Equal(t, market.TagConfidentialRuntime, offers[0].Tag)
	require.Equal(t, int64(5), offers[0].Price.Int64())
}

func TestFetchOffers_SkipsMalformedEntries(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"offers":[
			{"provider_id":"good","kind":"pool","category":0,"tag":0,"price":"5","total_volume":1,"remaining_volume":1},
			{"provider_id":"priceless","kind":"pool","category":0,"tag":0,"total_volume":1,"remaining_volume":1},
			{"provider_id":"negative","kind":"pool","category":0,"tag":0,"price":"-2","total_volume":1,"remaining_volume":1}
		]}`)
	}))

	offers, err := c.FetchOffers(context.Background(), market.OfferKindPool, "")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "good", offers[0].ProviderID)
}

func TestFetchOffers_EmptyBook(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"offers":[]}`)
	}))

	offers, err := c.FetchOffers(context.Background(), market.OfferKindPool, "")
	require.NoError(t, err)
	require.Empty(t, offers)
}

func TestMatchOrders(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/matches", r.URL.Path)

		var body struct {
			Request market.SignedRequest   `json:"request"`
			Offers  []market.ResourceOffer `json:"offers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0xwallet", body.Request.Signer)

		io.WriteString(w, `{"commitment_id":"0xc1"}`)
	}))

	id, err := c.MatchOrders(context.Background(), market.SignedRequest{Signer: "0xwallet"}, nil)
	require.NoError(t, err)
	require.Equal(t, market.CommitmentID("0xc1"), id)
}

func TestMatchOrders_MissingCommitmentID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{}`)
	}))

	_, err := c.MatchOrders(context.Background(), market.SignedRequest{}, nil)
	require.ErrorIs(t, err, ErrDecode)
}

func TestGetJobState(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/jobs/0xjob/state", r.URL.Path)
		io.WriteString(w, `{"state":"ACTIVE"}`)
	}))

	state, err := c.GetJobState(context.Background(), "0xjob")
	require.NoError(t, err)
	require.Equal(t, market.RemoteStateActive, state)
}

func TestGetCommitment(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/commitments/0xc1", r.URL.Path)
		io.WriteString(w, `{"id":"0xc1","job_ids":["0xjob1"]}`)
	}))

	details, err := c.GetCommitment(context.Background(), "0xc1")
	require.NoError(t, err)
	require.Equal(t, market.CommitmentID("0xc1"), details.ID)
	require.Equal(t, []market.JobID{"0xjob1"}, details.JobIDs)
}

func TestFetchPayload_RawBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "84.0")
	}))

	raw, err := c.FetchPayload(context.Background(), "0xjob")
	require.NoError(t, err)
	require.Equal(t, "84.0", raw)
}

func TestStatusErrorSummarized(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"ledger catching up"}`)
	}))

	_, err := c.GetJobState(context.Background(), "0xjob")
	require.ErrorIs(t, err, ErrStatus)
	require.Contains(t, err.Error(), "503")
	require.Contains(t, err.Error(), "ledger catching up")
}

func TestDecodeError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "not json")
	}))

	_, err := c.GetJobState(context.Background(), "0xjob")
	require.ErrorIs(t, err, ErrDecode)
}

func TestTransportError(t *testing.T) {
	log := logger.NewWithWriter("test", io.Discard, zerolog.Disabled)
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, log)

	_, err := c.FetchOffers(context.Background(), market.OfferKindApp, "x")
	require.ErrorIs(t, err, ErrTransport)
}
