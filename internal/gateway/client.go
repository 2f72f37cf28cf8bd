package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"golang.org/x/time/rate"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/pkg/logger"
)

// Config holds marketplace gateway client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outbound requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Client talks JSON over HTTP to the marketplace gateway: the public order
// books, the matching ledger, and the result store.
//
// The client never overrides the transport's own timeout; a timed-out call
// surfaces as a wrapped ErrTransport, not an unhandled fault.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

// FetchOffers returns a read snapshot of one order book. An empty book is a
// valid, non-error response.
func (c *Client) FetchOffers(ctx context.Context, kind market.OfferKind, target string) ([]market.ResourceOffer, error) {
	q := url.Values{}
	q.Set("kind", string(kind))
	if target != "" {
		q.Set("target", target)
	}

	var resp struct {
		Offers []market.ResourceOffer `json:"offers"`
	}
	if err := c.getJSON(ctx, "/api/v1/offers?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	// Offers are third-party-published; one malformed entry must not take
	// the rest of the book with it.
	offers := make([]market.ResourceOffer, 0, len(resp.Offers))
	for _, offer := range resp.Offers {
		if err := offer.Validate(); err != nil {
			c.log.Warn("skipping malformed offer",
				"kind", string(kind),
				"provider", offer.ProviderID,
				"error", err.Error(),
			)
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// MatchOrders submits the signed request with its resolved offers for
// atomic matching. This is the only state-mutating call the client issues.
func (c *Client) MatchOrders(ctx context.Context, req market.SignedRequest, offers []market.ResourceOffer) (market.CommitmentID, error) {
	body := struct {
		Request market.SignedRequest   `json:"request"`
		Offers  []market.ResourceOffer `json:"offers"`
	}{Request: req, Offers: offers}

	var resp struct {
		CommitmentID market.CommitmentID `json:"commitment_id"`
	}
	if err := c.postJSON(ctx, "/api/v1/matches", body, &resp); err != nil {
		return "", err
	}
	if resp.CommitmentID == "" {
		return "", sdkerrors.Wrap(ErrDecode, "match response carries no commitment id")
	}
	return resp.CommitmentID, nil
}

// GetJobState returns the ledger's lifecycle string for a job.
func (c *Client) GetJobState(ctx context.Context, id market.JobID) (market.RemoteState, error) {
	var resp struct {
		State market.RemoteState `json:"state"`
	}
	if err := c.getJSON(ctx, "/api/v1/jobs/"+url.PathEscape(string(id))+"/state", &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

// GetCommitment returns the ledger's view of a commitment, including its
// job set. Used only by the job-id resolution fallback.
func (c *Client) GetCommitment(ctx context.Context, id market.CommitmentID) (market.CommitmentDetails, error) {
	var resp market.CommitmentDetails
	if err := c.getJSON(ctx, "/api/v1/commitments/"+url.PathEscape(string(id)), &resp); err != nil {
		return market.CommitmentDetails{}, err
	}
	return resp, nil
}

// FetchPayload downloads a completed job's result payload.
func (c *Client) FetchPayload(ctx context.Context, ref string) (string, error) {
	body, err := c.get(ctx, "/api/v1/results/"+url.PathEscape(ref))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return sdkerrors.Wrap(ErrRateLimited, err.Error())
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, sdkerrors.Wrap(ErrTransport, err.Error())
	}
	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return sdkerrors.Wrapf(ErrDecode, "GET %s: %v", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return sdkerrors.Wrap(ErrDecode, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return sdkerrors.Wrap(ErrTransport, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return sdkerrors.Wrapf(ErrDecode, "POST %s: %v", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrTransport, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrTransport, "%s %s: %v", req.Method, req.URL.Path, err)
	}

	c.log.Debug("gateway call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sdkerrors.Wrapf(ErrStatus, "%s %s: %s", req.Method, req.URL.Path, summarize(body, resp.StatusCode))
	}
	return body, nil
}

func summarize(body []byte, code int) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Sprintf("status %d: %s", code, e.Error)
	}
	return fmt.Sprintf("status %d", code)
}
