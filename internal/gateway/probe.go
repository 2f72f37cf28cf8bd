package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// EndpointHealth captures one probe observation of a marketplace endpoint.
type EndpointHealth struct {
	Name        string    `json:"name"`
	Endpoint    string    `json:"endpoint"`
	Healthy     bool      `json:"healthy"`
	LatencyMs   float64   `json:"latency_ms"`
	Message     string    `json:"message"`
	LastChecked time.Time `json:"last_checked"`
}

// Probe checks marketplace endpoint liveness: the HTTP gateway itself and,
// when configured, the ledger's gRPC health service.
type Probe struct {
	httpEndpoint string
	grpcEndpoint string
	client       *http.Client
	grpcTimeout  time.Duration
}

// NewProbe creates a probe. grpcEndpoint may be empty.
func NewProbe(httpEndpoint, grpcEndpoint string, timeout time.Duration) *Probe {
	if timeout == 0 {
		timeout = 6 * time.Second
	}
	return &Probe{
		httpEndpoint: strings.TrimSuffix(httpEndpoint, "/") + "/health",
		grpcEndpoint: grpcEndpoint,
		client:       &http.Client{Timeout: timeout},
		grpcTimeout:  timeout,
	}
}

// Check probes every configured endpoint once.
func (p *Probe) Check(ctx context.Context) []EndpointHealth {
	checks := []EndpointHealth{p.checkHTTP(ctx)}
	if p.grpcEndpoint != "" {
		checks = append(checks, p.checkGRPC(ctx))
	}
	return checks
}

func (p *Probe) checkHTTP(ctx context.Context) EndpointHealth {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpEndpoint, nil)
	if err != nil {
		return p.errorHealth("gateway", p.httpEndpoint, err, start)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return p.errorHealth("gateway", p.httpEndpoint, err, start)
	}
	resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	return EndpointHealth{
		Name:        "gateway",
		Endpoint:    p.httpEndpoint,
		Healthy:     ok,
		LatencyMs:   float64(time.Since(start).Milliseconds()),
		Message:     http.StatusText(resp.StatusCode),
		LastChecked: time.Now(),
	}
}

func (p *Probe) checkGRPC(ctx context.Context) EndpointHealth {
	start := time.Now()

	dialCtx, cancel := context.WithTimeout(ctx, p.grpcTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, p.grpcEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	if err != nil {
		return p.errorHealth("ledger-grpc", p.grpcEndpoint, err, start)
	}
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(ctx, p.grpcTimeout)
	defer checkCancel()

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return p.errorHealth("ledger-grpc", p.grpcEndpoint, err, start)
	}

	return EndpointHealth{
		Name:        "ledger-grpc",
		Endpoint:    p.grpcEndpoint,
		Healthy:     resp.GetStatus() == healthpb.HealthCheckResponse_SERVING,
		LatencyMs:   float64(time.Since(start).Milliseconds()),
		Message:     resp.GetStatus().String(),
		LastChecked: time.Now(),
	}
}

func (p *Probe) errorHealth(name, endpoint string, err error, start time.Time) EndpointHealth {
	msg := err.Error()
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = "timeout"
	}
	return EndpointHealth{
		Name:        name,
		Endpoint:    endpoint,
		Healthy:     false,
		LatencyMs:   float64(time.Since(start).Milliseconds()),
		Message:     msg,
		LastChecked: time.Now(),
	}
}
