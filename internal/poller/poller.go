package poller

import (
	"context"
	"sync"
	"time"

	sdkerrors "cosmossdk.io/errors"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/internal/scoring"
	"github.com/teem-market/teem/pkg/logger"
)

// ModuleName defines the module name used as the error codespace.
const ModuleName = "poller"

// ErrPollTimeout reports an exhausted poll budget. Ambiguous by design:
// the job is still possibly running, this is neither failure nor success.
var ErrPollTimeout = sdkerrors.Register(ModuleName, 2, "poll budget exhausted without a terminal state")

// JobStateReader reads a job's lifecycle state from the ledger.
type JobStateReader interface {
	GetJobState(ctx context.Context, id market.JobID) (market.RemoteState, error)
}

// PayloadFetcher downloads a completed job's result payload.
type PayloadFetcher interface {
	FetchPayload(ctx context.Context, ref string) (string, error)
}

// Config holds polling parameters.
type Config struct {
	// MaxPolls bounds the driving loop. Transient errors consume budget
	// too, so the loop always terminates.
	MaxPolls int
	// Interval is the fixed inter-poll delay.
	Interval time.Duration
	// Grace is the one-time delay before the first poll, tolerating ledger
	// propagation latency.
	Grace time.Duration
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		MaxPolls: 120,
		Interval: 4 * time.Second,
		Grace:    5 * time.Second,
	}
}

// Job is one trackable unit of remote work. A job is owned by its
// submission; the mutex only guards against a caller inspecting a job while
// its watch is still advancing it.
type Job struct {
	ID           market.JobID
	CommitmentID market.CommitmentID
	Provenance   market.Provenance
	CreatedAt    time.Time

	mu          sync.RWMutex
	state       State
	completedAt time.Time
	outcome     *scoring.Outcome
}

// NewJob creates a pending job handle for a freshly created commitment.
func NewJob(id market.JobID, commitment market.CommitmentID, prov market.Provenance) *Job {
	return &Job{
		ID:           id,
		CommitmentID: commitment,
		Provenance:   prov,
		CreatedAt:    time.Now().UTC(),
		state:        StatePending,
	}
}

// State returns the job's current local state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Outcome returns the decoded terminal payload, nil before completion.
func (j *Job) Outcome() *scoring.Outcome {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outcome
}

// CompletedAt returns when the job reached a terminal state.
func (j *Job) CompletedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.completedAt
}

// advance moves the job forward. Backward transitions are refused, so a
// terminal job can never be reverted (state monotonicity).
func (j *Job) advance(to State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if to.rank() <= j.state.rank() {
		return false
	}
	j.state = to
	if to.Terminal() {
		j.completedAt = time.Now().UTC()
	}
	return true
}

func (j *Job) setOutcome(out *scoring.Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcome = out
}

// Poller drives pending jobs to a terminal state against an
// eventually-consistent ledger.
type Poller struct {
	ledger  JobStateReader
	results PayloadFetcher
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a poller.
func New(ledger JobStateReader, results PayloadFetcher, cfg Config, log *logger.Logger, m *metrics.Metrics) *Poller {
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultConfig().MaxPolls
	}
	return &Poller{
		ledger:  ledger,
		results: results,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// Watch polls the job until it reaches a terminal state, the poll budget is
// exhausted, or the context is cancelled.
//
// Transient I/O errors are retried in place within the overall budget; they
// never abort the watch on their own. Budget exhaustion surfaces as
// ErrPollTimeout with the job left in its last observed non-terminal state,
// never force-failed. Cancellation is cooperative: an in-flight poll is
// allowed to finish and its result discarded.
//
// Watching a job that is already terminal returns immediately with the
// cached outcome; the payload is fetched and parsed exactly once per job.
func (p *Poller) Watch(ctx context.Context, job *Job) error {
	if job.State().Terminal() {
		return nil
	}

	if err := p.sleep(ctx, p.cfg.Grace); err != nil {
		return err
	}

	start := time.Now()
	log := p.log.With("job", string(job.ID))

	for i := 0; i < p.cfg.MaxPolls; i++ {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.Interval); err != nil {
				return err
			}
		}

		p.metrics.PollsTotal.Inc()
		remote, err := p.ledger.GetJobState(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.metrics.PollTransientErrors.Inc()
			log.Warn("job state poll failed", "attempt", i+1, "error", err.Error())
			continue
		}
		if ctx.Err() != nil {
			// An in-flight poll is allowed to finish, but a result arriving
			// after cancellation is discarded, not applied.
			return ctx.Err()
		}

		switch state := MapRemoteState(remote); state {
		case StatePending:
			// No transition; the ledger has not activated the job yet.
		case StateRunning:
			if job.advance(StateRunning) {
				log.Info("job running", "remote_state", string(remote))
			}
		case StateCompleted:
			p.complete(ctx, job, log)
			p.metrics.PollDuration.Observe(time.Since(start).Seconds())
			return nil
		case StateFailed:
			job.advance(StateFailed)
			p.metrics.JobsFailed.Inc()
			p.metrics.PollDuration.Observe(time.Since(start).Seconds())
			log.Warn("job failed", "remote_state", string(remote))
			return nil
		case StateUnknown:
			p.metrics.UnknownRemoteStates.Inc()
			log.Warn("unknown remote job state", "remote_state", string(remote), "attempt", i+1)
		}
	}

	p.metrics.PollTimeouts.Inc()
	return sdkerrors.Wrapf(ErrPollTimeout, "job %s after %d polls, last state %s", job.ID, p.cfg.MaxPolls, job.State())
}

// complete fetches and parses the result payload, exactly once. A terminal
// success at the ledger is never downgraded by a local fetch or parse
// problem; those are captured inside the outcome instead.
func (p *Poller) complete(ctx context.Context, job *Job, log *logger.Logger) {
	job.advance(StateCompleted)

	raw, err := p.results.FetchPayload(ctx, string(job.ID))
	if err != nil {
		p.metrics.ParseFallback.Inc()
		job.setOutcome(&scoring.Outcome{
			AlgorithmLabel: scoring.FallbackLabel,
			Status:         scoring.StatusError,
			Provenance:     job.Provenance,
			ErrorDetail:    "payload fetch failed: " + err.Error(),
		})
		p.metrics.JobsCompleted.WithLabelValues(scoring.StatusError).Inc()
		log.Warn("job completed but payload fetch failed", "error", err.Error())
		return
	}

	outcome, parseErr := scoring.ParseFor(raw, job.Provenance)
	if parseErr != nil {
		p.metrics.ParseFallback.Inc()
		log.Warn("result payload unparsable", "error", parseErr.Error())
	}
	job.setOutcome(&outcome)
	p.metrics.JobsCompleted.WithLabelValues(outcome.Status).Inc()
	log.Info("job completed", "status", outcome.Status, "value", outcome.Value)
}

// sleep waits for d or until ctx is cancelled.
func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
