package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/internal/poller"
	"github.com/teem-market/teem/pkg/logger"
)

// Journal durably records submission progress. Optional; a nil journal
// disables recording.
type Journal interface {
	RecordSubmission(ctx context.Context, id, target string, prov market.Provenance) error
	RecordCommitment(ctx context.Context, id string, commitment market.Commitment, jobID market.JobID) error
	RecordTransition(ctx context.Context, id string, state string) error
	RecordOutcome(ctx context.Context, id string, status SubmissionStatus) error
}

// Orchestrator is the one-call composition the CLI and status server drive:
// match, resolve the job id, poll to terminal, decode the outcome.
type Orchestrator struct {
	engine   *Engine
	resolver *Resolver
	poller   *poller.Poller
	tracker  *Tracker
	journal  Journal
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewOrchestrator wires the full submission pipeline.
func NewOrchestrator(e *Engine, r *Resolver, p *poller.Poller, t *Tracker, j Journal, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		engine:   e,
		resolver: r,
		poller:   p,
		tracker:  t,
		journal:  j,
		log:      log,
		metrics:  m,
	}
}

// Tracker exposes the submission registry for the status API.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// NewSubmissionID mints the identifier a submission is tracked under.
func NewSubmissionID() string {
	return uuid.NewString()
}

// Run drives one submission end to end and returns its tracked job.
//
// The returned error carries the failed stage; a PollTimeout leaves the job
// non-terminal and the caller may resume watching with Poller.Watch.
func (o *Orchestrator) Run(ctx context.Context, target string, input market.InputSpec) (*poller.Job, error) {
	return o.RunWithID(ctx, NewSubmissionID(), target, input)
}

// RunWithID runs a submission under a caller-minted id, letting async
// callers hand the id out before the pipeline finishes.
func (o *Orchestrator) RunWithID(ctx context.Context, id, target string, input market.InputSpec) (*poller.Job, error) {
	prov := input.Provenance()
	o.metrics.SubmissionsTotal.WithLabelValues(string(prov)).Inc()

	status := SubmissionStatus{
		ID:         id,
		Target:     target,
		Provenance: prov,
		Stage:      StageMatching,
		StartedAt:  time.Now().UTC(),
	}
	o.track(status)
	o.record(ctx, func(j Journal) error { return j.RecordSubmission(ctx, id, target, prov) })

	commitment, err := o.engine.Submit(ctx, target, input)
	if err != nil {
		return nil, o.fail(ctx, status, StageMatching, StageFailed, err)
	}
	status.CommitmentID = commitment.ID
	status.Degraded = commitment.Degraded
	status.Stage = StageResolving
	o.track(status)

	jobID, err := o.resolver.ResolveJobID(ctx, commitment.ID)
	if err != nil {
		return nil, o.fail(ctx, status, StageResolving, StageFailed, err)
	}
	status.JobID = jobID
	status.Stage = StagePolling
	o.track(status)
	o.record(ctx, func(j Journal) error { return j.RecordCommitment(ctx, id, commitment, jobID) })

	job := poller.NewJob(jobID, commitment.ID, prov)
	watchErr := o.poller.Watch(ctx, job)

	status.JobState = job.State().String()
	status.Outcome = job.Outcome()
	o.record(ctx, func(j Journal) error { return j.RecordTransition(ctx, id, job.State().String()) })

	if watchErr != nil {
		// The job may still be running; surface the timeout but keep the
		// handle usable for a later watch. A timeout is ambiguous, not a
		// job failure, and is labeled as such.
		terminal := StageFailed
		if errors.Is(watchErr, poller.ErrPollTimeout) {
			terminal = StageTimedOut
		}
		o.fail(ctx, status, StagePolling, terminal, watchErr)
		return job, watchErr
	}

	status.Stage = StageDone
	o.track(status)
	o.record(ctx, func(j Journal) error { return j.RecordOutcome(ctx, id, status) })

	o.log.Info("submission finished",
		"submission", id,
		"job", string(jobID),
		"state", job.State().String(),
	)
	return job, nil
}

func (o *Orchestrator) fail(ctx context.Context, status SubmissionStatus, stage, terminal string, err error) error {
	o.metrics.SubmissionsFailed.WithLabelValues(stage).Inc()

	status.Stage = terminal
	status.Error = err.Error()
	status.Recovery = GetRecoverySuggestion(err)
	o.track(status)
	o.record(ctx, func(j Journal) error { return j.RecordOutcome(ctx, status.ID, status) })

	o.log.Error("submission aborted",
		"submission", status.ID,
		"stage", stage,
		"error", err.Error(),
	)
	return err
}

func (o *Orchestrator) track(status SubmissionStatus) {
	if o.tracker != nil {
		o.tracker.Put(status)
	}
}

func (o *Orchestrator) record(ctx context.Context, fn func(Journal) error) {
	if o.journal == nil {
		return
	}
	if err := fn(o.journal); err != nil {
		o.log.Warn("journal write failed", "error", err.Error())
	}
}
