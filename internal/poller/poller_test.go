package poller

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/internal/scoring"
	"github.com/teem-market/teem/pkg/logger"
)

// step is one scripted ledger response.
type step struct {
	state market.RemoteState
	err   error
}

// fakeLedger replays a script of job state responses; the last step repeats.
type fakeLedger struct {
	script []step
	calls  int
	cancel context.CancelFunc
}

func (l *fakeLedger) GetJobState(_ context.Context, _ market.JobID) (market.RemoteState, error) {
	i := l.calls
	l.calls++
	if i >= len(l.script) {
		i = len(l.script) - 1
	}
	if l.cancel != nil && l.calls == len(l.script) {
		l.cancel()
	}
	s := l.script[i]
	return s.state, s.err
}

type fakeResults struct {
	payload string
	err     error
	calls   int
}

func (r *fakeResults) FetchPayload(_ context.Context, _ string) (string, error) {
	r.calls++
	return r.payload, r.err
}

// fastConfig disables all delays so watches run synchronously.
func fastConfig(maxPolls int) Config {
	return Config{MaxPolls: maxPolls, Interval: 0, Grace: 0}
}

func testPoller(ledger *fakeLedger, results *fakeResults, maxPolls int) *Poller {
	log := logger.NewWithWriter("test", io.Discard, zerolog.Disabled)
	return New(ledger, results, fastConfig(maxPolls), log, metrics.New())
}

func pendingJob() *Job {
	return NewJob("0xjob", "0xcommit", market.ProvenancePlain)
}

func TestWatch_FullLifecycle(t *testing.T) {
	ledger := &fakeLedger{script: []step{
		{state: market.RemoteStateUnset},
		{state: market.RemoteStateActive},
		{state: market.RemoteStateRevealing},
		{state: market.RemoteStateCompleted},
	}}
	results := &fakeResults{payload: `{"scoring_logic":"A * 2","result":84,"status":"success","data_source":"command_line_args","input_A":42}`}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	err := p.Watch(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, job.State())
	require.False(t, job.CompletedAt().IsZero())

	out := job.Outcome()
	require.NotNil(t, out)
	require.Equal(t, scoring.StatusSuccess, out.Status)
	require.Equal(t, 84.0, out.Value)
	require.Equal(t, market.ProvenancePlain, out.Provenance)
	require.NotNil(t, out.RawInput)
	require.Equal(t, 42.0, *out.RawInput)
	require.Equal(t, 1, results.calls)
}

func TestWatch_TerminalJobReturnsImmediately(t *testing.T) {
	ledger := &fakeLedger{script: []step{{state: market.RemoteStateCompleted}}}
	results := &fakeResults{payload: "84"}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, 1, ledger.calls)
	require.Equal(t, 1, results.calls)

	// A second watch reads the cached outcome without touching the ledger or
	// re-fetching the payload.
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, 1, ledger.calls)
	require.Equal(t, 1, results.calls)
	require.NotNil(t, job.Outcome())
}

func TestWatch_BudgetExhausted(t *testing.T) {
	ledger := &fakeLedger{script: []step{{state: market.RemoteStateActive}}}
	p := testPoller(ledger, &fakeResults{}, 3)

	job := pendingJob()
	err := p.Watch(context.Background(), job)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Equal(t, 3, ledger.calls)
	// The job is left in its last observed state, never force-failed.
	require.Equal(t, StateRunning, job.State())
	require.Nil(t, job.Outcome())
}

func TestWatch_TransientErrorsRetriedInBudget(t *testing.T) {
	ledger := &fakeLedger{script: []step{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{state: market.RemoteStateCompleted},
	}}
	results := &fakeResults{payload: "84"}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, StateCompleted, job.State())
	require.Equal(t, 3, ledger.calls)
}

func TestWatch_TransientErrorsConsumeBudget(t *testing.T) {
	ledger := &fakeLedger{script: []step{{err: errors.New("connection reset")}}}
	p := testPoller(ledger, &fakeResults{}, 4)

	job := pendingJob()
	err := p.Watch(context.Background(), job)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Equal(t, 4, ledger.calls)
	require.Equal(t, StatePending, job.State())
}

func TestWatch_UnknownStateDoesNotAdvance(t *testing.T) {
	ledger := &fakeLedger{script: []step{
		{state: market.RemoteState("CONTRIBUTING")},
		{state: market.RemoteStateActive},
		{state: market.RemoteState("CONSENSUS")},
		{state: market.RemoteStateCompleted},
	}}
	results := &fakeResults{payload: "84"}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, StateCompleted, job.State())
}

func TestWatch_StateNeverMovesBackward(t *testing.T) {
	ledger := &fakeLedger{script: []step{
		{state: market.RemoteStateRevealing},
		{state: market.RemoteStateUnset},
		{state: market.RemoteStateActive},
	}}
	p := testPoller(ledger, &fakeResults{}, 3)

	job := pendingJob()
	err := p.Watch(context.Background(), job)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Equal(t, StateRunning, job.State())
}

func TestWatch_FailedState(t *testing.T) {
	ledger := &fakeLedger{script: []step{
		{state: market.RemoteStateActive},
		{state: market.RemoteStateTimeout},
	}}
	results := &fakeResults{payload: "84"}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, StateFailed, job.State())
	require.Nil(t, job.Outcome())
	require.Zero(t, results.calls, "failed jobs have no payload to fetch")
}

func TestWatch_PayloadFetchFailureKeepsCompleted(t *testing.T) {
	ledger := &fakeLedger{script: []step{{state: market.RemoteStateCompleted}}}
	results := &fakeResults{err: errors.New("result store unavailable")}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, StateCompleted, job.State())

	out := job.Outcome()
	require.NotNil(t, out)
	require.Equal(t, scoring.StatusError, out.Status)
	require.Contains(t, out.ErrorDetail, "payload fetch failed")
}

func TestWatch_UnparsablePayloadKeepsCompleted(t *testing.T) {
	ledger := &fakeLedger{script: []step{{state: market.RemoteStateCompleted}}}
	results := &fakeResults{payload: "<html>gateway error</html>"}
	p := testPoller(ledger, results, 10)

	job := pendingJob()
	require.NoError(t, p.Watch(context.Background(), job))
	require.Equal(t, StateCompleted, job.State())

	out := job.Outcome()
	require.NotNil(t, out)
	require.Equal(t, scoring.StatusError, out.Status)
}

func TestWatch_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ledger := &fakeLedger{
		script: []step{
			{state: market.RemoteStateActive},
			{err: errors.New("in-flight poll interrupted")},
		},
		cancel: cancel,
	}
	p := testPoller(ledger, &fakeResults{}, 100)

	job := pendingJob()
	err := p.Watch(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateRunning, job.State(), "cancellation leaves the last observed state")
}

func TestWatch_ResultAfterCancellationDiscarded(t *testing.T) {
	// The poll that observes COMPLETED finishes after the context is
	// cancelled; its result must be discarded, not drive completion with a
	// dead context.
	ctx, cancel := context.WithCancel(context.Background())
	ledger := &fakeLedger{
		script: []step{
			{state: market.RemoteStateActive},
			{state: market.RemoteStateCompleted},
		},
		cancel: cancel,
	}
	results := &fakeResults{payload: "84"}
	p := testPoller(ledger, results, 100)

	job := pendingJob()
	err := p.Watch(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateRunning, job.State())
	require.Nil(t, job.Outcome())
	require.Zero(t, results.calls)
}

func TestJobAdvance(t *testing.T) {
	job := pendingJob()
	require.Equal(t, StatePending, job.State())

	require.True(t, job.advance(StateRunning))
	require.False(t, job.advance(StateRunning), "same-state advance is a no-op")
	require.False(t, job.advance(StatePending), "backward transition refused")

	require.True(t, job.advance(StateCompleted))
	require.False(t, job.advance(StateFailed), "terminal states never change")
	require.Equal(t, StateCompleted, job.State())
}
