package engine

import (
	"sync"
	"time"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/scoring"
)

// SubmissionStatus is a point-in-time snapshot of one submission's progress,
// served by the status API.
type SubmissionStatus struct {
	ID           string              `json:"id"`
	Target       string              `json:"target"`
	Provenance   market.Provenance   `json:"provenance"`
	Stage        string              `json:"stage"`
	CommitmentID market.CommitmentID `json:"commitment_id,omitempty"`
	JobID        market.JobID        `json:"job_id,omitempty"`
	JobState     string              `json:"job_state,omitempty"`
	Degraded     bool                `json:"degraded,omitempty"`
	Error        string              `json:"error,omitempty"`
	Recovery     string              `json:"recovery,omitempty"`
	Outcome      *scoring.Outcome    `json:"outcome,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Submission stages surfaced by the tracker. TimedOut is distinct from
// Failed: the poll budget ran out with the job still possibly running.
const (
	StageMatching  = "matching"
	StageResolving = "resolving"
	StagePolling   = "polling"
	StageDone      = "done"
	StageFailed    = "failed"
	StageTimedOut  = "timed_out"
)

// Tracker keeps in-memory snapshots of recent submissions. Bounded; oldest
// entries fall off first.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]SubmissionStatus
	order   []string
	limit   int
}

// NewTracker creates a tracker retaining up to limit submissions.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = 256
	}
	return &Tracker{
		entries: make(map[string]SubmissionStatus),
		limit:   limit,
	}
}

// Put records or updates a submission snapshot.
func (t *Tracker) Put(status SubmissionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status.UpdatedAt = time.Now().UTC()
	if _, exists := t.entries[status.ID]; !exists {
		t.order = append(t.order, status.ID)
		if len(t.order) > t.limit {
			delete(t.entries, t.order[0])
			t.order = t.order[1:]
		}
	}
	t.entries[status.ID] = status
}

// Get returns one submission snapshot.
func (t *Tracker) Get(id string) (SubmissionStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.entries[id]
	return s, ok
}

// List returns all retained snapshots, oldest first.
func (t *Tracker) List() []SubmissionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SubmissionStatus, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id])
	}
	return out
}
