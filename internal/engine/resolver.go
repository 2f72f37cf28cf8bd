package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/pkg/logger"
)

// CommitmentReader fetches the ledger's view of a commitment. Used only by
// the job-id resolution fallback.
type CommitmentReader interface {
	GetCommitment(ctx context.Context, id market.CommitmentID) (market.CommitmentDetails, error)
}

// DeriveJobID computes the canonical job id for one unit of a commitment's
// volume: the hash of the commitment id and the job's ordinal position.
// The orchestrator only ever requests volume 1, so the ordinal is 0.
func DeriveJobID(id market.CommitmentID, ordinal uint32) (market.JobID, error) {
	if id == "" {
		return "", fmt.Errorf("empty commitment id")
	}

	hasher := sha256.New()
	hasher.Write([]byte(id))

	ordinalBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(ordinalBytes, ordinal)
	hasher.Write(ordinalBytes)

	return market.JobID("0x" + hex.EncodeToString(hasher.Sum(nil))), nil
}

// Resolver turns a commitment into the job id all subsequent polling tracks.
type Resolver struct {
	ledger CommitmentReader
	log    *logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(ledger CommitmentReader, log *logger.Logger) *Resolver {
	return &Resolver{ledger: ledger, log: log}
}

// ResolveJobID returns the job id for a commitment's single job.
//
// Primary path: deterministic derivation. Fallback: the commitment's job
// set on the ledger. An empty job set is fatal for the submission and is
// never retried here, since the commitment does not change between attempts.
func (r *Resolver) ResolveJobID(ctx context.Context, id market.CommitmentID) (market.JobID, error) {
	jobID, err := DeriveJobID(id, 0)
	if err == nil && jobID != "" {
		return jobID, nil
	}

	r.log.Warn("job id derivation failed, falling back to commitment job set", "commitment", string(id))

	details, err := r.ledger.GetCommitment(ctx, id)
	if err != nil {
		return "", WrapWithRecovery(ErrJobIDUnresolvable, "commitment %s: %v", id, err)
	}
	if len(details.JobIDs) == 0 {
		return "", WrapWithRecovery(ErrJobIDUnresolvable, "commitment %s has an empty job set", id)
	}
	return details.JobIDs[0], nil
}
