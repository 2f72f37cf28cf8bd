package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/teem-market/teem/internal/engine"
	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/pkg/logger"
)

//go:embed schema.sql
var schemaFile embed.FS

// Config holds journal database configuration.
type Config struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	ConnMaxLife    time.Duration
}

// DB is the durable submission journal, backed by PostgreSQL. Every
// submission's match, commitment, job transitions, and final outcome are
// recorded so operators can audit what ran and why it degraded or failed.
type DB struct {
	*sql.DB
	log *logger.Logger
}

// Open connects to the journal database.
func Open(cfg Config, log *logger.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	log.Info("connected to journal database")
	return &DB{DB: db, log: log}, nil
}

// InitSchema creates the journal tables.
func (db *DB) InitSchema() error {
	schema, err := schemaFile.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	db.log.Info("journal schema initialized")
	return nil
}

// RecordSubmission inserts a fresh submission row.
func (db *DB) RecordSubmission(ctx context.Context, id, target string, prov market.Provenance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO submissions (id, target, provenance)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		id, target, string(prov),
	)
	return err
}

// RecordCommitment attaches the match result and resolved job id.
func (db *DB) RecordCommitment(ctx context.Context, id string, commitment market.Commitment, jobID market.JobID) error {
	_, err := db.ExecContext(ctx, `
		UPDATE submissions
		SET commitment_id = $2, job_id = $3, degraded = $4, stage = 'polling', updated_at = NOW()
		WHERE id = $1`,
		id, string(commitment.ID), string(jobID), commitment.Degraded,
	)
	return err
}

// RecordTransition appends an observed job state.
func (db *DB) RecordTransition(ctx context.Context, id string, state string) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO submission_transitions (submission_id, state)
		VALUES ($1, $2)`,
		id, state,
	); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		UPDATE submissions SET job_state = $2, updated_at = NOW() WHERE id = $1`,
		id, state,
	)
	return err
}

// RecordOutcome stores the submission's final snapshot.
func (db *DB) RecordOutcome(ctx context.Context, id string, status engine.SubmissionStatus) error {
	var outcome []byte
	if status.Outcome != nil {
		var err error
		outcome, err = json.Marshal(status.Outcome)
		if err != nil {
			return fmt.Errorf("failed to encode outcome: %w", err)
		}
	}
	_, err := db.ExecContext(ctx, `
		UPDATE submissions
		SET stage = $2, error = NULLIF($3, ''), outcome = $4, updated_at = NOW()
		WHERE id = $1`,
		id, status.Stage, status.Error, nullableJSON(outcome),
	)
	return err
}

// GetSubmission loads one journaled submission.
func (db *DB) GetSubmission(ctx context.Context, id string) (engine.SubmissionStatus, error) {
	var (
		status       engine.SubmissionStatus
		commitmentID sql.NullString
		jobID        sql.NullString
		jobState     sql.NullString
		errText      sql.NullString
		outcome      []byte
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, target, provenance, commitment_id, job_id, degraded, stage, job_state, error, outcome, created_at, updated_at
		FROM submissions WHERE id = $1`,
		id,
	).Scan(
		&status.ID, &status.Target, &status.Provenance, &commitmentID, &jobID,
		&status.Degraded, &status.Stage, &jobState, &errText, &outcome,
		&status.StartedAt, &status.UpdatedAt,
	)
	if err != nil {
		return engine.SubmissionStatus{}, err
	}

	status.CommitmentID = market.CommitmentID(commitmentID.String)
	status.JobID = market.JobID(jobID.String)
	status.JobState = jobState.String
	status.Error = errText.String
	if len(outcome) > 0 {
		if err := json.Unmarshal(outcome, &status.Outcome); err != nil {
			return engine.SubmissionStatus{}, fmt.Errorf("failed to decode outcome: %w", err)
		}
	}
	return status, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
