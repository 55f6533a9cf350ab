package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresStore persists the chain in PostgreSQL for deployments where more
// than one process reads the same session history. The schema is owned by the
// operator's migration tooling; Migrate exists for dev setups.
type PostgresStore struct {
	db      *sql.DB
	genesis string
}

func NewPostgresStore(db *sql.DB, genesis string) *PostgresStore {
	return &PostgresStore{db: db, genesis: genesis}
}

// Migrate creates the tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		sequence BIGINT PRIMARY KEY,
		proposal_id TEXT NOT NULL,
		epoch_index BIGINT NOT NULL,
		decision TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		risk_before DOUBLE PRECISION NOT NULL,
		risk_after DOUBLE PRECISION NOT NULL,
		prev_hash TEXT NOT NULL UNIQUE,
		entry_hash TEXT NOT NULL UNIQUE,
		timestamp TIMESTAMPTZ NOT NULL,
		policy_refs JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_proposal ON ledger_entries(proposal_id);
	CREATE TABLE IF NOT EXISTS diagnostic_annotations (
		id BIGSERIAL PRIMARY KEY,
		proposal_id TEXT NOT NULL,
		payload JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_annotation_proposal ON diagnostic_annotations(proposal_id);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	refsJSON, _ := json.Marshal(e.PolicyRefs)
	// The UNIQUE constraint on prev_hash makes concurrent appends against the
	// same tip a constraint violation rather than a fork.
	query := `INSERT INTO ledger_entries (
		sequence, proposal_id, epoch_index, decision, reason, risk_before, risk_after, prev_hash, entry_hash, timestamp, policy_refs
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, query,
		e.Sequence, e.ProposalID, e.EpochIndex, string(e.Decision), string(e.Reason),
		e.RiskBefore, e.RiskAfter, e.PrevHash, e.EntryHash, e.Timestamp.UTC(), string(refsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Tip(ctx context.Context) (string, uint64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT entry_hash, sequence FROM ledger_entries ORDER BY sequence DESC LIMIT 1")
	var hash string
	var seq uint64
	err := row.Scan(&hash, &seq)
	if err == sql.ErrNoRows {
		return s.genesis, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return hash, seq, nil
}

func (s *PostgresStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, pgSelectEntryColumns+" ORDER BY sequence ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := pgScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) ByProposal(ctx context.Context, proposalID string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, pgSelectEntryColumns+" WHERE proposal_id = $1 LIMIT 1", proposalID)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Entry{}, err
		}
		return Entry{}, ErrNotFound
	}
	return pgScanEntry(rows)
}

func (s *PostgresStore) PutAnnotation(ctx context.Context, a contracts.DiagnosticAnnotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode annotation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO diagnostic_annotations (proposal_id, payload) VALUES ($1, $2)",
		a.ProposalID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Annotations(ctx context.Context, proposalID string) ([]contracts.DiagnosticAnnotation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM diagnostic_annotations WHERE proposal_id = $1 ORDER BY id ASC", proposalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var anns []contracts.DiagnosticAnnotation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a contracts.DiagnosticAnnotation
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode annotation: %w", err)
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

const pgSelectEntryColumns = `SELECT sequence, proposal_id, epoch_index, decision, reason, risk_before, risk_after, prev_hash, entry_hash, timestamp, policy_refs FROM ledger_entries`

func pgScanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		decision string
		reason   string
		refsJSON sql.NullString
	)
	if err := rows.Scan(&e.Sequence, &e.ProposalID, &e.EpochIndex, &decision, &reason,
		&e.RiskBefore, &e.RiskAfter, &e.PrevHash, &e.EntryHash, &e.Timestamp, &refsJSON); err != nil {
		return Entry{}, err
	}
	e.Decision = contracts.Outcome(decision)
	e.Reason = contracts.DenyReason(reason)
	e.Timestamp = e.Timestamp.UTC()
	if refsJSON.Valid && refsJSON.String != "" {
		_ = json.Unmarshal([]byte(refsJSON.String), &e.PolicyRefs)
	}
	return e, nil
}
