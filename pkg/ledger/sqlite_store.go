package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists one session's chain in SQLite. Ledger entries and
// diagnostic annotations live in separate tables; annotations never touch the
// entries table.
type SQLiteStore struct {
	db      *sql.DB
	genesis string
}

func NewSQLiteStore(db *sql.DB, genesis string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, genesis: genesis}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS ledger_entries (
        sequence INTEGER PRIMARY KEY,
        proposal_id TEXT NOT NULL,
        epoch_index INTEGER NOT NULL,
        decision TEXT NOT NULL,
        reason TEXT NOT NULL DEFAULT '',
        risk_before REAL NOT NULL,
        risk_after REAL NOT NULL,
        prev_hash TEXT NOT NULL,
        entry_hash TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        policy_refs JSON
    );
    CREATE INDEX IF NOT EXISTS idx_ledger_proposal ON ledger_entries(proposal_id);
    CREATE TABLE IF NOT EXISTS diagnostic_annotations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        proposal_id TEXT NOT NULL,
        payload JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_annotation_proposal ON diagnostic_annotations(proposal_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	refsJSON, _ := json.Marshal(e.PolicyRefs)
	query := `INSERT INTO ledger_entries (
		sequence, proposal_id, epoch_index, decision, reason, risk_before, risk_after, prev_hash, entry_hash, timestamp, policy_refs
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		e.Sequence, e.ProposalID, e.EpochIndex, string(e.Decision), string(e.Reason),
		e.RiskBefore, e.RiskAfter, e.PrevHash, e.EntryHash,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(refsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Tip(ctx context.Context) (string, uint64, error) {
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

func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntryColumns+" ORDER BY sequence ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ByProposal(ctx context.Context, proposalID string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntryColumns+" WHERE proposal_id = ? LIMIT 1", proposalID)
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
	return scanEntry(rows)
}

func (s *SQLiteStore) PutAnnotation(ctx context.Context, a contracts.DiagnosticAnnotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode annotation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO diagnostic_annotations (proposal_id, payload) VALUES (?, ?)",
		a.ProposalID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Annotations(ctx context.Context, proposalID string) ([]contracts.DiagnosticAnnotation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM diagnostic_annotations WHERE proposal_id = ? ORDER BY id ASC", proposalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var anns []contracts.DiagnosticAnnotation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a contracts.DiagnosticAnnotation
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to decode annotation: %w", err)
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

const selectEntryColumns = `SELECT sequence, proposal_id, epoch_index, decision, reason, risk_before, risk_after, prev_hash, entry_hash, timestamp, policy_refs FROM ledger_entries`

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		decision  string
		reason    string
		timestamp string
		refsJSON  sql.NullString
	)
	if err := rows.Scan(&e.Sequence, &e.ProposalID, &e.EpochIndex, &decision, &reason,
		&e.RiskBefore, &e.RiskAfter, &e.PrevHash, &e.EntryHash, &timestamp, &refsJSON); err != nil {
		return Entry{}, err
	}
	e.Decision = contracts.Outcome(decision)
	e.Reason = contracts.DenyReason(reason)
	e.Timestamp = parseTimestamp(timestamp)
	if refsJSON.Valid && refsJSON.String != "" {
		_ = json.Unmarshal([]byte(refsJSON.String), &e.PolicyRefs)
	}
	return e, nil
}

func parseTimestamp(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
