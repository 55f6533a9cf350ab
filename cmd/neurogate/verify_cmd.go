package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/ledger"
)

type verifyResult struct {
	SessionID   string             `json:"session_id"`
	Valid       bool               `json:"valid"`
	Verified    uint64             `json:"verified_entries"`
	ChainTip    string             `json:"chain_tip"`
	ChainLength uint64             `json:"chain_length"`
	Error       string             `json:"error,omitempty"`
	Checkpoint  *ledger.Checkpoint `json:"checkpoint,omitempty"`
}

// runVerifyCmd re-verifies a persisted session chain and optionally emits a
// signed tip checkpoint for external auditors.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		sessionID  string
		anchorSeed string
		jsonOutput bool
	)

	cmd.StringVar(&dbPath, "db", "", "SQLite ledger path (REQUIRED)")
	cmd.StringVar(&sessionID, "session", "", "Session ID (REQUIRED)")
	cmd.StringVar(&anchorSeed, "anchor-seed", "", "Base64 master seed; when set, sign a tip checkpoint")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbPath == "" || sessionID == "" {
		fmt.Fprintln(stderr, "Error: --db and --session are required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening ledger db: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	store, err := ledger.NewSQLiteStore(db, ledger.GenesisHash(sessionID))
	if err != nil {
		fmt.Fprintf(stderr, "Error preparing ledger db: %v\n", err)
		return 2
	}
	lgr := ledger.New(store, sessionID)

	result := verifyResult{SessionID: sessionID}
	n, verifyErr := lgr.VerifyChain(ctx)
	result.Verified = n
	result.Valid = verifyErr == nil
	if verifyErr != nil {
		result.Error = verifyErr.Error()
	}

	tip, count, err := lgr.Tip(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading chain tip: %v\n", err)
		return 2
	}
	result.ChainTip = tip
	result.ChainLength = count

	if result.Valid && anchorSeed != "" {
		seed, err := base64.StdEncoding.DecodeString(anchorSeed)
		if err != nil {
			fmt.Fprintf(stderr, "Error decoding anchor seed: %v\n", err)
			return 2
		}
		anchor, err := ledger.DeriveAnchor(seed, sessionID)
		if err != nil {
			fmt.Fprintf(stderr, "Error deriving anchor: %v\n", err)
			return 2
		}
		cp, err := anchor.SignCheckpoint(tip, count, time.Now())
		if err != nil {
			fmt.Fprintf(stderr, "Error signing checkpoint: %v\n", err)
			return 2
		}
		result.Checkpoint = &cp
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if result.Valid {
		fmt.Fprintf(stdout, "Chain verified: %d entries, tip %s\n", result.Verified, result.ChainTip)
		if result.Checkpoint != nil {
			fmt.Fprintf(stdout, "Checkpoint signed at %s\n", result.Checkpoint.SignedAt.Format(time.RFC3339))
		}
	} else {
		fmt.Fprintf(stderr, "Chain verification failed at entry %d: %s\n", result.Verified, result.Error)
	}

	if !result.Valid {
		return 1
	}
	return 0
}
