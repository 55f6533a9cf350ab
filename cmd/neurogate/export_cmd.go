package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/audit"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
)

// runExportCmd writes an evidence pack for a persisted session.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		sessionID  string
		outPath    string
		startStr   string
		endStr     string
		jsonOutput bool
	)

	cmd.StringVar(&dbPath, "db", "", "SQLite ledger path (REQUIRED)")
	cmd.StringVar(&sessionID, "session", "", "Session ID (REQUIRED)")
	cmd.StringVar(&outPath, "out", "", "Output path for the zip pack (REQUIRED)")
	cmd.StringVar(&startStr, "start", "", "Include entries at or after this RFC3339 time")
	cmd.StringVar(&endStr, "end", "", "Include entries at or before this RFC3339 time")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbPath == "" || sessionID == "" || outPath == "" {
		fmt.Fprintln(stderr, "Error: --db, --session, and --out are required")
		cmd.Usage()
		return 2
	}

	req := audit.ExportRequest{SessionID: sessionID}
	if startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error parsing --start: %v\n", err)
			return 2
		}
		req.StartTime = t
	}
	if endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error parsing --end: %v\n", err)
			return 2
		}
		req.EndTime = t
	}

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

	pack, checksum, err := audit.NewExporter(ledger.New(store, sessionID)).GeneratePack(context.Background(), req)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating pack: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, pack, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing pack: %v\n", err)
		return 1
	}

	if jsonOutput {
		result := map[string]any{
			"session_id": sessionID,
			"pack_path":  outPath,
			"sha256":     checksum,
			"size_bytes": len(pack),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Evidence pack written: %s (%d bytes)\n", outPath, len(pack))
		fmt.Fprintf(stdout, "SHA-256: %s\n", checksum)
	}
	return 0
}
