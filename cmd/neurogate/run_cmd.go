package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/neuroprint-labs/neurogate/pkg/assets"
	"github.com/neuroprint-labs/neurogate/pkg/audit"
	"github.com/neuroprint-labs/neurogate/pkg/config"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
	"github.com/neuroprint-labs/neurogate/pkg/ledger"
	"github.com/neuroprint-labs/neurogate/pkg/observability"
	"github.com/neuroprint-labs/neurogate/pkg/overlay"
	"github.com/neuroprint-labs/neurogate/pkg/session"
)

// maxSnapshotLine bounds one JSONL snapshot record.
const maxSnapshotLine = 1 << 20

// ledgerSink adapts the ledger's annotation side table to the overlay's
// Annotator interface.
type ledgerSink struct {
	l *ledger.Ledger
}

func (s ledgerSink) Annotate(ctx context.Context, a contracts.DiagnosticAnnotation) error {
	return s.l.Annotate(ctx, a)
}

type runSummary struct {
	SessionID     string  `json:"session_id"`
	Epochs        int     `json:"epochs"`
	Accepted      int     `json:"accepted"`
	Denied        int     `json:"denied"`
	Failed        int     `json:"failed"`
	Tier          string  `json:"tier"`
	CommittedRisk float64 `json:"committed_risk"`
	ChainTip      string  `json:"chain_tip"`
	ChainLength   uint64  `json:"chain_length"`
	DroppedFrames uint64  `json:"dropped_frames"`
	Halted        bool    `json:"halted"`
}

//nolint:gocognit,gocyclo
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath      string
		snapshotsPath   string
		dbPath          string
		sessionID       string
		subjectID       string
		tier            string
		role            string
		jurisdiction    string
		consentToken    string
		consentFile     string
		annotationsPath string
		auditPath       string
		otlpEndpoint    string
		redisAddr       string
		redisPassword   string
		redisDB         int
		jsonOutput      bool
	)

	cmd.StringVar(&configPath, "config", "", "Session policy config YAML (REQUIRED)")
	cmd.StringVar(&snapshotsPath, "snapshots", "-", "JSONL snapshot stream ('-' for stdin)")
	cmd.StringVar(&dbPath, "db", "", "SQLite ledger path (default: in-memory)")
	cmd.StringVar(&sessionID, "session", "", "Session ID (REQUIRED)")
	cmd.StringVar(&subjectID, "subject", "", "Subject ID (REQUIRED)")
	cmd.StringVar(&tier, "tier", string(contracts.CapModelOnly), "Initial capability tier")
	cmd.StringVar(&role, "role", "operator", "Requesting role")
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction code")
	cmd.StringVar(&consentToken, "consent", "", "Signed consent token")
	cmd.StringVar(&consentFile, "consent-file", "", "File containing the consent token")
	cmd.StringVar(&annotationsPath, "annotations", "", "Write the diagnostic annotation JSONL stream here")
	cmd.StringVar(&auditPath, "audit", "", "Write the proposal decision JSONL log here ('-' for stdout)")
	cmd.StringVar(&otlpEndpoint, "otlp", "", "OTLP gRPC endpoint (telemetry off when empty)")
	cmd.StringVar(&redisAddr, "redis", "", "Redis address for a shared ingest limiter (in-process limiter when empty)")
	cmd.StringVar(&redisPassword, "redis-password", "", "Redis password")
	cmd.IntVar(&redisDB, "redis-db", 0, "Redis database number")
	cmd.BoolVar(&jsonOutput, "json", false, "Output summary as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if configPath == "" || sessionID == "" || subjectID == "" {
		fmt.Fprintln(stderr, "Error: --config, --session, and --subject are required")
		cmd.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 2
	}
	if consentFile != "" {
		raw, err := os.ReadFile(consentFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading consent token: %v\n", err)
			return 2
		}
		consentToken = string(trimNewline(raw))
	}

	checker, err := cfg.BuildConsentVerifier()
	if err != nil {
		fmt.Fprintf(stderr, "Error building consent verifier: %v\n", err)
		return 2
	}
	accountant, err := cfg.BuildAccountant()
	if err != nil {
		fmt.Fprintf(stderr, "Error building accountant: %v\n", err)
		return 2
	}
	krn, err := cfg.BuildKernel(checker)
	if err != nil {
		fmt.Fprintf(stderr, "Error building kernel: %v\n", err)
		return 2
	}

	genesis := ledger.GenesisHash(sessionID)
	var store ledger.Store
	if dbPath == "" {
		store = ledger.NewMemoryStore(genesis)
	} else {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening ledger db: %v\n", err)
			return 2
		}
		defer func() { _ = db.Close() }()
		store, err = ledger.NewSQLiteStore(db, genesis)
		if err != nil {
			fmt.Fprintf(stderr, "Error preparing ledger db: %v\n", err)
			return 2
		}
	}
	lgr := ledger.New(store, sessionID)

	sinks := audit.Tee{ledgerSink{lgr}}
	if annotationsPath != "" {
		f, err := os.Create(annotationsPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening annotation stream: %v\n", err)
			return 2
		}
		defer func() { _ = f.Close() }()
		sinks = append(sinks, audit.NewAnnotationStream(f))
	}

	var propLog *audit.ProposalLog
	switch auditPath {
	case "":
	case "-":
		propLog = audit.NewProposalLog()
	default:
		f, err := os.Create(auditPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening audit log: %v\n", err)
			return 2
		}
		defer func() { _ = f.Close() }()
		propLog = audit.NewProposalLogWithWriter(f)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "neurogate",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   otlpEndpoint,
		SampleRate:     1.0,
		Enabled:        otlpEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing telemetry: %v\n", err)
		return 2
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	consumer := overlay.NewConsumer(overlay.New(cfg.Overlay), sinks, 64, slog.Default())
	go consumer.Run(ctx)

	// The ingest limiter sits in front of the kernel path. A Redis store
	// shares one bucket across gateway replicas; otherwise a per-process
	// bucket applies whenever the config bounds the ingest rate.
	var limiter session.LimiterStore
	switch {
	case redisAddr != "":
		limiter = session.NewRedisLimiterStore(redisAddr, redisPassword, redisDB)
	case cfg.Ingest.EpochsPerMinute > 0:
		limiter = session.NewMemoryLimiterStore()
	}

	sess, err := session.New(session.Config{
		SessionID:    sessionID,
		SubjectID:    subjectID,
		InitialTier:  contracts.CapabilityState(tier),
		ConsentToken: consentToken,
		Role:         role,
		Jurisdiction: jurisdiction,
		Ingest:       cfg.Ingest,
	}, session.Deps{
		Evaluator:  cfg.BuildEvaluator(),
		Accountant: accountant,
		Kernel:     krn,
		Ledger:     lgr,
		Assets:     assets.NewEngine(cfg.Assets),
		Overlay:    consumer,
		Limiter:    limiter,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating session: %v\n", err)
		return 2
	}

	in := io.Reader(os.Stdin)
	if snapshotsPath != "-" {
		f, err := os.Open(snapshotsPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening snapshots: %v\n", err)
			return 2
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	summary := runSummary{SessionID: sessionID}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap contracts.SignalSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			fmt.Fprintf(stderr, "Skipping malformed snapshot: %v\n", err)
			summary.Failed++
			continue
		}

		ectx, finish := obs.TrackEpoch(ctx, sessionID, snap.EpochIndex)
		entry, decision, err := sess.ProcessEpoch(ectx, snap)
		finish(err)
		if err != nil {
			if errors.Is(err, contracts.ErrSessionHalted) {
				fmt.Fprintf(stderr, "Session halted at epoch %d: %v\n", snap.EpochIndex, err)
				summary.Failed++
				break
			}
			fmt.Fprintf(stderr, "Epoch %d failed: %v\n", snap.EpochIndex, err)
			summary.Failed++
			continue
		}
		summary.Epochs++

		hold := contracts.TransitionProposal{
			ProposalID: entry.ProposalID,
			SubjectID:  subjectID,
			EpochIndex: entry.EpochIndex,
			FromState:  sess.Tier(),
			ToState:    sess.Tier(),
			Risk:       contracts.RiskScore{Before: entry.RiskBefore, After: entry.RiskAfter},
		}
		obs.RecordDecision(ectx, hold, decision)
		obs.RecordCommittedRisk(ectx, sessionID, sess.Tier(), sess.CommittedRisk())
		if propLog != nil {
			if err := propLog.Record(ctx, entry, hold, decision); err != nil {
				fmt.Fprintf(stderr, "Audit log write failed: %v\n", err)
			}
		}

		if decision.Accepted() {
			summary.Accepted++
		} else {
			summary.Denied++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stderr, "Error reading snapshots: %v\n", err)
		return 2
	}

	cancel()
	<-consumer.Done()
	consumer.Flush(context.Background())

	verifyCtx := context.Background()
	n, verifyErr := sess.VerifyChain(verifyCtx)
	obs.RecordChainVerification(verifyCtx, sessionID, verifyErr == nil)
	obs.RecordFramesDropped(verifyCtx, sessionID, int64(consumer.Dropped()))

	tip, count, err := lgr.Tip(verifyCtx)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading chain tip: %v\n", err)
		return 2
	}

	summary.Tier = string(sess.Tier())
	summary.CommittedRisk = sess.CommittedRisk()
	summary.ChainTip = tip
	summary.ChainLength = count
	summary.DroppedFrames = consumer.Dropped()
	summary.Halted = sess.Halted()

	if jsonOutput {
		data, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Session:   %s\n", summary.SessionID)
		fmt.Fprintf(stdout, "Epochs:    %d (%d accepted, %d denied, %d failed)\n",
			summary.Epochs, summary.Accepted, summary.Denied, summary.Failed)
		fmt.Fprintf(stdout, "Tier:      %s\n", summary.Tier)
		fmt.Fprintf(stdout, "Risk:      %.4f\n", summary.CommittedRisk)
		fmt.Fprintf(stdout, "Chain:     %d entries, tip %s\n", summary.ChainLength, summary.ChainTip)
	}

	if verifyErr != nil {
		fmt.Fprintf(stderr, "Chain verification failed at entry %d: %v\n", n, verifyErr)
		return 1
	}
	if summary.Halted {
		return 1
	}
	return 0
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
