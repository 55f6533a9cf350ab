package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neuroprint-labs/neurogate/pkg/consent"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

func TestRunDispatch(t *testing.T) {
	var out, errOut bytes.Buffer

	require.Equal(t, 2, Run([]string{"neurogate"}, &out, &errOut))
	require.Contains(t, errOut.String(), "USAGE")

	errOut.Reset()
	require.Equal(t, 2, Run([]string{"neurogate", "bogus"}, &out, &errOut))
	require.Contains(t, errOut.String(), "Unknown command")

	out.Reset()
	require.Equal(t, 0, Run([]string{"neurogate", "help"}, &out, &errOut))
	require.Contains(t, out.String(), "verify")
}

func TestKeygenIssuesToken(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"neurogate", "keygen",
		"--subject", "subj-1", "--tiers", "MODEL_ONLY,LAB_BENCH", "--json"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.NotEmpty(t, result["public_key_base64"])
	require.NotEmpty(t, result["consent_token"])
}

func TestKeygenRejectsUnknownTier(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"neurogate", "keygen", "--subject", "subj-1", "--tiers", "WIDE_OPEN"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "unknown tier")
}

// writeFixtures builds a config, consent token, and snapshot stream for one
// end-to-end replay.
func writeFixtures(t *testing.T, dir string) (configPath, snapshotsPath, token string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	token, err = consent.NewIssuer(priv, "test-authority").
		Issue("subj-1", []contracts.CapabilityState{contracts.CapModelOnly}, time.Hour)
	require.NoError(t, err)

	configYAML := fmt.Sprintf(`
schema_version: "1.0.0"
thresholds:
  heart_rate:
    min_warn: 50
    max_warn: 100
    min_safe: 40
    max_safe: 120
    warn_epochs_to_flag: 2
    risk_epochs_to_downgrade: 2
risk_weights:
  heart_rate: 1.0
hard_ceiling: 0.30
ceilings:
  MODEL_ONLY: 0.10
  LAB_BENCH: 0.20
  CONTROLLED_HUMAN: 0.30
  GENERAL_USE: 0.30
consent:
  issuer: test-authority
  public_key_base64: %s
`, base64.StdEncoding.EncodeToString(pub))

	configPath = filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o600))

	var stream bytes.Buffer
	for i := 1; i <= 3; i++ {
		snap := contracts.SignalSnapshot{
			SubjectID:            "subj-1",
			EpochIndex:           uint64(i),
			EpochDurationSeconds: 5,
			Channels: map[contracts.Channel]float64{
				contracts.ChannelHeartRate:  70,
				contracts.ChannelAlphaPower: 0.5,
			},
		}
		line, err := json.Marshal(snap)
		require.NoError(t, err)
		stream.Write(line)
		stream.WriteByte('\n')
	}
	snapshotsPath = filepath.Join(dir, "snapshots.jsonl")
	require.NoError(t, os.WriteFile(snapshotsPath, stream.Bytes(), 0o600))

	return configPath, snapshotsPath, token
}

func TestReplayVerifyExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath, snapshotsPath, token := writeFixtures(t, dir)
	dbPath := filepath.Join(dir, "ledger.db")
	annotationsPath := filepath.Join(dir, "annotations.jsonl")

	var out, errOut bytes.Buffer
	code := Run([]string{"neurogate", "run",
		"--config", configPath,
		"--snapshots", snapshotsPath,
		"--db", dbPath,
		"--session", "sess-cli",
		"--subject", "subj-1",
		"--tier", "MODEL_ONLY",
		"--consent", token,
		"--annotations", annotationsPath,
		"--json",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, 3, summary.Epochs)
	require.Equal(t, 3, summary.Accepted)
	require.Equal(t, uint64(3), summary.ChainLength)
	require.False(t, summary.Halted)

	// verify against the same session succeeds and signs a checkpoint
	out.Reset()
	errOut.Reset()
	seed := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	code = Run([]string{"neurogate", "verify",
		"--db", dbPath, "--session", "sess-cli", "--anchor-seed", seed, "--json",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var vr verifyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &vr))
	require.True(t, vr.Valid)
	require.Equal(t, uint64(3), vr.Verified)
	require.NotNil(t, vr.Checkpoint)
	require.Equal(t, summary.ChainTip, vr.Checkpoint.TipHash)

	// a different session ID anchors a different genesis, so the chain no
	// longer verifies
	out.Reset()
	errOut.Reset()
	code = Run([]string{"neurogate", "verify",
		"--db", dbPath, "--session", "sess-other",
	}, &out, &errOut)
	require.Equal(t, 1, code)

	// export produces a pack on disk
	out.Reset()
	errOut.Reset()
	packPath := filepath.Join(dir, "evidence.zip")
	code = Run([]string{"neurogate", "export",
		"--db", dbPath, "--session", "sess-cli", "--out", packPath, "--json",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	info, err := os.Stat(packPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestReplayEnforcesIngestLimit(t *testing.T) {
	dir := t.TempDir()
	configPath, snapshotsPath, token := writeFixtures(t, dir)

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	raw = append(raw, []byte("ingest:\n  epochs_per_minute: 1\n  burst: 1\n")...)
	require.NoError(t, os.WriteFile(configPath, raw, 0o600))

	var out, errOut bytes.Buffer
	code := Run([]string{"neurogate", "run",
		"--config", configPath,
		"--snapshots", snapshotsPath,
		"--session", "sess-limited",
		"--subject", "subj-1",
		"--consent", token,
		"--json",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	// The bucket admits one epoch; the other two are refused before the
	// kernel path and never reach the ledger.
	var summary runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, 1, summary.Epochs)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, uint64(1), summary.ChainLength)
}

func TestReplayRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"neurogate", "run", "--session", "s"}, &out, &errOut)
	require.Equal(t, 2, code)
	require.Contains(t, errOut.String(), "required")
}
