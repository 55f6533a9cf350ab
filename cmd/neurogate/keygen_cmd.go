package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/neuroprint-labs/neurogate/pkg/consent"
	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// runKeygenCmd generates a consent issuer keypair and, when a subject is
// given, a signed consent token scoped to the requested tiers. The public key
// goes into the session config; the private key stays with the consent
// authority.
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		issuer     string
		subjectID  string
		tiersCSV   string
		ttl        time.Duration
		jsonOutput bool
	)

	cmd.StringVar(&issuer, "issuer", "neurogate-consent", "Issuer name embedded in tokens")
	cmd.StringVar(&subjectID, "subject", "", "Issue a token for this subject")
	cmd.StringVar(&tiersCSV, "tiers", string(contracts.CapModelOnly), "Comma-separated tier scope for the token")
	cmd.DurationVar(&ttl, "ttl", 24*time.Hour, "Token validity window")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating keypair: %v\n", err)
		return 1
	}

	result := map[string]any{
		"issuer":             issuer,
		"public_key_base64":  base64.StdEncoding.EncodeToString(pub),
		"private_key_base64": base64.StdEncoding.EncodeToString(priv),
	}

	if subjectID != "" {
		var tiers []contracts.CapabilityState
		for _, raw := range strings.Split(tiersCSV, ",") {
			tier := contracts.CapabilityState(strings.TrimSpace(raw))
			if !tier.Valid() {
				fmt.Fprintf(stderr, "Error: unknown tier %q\n", raw)
				return 2
			}
			tiers = append(tiers, tier)
		}
		token, err := consent.NewIssuer(priv, issuer).Issue(subjectID, tiers, ttl)
		if err != nil {
			fmt.Fprintf(stderr, "Error issuing token: %v\n", err)
			return 1
		}
		result["subject_id"] = subjectID
		result["consent_token"] = token
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Issuer:      %s\n", issuer)
		fmt.Fprintf(stdout, "Public key:  %s\n", result["public_key_base64"])
		fmt.Fprintf(stdout, "Private key: %s\n", result["private_key_base64"])
		if token, ok := result["consent_token"]; ok {
			fmt.Fprintf(stdout, "Token:       %s\n", token)
		}
	}
	return 0
}
