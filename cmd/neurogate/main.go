package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "run":
		return runReplayCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "neurogate — governed telemetry pipeline")
	fmt.Fprintln(w, "Collectors propose. The kernel disposes.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  neurogate <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "PIPELINE:")
	printCommand(w, "run", "Replay signal snapshots through a governed session")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "AUDIT:")
	printCommand(w, "verify", "Verify a session's ledger chain (--db, --session)")
	printCommand(w, "export", "Export an evidence pack (--db, --session, --out)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "UTILITIES:")
	printCommand(w, "keygen", "Generate a consent issuer keypair and token")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-8s %s\n", name, desc)
}
