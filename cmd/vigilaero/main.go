package main

import (
	"fmt"
	"io"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.4.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches a subcommand and returns the process exit code.
//
// Exit codes:
//
//	0 = success
//	1 = readiness gate failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "frameworks":
		return runFrameworksCmd(args[2:], stdout, stderr)
	case "controls":
		return runControlsCmd(args[2:], stdout, stderr)
	case "score":
		return runScoreCmd(args[2:], stdout, stderr)
	case "check":
		return runCheckCmd(args[2:], stdout, stderr)
	case "fetch":
		return runFetchCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "vigilaero %s\n", version)
		return 0
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
	fmt.Fprintf(w, "VigilAero %s\n", version)
	fmt.Fprintln(w, "Drone fleet compliance readiness.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  vigilaero <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "CATALOG")
	printCommand(w, "frameworks", "List registered frameworks (--format)")
	printCommand(w, "controls", "List a framework's controls (--framework)")

	printSection(w, "READINESS")
	printCommand(w, "score", "Score saved state against an evidence file (--framework, --state, --evidence)")
	printCommand(w, "check", "Evaluate a readiness gate, exit 1 on failure (--expr)")
	printCommand(w, "fetch", "Score against the configured evidence source (--scope, --asset, --from, --to)")
	printCommand(w, "export", "Build a sealed audit package (--out, --publish)")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Run the readiness API and evidence pollers (--profile)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, desc)
}
