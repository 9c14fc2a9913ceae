// Command taskqueue is the operator CLI and reference runner process for the
// task queue: it can run a worker engine against the configured store, or
// act as a thin client to query/manage queue state.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s run [-channels a,b,c] [-max-workers N]   Start a worker engine
  %s status [-channel NAME] [-json]           Show queue status
  %s cancel <task-id>                         Cancel a pending task
  %s clear-channel <name>                     Drop a channel's queued work
  %s doctor [-json]                           Run connectivity diagnostics

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  TASKQUEUE_HOME            Data directory (default: ~/.taskqueue)
  TASKQUEUE_REDIS_ADDR      Override the configured Redis address
  TASKQUEUE_REDIS_PASSWORD  Override the configured Redis password
`)
}

func main() {
	loadDotEnv(".env")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "run":
		os.Exit(runRunCommand(ctx, args[1:]))
	case "status":
		os.Exit(runStatusCommand(ctx, args[1:]))
	case "cancel":
		os.Exit(runCancelCommand(ctx, args[1:]))
	case "clear-channel":
		os.Exit(runClearChannelCommand(ctx, args[1:]))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

// quietLogs reports whether stdout is an interactive terminal, in which
// case ambient logging is kept to the log file so operator output stays
// readable.
func quietLogs() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}
