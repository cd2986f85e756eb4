// Command acctosctl deploys an account system, reconciles its name-resolution
// datasets, creates accounts and serves the read-only query API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/acctos/internal/logging"
)

const usage = `usage: acctosctl <command> [flags]

commands:
  deploy    deploy the system (or reopen it) and print the manifest
  sync      reconcile name-resolution datasets in chunks
  account   create an account governed by -monarch
  serve     serve the query API until interrupted
`

var errUsage = errors.New("acctosctl: usage")

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "acctosctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "deploy":
		return runDeploy(ctx, rest, out)
	case "sync":
		return runSync(ctx, rest, out)
	case "account":
		return runAccount(ctx, rest, out)
	case "serve":
		return runServe(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}
