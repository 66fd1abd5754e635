// Package cli implements the operator subcommands of the settlement binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// FiscalAuthorizer authorizes a single sale with the fiscal gateway.
type FiscalAuthorizer interface {
	Authorize(ctx context.Context, saleID int64) (fiscal.Result, error)
}

// LedgerPoster posts or re-posts the ledger movements of a sale.
type LedgerPoster interface {
	PostLedgerForSale(ctx context.Context, scope shared.RequestScope, saleID int64) (ledger.Result, error)
}

// Deps carries the services available to subcommands. Authorizer is nil when
// fiscal authorization is disabled.
type Deps struct {
	Authorizer FiscalAuthorizer
	Sales      LedgerPoster
	RedisAddr  string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run dispatches args to a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, deps Deps) int {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if len(args) == 0 {
		usage(deps.Stderr)
		return 2
	}
	switch args[0] {
	case "authorize":
		return runAuthorize(ctx, args[1:], deps)
	case "ledger-post":
		return runLedgerPost(ctx, args[1:], deps)
	case "jobs":
		return runJobs(ctx, args[1:], deps)
	default:
		_, _ = fmt.Fprintf(deps.Stderr, "unknown command %q\n", args[0])
		usage(deps.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: settlement <command> [flags]")
	_, _ = fmt.Fprintln(w, "  authorize   --sale ID [--json]")
	_, _ = fmt.Fprintln(w, "  ledger-post --sale ID --actor ID --branch ID [--json]")
	_, _ = fmt.Fprintln(w, "  jobs        trigger <task> [--sale ID] | stats")
}

func runAuthorize(ctx context.Context, args []string, deps Deps) int {
	fs := flag.NewFlagSet("authorize", flag.ContinueOnError)
	fs.SetOutput(deps.Stderr)
	opts := AuthorizeOptions{Stdout: deps.Stdout, Stderr: deps.Stderr}
	fs.Int64Var(&opts.SaleID, "sale", 0, "sale document id")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return AuthorizeCommand(ctx, deps.Authorizer, opts)
}

func runLedgerPost(ctx context.Context, args []string, deps Deps) int {
	fs := flag.NewFlagSet("ledger-post", flag.ContinueOnError)
	fs.SetOutput(deps.Stderr)
	opts := LedgerPostOptions{Stdout: deps.Stdout, Stderr: deps.Stderr}
	fs.Int64Var(&opts.SaleID, "sale", 0, "sale document id")
	fs.Int64Var(&opts.ActorID, "actor", 0, "acting user id")
	fs.Int64Var(&opts.BranchID, "branch", 0, "branch id")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return LedgerPostCommand(ctx, deps.Sales, opts)
}

func runJobs(ctx context.Context, args []string, deps Deps) int {
	if len(args) == 0 {
		usage(deps.Stderr)
		return 2
	}
	jobsCLI := NewJobsCLI(deps.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(deps.Stderr)
		var saleID int64
		var limit int
		fs.Int64Var(&saleID, "sale", 0, "sale id for fiscal:authorize")
		fs.IntVar(&limit, "limit", 100, "batch size for fiscal:sweep")
		if len(args) < 2 {
			usage(deps.Stderr)
			return 2
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], TriggerParams{SaleID: saleID, Limit: limit})
		if err != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(deps.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(deps.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		_, _ = fmt.Fprintf(deps.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
}
