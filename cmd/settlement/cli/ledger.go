package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// LedgerPostOptions defines the flags of the ledger-post command.
type LedgerPostOptions struct {
	SaleID     int64
	ActorID    int64
	BranchID   int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LedgerPostCommand re-posts the ledger movements of a sale. Movements that
// already exist are skipped, so repeated runs are harmless.
func LedgerPostCommand(ctx context.Context, poster LedgerPoster, opts LedgerPostOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if poster == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger-post: sales service not configured")
		return 1
	}
	if opts.SaleID <= 0 || opts.ActorID <= 0 || opts.BranchID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger-post: --sale, --actor and --branch must be positive")
		return 1
	}
	scope := shared.RequestScope{ActorID: opts.ActorID, BranchID: opts.BranchID}
	result, err := poster.PostLedgerForSale(ctx, scope, opts.SaleID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger-post: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		out := map[string]int{
			"cash_posted":    result.CashPosted,
			"account_posted": result.AccountPosted,
			"skipped":        result.Skipped,
		}
		if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger-post: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "sale %d: cash=%d account=%d skipped=%d\n",
		opts.SaleID, result.CashPosted, result.AccountPosted, result.Skipped)
	return 0
}
