package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// AuthorizeOptions defines the flags of the authorize command.
type AuthorizeOptions struct {
	SaleID     int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// AuthorizeSummary is the JSON output of the authorize command.
type AuthorizeSummary struct {
	SaleID   int64  `json:"sale_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
	AuthCode string `json:"auth_code,omitempty"`
	Number   int64  `json:"number,omitempty"`
	Conflict bool   `json:"conflict"`
}

// AuthorizeCommand authorizes one sale synchronously. It exits with 10 when
// the authorization succeeded but the fiscal number differs from the local
// one, so operators can reconcile it.
func AuthorizeCommand(ctx context.Context, authorizer FiscalAuthorizer, opts AuthorizeOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if authorizer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "authorize: fiscal authorization is disabled (FISCAL_MODE=off)")
		return 1
	}
	if opts.SaleID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "authorize: --sale is required and must be positive")
		return 1
	}
	result, err := authorizer.Authorize(ctx, opts.SaleID)
	if err != nil {
		if e, ok := shared.AsError(err); ok && e.Reason != "" {
			_, _ = fmt.Fprintf(opts.Stderr, "authorize: %s: %v\n", e.Reason, err)
		} else {
			_, _ = fmt.Fprintf(opts.Stderr, "authorize: %v\n", err)
		}
		return 1
	}
	summary := AuthorizeSummary{
		SaleID:   result.SaleID,
		Outcome:  string(result.Outcome),
		Reason:   result.Reason,
		AuthCode: result.AuthCode,
		Number:   result.Number,
		Conflict: result.Conflict,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "authorize: encode json: %v\n", err)
			return 1
		}
	} else {
		renderAuthorizeHuman(opts.Stdout, summary)
	}
	if result.Outcome == fiscal.OutcomeAuthorized && result.Conflict {
		return 10
	}
	return 0
}

func renderAuthorizeHuman(w io.Writer, s AuthorizeSummary) {
	_, _ = fmt.Fprintf(w, "sale %d: %s", s.SaleID, s.Outcome)
	if s.Reason != "" {
		_, _ = fmt.Fprintf(w, " (%s)", s.Reason)
	}
	if s.AuthCode != "" {
		_, _ = fmt.Fprintf(w, " auth_code=%s number=%d", s.AuthCode, s.Number)
	}
	if s.Conflict {
		_, _ = fmt.Fprint(w, " NUMBER CONFLICT")
	}
	_, _ = fmt.Fprintln(w)
}
