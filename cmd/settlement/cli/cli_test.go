package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/shared"
	"github.com/resguarit/pos-system-sub005/jobs"
)

type stubAuthorizer struct {
	result fiscal.Result
	err    error
}

func (s stubAuthorizer) Authorize(ctx context.Context, saleID int64) (fiscal.Result, error) {
	if s.err != nil {
		return fiscal.Result{}, s.err
	}
	res := s.result
	res.SaleID = saleID
	return res, nil
}

type stubPoster struct {
	scope shared.RequestScope
	res   ledger.Result
}

func (s *stubPoster) PostLedgerForSale(ctx context.Context, scope shared.RequestScope, saleID int64) (ledger.Result, error) {
	s.scope = scope
	return s.res, nil
}

func TestAuthorizeCommandJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	authorizer := stubAuthorizer{result: fiscal.Result{Outcome: fiscal.OutcomeAuthorized, AuthCode: "CAE-1", Number: 12}}

	exitCode := AuthorizeCommand(context.Background(), authorizer, AuthorizeOptions{
		SaleID:     5,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary AuthorizeSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, int64(5), summary.SaleID)
	require.Equal(t, "authorized", summary.Outcome)
	require.Equal(t, "CAE-1", summary.AuthCode)
	require.False(t, summary.Conflict)
}

func TestAuthorizeCommandConflictExitCode(t *testing.T) {
	stdout := new(bytes.Buffer)
	authorizer := stubAuthorizer{result: fiscal.Result{Outcome: fiscal.OutcomeAuthorized, Number: 40, Conflict: true}}

	exitCode := AuthorizeCommand(context.Background(), authorizer, AuthorizeOptions{SaleID: 5, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "NUMBER CONFLICT")
}

func TestAuthorizeCommandErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, AuthorizeCommand(context.Background(), nil, AuthorizeOptions{SaleID: 1, Stderr: stderr}))
	require.Contains(t, stderr.String(), "disabled")

	stderr.Reset()
	require.Equal(t, 1, AuthorizeCommand(context.Background(), stubAuthorizer{}, AuthorizeOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "--sale")

	stderr.Reset()
	failing := stubAuthorizer{err: shared.ExternalAuthorization(errors.New("timeout"), "gateway unreachable")}
	require.Equal(t, 1, AuthorizeCommand(context.Background(), failing, AuthorizeOptions{SaleID: 1, Stderr: stderr}))
	require.Contains(t, stderr.String(), "authorization_failed")
}

func TestRunDispatch(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	poster := &stubPoster{res: ledger.Result{CashPosted: 1, Skipped: 2}}
	deps := Deps{
		Authorizer: stubAuthorizer{result: fiscal.Result{Outcome: fiscal.OutcomeSkipped, Reason: "not_fiscal"}},
		Sales:      poster,
		Stdout:     stdout,
		Stderr:     stderr,
	}

	require.Zero(t, Run(context.Background(), []string{"authorize", "--sale", "9"}, deps))
	require.Contains(t, stdout.String(), "sale 9: skipped (not_fiscal)")

	stdout.Reset()
	require.Zero(t, Run(context.Background(), []string{"ledger-post", "--sale", "9", "--actor", "3", "--branch", "7", "--json"}, deps))
	require.Equal(t, shared.RequestScope{ActorID: 3, BranchID: 7}, poster.scope)
	var out map[string]int
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, 1, out["cash_posted"])
	require.Equal(t, 2, out["skipped"])

	require.Equal(t, 1, Run(context.Background(), []string{"ledger-post", "--sale", "9"}, deps))
	require.Equal(t, 2, Run(context.Background(), []string{"bogus"}, deps))
	require.Equal(t, 2, Run(context.Background(), nil, deps))
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskFiscalAuthorize, TriggerParams{SaleID: 4})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskFiscalAuthorize, task.Type())

	_, err = BuildTask(jobs.TaskFiscalAuthorize, TriggerParams{})
	require.Error(t, err)

	task, err = BuildTask(jobs.TaskFiscalSweep, TriggerParams{Limit: 20})
	require.NoError(t, err)
	require.JSONEq(t, `{"limit":20}`, string(task.Payload()))

	_, err = BuildTask("analytics:warmup", TriggerParams{})
	require.Error(t, err)
}
