package jobs

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFiscalAuthorize authorizes one committed sale with the tax authority.
	TaskFiscalAuthorize = "fiscal:authorize"
	// TaskFiscalSweep enqueues authorization for every pending fiscal sale.
	TaskFiscalSweep = "fiscal:sweep"

	// FiscalAuthorizeMaxRetry bounds gateway retries of one sale.
	FiscalAuthorizeMaxRetry = 8
	// FiscalSweepSpec runs the sweep every ten minutes.
	FiscalSweepSpec = "*/10 * * * *"
)

var taskNamespace = uuid.MustParse("6f1c3f5e-8d2a-4b9e-9c57-2f0d1f6a4c11")

// FiscalAuthorizePayload identifies the sale to authorize.
type FiscalAuthorizePayload struct {
	SaleID int64 `json:"sale_id"`
}

// FiscalSweepPayload bounds one sweep run.
type FiscalSweepPayload struct {
	Limit int `json:"limit"`
}

// FiscalAuthorizeTaskID derives the task id of a sale so that duplicate
// enqueues collapse into one pending task.
func FiscalAuthorizeTaskID(saleID int64) string {
	return uuid.NewSHA1(taskNamespace, []byte(TaskFiscalAuthorize+":"+strconv.FormatInt(saleID, 10))).String()
}

// NewFiscalAuthorizeTask constructs an authorization task for saleID.
func NewFiscalAuthorizeTask(saleID int64) (*asynq.Task, error) {
	data, err := json.Marshal(FiscalAuthorizePayload{SaleID: saleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalAuthorize, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID(FiscalAuthorizeTaskID(saleID)),
		asynq.MaxRetry(FiscalAuthorizeMaxRetry),
		asynq.Timeout(2*time.Minute),
	), nil
}

// NewFiscalSweepTask constructs a sweep task.
func NewFiscalSweepTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(FiscalSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalSweep, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
