// Package renewal implements the annuity payment workflow: the step state
// machine each renewal task moves through, the invoicing sub-states, and the
// fee arithmetic for quoting a renewal.
package renewal

import (
	"context"
	"time"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Step is the position of a renewal task in the payment workflow.  The
// sequence is not strictly linear: the terminal branches are reachable from
// several prior states, and corrections may move a renewal backwards.
type Step int

const (
	// StepOpen is the initial state of a freshly generated renewal.
	StepOpen Step = 0
	// StepFirstCall means payment instructions were requested from the
	// client.
	StepFirstCall Step = 1
	// StepReminder means the client was reminded after no instruction.
	StepReminder Step = 2
	// StepToPay means a payment order was received and the renewal awaits
	// payment.
	StepToPay Step = 3
	// StepPaid means the paying agent confirmed payment.
	StepPaid Step = 4
	// StepReceipt means the receipt was generated and the cycle is closing.
	StepReceipt Step = 5

	// StepDone closes the cycle.
	StepDone Step = 10
	// StepAbandoned records a client instruction not to pay.  Absorbing.
	StepAbandoned Step = 11
	// StepLapsing marks a renewal left to lapse after no instruction.
	// Absorbing.
	StepLapsing Step = 12
)

// InvoiceStep is the invoicing sub-state.  It advances independently of
// Step: a renewal can be instructed to the foreign agent before the client
// invoice is settled.
type InvoiceStep int

const (
	// InvoiceNone means no client invoice exists yet.
	InvoiceNone InvoiceStep = 0
	// InvoiceRaised means the client invoice was issued.
	InvoiceRaised InvoiceStep = 1
	// InvoicePaymentReceived means the client's payment order arrived.
	InvoicePaymentReceived InvoiceStep = 2
)

var validSteps = map[Step]struct{}{
	StepOpen: {}, StepFirstCall: {}, StepReminder: {}, StepToPay: {},
	StepPaid: {}, StepReceipt: {}, StepDone: {}, StepAbandoned: {}, StepLapsing: {},
}

// ValidStep reports whether s is a known workflow position.
func ValidStep(s Step) bool {
	_, ok := validSteps[s]
	return ok
}

// CheckStep returns an error when s is outside the defined state set.
func CheckStep(s Step) error {
	if !ValidStep(s) {
		return errors.Newf(errors.ErrCodeInvalidStep, "unknown renewal step %d", s)
	}
	return nil
}

// ValidInvoiceStep reports whether s is a known invoicing position.
func ValidInvoiceStep(s InvoiceStep) bool {
	return s == InvoiceNone || s == InvoiceRaised || s == InvoicePaymentReceived
}

// CheckInvoiceStep returns an error when s is outside the defined state set.
func CheckInvoiceStep(s InvoiceStep) error {
	if !ValidInvoiceStep(s) {
		return errors.Newf(errors.ErrCodeInvalidInvoiceStep, "unknown invoice step %d", s)
	}
	return nil
}

// Terminal reports whether s ends the workflow.
func (s Step) Terminal() bool {
	switch s {
	case StepDone, StepAbandoned, StepLapsing:
		return true
	}
	return false
}

func (s Step) String() string {
	switch s {
	case StepOpen:
		return "open"
	case StepFirstCall:
		return "first_call"
	case StepReminder:
		return "reminder"
	case StepToPay:
		return "to_pay"
	case StepPaid:
		return "paid"
	case StepReceipt:
		return "receipt"
	case StepDone:
		return "done"
	case StepAbandoned:
		return "abandoned"
	case StepLapsing:
		return "lapsing"
	}
	return "unknown"
}

// Action names a workflow operation for logging and event publication.
type Action string

const (
	ActionUpdateStep        Action = "update_step"
	ActionUpdateInvoiceStep Action = "update_invoice_step"
	ActionUpdateBoth        Action = "update_step_and_invoice_step"
	ActionSetGracePeriod    Action = "set_grace_period"
	ActionMarkDone          Action = "mark_done"
	ActionAbandon           Action = "abandon"
	ActionMarkLapsing       Action = "mark_lapsing"
	ActionPaymentOrder      Action = "payment_order_received"
	ActionRecalculateFees   Action = "recalculate_fees"
	ActionExport            Action = "export"
)

// TransitionLog is the audit record written for every renewal state change.
// Deadlines carry legal and financial liability, so every transition is
// logged; entries from one bulk operation share a JobID for batch retrieval.
type TransitionLog struct {
	ID     int64  `json:"id"`
	TaskID int64  `json:"task_id"`
	JobID  string `json:"job_id"`
	Action Action `json:"action"`

	FromStep        Step        `json:"from_step"`
	ToStep          Step        `json:"to_step"`
	FromInvoiceStep InvoiceStep `json:"from_invoice_step"`
	ToInvoiceStep   InvoiceStep `json:"to_invoice_step"`

	Actor  string `json:"actor,omitempty"`
	Detail string `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TransitionLogRepository persists the audit trail.
type TransitionLogRepository interface {
	Create(ctx context.Context, l *TransitionLog) error
	ListByTask(ctx context.Context, taskID int64) ([]*TransitionLog, error)
	ListByJob(ctx context.Context, jobID string) ([]*TransitionLog, error)
}
