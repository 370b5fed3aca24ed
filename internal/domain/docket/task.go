package docket

import (
	"time"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Renewal task codes.  Tasks with one of these codes are driven by the
// renewal workflow state machine instead of plain done/undone tracking.
const (
	TaskCodeRenewal = "REN"
)

// Task is one docket entry: a dated obligation on a matter.  Tasks are
// created by the rule engine or entered manually; RuleUsed distinguishes the
// two.
type Task struct {
	ID       int64  `json:"id"`
	MatterID int64  `json:"matter_id"`
	Code     string `json:"code"`

	// TriggerID is the event that caused the rule engine to create this
	// task.  Recalculation after a date change finds the engine's tasks
	// through it.  Zero for manual tasks.
	TriggerID int64 `json:"trigger_id,omitempty"`

	DueDate    time.Time `json:"due_date"`
	Detail     string    `json:"detail,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`

	Done     bool       `json:"done"`
	DoneDate *time.Time `json:"done_date,omitempty"`

	// RuleUsed records the rule that generated the task.  Nil for manual
	// tasks; recalculation leaves manual tasks untouched.
	RuleUsed *int64 `json:"rule_used,omitempty"`

	// AnnuityYear is the annuity ordinal for recurring renewal tasks.
	AnnuityYear int `json:"annuity_year,omitempty"`

	Cost     float64 `json:"cost"`
	Fee      float64 `json:"fee"`
	Currency string  `json:"currency,omitempty"`

	// Step is the renewal workflow position.  Meaningful only for renewal
	// tasks; always zero otherwise.
	Step int `json:"step"`
	// InvoiceStep is the invoicing sub-state of the renewal workflow.
	InvoiceStep int `json:"invoice_step"`

	// GracePeriodApplied and FeeFactor record a late-payment surcharge so a
	// later fee recomputation does not apply it twice.
	GracePeriodApplied bool    `json:"grace_period_applied"`
	FeeFactor          float64 `json:"fee_factor,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the integrity of the task record.
func (t *Task) Validate() error {
	if t.MatterID == 0 {
		return errors.New(errors.ErrCodeTaskCreateFailed, "task matter_id must be set")
	}
	if t.Code == "" {
		return errors.New(errors.ErrCodeTaskCreateFailed, "task code must not be empty")
	}
	if t.DueDate.IsZero() {
		return errors.New(errors.ErrCodeTaskCreateFailed, "task due date must not be zero")
	}
	return nil
}

// IsRenewal reports whether the task participates in the renewal workflow.
func (t *Task) IsRenewal() bool { return t.Code == TaskCodeRenewal }

// IsManual reports whether the task was entered by hand rather than
// generated by a rule.
func (t *Task) IsManual() bool { return t.RuleUsed == nil }

// MarkDone completes the task at the given time.  Completing an already-done
// task refreshes the done date.
func (t *Task) MarkDone(at time.Time) {
	t.Done = true
	d := at
	t.DoneDate = &d
	t.UpdatedAt = at
}

// Reopen clears the done state.
func (t *Task) Reopen(at time.Time) {
	t.Done = false
	t.DoneDate = nil
	t.UpdatedAt = at
}
