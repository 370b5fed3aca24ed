package docket

import (
	"context"
	"time"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
)

// TxManager wraps a unit of work in one database transaction.  All rule
// evaluations and task mutations for one event run inside a single
// transaction so partial rule-set application is never visible.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MatterLocker serializes engine invocations per matter.  Two events on the
// same matter must not evaluate concurrently because the second evaluation
// reads the first one's task state.
type MatterLocker interface {
	// Lock blocks until the matter lock is held or ctx is done, and returns
	// the release function.
	Lock(ctx context.Context, matterID int64) (func(), error)
}

// TaskMessage is the payload published after the engine commits.
type TaskMessage struct {
	MatterID  int64     `json:"matter_id"`
	EventID   int64     `json:"event_id"`
	EventCode string    `json:"event_code"`
	TaskID    int64     `json:"task_id,omitempty"`
	TaskCode  string    `json:"task_code,omitempty"`
	Action    string    `json:"action"`
	DueDate   time.Time `json:"due_date,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits engine outcomes to the message bus.  Publication happens
// after commit; a publish failure is logged, never propagated.
type Publisher interface {
	PublishTask(ctx context.Context, msg TaskMessage) error
	PublishMatterKilled(ctx context.Context, matterID int64, eventCode string) error
}

// RuleSource resolves the active rules for a trigger code.  Implementations
// cache aggressively; the rule table is configuration data the engine never
// mutates.
type RuleSource interface {
	RulesForTrigger(ctx context.Context, code matter.EventCode) ([]*docket.TaskRule, error)
}
