// Package renewal contains the renewal workflow application services: bulk
// step transitions over renewal tasks, batch fee calculation and the export
// pipeline.
package renewal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// TxManager wraps one task's state change and its log entry in a single
// transaction.  The audit trail is a compliance requirement: a state change
// without a log entry, or the reverse, must be impossible.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransitionMessage is published after a renewal transition commits, feeding
// downstream notification senders.
type TransitionMessage struct {
	TaskID   int64  `json:"task_id"`
	JobID    string `json:"job_id"`
	Action   string `json:"action"`
	FromStep int    `json:"from_step"`
	ToStep   int    `json:"to_step"`
	Actor    string `json:"actor,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher emits workflow transitions to the message bus.  Failures are
// logged, never propagated: the transition has already committed.
type Publisher interface {
	PublishTransition(ctx context.Context, msg TransitionMessage) error
}

// WorkflowService executes the bulk renewal operations.  Every operation
// filters its input down to renewal-coded tasks, applies the change per task
// atomically together with its audit log entry, and tolerates individual
// failures: one bad ID never blocks the rest of the batch.
type WorkflowService struct {
	tasks     docket.TaskRepository
	logs      domainrenewal.TransitionLogRepository
	tx        TxManager
	publisher Publisher
	logger    logging.Logger
	metrics   *prometheus.Metrics
	clock     func() time.Time
}

// NewWorkflowService wires the workflow service.  publisher and metrics may
// be nil in tests.
func NewWorkflowService(
	tasks docket.TaskRepository,
	logs domainrenewal.TransitionLogRepository,
	tx TxManager,
	publisher Publisher,
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *WorkflowService {
	return &WorkflowService{
		tasks:     tasks,
		logs:      logs,
		tx:        tx,
		publisher: publisher,
		logger:    logger.Named("renewal-workflow"),
		metrics:   metrics,
		clock:     time.Now,
	}
}

// WithClock overrides the service's time source.  Test hook.
func (s *WorkflowService) WithClock(clock func() time.Time) *WorkflowService {
	s.clock = clock
	return s
}

// UpdateStep bulk-sets the workflow step.
func (s *WorkflowService) UpdateStep(ctx context.Context, ids []int64, step domainrenewal.Step, actor string) (*common.BatchResult, error) {
	if err := domainrenewal.CheckStep(step); err != nil {
		return nil, err
	}
	return s.run(ctx, ids, domainrenewal.ActionUpdateStep, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.Step = int(step)
		l.ToStep = step
	})
}

// UpdateInvoiceStep bulk-sets the invoicing sub-state.
func (s *WorkflowService) UpdateInvoiceStep(ctx context.Context, ids []int64, step domainrenewal.InvoiceStep, actor string) (*common.BatchResult, error) {
	if err := domainrenewal.CheckInvoiceStep(step); err != nil {
		return nil, err
	}
	return s.run(ctx, ids, domainrenewal.ActionUpdateInvoiceStep, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.InvoiceStep = int(step)
		l.ToInvoiceStep = step
	})
}

// UpdateStepAndInvoiceStep advances both axes in one atomic update per task.
func (s *WorkflowService) UpdateStepAndInvoiceStep(ctx context.Context, ids []int64, step domainrenewal.Step, invoiceStep domainrenewal.InvoiceStep, actor string) (*common.BatchResult, error) {
	if err := domainrenewal.CheckStep(step); err != nil {
		return nil, err
	}
	if err := domainrenewal.CheckInvoiceStep(invoiceStep); err != nil {
		return nil, err
	}
	return s.run(ctx, ids, domainrenewal.ActionUpdateBoth, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.Step = int(step)
		t.InvoiceStep = int(invoiceStep)
		l.ToStep = step
		l.ToInvoiceStep = invoiceStep
	})
}

// SetGracePeriod flags the tasks as processed under a late-payment grace
// period, which the fee calculator picks up.
func (s *WorkflowService) SetGracePeriod(ctx context.Context, ids []int64, gracePeriod bool, actor string) (*common.BatchResult, error) {
	return s.run(ctx, ids, domainrenewal.ActionSetGracePeriod, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.GracePeriodApplied = gracePeriod
		l.Detail = fmt.Sprintf("grace_period=%v", gracePeriod)
	})
}

// MarkAsDone closes the renewals.  doneDate defaults to today.
func (s *WorkflowService) MarkAsDone(ctx context.Context, ids []int64, doneDate *time.Time, actor string) (*common.BatchResult, error) {
	when := s.clock()
	if doneDate != nil {
		when = *doneDate
	}
	return s.run(ctx, ids, domainrenewal.ActionMarkDone, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.MarkDone(when)
		t.Step = int(domainrenewal.StepDone)
		l.ToStep = domainrenewal.StepDone
		l.Detail = "done " + when.Format("2006-01-02")
	})
}

// Abandon records the client's instruction not to renew.
func (s *WorkflowService) Abandon(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error) {
	return s.run(ctx, ids, domainrenewal.ActionAbandon, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.Step = int(domainrenewal.StepAbandoned)
		l.ToStep = domainrenewal.StepAbandoned
	})
}

// MarkAsLapsing records that the renewal was missed and the case is lapsing.
func (s *WorkflowService) MarkAsLapsing(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error) {
	return s.run(ctx, ids, domainrenewal.ActionMarkLapsing, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.Step = int(domainrenewal.StepLapsing)
		l.ToStep = domainrenewal.StepLapsing
	})
}

// MarkAsPaymentOrderReceived advances the workflow and invoicing axes
// together: a payment order is both a processing and a billing milestone.
func (s *WorkflowService) MarkAsPaymentOrderReceived(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error) {
	return s.run(ctx, ids, domainrenewal.ActionPaymentOrder, actor, func(t *docket.Task, l *domainrenewal.TransitionLog) {
		t.Step = int(domainrenewal.StepToPay)
		t.InvoiceStep = int(domainrenewal.InvoicePaymentReceived)
		l.ToStep = domainrenewal.StepToPay
		l.ToInvoiceStep = domainrenewal.InvoicePaymentReceived
	})
}

// run is the shared bulk loop: load, filter to renewals, and apply mutate to
// each task inside its own transaction together with the audit entry.
func (s *WorkflowService) run(ctx context.Context, ids []int64, action domainrenewal.Action, actor string, mutate func(*docket.Task, *domainrenewal.TransitionLog)) (*common.BatchResult, error) {
	jobID := uuid.NewString()
	now := s.clock()

	tasks, err := s.tasks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "load renewal batch")
	}

	result := &common.BatchResult{Success: true}
	for _, t := range tasks {
		// Non-renewal IDs are silently excluded: generic task IDs passed by
		// mistake must not be dragged through the renewal workflow.
		if !t.IsRenewal() {
			continue
		}

		entry := &domainrenewal.TransitionLog{
			TaskID:          t.ID,
			JobID:           jobID,
			Action:          action,
			FromStep:        domainrenewal.Step(t.Step),
			ToStep:          domainrenewal.Step(t.Step),
			FromInvoiceStep: domainrenewal.InvoiceStep(t.InvoiceStep),
			ToInvoiceStep:   domainrenewal.InvoiceStep(t.InvoiceStep),
			Actor:           actor,
			CreatedAt:       now,
		}
		mutate(t, entry)
		t.UpdatedAt = now

		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.tasks.Update(ctx, t); err != nil {
				return err
			}
			if err := s.logs.Create(ctx, entry); err != nil {
				return errors.Wrap(err, errors.ErrCodeTransitionLogFailed, "write transition log")
			}
			return nil
		})
		if err != nil {
			// Per-task granularity: one bad renewal must not block the rest
			// of the batch.
			s.logger.Error("renewal transition failed",
				logging.Int64("task_id", t.ID),
				logging.String("job_id", jobID),
				logging.String("action", string(action)),
				logging.Err(err))
			result.Errors = append(result.Errors, common.BatchError{
				ItemID:  strconv.FormatInt(t.ID, 10),
				Code:    errors.GetCode(err).String(),
				Message: err.Error(),
			})
			continue
		}

		result.Count++
		s.publishTransition(ctx, entry)
	}

	// An empty set after filtering is a zero-count success, not an error.
	result.Message = fmt.Sprintf("%s: %d task(s) updated", action, result.Count)
	if s.metrics != nil {
		s.metrics.ObserveBulkAction(string(action), result.Count)
	}
	s.logger.Info("bulk renewal operation finished",
		logging.String("job_id", jobID),
		logging.String("action", string(action)),
		logging.Int("requested", len(ids)),
		logging.Int("updated", result.Count),
		logging.Int("failed", len(result.Errors)))
	return result, nil
}

func (s *WorkflowService) publishTransition(ctx context.Context, entry *domainrenewal.TransitionLog) {
	if s.publisher == nil {
		return
	}
	msg := TransitionMessage{
		TaskID:   entry.TaskID,
		JobID:    entry.JobID,
		Action:   string(entry.Action),
		FromStep: int(entry.FromStep),
		ToStep:   int(entry.ToStep),
		Actor:    entry.Actor,
		At:       entry.CreatedAt,
	}
	if err := s.publisher.PublishTransition(ctx, msg); err != nil {
		s.logger.Warn("publish transition failed",
			logging.Int64("task_id", entry.TaskID), logging.Err(err))
	}
}

// History returns the audit trail for one renewal task.
func (s *WorkflowService) History(ctx context.Context, taskID int64) ([]*domainrenewal.TransitionLog, error) {
	return s.logs.ListByTask(ctx, taskID)
}

// JobHistory returns every audit entry written by one bulk operation.
func (s *WorkflowService) JobHistory(ctx context.Context, jobID string) ([]*domainrenewal.TransitionLog, error) {
	return s.logs.ListByJob(ctx, jobID)
}
