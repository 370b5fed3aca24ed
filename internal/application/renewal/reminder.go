package renewal

import (
	"context"
	"time"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// ReminderService selects the renewals due for a client call.  The actual
// email sending lives behind the notification boundary; this service only
// picks the candidates and advances their workflow state once the call went
// out.
type ReminderService struct {
	tasks    docket.TaskRepository
	workflow *WorkflowService
	logger   logging.Logger
	clock    func() time.Time
}

// NewReminderService wires the reminder selection.
func NewReminderService(tasks docket.TaskRepository, workflow *WorkflowService, logger logging.Logger) *ReminderService {
	return &ReminderService{
		tasks:    tasks,
		workflow: workflow,
		logger:   logger.Named("renewal-reminder"),
		clock:    time.Now,
	}
}

// WithClock overrides the service's time source.  Test hook.
func (s *ReminderService) WithClock(clock func() time.Time) *ReminderService {
	s.clock = clock
	return s
}

// DueForFirstCall returns the open renewals in step 0 whose due date falls
// within the next window.
func (s *ReminderService) DueForFirstCall(ctx context.Context, window time.Duration) ([]*docket.Task, error) {
	return s.dueInStep(ctx, domainrenewal.StepOpen, window)
}

// DueForReminder returns renewals stuck in step 1 (first call sent, no
// instruction) whose due date falls within the next window.
func (s *ReminderService) DueForReminder(ctx context.Context, window time.Duration) ([]*docket.Task, error) {
	return s.dueInStep(ctx, domainrenewal.StepFirstCall, window)
}

func (s *ReminderService) dueInStep(ctx context.Context, step domainrenewal.Step, window time.Duration) ([]*docket.Task, error) {
	now := s.clock()
	to := now.Add(window)
	stepVal := int(step)
	tasks, _, err := s.tasks.List(ctx, docket.TaskFilter{
		RenewalOnly: true,
		OpenOnly:    true,
		Step:        &stepVal,
		DueFrom:     &now,
		DueTo:       &to,
	}, common.Pagination{Page: 1, PageSize: 1000})
	return tasks, err
}

// MarkFirstCallSent advances the selected renewals to step 1 after the
// notification boundary confirms the call went out.
func (s *ReminderService) MarkFirstCallSent(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error) {
	return s.workflow.UpdateStep(ctx, ids, domainrenewal.StepFirstCall, actor)
}

// MarkReminderSent advances the selected renewals to step 2.
func (s *ReminderService) MarkReminderSent(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error) {
	return s.workflow.UpdateStep(ctx, ids, domainrenewal.StepReminder, actor)
}
