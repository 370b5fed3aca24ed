// Package docket contains the task rule engine: the application service that
// turns a recorded matter event into deadline tasks according to the rule
// configuration, and recalculates dependent deadlines when upstream dates
// change.
package docket

import (
	"context"
	"time"

	domaindocket "github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Back-creation windows for renewals computed in the past.  Ordinary filings
// reach back 6 months; PCT-origin matters reach back 19 months to capture
// direct national-phase entries filed after the nominal deadline.
const (
	renewalBackMonths    = 6
	renewalBackMonthsPCT = 19
)

// divisionalClampMonths is the grace window for a divisional child whose
// renewal due date would land before the triggering event.
const divisionalClampMonths = 4

// Options bound the engine's traversals.
type Options struct {
	// MaxCascadeDepth caps the linkage traversal during cascading
	// recalculation.  Linkage graphs can contain cycles from bad data.
	MaxCascadeDepth int
	// MaxRecurringTasks caps one recurring rule's generated series.
	// Protects against misconfigured periodicity data.
	MaxRecurringTasks int
}

// Result summarizes one engine run for logging and the API response.
type Result struct {
	MatterID      int64 `json:"matter_id"`
	EventID       int64 `json:"event_id"`
	SkippedDead   bool  `json:"skipped_dead,omitempty"`
	RulesMatched  int   `json:"rules_matched"`
	TasksCreated  int   `json:"tasks_created"`
	TasksCleared  int   `json:"tasks_cleared"`
	TasksDeleted  int   `json:"tasks_deleted"`
	RulesSkipped  int   `json:"rules_skipped"`
	RuleErrors    int   `json:"rule_errors"`
	ExpiryUpdated bool  `json:"expiry_updated,omitempty"`
	MatterKilled  bool  `json:"matter_killed,omitempty"`
	Recalculated  int   `json:"recalculated,omitempty"`
}

// Engine evaluates task rules for recorded events.
type Engine struct {
	matters  matter.Repository
	events   matter.EventRepository
	linkage  matter.LinkageRepository
	rules    RuleSource
	tasks    domaindocket.TaskRepository
	renewals domaindocket.RenewalConfigRepository
	registry matter.EventRegistry

	tx        TxManager
	locker    MatterLocker
	publisher Publisher

	opts    Options
	logger  logging.Logger
	metrics *prometheus.Metrics
	clock   func() time.Time
}

// NewEngine wires the rule engine.  publisher and metrics may be nil in
// tests.
func NewEngine(
	matters matter.Repository,
	events matter.EventRepository,
	linkage matter.LinkageRepository,
	rules RuleSource,
	tasks domaindocket.TaskRepository,
	renewals domaindocket.RenewalConfigRepository,
	registry matter.EventRegistry,
	tx TxManager,
	locker MatterLocker,
	publisher Publisher,
	opts Options,
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *Engine {
	if opts.MaxCascadeDepth <= 0 {
		opts.MaxCascadeDepth = 25
	}
	if opts.MaxRecurringTasks <= 0 {
		opts.MaxRecurringTasks = 80
	}
	return &Engine{
		matters:   matters,
		events:    events,
		linkage:   linkage,
		rules:     rules,
		tasks:     tasks,
		renewals:  renewals,
		registry:  registry,
		tx:        tx,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Named("rule-engine"),
		metrics:   metrics,
		clock:     time.Now,
	}
}

// WithClock overrides the engine's time source.  Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ProcessEvent evaluates the rule set for a freshly persisted event.  The
// caller has already stored the event row; the engine owns everything that
// follows: rule selection, task mutations, expiry updates, the dead flag and
// cascading recalculation.  All mutations for the event commit in one
// transaction.
func (e *Engine) ProcessEvent(ctx context.Context, ev *matter.Event) (*Result, error) {
	start := e.clock()
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	res := &Result{MatterID: ev.MatterID, EventID: ev.ID}

	release, err := e.locker.Lock(ctx, ev.MatterID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "acquire matter lock")
	}
	defer release()

	m, err := e.matters.GetByID(ctx, ev.MatterID)
	if err != nil {
		return nil, err
	}
	if m.Dead {
		e.logger.Info("skipping event on dead matter",
			logging.Int64("matter_id", m.ID),
			logging.String("event_code", ev.Code.String()))
		if e.metrics != nil {
			e.metrics.EventsProcessed.WithLabelValues(ev.Code.String(), "skipped_dead").Inc()
		}
		res.SkippedDead = true
		return res, nil
	}

	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		return e.evaluate(ctx, m, ev, res)
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.EventsProcessed.WithLabelValues(ev.Code.String(), "error").Inc()
		}
		return nil, err
	}

	// Cascading recalculation runs after the event's own transaction so a
	// linked matter's failure never rolls back the original event.
	e.cascade(ctx, m, ev, res)

	e.publishOutcome(ctx, ev, res)
	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(ev.Code.String(), "ok").Inc()
		e.metrics.ObserveEngineRun(ev.Code.String(), "ok", e.clock().Sub(start))
	}

	e.logger.Info("event processed",
		logging.Int64("matter_id", m.ID),
		logging.Int64("event_id", ev.ID),
		logging.String("event_code", ev.Code.String()),
		logging.Int("created", res.TasksCreated),
		logging.Int("cleared", res.TasksCleared),
		logging.Int("deleted", res.TasksDeleted),
		logging.Int("skipped", res.RulesSkipped),
		logging.Int("rule_errors", res.RuleErrors))
	return res, nil
}

// evaluate runs the full rule pass for one event inside the transaction.
func (e *Engine) evaluate(ctx context.Context, m *matter.Matter, ev *matter.Event, res *Result) error {
	events, err := e.events.ListByMatter(ctx, m.ID)
	if err != nil {
		return err
	}
	if !containsEvent(events, ev.ID) {
		events = append(events, ev)
	}

	ruleSet, err := e.rules.RulesForTrigger(ctx, ev.Code)
	if err != nil {
		return err
	}
	applicable := domaindocket.SelectApplicable(ruleSet, m, events, e.clock())
	res.RulesMatched = len(applicable)

	for _, rule := range applicable {
		// One failing rule must not block the others.  A missed deadline is
		// worse than a noisy log.
		if err := e.executeRule(ctx, m, ev, events, rule, res); err != nil {
			res.RuleErrors++
			e.logger.Error("rule execution failed",
				logging.Int64("matter_id", m.ID),
				logging.Int64("rule_id", rule.ID),
				logging.String("task_code", rule.TaskCode),
				logging.Err(err))
		}
	}

	if e.registry.IsKiller(ev.Code) {
		m.Kill(e.clock())
		if err := e.matters.Update(ctx, m); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "mark matter dead")
		}
		res.MatterKilled = true
	}
	return nil
}

func (e *Engine) executeRule(ctx context.Context, m *matter.Matter, ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule, res *Result) error {
	if e.metrics != nil {
		e.metrics.RulesMatched.WithLabelValues(ev.Code.String(), string(rule.Action)).Inc()
	}

	switch rule.Action {
	case domaindocket.ActionClear:
		n, err := e.clearTasks(ctx, m, ev, rule)
		res.TasksCleared += n
		return err
	case domaindocket.ActionDelete:
		n, err := e.deleteTasks(ctx, m, rule)
		res.TasksDeleted += n
		return err
	case domaindocket.ActionExpiry:
		if err := e.updateExpiry(ctx, m, ev, events, rule); err != nil {
			return err
		}
		res.ExpiryUpdated = true
		return nil
	case domaindocket.ActionCreate:
		if rule.Recurring {
			created, skipped, err := e.generateRecurring(ctx, m, ev, events, rule)
			res.TasksCreated += created
			res.RulesSkipped += skipped
			return err
		}
		created, err := e.createTask(ctx, m, ev, events, rule)
		if !created && err == nil {
			res.RulesSkipped++
		}
		if created {
			res.TasksCreated++
		}
		return err
	default:
		return errors.Newf(errors.ErrCodeRuleInvalid, "rule %d has unknown action %q", rule.ID, rule.Action)
	}
}

// clearTasks marks the open tasks of the rule's code done as of the trigger
// event's date.
func (e *Engine) clearTasks(ctx context.Context, m *matter.Matter, ev *matter.Event, rule *domaindocket.TaskRule) (int, error) {
	open, err := e.tasks.FindOpen(ctx, m.ID, rule.TaskCode)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, t := range open {
		t.MarkDone(ev.EventDate)
		if err := e.tasks.Update(ctx, t); err != nil {
			return cleared, errors.Wrap(err, errors.CodeDatabaseError, "clear task")
		}
		cleared++
	}
	return cleared, nil
}

func (e *Engine) deleteTasks(ctx context.Context, m *matter.Matter, rule *domaindocket.TaskRule) (int, error) {
	open, err := e.tasks.FindOpen(ctx, m.ID, rule.TaskCode)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, t := range open {
		if err := e.tasks.Delete(ctx, t.ID); err != nil {
			return deleted, errors.Wrap(err, errors.CodeDatabaseError, "delete task")
		}
		deleted++
	}
	return deleted, nil
}

// updateExpiry writes the matter's expiry date instead of creating a task.
// Term adjustment days are added on top of the computed date.
func (e *Engine) updateExpiry(ctx context.Context, m *matter.Matter, ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule) error {
	due := e.dueDate(m, ev, events, rule)
	expiry := due.AddDate(0, 0, m.TermAdjustDays)
	m.ExpireDate = &expiry
	m.UpdatedAt = e.clock()
	if err := e.matters.Update(ctx, m); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "update expiry date")
	}
	return nil
}

// createTask emits one task for a non-recurring create rule.  Returns false
// without error when a skip condition applies or the task already exists.
func (e *Engine) createTask(ctx context.Context, m *matter.Matter, ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule) (bool, error) {
	if skip, reason := e.skipReason(m, rule); skip {
		e.logger.Debug("rule skipped",
			logging.Int64("matter_id", m.ID),
			logging.Int64("rule_id", rule.ID),
			logging.String("reason", reason))
		return false, nil
	}

	due := e.dueDate(m, ev, events, rule)
	if !e.dueDateAcceptable(m, rule.TaskCode, due) {
		return false, nil
	}

	exists, err := e.tasks.ExistsForRule(ctx, ev.ID, rule.ID, 0)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	t := e.newTask(m, ev, rule, due, 0)
	if err := e.tasks.Create(ctx, t); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeTaskCreateFailed, "insert task")
	}
	if e.metrics != nil {
		e.metrics.TasksCreated.WithLabelValues(rule.TaskCode).Inc()
	}
	return true, nil
}

// generateRecurring emits the annuity series for a recurring renewal rule.
// Generation is idempotent: annuity years that already have a task are
// skipped, so re-triggering never duplicates.
func (e *Engine) generateRecurring(ctx context.Context, m *matter.Matter, ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule) (created, skipped int, err error) {
	if skip, reason := e.skipReason(m, rule); skip {
		e.logger.Debug("recurring rule skipped",
			logging.Int64("matter_id", m.ID),
			logging.Int64("rule_id", rule.ID),
			logging.String("reason", reason))
		return 0, 1, nil
	}

	cfg, err := e.renewals.Get(ctx, m.Country)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeRenewalConfigMissing) || errors.IsNotFound(err) {
			// No renewal correspondence configured for this country: the
			// series cannot be anchored, so nothing is generated.
			e.logger.Warn("no renewal config for country, skipping recurring rule",
				logging.String("country", m.Country),
				logging.Int64("rule_id", rule.ID))
			return 0, 1, nil
		}
		return 0, 0, err
	}

	base := e.baseDate(ev, events, rule)
	firstYear := cfg.FirstYear
	if rule.RecurStartYear > firstYear {
		firstYear = rule.RecurStartYear
	}

	generated := 0
	for year := firstYear; year <= cfg.LastYear; year++ {
		if generated >= e.opts.MaxRecurringTasks {
			e.logger.Warn("recurring generation hit iteration cap",
				logging.Int64("matter_id", m.ID),
				logging.Int64("rule_id", rule.ID),
				logging.Int("cap", e.opts.MaxRecurringTasks))
			break
		}
		generated++

		due := domaindocket.OffsetDate(base, year, rule.OffsetMonths, rule.OffsetDays)
		if rule.EndOfMonth {
			due = domaindocket.EndOfMonth(due)
		}
		if m.ExpireDate != nil && due.After(*m.ExpireDate) {
			break
		}
		if !e.dueDateAcceptable(m, rule.TaskCode, due) {
			skipped++
			continue
		}

		exists, err := e.tasks.ExistsForRule(ctx, ev.ID, rule.ID, year)
		if err != nil {
			return created, skipped, err
		}
		if exists {
			continue
		}

		t := e.newTask(m, ev, rule, due, year)
		if err := e.tasks.Create(ctx, t); err != nil {
			return created, skipped, errors.Wrap(err, errors.ErrCodeTaskCreateFailed, "insert annuity task")
		}
		if e.metrics != nil {
			e.metrics.TasksCreated.WithLabelValues(rule.TaskCode).Inc()
		}
		created++
	}
	return created, skipped, nil
}

// skipReason checks the matter-level skip conditions for create rules.
func (e *Engine) skipReason(m *matter.Matter, rule *domaindocket.TaskRule) (bool, string) {
	if rule.TaskCode == domaindocket.TaskCodeRenewal && m.RenewalClientManaged {
		return true, "client manages renewals"
	}
	if rule.NotForChildren && m.HasParent() {
		return true, "deadline inherited from parent"
	}
	return false, ""
}

// baseDate resolves the date the offset is applied to: the trigger event's
// date, or the earliest priority claim when the rule asks for it.
func (e *Engine) baseDate(ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule) time.Time {
	if rule.UsePriority {
		if pri := matter.EarliestPriorityDate(events); pri != nil {
			return *pri
		}
	}
	return ev.EventDate
}

// dueDate computes the deadline for one rule application, including the
// end-of-month snap and the divisional renewal clamp.
func (e *Engine) dueDate(m *matter.Matter, ev *matter.Event, events []*matter.Event, rule *domaindocket.TaskRule) time.Time {
	base := e.baseDate(ev, events, rule)
	due := domaindocket.OffsetDate(base, rule.OffsetYears, rule.OffsetMonths, rule.OffsetDays)
	if rule.EndOfMonth {
		due = domaindocket.EndOfMonth(due)
	}
	// A divisional child inherits the parent's renewal calendar, so the
	// naive date can precede the child's own filing.  Jurisdictions grant a
	// fixed window from the triggering event instead.
	if rule.TaskCode == domaindocket.TaskCodeRenewal && m.HasParent() && due.Before(ev.EventDate) {
		due = domaindocket.OffsetDate(ev.EventDate, 0, divisionalClampMonths, 0)
	}
	return due
}

// dueDateAcceptable rejects deadlines in the past.  Renewals are the
// exception: they are back-created within the statutory window so late
// national-phase entries still get their annuity series.
func (e *Engine) dueDateAcceptable(m *matter.Matter, taskCode string, due time.Time) bool {
	today := e.today()
	if !due.Before(today) {
		return true
	}
	if taskCode != domaindocket.TaskCodeRenewal {
		return false
	}
	back := renewalBackMonths
	if m.Origin == matter.OriginPCT {
		back = renewalBackMonthsPCT
	}
	cutoff := domaindocket.OffsetDate(today, 0, -back, 0)
	return !due.Before(cutoff)
}

func (e *Engine) today() time.Time {
	now := e.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Engine) newTask(m *matter.Matter, ev *matter.Event, rule *domaindocket.TaskRule, due time.Time, annuityYear int) *domaindocket.Task {
	ruleID := rule.ID
	now := e.clock()
	return &domaindocket.Task{
		MatterID:    m.ID,
		Code:        rule.TaskCode,
		TriggerID:   ev.ID,
		DueDate:     due,
		Detail:      rule.Detail,
		AssignedTo:  firstNonEmpty(rule.DefaultResponsible, m.Responsible),
		RuleUsed:    &ruleID,
		AnnuityYear: annuityYear,
		Cost:        rule.Cost,
		Fee:         rule.Fee,
		Currency:    rule.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (e *Engine) publishOutcome(ctx context.Context, ev *matter.Event, res *Result) {
	if e.publisher == nil {
		return
	}
	msg := TaskMessage{
		MatterID:  res.MatterID,
		EventID:   ev.ID,
		EventCode: ev.Code.String(),
		Action:    "event_processed",
		At:        e.clock(),
	}
	if err := e.publisher.PublishTask(ctx, msg); err != nil {
		e.logger.Warn("publish engine outcome failed", logging.Err(err))
	}
	if res.MatterKilled {
		if err := e.publisher.PublishMatterKilled(ctx, res.MatterID, ev.Code.String()); err != nil {
			e.logger.Warn("publish matter killed failed", logging.Err(err))
		}
	}
}

func containsEvent(events []*matter.Event, id int64) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
