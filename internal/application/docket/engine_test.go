package docket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaindocket "github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeMatters struct {
	byID map[int64]*matter.Matter
}

func (f *fakeMatters) Create(_ context.Context, m *matter.Matter) error {
	f.byID[m.ID] = m
	return nil
}
func (f *fakeMatters) Update(_ context.Context, m *matter.Matter) error {
	f.byID[m.ID] = m
	return nil
}
func (f *fakeMatters) GetByID(_ context.Context, id int64) (*matter.Matter, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMatterNotFound, "matter %d not found", id)
	}
	return m, nil
}
func (f *fakeMatters) GetByCaseref(context.Context, string) (*matter.Matter, error) {
	return nil, errors.New(errors.ErrCodeMatterNotFound, "not implemented")
}
func (f *fakeMatters) List(context.Context, matter.Filter, common.Pagination) ([]*matter.Matter, int64, error) {
	return nil, 0, nil
}
func (f *fakeMatters) Children(context.Context, int64) ([]*matter.Matter, error) { return nil, nil }
func (f *fakeMatters) MarkDead(_ context.Context, id int64) error {
	f.byID[id].Dead = true
	return nil
}

type fakeEvents struct {
	byMatter map[int64][]*matter.Event
}

func (f *fakeEvents) Create(_ context.Context, e *matter.Event) error {
	f.byMatter[e.MatterID] = append(f.byMatter[e.MatterID], e)
	return nil
}
func (f *fakeEvents) Delete(context.Context, int64) error { return nil }
func (f *fakeEvents) GetByID(context.Context, int64) (*matter.Event, error) {
	return nil, errors.New(errors.ErrCodeEventNotFound, "not implemented")
}
func (f *fakeEvents) ListByMatter(_ context.Context, matterID int64) ([]*matter.Event, error) {
	return f.byMatter[matterID], nil
}
func (f *fakeEvents) FindByCode(_ context.Context, matterID int64, code matter.EventCode) ([]*matter.Event, error) {
	var out []*matter.Event
	for _, ev := range f.byMatter[matterID] {
		if ev.Code == code {
			out = append(out, ev)
		}
	}
	return out, nil
}
func (f *fakeEvents) LatestByCode(_ context.Context, matterID int64, code matter.EventCode) (*matter.Event, error) {
	var latest *matter.Event
	for _, ev := range f.byMatter[matterID] {
		if ev.Code != code {
			continue
		}
		if latest == nil || ev.EventDate.After(latest.EventDate) {
			latest = ev
		}
	}
	return latest, nil
}
func (f *fakeEvents) ListInRange(context.Context, time.Time, time.Time) ([]*matter.Event, error) {
	return nil, nil
}

type fakeLinkage struct {
	dependents map[int64][]int64
}

func (f *fakeLinkage) Link(_ context.Context, parentID, childID int64, _ string) error {
	f.dependents[parentID] = append(f.dependents[parentID], childID)
	return nil
}
func (f *fakeLinkage) Dependents(_ context.Context, matterID int64) ([]int64, error) {
	return f.dependents[matterID], nil
}
func (f *fakeLinkage) References(context.Context, int64) ([]int64, error) { return nil, nil }
func (f *fakeLinkage) Unlink(context.Context, int64, int64) error        { return nil }

type fakeTasks struct {
	nextID int64
	tasks  []*domaindocket.Task
}

func (f *fakeTasks) Create(_ context.Context, t *domaindocket.Task) error {
	f.nextID++
	t.ID = f.nextID
	f.tasks = append(f.tasks, t)
	return nil
}
func (f *fakeTasks) Update(_ context.Context, t *domaindocket.Task) error {
	for i, existing := range f.tasks {
		if existing.ID == t.ID {
			f.tasks[i] = t
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeTaskNotFound, "task %d", t.ID)
}
func (f *fakeTasks) Delete(_ context.Context, id int64) error {
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeTaskNotFound, "task %d", id)
}
func (f *fakeTasks) GetByID(_ context.Context, id int64) (*domaindocket.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeTaskNotFound, "task %d", id)
}
func (f *fakeTasks) GetByIDs(_ context.Context, ids []int64) ([]*domaindocket.Task, error) {
	var out []*domaindocket.Task
	for _, id := range ids {
		for _, t := range f.tasks {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}
func (f *fakeTasks) List(context.Context, domaindocket.TaskFilter, common.Pagination) ([]*domaindocket.Task, int64, error) {
	return f.tasks, int64(len(f.tasks)), nil
}
func (f *fakeTasks) FindOpen(_ context.Context, matterID int64, code string) ([]*domaindocket.Task, error) {
	var out []*domaindocket.Task
	for _, t := range f.tasks {
		if t.MatterID == matterID && t.Code == code && !t.Done {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeTasks) FindByTrigger(_ context.Context, triggerID int64) ([]*domaindocket.Task, error) {
	var out []*domaindocket.Task
	for _, t := range f.tasks {
		if t.TriggerID == triggerID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeTasks) ExistsForRule(_ context.Context, triggerID, ruleID int64, annuityYear int) (bool, error) {
	for _, t := range f.tasks {
		if t.TriggerID == triggerID && t.RuleUsed != nil && *t.RuleUsed == ruleID && t.AnnuityYear == annuityYear {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeTasks) DeleteGenerated(_ context.Context, triggerID int64) error {
	var kept []*domaindocket.Task
	for _, t := range f.tasks {
		if t.TriggerID == triggerID && t.RuleUsed != nil && !t.Done {
			continue
		}
		kept = append(kept, t)
	}
	f.tasks = kept
	return nil
}

type fakeRenewalConfigs struct {
	byCountry map[string]*domaindocket.CountryRenewalConfig
}

func (f *fakeRenewalConfigs) Get(_ context.Context, country string) (*domaindocket.CountryRenewalConfig, error) {
	cfg, ok := f.byCountry[country]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRenewalConfigMissing, "no renewal config for %s", country)
	}
	return cfg, nil
}
func (f *fakeRenewalConfigs) Upsert(_ context.Context, cfg *domaindocket.CountryRenewalConfig) error {
	f.byCountry[cfg.Country] = cfg
	return nil
}
func (f *fakeRenewalConfigs) List(context.Context) ([]*domaindocket.CountryRenewalConfig, error) {
	return nil, nil
}

type fakeRules struct {
	rules []*domaindocket.TaskRule
}

func (f *fakeRules) RulesForTrigger(_ context.Context, code matter.EventCode) ([]*domaindocket.TaskRule, error) {
	var out []*domaindocket.TaskRule
	for _, r := range f.rules {
		if r.Trigger == code {
			out = append(out, r)
		}
	}
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type noopLocker struct{ locks int }

func (l *noopLocker) Lock(context.Context, int64) (func(), error) {
	l.locks++
	return func() {}, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type engineFixture struct {
	engine   *Engine
	matters  *fakeMatters
	events   *fakeEvents
	linkage  *fakeLinkage
	tasks    *fakeTasks
	rules    *fakeRules
	renewals *fakeRenewalConfigs
	locker   *noopLocker
}

var testNow = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

func newFixture(rules ...*domaindocket.TaskRule) *engineFixture {
	f := &engineFixture{
		matters:  &fakeMatters{byID: map[int64]*matter.Matter{}},
		events:   &fakeEvents{byMatter: map[int64][]*matter.Event{}},
		linkage:  &fakeLinkage{dependents: map[int64][]int64{}},
		tasks:    &fakeTasks{},
		rules:    &fakeRules{rules: rules},
		renewals: &fakeRenewalConfigs{byCountry: map[string]*domaindocket.CountryRenewalConfig{}},
		locker:   &noopLocker{},
	}
	f.engine = NewEngine(
		f.matters, f.events, f.linkage, f.rules, f.tasks, f.renewals,
		matter.NewEventRegistry(),
		passthroughTx{}, f.locker, nil,
		Options{MaxCascadeDepth: 10, MaxRecurringTasks: 30},
		logging.NewNopLogger(), nil,
	).WithClock(func() time.Time { return testNow })
	return f
}

func (f *engineFixture) addMatter(m *matter.Matter) *matter.Matter {
	f.matters.byID[m.ID] = m
	return m
}

func (f *engineFixture) addEvent(e *matter.Event) *matter.Event {
	f.events.byMatter[e.MatterID] = append(f.events.byMatter[e.MatterID], e)
	return e
}

func patentMatter(id int64) *matter.Matter {
	return &matter.Matter{ID: id, Caseref: "P100", Country: "EP", Category: matter.CategoryPatent}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestProcessEventCreatesTaskFromOffset(t *testing.T) {
	rule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "PRID", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, Active: true,
	}
	f := newFixture(rule)
	f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TasksCreated)
	require.Len(t, f.tasks.tasks, 1)
	task := f.tasks.tasks[0]
	assert.Equal(t, "PRID", task.Code)
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), task.DueDate)
	assert.Equal(t, int64(10), task.TriggerID)
	require.NotNil(t, task.RuleUsed)
	assert.Equal(t, int64(1), *task.RuleUsed)
}

func TestProcessEventDeadMatterGeneratesNothing(t *testing.T) {
	rule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "PRID", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, Active: true,
	}
	f := newFixture(rule)
	m := patentMatter(1)
	m.Dead = true
	f.addMatter(m)
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, res.SkippedDead)
	assert.Empty(t, f.tasks.tasks)
}

func TestProcessEventUsePriorityBase(t *testing.T) {
	rule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "CONV", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, UsePriority: true, Active: true,
	}
	f := newFixture(rule)
	f.addMatter(patentMatter(1))
	f.addEvent(&matter.Event{ID: 9, MatterID: 1, Code: matter.EventPriority,
		EventDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	f.addEvent(&matter.Event{ID: 8, MatterID: 1, Code: matter.EventPriority,
		EventDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)})
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)})

	_, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	// Based on the earliest PRI date, not the trigger date.
	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)
}

func TestProcessEventEndOfMonth(t *testing.T) {
	rule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "OA", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 6, EndOfMonth: true, Active: true,
	}
	f := newFixture(rule)
	f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)})

	_, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)
}

func TestProcessEventIdempotent(t *testing.T) {
	rule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "PRID", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, Active: true,
	}
	f := newFixture(rule)
	f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})

	_, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 0, res.TasksCreated)
	assert.Len(t, f.tasks.tasks, 1)
}

func TestProcessEventClearMarksDoneAsOfTriggerDate(t *testing.T) {
	clearRule := &domaindocket.TaskRule{
		ID: 2, TaskCode: "OA", Trigger: matter.EventGranted,
		Action: domaindocket.ActionClear, Active: true,
	}
	f := newFixture(clearRule)
	f.addMatter(patentMatter(1))
	ruleID := int64(1)
	f.tasks.tasks = []*domaindocket.Task{
		{ID: 1, MatterID: 1, Code: "OA", TriggerID: 5, RuleUsed: &ruleID,
			DueDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.tasks.nextID = 1
	grantDate := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	ev := f.addEvent(&matter.Event{ID: 11, MatterID: 1, Code: matter.EventGranted, EventDate: grantDate})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TasksCleared)
	task := f.tasks.tasks[0]
	assert.True(t, task.Done)
	require.NotNil(t, task.DoneDate)
	assert.Equal(t, grantDate, *task.DoneDate)
}

func TestProcessEventDeleteRemovesOpenTasks(t *testing.T) {
	deleteRule := &domaindocket.TaskRule{
		ID: 2, TaskCode: "OA", Trigger: matter.EventWithdrawn,
		Action: domaindocket.ActionDelete, Active: true,
	}
	f := newFixture(deleteRule)
	f.addMatter(patentMatter(1))
	done := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tasks.tasks = []*domaindocket.Task{
		{ID: 1, MatterID: 1, Code: "OA", DueDate: testNow},
		{ID: 2, MatterID: 1, Code: "OA", DueDate: testNow, Done: true, DoneDate: &done},
	}
	f.tasks.nextID = 2
	ev := f.addEvent(&matter.Event{ID: 11, MatterID: 1, Code: matter.EventWithdrawn, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TasksDeleted)
	// Done tasks are preserved.
	require.Len(t, f.tasks.tasks, 1)
	assert.True(t, f.tasks.tasks[0].Done)
}

func TestProcessEventExpiryUpdatesMatter(t *testing.T) {
	expRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "EXP", Trigger: matter.EventFiled,
		Action: domaindocket.ActionExpiry, OffsetYears: 20, Active: true,
	}
	f := newFixture(expRule)
	m := patentMatter(1)
	m.TermAdjustDays = 10
	f.addMatter(m)
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, res.ExpiryUpdated)
	require.NotNil(t, m.ExpireDate)
	assert.Equal(t, time.Date(2046, 3, 11, 0, 0, 0, 0, time.UTC), *m.ExpireDate)
	assert.Empty(t, f.tasks.tasks)
}

func TestProcessEventKillerEventMarksDead(t *testing.T) {
	f := newFixture()
	m := f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventAbandoned, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, res.MatterKilled)
	assert.True(t, m.Dead)
}

func TestProcessEventSkipsClientManagedRenewals(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetYears: 2, Active: true,
	}
	f := newFixture(renRule)
	m := patentMatter(1)
	m.RenewalClientManaged = true
	f.addMatter(m)
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RulesSkipped)
	assert.Empty(t, f.tasks.tasks)
}

func TestProcessEventSkipsChildOnlyRules(t *testing.T) {
	pridRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "PRID", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, NotForChildren: true, Active: true,
	}
	f := newFixture(pridRule)
	parentID := int64(99)
	m := patentMatter(1)
	m.ParentID = &parentID
	f.addMatter(m)
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RulesSkipped)
	assert.Empty(t, f.tasks.tasks)
}

func TestProcessEventPastDueSkippedExceptRenewals(t *testing.T) {
	oaRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "OA", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 1, Active: true,
	}
	renRule := &domaindocket.TaskRule{
		ID: 2, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 1, Active: true,
	}
	f := newFixture(oaRule, renRule)
	f.addMatter(patentMatter(1))
	// Five months ago: inside the six month renewal back-window, but far in
	// the past for an ordinary task.
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TasksCreated)
	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, domaindocket.TaskCodeRenewal, f.tasks.tasks[0].Code)
}

func TestProcessEventRenewalBackWindowExtendedForPCT(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, Active: true,
	}
	f := newFixture(renRule)

	direct := patentMatter(1)
	f.addMatter(direct)
	pct := patentMatter(2)
	pct.ID = 2
	pct.Origin = matter.OriginPCT
	f.addMatter(pct)

	// Twelve months in the past: outside the 6 month window, inside 19.
	oldDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	ev1 := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: oldDate})
	ev2 := f.addEvent(&matter.Event{ID: 11, MatterID: 2, Code: matter.EventFiled, EventDate: oldDate})

	res1, err := f.engine.ProcessEvent(context.Background(), ev1)
	require.NoError(t, err)
	res2, err := f.engine.ProcessEvent(context.Background(), ev2)
	require.NoError(t, err)

	assert.Equal(t, 0, res1.TasksCreated)
	assert.Equal(t, 1, res2.TasksCreated)
}

func TestProcessEventDivisionalRenewalClamp(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetYears: 2, UsePriority: true, Active: true,
	}
	f := newFixture(renRule)
	parentID := int64(99)
	m := patentMatter(1)
	m.ParentID = &parentID
	f.addMatter(m)
	// Parent priority far in the past makes the naive due date precede the
	// divisional's own filing.
	f.addEvent(&matter.Event{ID: 9, MatterID: 1, Code: matter.EventPriority,
		EventDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	filingDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: filingDate})

	_, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)
}

func TestProcessEventRecurringGeneratesSeries(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, Recurring: true, Active: true,
	}
	f := newFixture(renRule)
	m := patentMatter(1)
	expiry := time.Date(2046, 7, 1, 0, 0, 0, 0, time.UTC)
	m.ExpireDate = &expiry
	f.addMatter(m)
	f.renewals.byCountry["EP"] = &domaindocket.CountryRenewalConfig{
		Country: "EP", FirstYear: 3, LastYear: 20, GraceMonths: 6, GraceFactor: 1.5, VATRate: 0.2,
	}
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	// Years 3..20 inclusive.
	assert.Equal(t, 18, res.TasksCreated)
	require.Len(t, f.tasks.tasks, 18)
	assert.Equal(t, 3, f.tasks.tasks[0].AnnuityYear)
	assert.Equal(t, time.Date(2029, 7, 1, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)
	assert.Equal(t, 20, f.tasks.tasks[17].AnnuityYear)

	// Re-processing the same event adds nothing.
	res, err = f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TasksCreated)
	assert.Len(t, f.tasks.tasks, 18)
}

func TestProcessEventRecurringRespectsIterationCap(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, Recurring: true, Active: true,
	}
	f := newFixture(renRule)
	f.addMatter(patentMatter(1))
	// Misconfigured: a five hundred year annuity schedule.
	f.renewals.byCountry["EP"] = &domaindocket.CountryRenewalConfig{
		Country: "EP", FirstYear: 1, LastYear: 500, GraceFactor: 1,
	}
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.TasksCreated, 30)
}

func TestProcessEventRecurringSkipsWithoutCountryConfig(t *testing.T) {
	renRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: domaindocket.TaskCodeRenewal, Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, Recurring: true, Active: true,
	}
	f := newFixture(renRule)
	f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RulesSkipped)
	assert.Empty(t, f.tasks.tasks)
}

func TestProcessEventRuleErrorDoesNotBlockOthers(t *testing.T) {
	bad := &domaindocket.TaskRule{
		ID: 1, TaskCode: "BAD", Trigger: matter.EventFiled, Action: "explode", Active: true,
	}
	good := &domaindocket.TaskRule{
		ID: 2, TaskCode: "OA", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 6, Active: true,
	}
	f := newFixture(bad, good)
	f.addMatter(patentMatter(1))
	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})

	res, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RuleErrors)
	assert.Equal(t, 1, res.TasksCreated)
}

func TestCascadePriorityRecalculatesOwnFilTasks(t *testing.T) {
	filRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "CONV", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, UsePriority: true, Active: true,
	}
	f := newFixture(filRule)
	f.addMatter(patentMatter(1))
	filingDate := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	filEv := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: filingDate})

	_, err := f.engine.ProcessEvent(context.Background(), filEv)
	require.NoError(t, err)
	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)

	// A later priority claim moves the base date back.
	priEv := f.addEvent(&matter.Event{ID: 11, MatterID: 1, Code: matter.EventPriority,
		EventDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)})
	res, err := f.engine.ProcessEvent(context.Background(), priEv)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Recalculated)
	assert.Equal(t, time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC), f.tasks.tasks[0].DueDate)
}

func TestCascadeFilRecalculatesDependents(t *testing.T) {
	filRule := &domaindocket.TaskRule{
		ID: 1, TaskCode: "CONV", Trigger: matter.EventFiled,
		Action: domaindocket.ActionCreate, OffsetMonths: 12, UsePriority: true, Active: true,
	}
	f := newFixture(filRule)
	f.addMatter(patentMatter(1))
	child := patentMatter(2)
	child.ID = 2
	f.addMatter(child)
	f.linkage.dependents[1] = []int64{2}

	// The child already has an engine-generated FIL task.
	childFil := f.addEvent(&matter.Event{ID: 20, MatterID: 2, Code: matter.EventFiled,
		EventDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)})
	_, err := f.engine.ProcessEvent(context.Background(), childFil)
	require.NoError(t, err)
	require.Len(t, f.tasks.tasks, 1)

	// Give the child a priority claim, then trigger the parent's filing.
	f.addEvent(&matter.Event{ID: 21, MatterID: 2, Code: matter.EventPriority,
		EventDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	parentFil := f.addEvent(&matter.Event{ID: 22, MatterID: 1, Code: matter.EventFiled,
		EventDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)})

	res, err := f.engine.ProcessEvent(context.Background(), parentFil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Recalculated, 1)
	var childTask *domaindocket.Task
	for _, task := range f.tasks.tasks {
		if task.MatterID == 2 {
			childTask = task
		}
	}
	require.NotNil(t, childTask)
	assert.Equal(t, time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC), childTask.DueDate)
}

func TestCascadeSurvivesLinkageCycles(t *testing.T) {
	f := newFixture()
	f.addMatter(patentMatter(1))
	other := patentMatter(2)
	other.ID = 2
	f.addMatter(other)
	// 1 -> 2 -> 1, bad data.
	f.linkage.dependents[1] = []int64{2}
	f.linkage.dependents[2] = []int64{1}

	ev := f.addEvent(&matter.Event{ID: 10, MatterID: 1, Code: matter.EventFiled, EventDate: testNow})
	_, err := f.engine.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
}
