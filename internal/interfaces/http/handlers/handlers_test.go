package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	appmatter "github.com/ipdocket/ipdocket/internal/application/matter"
	apprenewal "github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
	domainmatter "github.com/ipdocket/ipdocket/internal/domain/matter"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/interfaces/http/handlers"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memTaskRepo struct {
	byID map[int64]*docket.Task
}

func newMemTaskRepo(tasks ...*docket.Task) *memTaskRepo {
	r := &memTaskRepo{byID: map[int64]*docket.Task{}}
	for _, t := range tasks {
		r.byID[t.ID] = t
	}
	return r
}

func (r *memTaskRepo) Create(_ context.Context, t *docket.Task) error {
	r.byID[t.ID] = t
	return nil
}
func (r *memTaskRepo) Update(_ context.Context, t *docket.Task) error {
	r.byID[t.ID] = t
	return nil
}
func (r *memTaskRepo) Delete(_ context.Context, id int64) error {
	delete(r.byID, id)
	return nil
}
func (r *memTaskRepo) GetByID(_ context.Context, id int64) (*docket.Task, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeTaskNotFound, "task %d", id)
	}
	return t, nil
}
func (r *memTaskRepo) GetByIDs(_ context.Context, ids []int64) ([]*docket.Task, error) {
	var out []*docket.Task
	for _, id := range ids {
		if t, ok := r.byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}
func (r *memTaskRepo) List(_ context.Context, filter docket.TaskFilter, _ common.Pagination) ([]*docket.Task, int64, error) {
	var out []*docket.Task
	for _, t := range r.byID {
		if filter.OpenOnly && t.Done {
			continue
		}
		if filter.RenewalOnly && !t.IsRenewal() {
			continue
		}
		if filter.MatterID != 0 && t.MatterID != filter.MatterID {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}
func (r *memTaskRepo) FindOpen(context.Context, int64, string) ([]*docket.Task, error) {
	return nil, nil
}
func (r *memTaskRepo) FindByTrigger(context.Context, int64) ([]*docket.Task, error) {
	return nil, nil
}
func (r *memTaskRepo) ExistsForRule(context.Context, int64, int64, int) (bool, error) {
	return false, nil
}
func (r *memTaskRepo) DeleteGenerated(context.Context, int64) error { return nil }

type memLogRepo struct {
	entries []*domainrenewal.TransitionLog
}

func (r *memLogRepo) Create(_ context.Context, l *domainrenewal.TransitionLog) error {
	r.entries = append(r.entries, l)
	return nil
}
func (r *memLogRepo) ListByTask(_ context.Context, taskID int64) ([]*domainrenewal.TransitionLog, error) {
	var out []*domainrenewal.TransitionLog
	for _, l := range r.entries {
		if l.TaskID == taskID {
			out = append(out, l)
		}
	}
	return out, nil
}
func (r *memLogRepo) ListByJob(_ context.Context, jobID string) ([]*domainrenewal.TransitionLog, error) {
	var out []*domainrenewal.TransitionLog
	for _, l := range r.entries {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memMatterRepo struct {
	byID   map[int64]*domainmatter.Matter
	byRef  map[string]*domainmatter.Matter
	nextID int64
}

func newMemMatterRepo() *memMatterRepo {
	return &memMatterRepo{
		byID:   map[int64]*domainmatter.Matter{},
		byRef:  map[string]*domainmatter.Matter{},
		nextID: 1,
	}
}

func (r *memMatterRepo) Create(_ context.Context, m *domainmatter.Matter) error {
	m.ID = r.nextID
	r.nextID++
	r.byID[m.ID] = m
	r.byRef[m.Caseref] = m
	return nil
}
func (r *memMatterRepo) Update(_ context.Context, m *domainmatter.Matter) error {
	if _, ok := r.byID[m.ID]; !ok {
		return errors.Newf(errors.ErrCodeMatterNotFound, "matter %d", m.ID)
	}
	r.byID[m.ID] = m
	r.byRef[m.Caseref] = m
	return nil
}
func (r *memMatterRepo) GetByID(_ context.Context, id int64) (*domainmatter.Matter, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMatterNotFound, "matter %d", id)
	}
	return m, nil
}
func (r *memMatterRepo) GetByCaseref(_ context.Context, ref string) (*domainmatter.Matter, error) {
	m, ok := r.byRef[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMatterNotFound, "caseref %s", ref)
	}
	return m, nil
}
func (r *memMatterRepo) List(_ context.Context, _ domainmatter.Filter, _ common.Pagination) ([]*domainmatter.Matter, int64, error) {
	var out []*domainmatter.Matter
	for _, m := range r.byID {
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}
func (r *memMatterRepo) Children(context.Context, int64) ([]*domainmatter.Matter, error) {
	return nil, nil
}
func (r *memMatterRepo) MarkDead(_ context.Context, id int64) error {
	if m, ok := r.byID[id]; ok {
		m.Dead = true
	}
	return nil
}

type memEventRepo struct {
	byMatter map[int64][]*domainmatter.Event
	nextID   int64
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{byMatter: map[int64][]*domainmatter.Event{}, nextID: 1}
}

func (r *memEventRepo) Create(_ context.Context, e *domainmatter.Event) error {
	e.ID = r.nextID
	r.nextID++
	r.byMatter[e.MatterID] = append(r.byMatter[e.MatterID], e)
	return nil
}
func (r *memEventRepo) Delete(context.Context, int64) error { return nil }
func (r *memEventRepo) GetByID(_ context.Context, id int64) (*domainmatter.Event, error) {
	return nil, errors.Newf(errors.ErrCodeEventNotFound, "event %d", id)
}
func (r *memEventRepo) ListByMatter(_ context.Context, matterID int64) ([]*domainmatter.Event, error) {
	return r.byMatter[matterID], nil
}
func (r *memEventRepo) FindByCode(_ context.Context, matterID int64, code domainmatter.EventCode) ([]*domainmatter.Event, error) {
	var out []*domainmatter.Event
	for _, e := range r.byMatter[matterID] {
		if e.Code == code {
			out = append(out, e)
		}
	}
	return out, nil
}
func (r *memEventRepo) LatestByCode(_ context.Context, matterID int64, code domainmatter.EventCode) (*domainmatter.Event, error) {
	events, _ := r.FindByCode(context.Background(), matterID, code)
	if len(events) == 0 {
		return nil, nil
	}
	return events[len(events)-1], nil
}
func (r *memEventRepo) ListInRange(context.Context, time.Time, time.Time) ([]*domainmatter.Event, error) {
	return nil, nil
}

type memLinkageRepo struct{}

func (memLinkageRepo) Link(context.Context, int64, int64, string) error { return nil }
func (memLinkageRepo) Dependents(context.Context, int64) ([]int64, error) {
	return nil, nil
}
func (memLinkageRepo) References(context.Context, int64) ([]int64, error) {
	return nil, nil
}
func (memLinkageRepo) Unlink(context.Context, int64, int64) error { return nil }

// stubEngine returns a canned result instead of evaluating rules.
type stubEngine struct {
	result *appdocket.Result
}

func (s *stubEngine) ProcessEvent(_ context.Context, ev *domainmatter.Event) (*appdocket.Result, error) {
	res := *s.result
	res.MatterID = ev.MatterID
	res.EventID = ev.ID
	return &res, nil
}

type memRuleRepo struct {
	byID   map[int64]*docket.TaskRule
	nextID int64
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{byID: map[int64]*docket.TaskRule{}, nextID: 1}
}

func (r *memRuleRepo) Create(_ context.Context, rule *docket.TaskRule) error {
	rule.ID = r.nextID
	r.nextID++
	r.byID[rule.ID] = rule
	return nil
}
func (r *memRuleRepo) Update(_ context.Context, rule *docket.TaskRule) error {
	r.byID[rule.ID] = rule
	return nil
}
func (r *memRuleRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.byID[id]; !ok {
		return errors.Newf(errors.ErrCodeRuleNotFound, "rule %d", id)
	}
	delete(r.byID, id)
	return nil
}
func (r *memRuleRepo) GetByID(_ context.Context, id int64) (*docket.TaskRule, error) {
	rule, ok := r.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRuleNotFound, "rule %d", id)
	}
	return rule, nil
}
func (r *memRuleRepo) ListByTrigger(_ context.Context, code string) ([]*docket.TaskRule, error) {
	var out []*docket.TaskRule
	for _, rule := range r.byID {
		if string(rule.Trigger) == code && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}
func (r *memRuleRepo) ListAll(_ context.Context) ([]*docket.TaskRule, error) {
	var out []*docket.TaskRule
	for _, rule := range r.byID {
		out = append(out, rule)
	}
	return out, nil
}

type memConfigRepo struct {
	byCountry map[string]*docket.CountryRenewalConfig
}

func (r *memConfigRepo) Get(_ context.Context, country string) (*docket.CountryRenewalConfig, error) {
	cfg, ok := r.byCountry[country]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRenewalConfigMissing, "no renewal config for %s", country)
	}
	return cfg, nil
}
func (r *memConfigRepo) Upsert(_ context.Context, cfg *docket.CountryRenewalConfig) error {
	if r.byCountry == nil {
		r.byCountry = map[string]*docket.CountryRenewalConfig{}
	}
	r.byCountry[cfg.Country] = cfg
	return nil
}
func (r *memConfigRepo) List(_ context.Context) ([]*docket.CountryRenewalConfig, error) {
	var out []*docket.CountryRenewalConfig
	for _, cfg := range r.byCountry {
		out = append(out, cfg)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func renewalTask(id int64, step int) *docket.Task {
	return &docket.Task{
		ID:       id,
		MatterID: 1,
		Code:     docket.TaskCodeRenewal,
		DueDate:  time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
		Step:     step,
	}
}

// ---------------------------------------------------------------------------
// Matter handler
// ---------------------------------------------------------------------------

func newMatterRouter(t *testing.T) (*gin.Engine, *memMatterRepo) {
	t.Helper()
	repo := newMemMatterRepo()
	svc := appmatter.NewService(repo, newMemEventRepo(), memLinkageRepo{},
		&stubEngine{result: &appdocket.Result{RulesMatched: 2, TasksCreated: 1}},
		nil, logging.NewNopLogger())
	r := gin.New()
	handlers.NewMatterHandler(svc).Register(r.Group("/api/v1"))
	return r, repo
}

func TestMatterHandler_CreateAndGet(t *testing.T) {
	r, repo := newMatterRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/matters", gin.H{
		"caseref":  "P1000DE",
		"country":  "DE",
		"category": "PAT",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created domainmatter.Matter
	decodeBody(t, w, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "P1000DE", repo.byID[created.ID].Caseref)

	w = doJSON(t, r, http.MethodGet, "/api/v1/matters/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMatterHandler_CreateRejectsUnknownCategory(t *testing.T) {
	r, _ := newMatterRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/matters", gin.H{
		"caseref":  "P1001DE",
		"country":  "DE",
		"category": "XXX",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MAT_004")
}

func TestMatterHandler_GetNotFound(t *testing.T) {
	r, _ := newMatterRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/matters/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "MAT_001")
}

func TestMatterHandler_InvalidIDIsBadRequest(t *testing.T) {
	r, _ := newMatterRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/matters/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatterHandler_RecordEventReturnsEngineResult(t *testing.T) {
	r, _ := newMatterRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/matters", gin.H{
		"caseref":  "P1002EP",
		"country":  "EP",
		"category": "PAT",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/matters/1/events", gin.H{
		"code":       "FIL",
		"event_date": "2026-01-15T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Result appdocket.Result `json:"result"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Result.RulesMatched)
	assert.Equal(t, 1, resp.Result.TasksCreated)
	assert.Equal(t, int64(1), resp.Result.MatterID)
}

// ---------------------------------------------------------------------------
// Task handler
// ---------------------------------------------------------------------------

func TestTaskHandler_ListFilters(t *testing.T) {
	repo := newMemTaskRepo(
		renewalTask(1, 0),
		&docket.Task{ID: 2, MatterID: 1, Code: "OA", Done: true},
	)
	r := gin.New()
	handlers.NewTaskHandler(repo).Register(r.Group("/api/v1"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks?open=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Total int64 `json:"total"`
	}
	decodeBody(t, w, &page)
	assert.Equal(t, int64(1), page.Total)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?due_from=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_GetNotFound(t *testing.T) {
	r := gin.New()
	handlers.NewTaskHandler(newMemTaskRepo()).Register(r.Group("/api/v1"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks/5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "DOC_004")
}

// ---------------------------------------------------------------------------
// Renewal handler
// ---------------------------------------------------------------------------

func newRenewalRouter(t *testing.T, tasks *memTaskRepo) (*gin.Engine, *memLogRepo) {
	t.Helper()
	logs := &memLogRepo{}
	workflow := apprenewal.NewWorkflowService(tasks, logs, passthroughTx{}, nil, logging.NewNopLogger(), nil)
	fees := apprenewal.NewFeeService(tasks, newMemMatterRepo(), &memConfigRepo{}, logging.NewNopLogger(), nil)
	reminders := apprenewal.NewReminderService(tasks, workflow, logging.NewNopLogger())
	r := gin.New()
	handlers.NewRenewalHandler(workflow, fees, nil, reminders).Register(r.Group("/api/v1"))
	return r, logs
}

func TestRenewalHandler_UpdateStep(t *testing.T) {
	tasks := newMemTaskRepo(renewalTask(1, 0), renewalTask(2, 0))
	r, logs := newRenewalRouter(t, tasks)

	w := doJSON(t, r, http.MethodPost, "/api/v1/renewals/step", gin.H{
		"task_ids": []int64{1, 2},
		"actor":    "annuities-team",
		"step":     1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res common.BatchResult
	decodeBody(t, w, &res)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 1, tasks.byID[1].Step)
	assert.Len(t, logs.entries, 2)
}

func TestRenewalHandler_UpdateStepRejectsUnknownStep(t *testing.T) {
	r, _ := newRenewalRouter(t, newMemTaskRepo(renewalTask(1, 0)))

	w := doJSON(t, r, http.MethodPost, "/api/v1/renewals/step", gin.H{
		"task_ids": []int64{1},
		"actor":    "annuities-team",
		"step":     7,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "REN_002")
}

func TestRenewalHandler_MissingActorIsBadRequest(t *testing.T) {
	r, _ := newRenewalRouter(t, newMemTaskRepo(renewalTask(1, 0)))

	w := doJSON(t, r, http.MethodPost, "/api/v1/renewals/abandon", gin.H{
		"task_ids": []int64{1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenewalHandler_JobHistory(t *testing.T) {
	tasks := newMemTaskRepo(renewalTask(1, 0))
	r, logs := newRenewalRouter(t, tasks)

	w := doJSON(t, r, http.MethodPost, "/api/v1/renewals/done", gin.H{
		"task_ids": []int64{1},
		"actor":    "annuities-team",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, logs.entries, 1)

	w = doJSON(t, r, http.MethodGet, "/api/v1/renewals/jobs/"+logs.entries[0].JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []*domainrenewal.TransitionLog
	decodeBody(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].TaskID)
}

func TestRenewalHandler_ExportWithoutArchive(t *testing.T) {
	r, _ := newRenewalRouter(t, newMemTaskRepo())

	w := doJSON(t, r, http.MethodPost, "/api/v1/renewals/export", gin.H{
		"task_ids": []int64{1},
	})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

// ---------------------------------------------------------------------------
// Rule handler
// ---------------------------------------------------------------------------

func newRuleRouter(t *testing.T) (*gin.Engine, *memRuleRepo, *memConfigRepo) {
	t.Helper()
	rules := newMemRuleRepo()
	configs := &memConfigRepo{}
	svc := appdocket.NewRuleAdminService(rules, logging.NewNopLogger())
	r := gin.New()
	handlers.NewRuleHandler(svc, configs).Register(r.Group("/api/v1"))
	return r, rules, configs
}

func TestRuleHandler_CreateAndValidate(t *testing.T) {
	r, rules, _ := newRuleRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/rules", gin.H{
		"task_code":    "REN",
		"trigger":      "FIL",
		"action":       "create",
		"offset_years": 2,
		"active":       true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, rules.byID, 1)

	w = doJSON(t, r, http.MethodPost, "/api/v1/rules/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report appdocket.ValidationReport
	decodeBody(t, w, &report)
	assert.Equal(t, 1, report.RuleCount)
	assert.Empty(t, report.Problems)
}

func TestRuleHandler_DeleteMissingRule(t *testing.T) {
	r, _, _ := newRuleRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/rules/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleHandler_RenewalConfigRoundTrip(t *testing.T) {
	r, _, configs := newRuleRouter(t)

	w := doJSON(t, r, http.MethodPut, "/api/v1/renewal-configs/EP", gin.H{
		"first_year":   3,
		"last_year":    20,
		"grace_months": 6,
		"grace_factor": 1.5,
		"vat_rate":     0.2,
		"currency":     "EUR",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.5, configs.byCountry["EP"].GraceFactor)

	w = doJSON(t, r, http.MethodGet, "/api/v1/renewal-configs/EP", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A grace factor below 1 would discount late payments.
	w = doJSON(t, r, http.MethodPut, "/api/v1/renewal-configs/EP", gin.H{
		"first_year":   3,
		"last_year":    20,
		"grace_factor": 0.5,
		"vat_rate":     0.2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Health handler
// ---------------------------------------------------------------------------

func TestHealthHandler_ReadyReportsFailingDependency(t *testing.T) {
	r := gin.New()
	handlers.NewHealthHandler(map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			return errors.New(errors.ErrCodeCacheError, "connection refused")
		},
	}).Register(r)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, "ok", body.Dependencies["postgres"])
	assert.Contains(t, body.Dependencies["redis"], "connection refused")
}
