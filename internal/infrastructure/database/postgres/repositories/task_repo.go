package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

const taskColumns = `id, matter_id, code, trigger_id, due_date, detail, assigned_to,
	done, done_date, rule_used, annuity_year, cost, fee, currency,
	step, invoice_step, grace_period_applied, fee_factor,
	created_at, updated_at`

// TaskRepository is the PostgreSQL implementation of docket.TaskRepository.
type TaskRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewTaskRepository constructs a ready-to-use TaskRepository.
func NewTaskRepository(db *sql.DB, logger logging.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger.Named("task-repo")}
}

func (r *TaskRepository) Create(ctx context.Context, t *docket.Task) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO tasks (
			matter_id, code, trigger_id, due_date, detail, assigned_to,
			done, done_date, rule_used, annuity_year, cost, fee, currency,
			step, invoice_step, grace_period_applied, fee_factor,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`,
		t.MatterID, t.Code, zeroNullI64(t.TriggerID), t.DueDate, nullStr(t.Detail), nullStr(t.AssignedTo),
		t.Done, nullTime(t.DoneDate), nullI64(t.RuleUsed), t.AnnuityYear, t.Cost, t.Fee, nullStr(t.Currency),
		t.Step, t.InvoiceStep, t.GracePeriodApplied, t.FeeFactor,
		t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert task")
	}
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, t *docket.Task) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE tasks SET
			matter_id = $2, code = $3, trigger_id = $4, due_date = $5,
			detail = $6, assigned_to = $7, done = $8, done_date = $9,
			rule_used = $10, annuity_year = $11, cost = $12, fee = $13,
			currency = $14, step = $15, invoice_step = $16,
			grace_period_applied = $17, fee_factor = $18, updated_at = $19
		WHERE id = $1`,
		t.ID, t.MatterID, t.Code, zeroNullI64(t.TriggerID), t.DueDate,
		nullStr(t.Detail), nullStr(t.AssignedTo), t.Done, nullTime(t.DoneDate),
		nullI64(t.RuleUsed), t.AnnuityYear, t.Cost, t.Fee,
		nullStr(t.Currency), t.Step, t.InvoiceStep,
		t.GracePeriodApplied, t.FeeFactor, t.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "update task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeTaskNotFound, "task %d not found", t.ID)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeTaskNotFound, "task %d not found", id)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*docket.Task, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeTaskNotFound, "task %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query task")
	}
	return t, nil
}

func (r *TaskRepository) GetByIDs(ctx context.Context, ids []int64) ([]*docket.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`,
		args...)
}

func (r *TaskRepository) List(ctx context.Context, f docket.TaskFilter, p common.Pagination) ([]*docket.Task, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.MatterID != 0 {
		where = append(where, "matter_id = "+arg(f.MatterID))
	}
	if f.Code != "" {
		where = append(where, "code = "+arg(f.Code))
	}
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = "+arg(f.AssignedTo))
	}
	if f.OpenOnly {
		where = append(where, "NOT done")
	}
	if f.RenewalOnly {
		where = append(where, "code = "+arg(docket.TaskCodeRenewal))
	}
	if f.DueFrom != nil {
		where = append(where, "due_date >= "+arg(*f.DueFrom))
	}
	if f.DueTo != nil {
		where = append(where, "due_date < "+arg(*f.DueTo))
	}
	if f.Step != nil {
		where = append(where, "step = "+arg(*f.Step))
	}
	if f.InvoiceStep != nil {
		where = append(where, "invoice_step = "+arg(*f.InvoiceStep))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := executor(ctx, r.db).QueryRowContext(ctx,
		"SELECT count(*) FROM tasks WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "count tasks")
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " + cond +
		" ORDER BY due_date, id " + fmt.Sprintf("LIMIT %d OFFSET %d", p.PageSize, p.Offset())
	tasks, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *TaskRepository) FindOpen(ctx context.Context, matterID int64, code string) ([]*docket.Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE matter_id = $1 AND code = $2 AND NOT done ORDER BY due_date, id`,
		matterID, code)
}

func (r *TaskRepository) FindByTrigger(ctx context.Context, triggerID int64) ([]*docket.Task, error) {
	return r.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE trigger_id = $1 ORDER BY due_date, id`,
		triggerID)
}

func (r *TaskRepository) ExistsForRule(ctx context.Context, triggerID, ruleID int64, annuityYear int) (bool, error) {
	var exists bool
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE trigger_id = $1 AND rule_used = $2 AND annuity_year = $3
		)`, triggerID, ruleID, annuityYear).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "check task existence")
	}
	return exists, nil
}

func (r *TaskRepository) DeleteGenerated(ctx context.Context, triggerID int64) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		DELETE FROM tasks
		WHERE trigger_id = $1 AND rule_used IS NOT NULL AND NOT done`, triggerID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete generated tasks")
	}
	return nil
}

func (r *TaskRepository) query(ctx context.Context, q string, args ...interface{}) ([]*docket.Task, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query tasks")
	}
	defer rows.Close()

	var out []*docket.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan task")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(s scanner) (*docket.Task, error) {
	var (
		t                  docket.Task
		triggerID          sql.NullInt64
		detail, assignedTo sql.NullString
		doneDate           sql.NullTime
		ruleUsed           sql.NullInt64
		currency           sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.MatterID, &t.Code, &triggerID, &t.DueDate, &detail, &assignedTo,
		&t.Done, &doneDate, &ruleUsed, &t.AnnuityYear, &t.Cost, &t.Fee, &currency,
		&t.Step, &t.InvoiceStep, &t.GracePeriodApplied, &t.FeeFactor,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if triggerID.Valid {
		t.TriggerID = triggerID.Int64
	}
	t.Detail = strOf(detail)
	t.AssignedTo = strOf(assignedTo)
	t.DoneDate = timePtr(doneDate)
	t.RuleUsed = i64Ptr(ruleUsed)
	t.Currency = strOf(currency)
	return &t, nil
}

// zeroNullI64 maps the zero value to NULL.  Manual tasks carry no trigger.
func zeroNullI64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
