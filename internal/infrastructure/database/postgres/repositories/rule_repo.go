package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

const ruleColumns = `id, task_code, trigger_code, action,
	for_country, for_origin, for_category, for_type,
	offset_years, offset_months, offset_days,
	use_priority, end_of_month, recurring, recur_start_year, not_for_children,
	abort_on, condition_event, use_after, use_before,
	detail, default_responsible, cost, fee, currency, active`

// TaskRuleRepository is the PostgreSQL implementation of
// docket.TaskRuleRepository.  Rule rows change rarely; the hot read path is
// fronted by the Redis rule cache.
type TaskRuleRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewTaskRuleRepository constructs a ready-to-use TaskRuleRepository.
func NewTaskRuleRepository(db *sql.DB, logger logging.Logger) *TaskRuleRepository {
	return &TaskRuleRepository{db: db, logger: logger.Named("rule-repo")}
}

func (r *TaskRuleRepository) Create(ctx context.Context, rule *docket.TaskRule) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO task_rules (
			task_code, trigger_code, action,
			for_country, for_origin, for_category, for_type,
			offset_years, offset_months, offset_days,
			use_priority, end_of_month, recurring, recur_start_year, not_for_children,
			abort_on, condition_event, use_after, use_before,
			detail, default_responsible, cost, fee, currency, active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING id`,
		rule.TaskCode, rule.Trigger.String(), string(rule.Action),
		nullStr(rule.ForCountry), nullStr(rule.ForOrigin), nullStr(string(rule.ForCategory)), nullStr(rule.ForType),
		rule.OffsetYears, rule.OffsetMonths, rule.OffsetDays,
		rule.UsePriority, rule.EndOfMonth, rule.Recurring, rule.RecurStartYear, rule.NotForChildren,
		nullStr(rule.AbortOn.String()), nullStr(rule.ConditionEvent.String()),
		nullTime(rule.UseAfter), nullTime(rule.UseBefore),
		nullStr(rule.Detail), nullStr(rule.DefaultResponsible),
		rule.Cost, rule.Fee, nullStr(rule.Currency), rule.Active,
	).Scan(&rule.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert task rule")
	}
	return nil
}

func (r *TaskRuleRepository) Update(ctx context.Context, rule *docket.TaskRule) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE task_rules SET
			task_code = $2, trigger_code = $3, action = $4,
			for_country = $5, for_origin = $6, for_category = $7, for_type = $8,
			offset_years = $9, offset_months = $10, offset_days = $11,
			use_priority = $12, end_of_month = $13, recurring = $14,
			recur_start_year = $15, not_for_children = $16,
			abort_on = $17, condition_event = $18, use_after = $19, use_before = $20,
			detail = $21, default_responsible = $22, cost = $23, fee = $24,
			currency = $25, active = $26
		WHERE id = $1`,
		rule.ID, rule.TaskCode, rule.Trigger.String(), string(rule.Action),
		nullStr(rule.ForCountry), nullStr(rule.ForOrigin), nullStr(string(rule.ForCategory)), nullStr(rule.ForType),
		rule.OffsetYears, rule.OffsetMonths, rule.OffsetDays,
		rule.UsePriority, rule.EndOfMonth, rule.Recurring, rule.RecurStartYear, rule.NotForChildren,
		nullStr(rule.AbortOn.String()), nullStr(rule.ConditionEvent.String()),
		nullTime(rule.UseAfter), nullTime(rule.UseBefore),
		nullStr(rule.Detail), nullStr(rule.DefaultResponsible),
		rule.Cost, rule.Fee, nullStr(rule.Currency), rule.Active,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "update task rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeRuleNotFound, "rule %d not found", rule.ID)
	}
	return nil
}

func (r *TaskRuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM task_rules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete task rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeRuleNotFound, "rule %d not found", id)
	}
	return nil
}

func (r *TaskRuleRepository) GetByID(ctx context.Context, id int64) (*docket.TaskRule, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM task_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeRuleNotFound, "rule %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query task rule")
	}
	return rule, nil
}

func (r *TaskRuleRepository) ListByTrigger(ctx context.Context, code string) ([]*docket.TaskRule, error) {
	return r.query(ctx,
		`SELECT `+ruleColumns+` FROM task_rules WHERE trigger_code = $1 AND active ORDER BY id`,
		code)
}

func (r *TaskRuleRepository) ListAll(ctx context.Context) ([]*docket.TaskRule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM task_rules ORDER BY id`)
}

func (r *TaskRuleRepository) query(ctx context.Context, q string, args ...interface{}) ([]*docket.TaskRule, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query task rules")
	}
	defer rows.Close()

	var out []*docket.TaskRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan task rule")
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func scanRule(s scanner) (*docket.TaskRule, error) {
	var (
		rule                           docket.TaskRule
		trigger, action                string
		forCountry, forOrigin          sql.NullString
		forCategory, forType           sql.NullString
		abortOn, conditionEvent        sql.NullString
		useAfter, useBefore            sql.NullTime
		detail, responsible, currency  sql.NullString
	)
	err := s.Scan(
		&rule.ID, &rule.TaskCode, &trigger, &action,
		&forCountry, &forOrigin, &forCategory, &forType,
		&rule.OffsetYears, &rule.OffsetMonths, &rule.OffsetDays,
		&rule.UsePriority, &rule.EndOfMonth, &rule.Recurring, &rule.RecurStartYear, &rule.NotForChildren,
		&abortOn, &conditionEvent, &useAfter, &useBefore,
		&detail, &responsible, &rule.Cost, &rule.Fee, &currency, &rule.Active,
	)
	if err != nil {
		return nil, err
	}
	rule.Trigger = matter.EventCode(trigger)
	rule.Action = docket.RuleAction(action)
	rule.ForCountry = strOf(forCountry)
	rule.ForOrigin = strOf(forOrigin)
	rule.ForCategory = matter.Category(strOf(forCategory))
	rule.ForType = strOf(forType)
	rule.AbortOn = matter.EventCode(strOf(abortOn))
	rule.ConditionEvent = matter.EventCode(strOf(conditionEvent))
	rule.UseAfter = timePtr(useAfter)
	rule.UseBefore = timePtr(useBefore)
	rule.Detail = strOf(detail)
	rule.DefaultResponsible = strOf(responsible)
	rule.Currency = strOf(currency)
	return &rule, nil
}
