package repositories

import (
	"context"
	"database/sql"

	"github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

const logColumns = `id, task_id, job_id, action, from_step, to_step,
	from_invoice_step, to_invoice_step, actor, detail, created_at`

// TransitionLogRepository is the PostgreSQL implementation of
// renewal.TransitionLogRepository.  Rows are append-only.
type TransitionLogRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewTransitionLogRepository constructs a ready-to-use TransitionLogRepository.
func NewTransitionLogRepository(db *sql.DB, logger logging.Logger) *TransitionLogRepository {
	return &TransitionLogRepository{db: db, logger: logger.Named("transition-log-repo")}
}

func (r *TransitionLogRepository) Create(ctx context.Context, l *renewal.TransitionLog) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO transition_logs (
			task_id, job_id, action, from_step, to_step,
			from_invoice_step, to_invoice_step, actor, detail, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`,
		l.TaskID, l.JobID, string(l.Action), int(l.FromStep), int(l.ToStep),
		int(l.FromInvoiceStep), int(l.ToInvoiceStep), nullStr(l.Actor), nullStr(l.Detail),
		l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert transition log")
	}
	return nil
}

func (r *TransitionLogRepository) ListByTask(ctx context.Context, taskID int64) ([]*renewal.TransitionLog, error) {
	return r.query(ctx,
		`SELECT `+logColumns+` FROM transition_logs WHERE task_id = $1 ORDER BY created_at, id`,
		taskID)
}

func (r *TransitionLogRepository) ListByJob(ctx context.Context, jobID string) ([]*renewal.TransitionLog, error) {
	return r.query(ctx,
		`SELECT `+logColumns+` FROM transition_logs WHERE job_id = $1 ORDER BY created_at, id`,
		jobID)
}

func (r *TransitionLogRepository) query(ctx context.Context, q string, args ...interface{}) ([]*renewal.TransitionLog, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query transition logs")
	}
	defer rows.Close()

	var out []*renewal.TransitionLog
	for rows.Next() {
		var (
			l             renewal.TransitionLog
			action        string
			fromStep      int
			toStep        int
			fromInv       int
			toInv         int
			actor, detail sql.NullString
		)
		err := rows.Scan(&l.ID, &l.TaskID, &l.JobID, &action, &fromStep, &toStep,
			&fromInv, &toInv, &actor, &detail, &l.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan transition log")
		}
		l.Action = renewal.Action(action)
		l.FromStep = renewal.Step(fromStep)
		l.ToStep = renewal.Step(toStep)
		l.FromInvoiceStep = renewal.InvoiceStep(fromInv)
		l.ToInvoiceStep = renewal.InvoiceStep(toInv)
		l.Actor = strOf(actor)
		l.Detail = strOf(detail)
		out = append(out, &l)
	}
	return out, rows.Err()
}
