package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

const eventColumns = `id, matter_id, code, event_date, detail, alt_matter_id, created_at`

// EventRepository is the PostgreSQL implementation of matter.EventRepository.
type EventRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewEventRepository constructs a ready-to-use EventRepository.
func NewEventRepository(db *sql.DB, logger logging.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.Named("event-repo")}
}

func (r *EventRepository) Create(ctx context.Context, e *matter.Event) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO events (matter_id, code, event_date, detail, alt_matter_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		e.MatterID, e.Code.String(), e.EventDate, nullStr(e.Detail),
		nullI64(e.AltMatterID), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert event")
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "delete event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeEventNotFound, "event %d not found", id)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*matter.Event, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeEventNotFound, "event %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query event")
	}
	return e, nil
}

func (r *EventRepository) ListByMatter(ctx context.Context, matterID int64) ([]*matter.Event, error) {
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE matter_id = $1 ORDER BY event_date, id`,
		matterID)
}

func (r *EventRepository) FindByCode(ctx context.Context, matterID int64, code matter.EventCode) ([]*matter.Event, error) {
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE matter_id = $1 AND code = $2 ORDER BY event_date, id`,
		matterID, code.String())
}

func (r *EventRepository) LatestByCode(ctx context.Context, matterID int64, code matter.EventCode) (*matter.Event, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE matter_id = $1 AND code = $2
		 ORDER BY event_date DESC, id DESC LIMIT 1`,
		matterID, code.String())
	e, err := scanEvent(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query latest event")
	}
	return e, nil
}

func (r *EventRepository) ListInRange(ctx context.Context, from, to time.Time) ([]*matter.Event, error) {
	return r.query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE event_date >= $1 AND event_date < $2 ORDER BY event_date, id`,
		from, to)
}

func (r *EventRepository) query(ctx context.Context, q string, args ...interface{}) ([]*matter.Event, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query events")
	}
	defer rows.Close()

	var out []*matter.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(s scanner) (*matter.Event, error) {
	var (
		e           matter.Event
		code        string
		detail      sql.NullString
		altMatterID sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.MatterID, &code, &e.EventDate, &detail, &altMatterID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Code = matter.EventCode(code)
	e.Detail = strOf(detail)
	e.AltMatterID = i64Ptr(altMatterID)
	return &e, nil
}
