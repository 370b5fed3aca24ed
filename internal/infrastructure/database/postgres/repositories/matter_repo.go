package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

const matterColumns = `id, caseref, country, category, origin, type_code,
	parent_id, container_id, responsible, renewal_agent,
	renewal_client_managed, dead, expire_date, term_adjust_days,
	created_at, updated_at`

// MatterRepository is the PostgreSQL implementation of matter.Repository.
type MatterRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewMatterRepository constructs a ready-to-use MatterRepository.
func NewMatterRepository(db *sql.DB, logger logging.Logger) *MatterRepository {
	return &MatterRepository{db: db, logger: logger.Named("matter-repo")}
}

func (r *MatterRepository) Create(ctx context.Context, m *matter.Matter) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO matters (
			caseref, country, category, origin, type_code,
			parent_id, container_id, responsible, renewal_agent,
			renewal_client_managed, dead, expire_date, term_adjust_days,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`,
		m.Caseref, m.Country, string(m.Category), nullStr(m.Origin), nullStr(m.TypeCode),
		nullI64(m.ParentID), nullI64(m.ContainerID), nullStr(m.Responsible), nullStr(m.RenewalAgent),
		m.RenewalClientManaged, m.Dead, nullTime(m.ExpireDate), m.TermAdjustDays,
		m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		if strings.Contains(err.Error(), "matters_caseref_key") {
			return errors.Newf(errors.ErrCodeMatterAlreadyExists, "caseref %s already exists", m.Caseref)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert matter")
	}
	return nil
}

func (r *MatterRepository) Update(ctx context.Context, m *matter.Matter) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE matters SET
			caseref = $2, country = $3, category = $4, origin = $5,
			type_code = $6, parent_id = $7, container_id = $8,
			responsible = $9, renewal_agent = $10, renewal_client_managed = $11,
			dead = $12, expire_date = $13, term_adjust_days = $14, updated_at = $15
		WHERE id = $1`,
		m.ID, m.Caseref, m.Country, string(m.Category), nullStr(m.Origin),
		nullStr(m.TypeCode), nullI64(m.ParentID), nullI64(m.ContainerID),
		nullStr(m.Responsible), nullStr(m.RenewalAgent), m.RenewalClientManaged,
		m.Dead, nullTime(m.ExpireDate), m.TermAdjustDays, m.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "update matter")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeMatterNotFound, "matter %d not found", m.ID)
	}
	return nil
}

func (r *MatterRepository) GetByID(ctx context.Context, id int64) (*matter.Matter, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+matterColumns+` FROM matters WHERE id = $1`, id)
	m, err := scanMatter(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeMatterNotFound, "matter %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query matter")
	}
	return m, nil
}

func (r *MatterRepository) GetByCaseref(ctx context.Context, caseref string) (*matter.Matter, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+matterColumns+` FROM matters WHERE caseref = $1`, caseref)
	m, err := scanMatter(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeMatterNotFound, "caseref %s not found", caseref)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query matter by caseref")
	}
	return m, nil
}

func (r *MatterRepository) List(ctx context.Context, f matter.Filter, p common.Pagination) ([]*matter.Matter, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Country != "" {
		where = append(where, "country = "+arg(f.Country))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(string(f.Category)))
	}
	if f.Responsible != "" {
		where = append(where, "responsible = "+arg(f.Responsible))
	}
	if f.Caseref != "" {
		where = append(where, "caseref ILIKE "+arg(f.Caseref+"%"))
	}
	if !f.IncludeDead {
		where = append(where, "NOT dead")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := executor(ctx, r.db).QueryRowContext(ctx,
		"SELECT count(*) FROM matters WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "count matters")
	}

	query := "SELECT " + matterColumns + " FROM matters WHERE " + cond +
		" ORDER BY caseref " + fmt.Sprintf("LIMIT %d OFFSET %d", p.PageSize, p.Offset())
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "list matters")
	}
	defer rows.Close()

	var out []*matter.Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan matter")
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *MatterRepository) Children(ctx context.Context, parentID int64) ([]*matter.Matter, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx,
		`SELECT `+matterColumns+` FROM matters WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query children")
	}
	defer rows.Close()

	var out []*matter.Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan matter")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MatterRepository) MarkDead(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx,
		`UPDATE matters SET dead = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "mark matter dead")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeMatterNotFound, "matter %d not found", id)
	}
	return nil
}

func scanMatter(s scanner) (*matter.Matter, error) {
	var (
		m                       matter.Matter
		category                string
		origin, typeCode        sql.NullString
		parentID, containerID   sql.NullInt64
		responsible, agent      sql.NullString
		expireDate              sql.NullTime
	)
	err := s.Scan(
		&m.ID, &m.Caseref, &m.Country, &category, &origin, &typeCode,
		&parentID, &containerID, &responsible, &agent,
		&m.RenewalClientManaged, &m.Dead, &expireDate, &m.TermAdjustDays,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Category = matter.Category(category)
	m.Origin = strOf(origin)
	m.TypeCode = strOf(typeCode)
	m.ParentID = i64Ptr(parentID)
	m.ContainerID = i64Ptr(containerID)
	m.Responsible = strOf(responsible)
	m.RenewalAgent = strOf(agent)
	m.ExpireDate = timePtr(expireDate)
	return &m, nil
}
