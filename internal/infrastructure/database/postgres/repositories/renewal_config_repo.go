package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// RenewalConfigRepository is the PostgreSQL implementation of
// docket.RenewalConfigRepository.  One row per jurisdiction.
type RenewalConfigRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRenewalConfigRepository constructs a ready-to-use RenewalConfigRepository.
func NewRenewalConfigRepository(db *sql.DB, logger logging.Logger) *RenewalConfigRepository {
	return &RenewalConfigRepository{db: db, logger: logger.Named("renewal-config-repo")}
}

func (r *RenewalConfigRepository) Get(ctx context.Context, country string) (*docket.CountryRenewalConfig, error) {
	var (
		cfg      docket.CountryRenewalConfig
		currency sql.NullString
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT country, first_year, last_year, grace_months, grace_factor, vat_rate, currency
		FROM renewal_configs WHERE country = $1`, country,
	).Scan(&cfg.Country, &cfg.FirstYear, &cfg.LastYear, &cfg.GraceMonths,
		&cfg.GraceFactor, &cfg.VATRate, &currency)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.ErrCodeRenewalConfigMissing,
				"no renewal config for country %s", country)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query renewal config")
	}
	cfg.Currency = strOf(currency)
	return &cfg, nil
}

func (r *RenewalConfigRepository) Upsert(ctx context.Context, cfg *docket.CountryRenewalConfig) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO renewal_configs (country, first_year, last_year, grace_months, grace_factor, vat_rate, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (country) DO UPDATE SET
			first_year = EXCLUDED.first_year,
			last_year = EXCLUDED.last_year,
			grace_months = EXCLUDED.grace_months,
			grace_factor = EXCLUDED.grace_factor,
			vat_rate = EXCLUDED.vat_rate,
			currency = EXCLUDED.currency`,
		cfg.Country, cfg.FirstYear, cfg.LastYear, cfg.GraceMonths,
		cfg.GraceFactor, cfg.VATRate, nullStr(cfg.Currency),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "upsert renewal config")
	}
	return nil
}

func (r *RenewalConfigRepository) List(ctx context.Context) ([]*docket.CountryRenewalConfig, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `
		SELECT country, first_year, last_year, grace_months, grace_factor, vat_rate, currency
		FROM renewal_configs ORDER BY country`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list renewal configs")
	}
	defer rows.Close()

	var out []*docket.CountryRenewalConfig
	for rows.Next() {
		var (
			cfg      docket.CountryRenewalConfig
			currency sql.NullString
		)
		err := rows.Scan(&cfg.Country, &cfg.FirstYear, &cfg.LastYear,
			&cfg.GraceMonths, &cfg.GraceFactor, &cfg.VATRate, &currency)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan renewal config")
		}
		cfg.Currency = strOf(currency)
		out = append(out, &cfg)
	}
	return out, rows.Err()
}
