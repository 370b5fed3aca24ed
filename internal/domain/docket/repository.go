package docket

import (
	"context"
	"time"

	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// TaskRuleRepository provides read/write access to the rule configuration.
type TaskRuleRepository interface {
	Create(ctx context.Context, r *TaskRule) error
	Update(ctx context.Context, r *TaskRule) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*TaskRule, error)
	// ListByTrigger returns the active rules whose trigger is code.  The
	// engine calls this once per processed event; implementations are
	// expected to cache.
	ListByTrigger(ctx context.Context, code string) ([]*TaskRule, error)
	ListAll(ctx context.Context) ([]*TaskRule, error)
}

// TaskFilter narrows task listings.  Zero values mean "no constraint".
type TaskFilter struct {
	MatterID    int64
	Code        string
	AssignedTo  string
	OpenOnly    bool
	RenewalOnly bool
	DueFrom     *time.Time
	DueTo       *time.Time
	Step        *int
	InvoiceStep *int
}

// TaskRepository provides persistence for docket tasks.
type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Task, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*Task, error)
	List(ctx context.Context, filter TaskFilter, p common.Pagination) ([]*Task, int64, error)
	// FindOpen returns open tasks on the matter with the given code.
	FindOpen(ctx context.Context, matterID int64, code string) ([]*Task, error)
	// FindByTrigger returns the tasks a specific event generated.
	FindByTrigger(ctx context.Context, triggerID int64) ([]*Task, error)
	// ExistsForRule reports whether the rule already produced a task for
	// this trigger (and annuity year, for recurring rules).  Reprocessing an
	// event must not duplicate tasks.
	ExistsForRule(ctx context.Context, triggerID, ruleID int64, annuityYear int) (bool, error)
	// DeleteGenerated removes the open engine-generated tasks tied to the
	// trigger.  Manual tasks and done tasks are preserved.
	DeleteGenerated(ctx context.Context, triggerID int64) error
}

// CountryRenewalConfig describes how one jurisdiction charges annuities:
// which annuity years exist and how the grace surcharge scales the fee.
type CountryRenewalConfig struct {
	Country string `json:"country"`
	// FirstYear and LastYear bound the annuity series (e.g. EP years 3..20).
	FirstYear int `json:"first_year"`
	LastYear  int `json:"last_year"`
	// GraceMonths is the statutory late-payment window after the due date.
	GraceMonths int `json:"grace_months"`
	// GraceFactor multiplies the official fee during the grace window.
	// Always >= 1.
	GraceFactor float64 `json:"grace_factor"`
	// VATRate applied to the service fee, as a fraction (0.20 = 20%).
	VATRate float64 `json:"vat_rate"`
	Currency string `json:"currency,omitempty"`
}

// Validate checks the configuration's internal consistency.
func (c *CountryRenewalConfig) Validate() error {
	if c.Country == "" {
		return errors.New(errors.CodeInvalidParam, "renewal config requires a country")
	}
	if c.FirstYear < 1 || c.LastYear < c.FirstYear {
		return errors.Newf(errors.CodeInvalidParam,
			"invalid annuity year range %d..%d", c.FirstYear, c.LastYear)
	}
	if c.GraceFactor < 1 {
		return errors.Newf(errors.CodeInvalidParam,
			"grace factor %.2f below 1", c.GraceFactor)
	}
	if c.VATRate < 0 || c.VATRate >= 1 {
		return errors.Newf(errors.CodeInvalidParam,
			"VAT rate %.2f outside [0, 1)", c.VATRate)
	}
	return nil
}

// RenewalConfigRepository resolves per-country renewal charging rules.
type RenewalConfigRepository interface {
	Get(ctx context.Context, country string) (*CountryRenewalConfig, error)
	Upsert(ctx context.Context, cfg *CountryRenewalConfig) error
	List(ctx context.Context) ([]*CountryRenewalConfig, error)
}
