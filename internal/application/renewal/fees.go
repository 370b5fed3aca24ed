package renewal

import (
	"context"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// QuoteOptions carries the per-client charging context for a fee batch.
type QuoteOptions struct {
	// Discount is the client's configured numeric discount.  Values in
	// (0, 1] are fractional percentages; values above 1 are flat
	// replacement fees.
	Discount float64 `json:"discount"`
	// VATRate overrides the client-country default when non-nil.
	VATRate *float64 `json:"vat_rate,omitempty"`
}

// Quote pairs one task with its computed invoice line or error.
type Quote struct {
	TaskID    int64                       `json:"task_id"`
	Breakdown *domainrenewal.FeeBreakdown `json:"breakdown,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Code      string                      `json:"code,omitempty"`
}

// FeeService computes invoice lines for renewal tasks.  Fees are computed
// fresh per request; discount and grace state can change at any time, so
// nothing here is cached.
type FeeService struct {
	tasks   docket.TaskRepository
	matters matter.Repository
	configs docket.RenewalConfigRepository
	calc    *domainrenewal.Calculator
	logger  logging.Logger
	metrics *prometheus.Metrics
}

// NewFeeService wires the fee service.  metrics may be nil in tests.
func NewFeeService(
	tasks docket.TaskRepository,
	matters matter.Repository,
	configs docket.RenewalConfigRepository,
	logger logging.Logger,
	metrics *prometheus.Metrics,
) *FeeService {
	return &FeeService{
		tasks:   tasks,
		matters: matters,
		configs: configs,
		calc:    domainrenewal.NewCalculator(),
		logger:  logger.Named("renewal-fees"),
		metrics: metrics,
	}
}

// QuoteTasks computes the invoice line for every renewal task in ids.  The
// result order matches the input order of the renewal-coded subset; one
// malformed renewal yields a per-item error and never aborts the batch.
func (s *FeeService) QuoteTasks(ctx context.Context, ids []int64, opts QuoteOptions) ([]Quote, error) {
	discount, err := domainrenewal.DiscountFromNumeric(opts.Discount)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "load fee batch")
	}

	var quotes []Quote
	for _, t := range tasks {
		if !t.IsRenewal() {
			continue
		}
		quote := s.quoteOne(ctx, t, discount, opts.VATRate)
		if quote.Error != "" {
			if s.metrics != nil {
				s.metrics.FeeBatchErrors.Inc()
			}
			s.logger.Warn("fee calculation failed",
				logging.Int64("task_id", t.ID),
				logging.String("code", quote.Code),
				logging.String("error", quote.Error))
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (s *FeeService) quoteOne(ctx context.Context, t *docket.Task, discount domainrenewal.Discount, vatOverride *float64) Quote {
	// A recorded fee factor means the stored fee already includes the grace
	// surcharge; applying it a second time would overcharge.
	alreadySurcharged := t.GracePeriodApplied && t.FeeFactor > 0

	in := domainrenewal.FeeInput{
		TaskID:      t.ID,
		Cost:        t.Cost,
		Fee:         t.Fee,
		Currency:    t.Currency,
		Discount:    discount,
		VATRate:     vatOverride,
		GracePeriod: t.GracePeriodApplied && !alreadySurcharged,
	}

	// The jurisdiction config supplies the grace surcharge and, absent an
	// explicit override, the VAT rate.
	if in.GracePeriod || vatOverride == nil {
		m, err := s.matters.GetByID(ctx, t.MatterID)
		if err != nil {
			return errQuote(t.ID, err)
		}
		cfg, err := s.configs.Get(ctx, m.Country)
		if err == nil {
			if in.GracePeriod && in.GraceFactor == 0 {
				in.GraceFactor = cfg.GraceFactor
			}
			if vatOverride == nil && cfg.VATRate > 0 {
				rate := cfg.VATRate
				in.VATRate = &rate
			}
		} else if !errors.IsCode(err, errors.ErrCodeRenewalConfigMissing) && !errors.IsNotFound(err) {
			return errQuote(t.ID, err)
		}
	}

	bd, err := s.calc.Calculate(in)
	if err != nil {
		return errQuote(t.ID, err)
	}
	if alreadySurcharged {
		bd.GracePeriodApplied = true
		bd.FeeFactor = t.FeeFactor
	}
	return Quote{TaskID: t.ID, Breakdown: bd}
}

func errQuote(taskID int64, err error) Quote {
	return Quote{
		TaskID: taskID,
		Error:  err.Error(),
		Code:   errors.GetCode(err).String(),
	}
}

// RecalculateStoredFees recomputes and persists the fee of each renewal task
// after a grace flag or discount change, recording the factor that was
// applied so it is never applied twice.
func (s *FeeService) RecalculateStoredFees(ctx context.Context, ids []int64, opts QuoteOptions) ([]Quote, error) {
	quotes, err := s.QuoteTasks(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if q.Breakdown == nil {
			continue
		}
		t, err := s.tasks.GetByID(ctx, q.TaskID)
		if err != nil {
			continue
		}
		t.Fee = q.Breakdown.Fee
		t.GracePeriodApplied = q.Breakdown.GracePeriodApplied
		t.FeeFactor = q.Breakdown.FeeFactor
		if err := s.tasks.Update(ctx, t); err != nil {
			s.logger.Error("persist recalculated fee failed",
				logging.Int64("task_id", t.ID), logging.Err(err))
		}
	}
	return quotes, nil
}
