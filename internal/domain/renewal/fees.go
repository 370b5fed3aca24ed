package renewal

import (
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// DefaultVATRate applies when neither the client's country nor an explicit
// override supplies a rate.
const DefaultVATRate = 0.20

// DiscountKind distinguishes the two client discount arrangements.
type DiscountKind int

const (
	// DiscountNone leaves the service fee untouched.
	DiscountNone DiscountKind = iota
	// DiscountPercentage scales the service fee down by a fraction.
	DiscountPercentage
	// DiscountFixed replaces the service fee with a flat negotiated amount.
	DiscountFixed
)

// Discount is a per-client fee arrangement: either a fractional percentage
// off the service fee, or a flat replacement fee.
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value float64      `json:"value"`
}

// DiscountFromNumeric decodes the configured numeric discount.  A value in
// (0, 1] is a fractional percentage (0.1 = 10% off); a value above 1 is a
// flat replacement fee.  Both encodings live in the same column, so the
// boundary at 1.0 is load-bearing and must not change.
func DiscountFromNumeric(v float64) (Discount, error) {
	switch {
	case v < 0:
		return Discount{}, errors.Newf(errors.ErrCodeFeeInvalidDiscount, "discount must not be negative, got %v", v)
	case v == 0:
		return Discount{Kind: DiscountNone}, nil
	case v <= 1:
		return Discount{Kind: DiscountPercentage, Value: v}, nil
	default:
		return Discount{Kind: DiscountFixed, Value: v}, nil
	}
}

// FeeInput is one renewal's charging data.
type FeeInput struct {
	TaskID int64 `json:"task_id"`
	// Cost is the official government fee, passed through unchanged.
	Cost float64 `json:"cost"`
	// Fee is the service/agent fee; discounts and grace factors act on it.
	Fee      float64 `json:"fee"`
	Currency string  `json:"currency,omitempty"`

	Discount Discount `json:"discount"`

	// VATRate overrides the default when non-nil.
	VATRate *float64 `json:"vat_rate,omitempty"`

	// GracePeriod flags a payment made during the statutory late window.
	GracePeriod bool `json:"grace_period"`
	// GraceFactor is the jurisdiction's late surcharge multiplier, >= 1.
	GraceFactor float64 `json:"grace_factor,omitempty"`
}

// FeeBreakdown is the fully computed invoice line for one renewal.
type FeeBreakdown struct {
	TaskID   int64   `json:"task_id"`
	Cost     float64 `json:"cost"`
	Fee      float64 `json:"fee"`
	Currency string  `json:"currency,omitempty"`

	VATRate         float64 `json:"vat_rate"`
	VAT             float64 `json:"vat"`
	TotalExclVAT    float64 `json:"total_excl_vat"`
	Total           float64 `json:"total"`

	DiscountApplied    bool    `json:"discount_applied"`
	GracePeriodApplied bool    `json:"grace_period_applied"`
	FeeFactor          float64 `json:"fee_factor,omitempty"`
}

// BatchItem pairs one input's breakdown with its error.  Exactly one of the
// two is meaningful; the slice order matches the input order.
type BatchItem struct {
	Breakdown *FeeBreakdown `json:"breakdown,omitempty"`
	Err       error         `json:"-"`
}

// Calculator computes invoice lines.  It is pure and stateless; a single
// instance is shared freely across goroutines.
type Calculator struct{}

// NewCalculator returns a fee calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Calculate computes the invoice line for one renewal: the discount adjusts
// the service fee, a grace factor then scales it, and VAT and totals are
// derived from the final fee.
func (c *Calculator) Calculate(in FeeInput) (*FeeBreakdown, error) {
	if in.Cost < 0 {
		return nil, errors.Newf(errors.ErrCodeFeeNegativeAmount, "cost must not be negative, got %v", in.Cost)
	}
	if in.Fee < 0 {
		return nil, errors.Newf(errors.ErrCodeFeeNegativeAmount, "fee must not be negative, got %v", in.Fee)
	}

	rate := DefaultVATRate
	if in.VATRate != nil {
		if *in.VATRate < 0 {
			return nil, errors.Newf(errors.ErrCodeFeeInvalidVATRate, "vat rate must not be negative, got %v", *in.VATRate)
		}
		rate = *in.VATRate
	}

	fee := in.Fee
	discountApplied := false
	switch in.Discount.Kind {
	case DiscountNone:
	case DiscountPercentage:
		if in.Discount.Value < 0 || in.Discount.Value > 1 {
			return nil, errors.Newf(errors.ErrCodeFeeInvalidDiscount, "percentage discount out of range: %v", in.Discount.Value)
		}
		fee = fee * (1 - in.Discount.Value)
		discountApplied = true
	case DiscountFixed:
		if in.Discount.Value <= 1 {
			return nil, errors.Newf(errors.ErrCodeFeeInvalidDiscount, "fixed discount must exceed 1, got %v", in.Discount.Value)
		}
		fee = in.Discount.Value
		discountApplied = true
	default:
		return nil, errors.Newf(errors.ErrCodeFeeInvalidDiscount, "unknown discount kind %d", in.Discount.Kind)
	}

	out := &FeeBreakdown{
		TaskID:          in.TaskID,
		Cost:            in.Cost,
		Currency:        in.Currency,
		VATRate:         rate,
		DiscountApplied: discountApplied,
	}

	if in.GracePeriod {
		factor := in.GraceFactor
		if factor == 0 {
			factor = 1
		}
		if factor < 1 {
			return nil, errors.Newf(errors.ErrCodeFeeInvalidFactor, "grace factor must be >= 1, got %v", factor)
		}
		fee = fee * factor
		out.GracePeriodApplied = true
		out.FeeFactor = factor
	}

	out.Fee = fee
	out.VAT = fee * rate
	out.TotalExclVAT = in.Cost + fee
	out.Total = out.TotalExclVAT + out.VAT
	return out, nil
}

// CalculateBatch computes every input independently.  One malformed renewal
// yields a per-item error and does not abort the rest; the result order
// matches the input order.
func (c *Calculator) CalculateBatch(inputs []FeeInput) []BatchItem {
	out := make([]BatchItem, len(inputs))
	for i, in := range inputs {
		bd, err := c.Calculate(in)
		out[i] = BatchItem{Breakdown: bd, Err: err}
	}
	return out
}
