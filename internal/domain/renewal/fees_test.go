package renewal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

func TestDiscountFromNumeric(t *testing.T) {
	d, err := DiscountFromNumeric(0)
	require.NoError(t, err)
	assert.Equal(t, DiscountNone, d.Kind)

	d, err = DiscountFromNumeric(0.1)
	require.NoError(t, err)
	assert.Equal(t, DiscountPercentage, d.Kind)
	assert.Equal(t, 0.1, d.Value)

	// The boundary value 1.0 is a 100% discount, not a flat fee of 1.
	d, err = DiscountFromNumeric(1)
	require.NoError(t, err)
	assert.Equal(t, DiscountPercentage, d.Kind)

	d, err = DiscountFromNumeric(150)
	require.NoError(t, err)
	assert.Equal(t, DiscountFixed, d.Kind)
	assert.Equal(t, 150.0, d.Value)

	_, err = DiscountFromNumeric(-0.5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeeInvalidDiscount))
}

func TestCalculatePlain(t *testing.T) {
	calc := NewCalculator()

	bd, err := calc.Calculate(FeeInput{TaskID: 1, Cost: 500, Fee: 100})
	require.NoError(t, err)

	assert.Equal(t, 500.0, bd.Cost)
	assert.Equal(t, 100.0, bd.Fee)
	assert.Equal(t, DefaultVATRate, bd.VATRate)
	assert.InDelta(t, 20.0, bd.VAT, 1e-9)
	assert.InDelta(t, 600.0, bd.TotalExclVAT, 1e-9)
	assert.InDelta(t, 620.0, bd.Total, 1e-9)
	assert.False(t, bd.DiscountApplied)
	assert.False(t, bd.GracePeriodApplied)
}

func TestCalculatePercentageDiscount(t *testing.T) {
	calc := NewCalculator()

	bd, err := calc.Calculate(FeeInput{
		Cost:     0,
		Fee:      100,
		Discount: Discount{Kind: DiscountPercentage, Value: 0.1},
	})
	require.NoError(t, err)

	assert.InDelta(t, 90.0, bd.Fee, 1e-9)
	assert.InDelta(t, 18.0, bd.VAT, 1e-9) // VAT from the post-discount fee
	assert.InDelta(t, 108.0, bd.Total, 1e-9)
	assert.True(t, bd.DiscountApplied)
}

func TestCalculateFixedDiscountReplacesFee(t *testing.T) {
	calc := NewCalculator()

	bd, err := calc.Calculate(FeeInput{
		Fee:      100,
		Discount: Discount{Kind: DiscountFixed, Value: 150},
	})
	require.NoError(t, err)

	// Absolute replacement, not 100 x 150%.
	assert.InDelta(t, 150.0, bd.Fee, 1e-9)
	assert.InDelta(t, 30.0, bd.VAT, 1e-9)
	assert.True(t, bd.DiscountApplied)
}

func TestCalculateGraceFactor(t *testing.T) {
	calc := NewCalculator()

	bd, err := calc.Calculate(FeeInput{
		Fee:         100,
		GracePeriod: true,
		GraceFactor: 1.2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 120.0, bd.Fee, 1e-9)
	assert.True(t, bd.GracePeriodApplied)
	assert.Equal(t, 1.2, bd.FeeFactor)
	assert.InDelta(t, 24.0, bd.VAT, 1e-9)
	assert.InDelta(t, 144.0, bd.Total, 1e-9)
}

func TestCalculateDiscountThenGrace(t *testing.T) {
	calc := NewCalculator()

	bd, err := calc.Calculate(FeeInput{
		Fee:         100,
		Discount:    Discount{Kind: DiscountPercentage, Value: 0.5},
		GracePeriod: true,
		GraceFactor: 2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, bd.Fee, 1e-9)
	assert.True(t, bd.DiscountApplied)
	assert.True(t, bd.GracePeriodApplied)
}

func TestCalculateVATOverride(t *testing.T) {
	calc := NewCalculator()
	rate := 0.25

	bd, err := calc.Calculate(FeeInput{Cost: 200, Fee: 100, VATRate: &rate})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, bd.VAT, 1e-9)
	assert.InDelta(t, 325.0, bd.Total, 1e-9)

	zero := 0.0
	bd, err = calc.Calculate(FeeInput{Fee: 100, VATRate: &zero})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bd.VAT, 1e-9)
}

func TestCalculateRejectsBadInput(t *testing.T) {
	calc := NewCalculator()

	_, err := calc.Calculate(FeeInput{Cost: -1, Fee: 100})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeeNegativeAmount))

	_, err = calc.Calculate(FeeInput{Fee: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeeNegativeAmount))

	_, err = calc.Calculate(FeeInput{Fee: 100, GracePeriod: true, GraceFactor: 0.5})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeeInvalidFactor))

	bad := -0.2
	_, err = calc.Calculate(FeeInput{Fee: 100, VATRate: &bad})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeeInvalidVATRate))
}

func TestCalculateBatchIsolatesFailures(t *testing.T) {
	calc := NewCalculator()

	items := calc.CalculateBatch([]FeeInput{
		{TaskID: 1, Fee: 100},
		{TaskID: 2, Fee: -5},
		{TaskID: 3, Fee: 100, Discount: Discount{Kind: DiscountPercentage, Value: 0.1}},
	})

	require.Len(t, items, 3)
	assert.NoError(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.Nil(t, items[1].Breakdown)
	require.NoError(t, items[2].Err)
	assert.InDelta(t, 90.0, items[2].Breakdown.Fee, 1e-9)
	assert.Equal(t, int64(3), items[2].Breakdown.TaskID)
}

func TestWorkflowSteps(t *testing.T) {
	assert.True(t, ValidStep(StepOpen))
	assert.True(t, ValidStep(StepLapsing))
	assert.False(t, ValidStep(Step(7)))

	err := CheckStep(Step(99))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidStep))

	assert.True(t, ValidInvoiceStep(InvoicePaymentReceived))
	assert.False(t, ValidInvoiceStep(InvoiceStep(3)))
	assert.True(t, errors.IsCode(CheckInvoiceStep(InvoiceStep(3)), errors.ErrCodeInvalidInvoiceStep))

	assert.True(t, StepDone.Terminal())
	assert.True(t, StepAbandoned.Terminal())
	assert.True(t, StepLapsing.Terminal())
	assert.False(t, StepPaid.Terminal())

	assert.Equal(t, "to_pay", StepToPay.String())
	assert.Equal(t, "unknown", Step(42).String())
}
