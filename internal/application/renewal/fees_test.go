package renewal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

func newFeeFixture(tasks *fakeTaskRepo) (*FeeService, *fakeConfigRepo) {
	matters := &fakeMatterRepo{byID: map[int64]*matter.Matter{
		1: {ID: 1, Caseref: "P100EP", Country: "EP", Category: matter.CategoryPatent},
	}}
	configs := &fakeConfigRepo{byCountry: map[string]*docket.CountryRenewalConfig{
		"EP": {Country: "EP", FirstYear: 3, LastYear: 20, GraceMonths: 6, GraceFactor: 1.5, VATRate: 0.21},
	}}
	return NewFeeService(tasks, matters, configs, logging.NewNopLogger(), nil), configs
}

func renewalWithFee(id int64, cost, fee float64) *docket.Task {
	t := renewalTask(id)
	t.Cost = cost
	t.Fee = fee
	t.Currency = "EUR"
	return t
}

func TestQuoteTasksUsesCountryVATRate(t *testing.T) {
	tasks := newFakeTaskRepo(renewalWithFee(101, 500, 100))
	svc, _ := newFeeFixture(tasks)

	quotes, err := svc.QuoteTasks(context.Background(), []int64{101}, QuoteOptions{})
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	bd := quotes[0].Breakdown
	require.NotNil(t, bd)
	assert.Equal(t, 0.21, bd.VATRate)
	assert.InDelta(t, 21.0, bd.VAT, 1e-9)
	assert.InDelta(t, 621.0, bd.Total, 1e-9)
}

func TestQuoteTasksAppliesClientDiscount(t *testing.T) {
	tasks := newFakeTaskRepo(renewalWithFee(101, 0, 100))
	svc, _ := newFeeFixture(tasks)
	vat := 0.2

	quotes, err := svc.QuoteTasks(context.Background(), []int64{101}, QuoteOptions{Discount: 0.1, VATRate: &vat})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.InDelta(t, 90.0, quotes[0].Breakdown.Fee, 1e-9)

	quotes, err = svc.QuoteTasks(context.Background(), []int64{101}, QuoteOptions{Discount: 150, VATRate: &vat})
	require.NoError(t, err)
	assert.InDelta(t, 150.0, quotes[0].Breakdown.Fee, 1e-9)
}

func TestQuoteTasksGraceFactorFromCountryConfig(t *testing.T) {
	task := renewalWithFee(101, 0, 100)
	task.GracePeriodApplied = true
	tasks := newFakeTaskRepo(task)
	svc, _ := newFeeFixture(tasks)

	quotes, err := svc.QuoteTasks(context.Background(), []int64{101}, QuoteOptions{})
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	bd := quotes[0].Breakdown
	require.NotNil(t, bd)
	assert.InDelta(t, 150.0, bd.Fee, 1e-9)
	assert.True(t, bd.GracePeriodApplied)
	assert.Equal(t, 1.5, bd.FeeFactor)
}

func TestQuoteTasksIsolatesBadInput(t *testing.T) {
	good := renewalWithFee(101, 500, 100)
	bad := renewalWithFee(102, -10, 100)
	tasks := newFakeTaskRepo(good, bad)
	svc, _ := newFeeFixture(tasks)
	vat := 0.2

	quotes, err := svc.QuoteTasks(context.Background(), []int64{101, 102}, QuoteOptions{VATRate: &vat})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.NotNil(t, quotes[0].Breakdown)
	assert.Nil(t, quotes[1].Breakdown)
	assert.Equal(t, errors.ErrCodeFeeNegativeAmount.String(), quotes[1].Code)
}

func TestQuoteTasksSkipsNonRenewals(t *testing.T) {
	oa := &docket.Task{ID: 200, MatterID: 1, Code: "OA", DueDate: wfNow, Fee: 100}
	tasks := newFakeTaskRepo(oa)
	svc, _ := newFeeFixture(tasks)

	quotes, err := svc.QuoteTasks(context.Background(), []int64{200}, QuoteOptions{})
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestRecalculateStoredFeesPersistsFactor(t *testing.T) {
	task := renewalWithFee(101, 0, 100)
	task.GracePeriodApplied = true
	tasks := newFakeTaskRepo(task)
	svc, _ := newFeeFixture(tasks)
	vat := 0.2

	quotes, err := svc.RecalculateStoredFees(context.Background(), []int64{101}, QuoteOptions{VATRate: &vat})
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	stored := tasks.byID[101]
	assert.InDelta(t, 150.0, stored.Fee, 1e-9)
	assert.True(t, stored.GracePeriodApplied)
	assert.Equal(t, 1.5, stored.FeeFactor)

	// A second recalculation must not apply the surcharge again.
	_, err = svc.RecalculateStoredFees(context.Background(), []int64{101}, QuoteOptions{VATRate: &vat})
	require.NoError(t, err)
	assert.InDelta(t, 150.0, tasks.byID[101].Fee, 1e-9)
}
