package client

import (
	"context"
	"fmt"
)

// RenewalsClient covers the renewal workflow endpoints.
type RenewalsClient struct {
	c *Client
}

// BatchResult reports the outcome of one bulk operation.
type BatchResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
	Errors  []struct {
		ItemID  string `json:"item_id"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// FeeBreakdown is one computed invoice line.
type FeeBreakdown struct {
	TaskID   int64   `json:"task_id"`
	Cost     float64 `json:"cost"`
	Fee      float64 `json:"fee"`
	Currency string  `json:"currency,omitempty"`

	VATRate      float64 `json:"vat_rate"`
	VAT          float64 `json:"vat"`
	TotalExclVAT float64 `json:"total_excl_vat"`
	Total        float64 `json:"total"`

	DiscountApplied    bool    `json:"discount_applied"`
	GracePeriodApplied bool    `json:"grace_period_applied"`
	FeeFactor          float64 `json:"fee_factor,omitempty"`
}

// Quote pairs one task with its invoice line or a per-item error.
type Quote struct {
	TaskID    int64         `json:"task_id"`
	Breakdown *FeeBreakdown `json:"breakdown,omitempty"`
	Error     string        `json:"error,omitempty"`
	Code      string        `json:"code,omitempty"`
}

type stepRequest struct {
	TaskIDs []int64 `json:"task_ids"`
	Actor   string  `json:"actor"`
	Step    *int    `json:"step,omitempty"`
}

type quoteRequest struct {
	TaskIDs  []int64  `json:"task_ids"`
	Discount float64  `json:"discount,omitempty"`
	VATRate  *float64 `json:"vat_rate,omitempty"`
}

// UpdateStep bulk-moves renewals to the given workflow step.
func (rc *RenewalsClient) UpdateStep(ctx context.Context, ids []int64, step int, actor string) (*BatchResult, error) {
	var res BatchResult
	req := stepRequest{TaskIDs: ids, Actor: actor, Step: &step}
	if err := rc.c.do(ctx, "POST", "/api/v1/renewals/step", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Abandon records a client instruction not to pay.
func (rc *RenewalsClient) Abandon(ctx context.Context, ids []int64, actor string) (*BatchResult, error) {
	return rc.simple(ctx, "/api/v1/renewals/abandon", ids, actor)
}

// MarkDone closes the renewals.
func (rc *RenewalsClient) MarkDone(ctx context.Context, ids []int64, actor string) (*BatchResult, error) {
	return rc.simple(ctx, "/api/v1/renewals/done", ids, actor)
}

func (rc *RenewalsClient) simple(ctx context.Context, path string, ids []int64, actor string) (*BatchResult, error) {
	var res BatchResult
	req := stepRequest{TaskIDs: ids, Actor: actor}
	if err := rc.c.do(ctx, "POST", path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Quote computes invoice lines for the given renewal tasks.
func (rc *RenewalsClient) Quote(ctx context.Context, ids []int64, discount float64, vatRate *float64) ([]Quote, error) {
	var quotes []Quote
	req := quoteRequest{TaskIDs: ids, Discount: discount, VATRate: vatRate}
	if err := rc.c.do(ctx, "POST", "/api/v1/renewals/quotes", req, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// History returns the transition log of one renewal task.
func (rc *RenewalsClient) History(ctx context.Context, taskID int64) ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	path := fmt.Sprintf("/api/v1/renewals/%d/history", taskID)
	if err := rc.c.do(ctx, "GET", path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
