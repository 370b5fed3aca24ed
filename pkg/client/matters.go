package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MattersClient covers the matter and event endpoints.
type MattersClient struct {
	c *Client
}

// Matter is the API representation of an IP case.
type Matter struct {
	ID                   int64      `json:"id"`
	Caseref              string     `json:"caseref"`
	Country              string     `json:"country"`
	Category             string     `json:"category"`
	Origin               string     `json:"origin,omitempty"`
	TypeCode             string     `json:"type_code,omitempty"`
	ParentID             *int64     `json:"parent_id,omitempty"`
	Responsible          string     `json:"responsible,omitempty"`
	RenewalAgent         string     `json:"renewal_agent,omitempty"`
	RenewalClientManaged bool       `json:"renewal_client_managed"`
	Dead                 bool       `json:"dead"`
	ExpireDate           *time.Time `json:"expire_date,omitempty"`
}

// Event is a dated lifecycle occurrence on a matter.
type Event struct {
	ID          int64     `json:"id"`
	MatterID    int64     `json:"matter_id"`
	Code        string    `json:"code"`
	EventDate   time.Time `json:"event_date"`
	Detail      string    `json:"detail,omitempty"`
	AltMatterID *int64    `json:"alt_matter_id,omitempty"`
}

// EngineResult summarizes what the rule engine did with an event.
type EngineResult struct {
	MatterID     int64 `json:"matter_id"`
	EventID      int64 `json:"event_id"`
	SkippedDead  bool  `json:"skipped_dead,omitempty"`
	RulesMatched int   `json:"rules_matched"`
	TasksCreated int   `json:"tasks_created"`
	TasksCleared int   `json:"tasks_cleared"`
	MatterKilled bool  `json:"matter_killed,omitempty"`
}

// MatterPage is one page of a matter listing.
type MatterPage struct {
	Items    []Matter `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Create registers a new matter.
func (mc *MattersClient) Create(ctx context.Context, m *Matter) (*Matter, error) {
	var created Matter
	if err := mc.c.do(ctx, "POST", "/api/v1/matters", m, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get loads one matter by ID.
func (mc *MattersClient) Get(ctx context.Context, id int64) (*Matter, error) {
	var m Matter
	if err := mc.c.do(ctx, "GET", fmt.Sprintf("/api/v1/matters/%d", id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Search runs a free-text search over the matter index.
func (mc *MattersClient) Search(ctx context.Context, query string, page, pageSize int) (*MatterPage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	var result MatterPage
	if err := mc.c.do(ctx, "GET", "/api/v1/matters/search?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordEvent records a lifecycle event and returns the engine outcome.
func (mc *MattersClient) RecordEvent(ctx context.Context, matterID int64, ev *Event) (*EngineResult, error) {
	var resp struct {
		Event  Event        `json:"event"`
		Result EngineResult `json:"result"`
	}
	path := fmt.Sprintf("/api/v1/matters/%d/events", matterID)
	if err := mc.c.do(ctx, "POST", path, ev, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// ListEvents returns the events recorded on a matter.
func (mc *MattersClient) ListEvents(ctx context.Context, matterID int64) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/api/v1/matters/%d/events", matterID)
	if err := mc.c.do(ctx, "GET", path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
