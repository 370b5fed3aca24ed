// Package common defines shared primitive types used across all layers of the
// ipdocket platform.  No business logic lives here — only plain data types and
// their validation helpers.
package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is the canonical identifier type for all aggregates.
type ID string

// NewID generates a new random identifier.
func NewID() ID {
	return ID(uuid.New().String())
}

// Validate reports whether the ID is non-empty.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Metadata carries free-form supplementary attributes.
type Metadata map[string]interface{}

// Pagination describes a limit/offset window over a result set.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Validate normalises and checks pagination bounds.
func (p *Pagination) Validate() error {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 200 {
		return fmt.Errorf("page_size must not exceed 200")
	}
	return nil
}

// Offset returns the zero-based row offset for the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// SortOrder enumerates result ordering directions.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange is a half-open [From, To) interval over calendar dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate checks the interval ordering.
func (dr DateRange) Validate() error {
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		return fmt.Errorf("date range to must not precede from")
	}
	return nil
}

// Contains reports whether t falls inside the range.  A zero bound is open.
func (dr DateRange) Contains(t time.Time) bool {
	if !dr.From.IsZero() && t.Before(dr.From) {
		return false
	}
	if !dr.To.IsZero() && !t.Before(dr.To) {
		return false
	}
	return true
}

// BatchError captures a per-item failure inside a batch operation.
type BatchError struct {
	ItemID  string `json:"item_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult summarises a bulk operation: how many items were affected and
// which individual items failed.  Callers that only need batch-level
// granularity can ignore Errors.
type BatchResult struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Message string       `json:"message,omitempty"`
	Errors  []BatchError `json:"errors,omitempty"`
}

// APIResponse is the uniform HTTP response envelope.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Timestamp is a time.Time that marshals as Unix milliseconds.
type Timestamp time.Time

// ToUnixMilli returns the timestamp as Unix milliseconds.
func (t Timestamp) ToUnixMilli() int64 {
	return time.Time(t).UnixMilli()
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var msec int64
	if err := json.Unmarshal(data, &msec); err != nil {
		return err
	}
	*t = Timestamp(time.UnixMilli(msec).UTC())
	return nil
}
