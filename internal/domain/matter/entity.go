// Package matter defines the Matter and Event aggregates: an IP case and the
// dated occurrences recorded against it.  Events are the sole trigger for
// deadline computation; the rule engine in application/docket consumes both.
package matter

import (
	"time"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Category classifies the kind of IP right a matter protects.
type Category string

const (
	CategoryPatent    Category = "PAT"
	CategoryTrademark Category = "TM"
	CategoryDesign    Category = "DSG"
)

// EventCode identifies the kind of lifecycle occurrence.
type EventCode string

const (
	EventFiled     EventCode = "FIL"
	EventPublished EventCode = "PUB"
	EventGranted   EventCode = "GRT"
	EventRegistered EventCode = "REG"
	EventPriority  EventCode = "PRI"
	EventRenewal   EventCode = "REN"
	EventExpiry    EventCode = "EXP"
	EventAbandoned EventCode = "ABA"
	EventLapsed    EventCode = "LAP"
	EventWithdrawn EventCode = "WIT"
	EventRefused   EventCode = "REF"
	EventEntered   EventCode = "ENT" // national phase entry
)

func (c EventCode) String() string { return string(c) }

// OriginPCT marks matters filed via the PCT route.  Renewal back-creation for
// these matters reaches further into the past to capture late national-phase
// entries.
const OriginPCT = "WO"

// Matter is an IP case: one country/filing-type combination tracked through
// its lifecycle.
type Matter struct {
	ID       int64    `json:"id"`
	Caseref  string   `json:"caseref"`
	Country  string   `json:"country"`
	Category Category `json:"category"`
	Origin   string   `json:"origin,omitempty"`
	TypeCode string   `json:"type_code,omitempty"`

	// ParentID links a national-phase or divisional child to its parent
	// filing.  Several deadline rules must not fire for children because the
	// deadline is inherited from the parent case.
	ParentID *int64 `json:"parent_id,omitempty"`

	// ContainerID links a shared sub-matter to its container filing.
	ContainerID *int64 `json:"container_id,omitempty"`

	Responsible string `json:"responsible,omitempty"`

	// RenewalAgent is the actor handling annuity payments for this matter.
	// When ClientManaged is set the client pays renewals directly and the
	// engine must not generate renewal tasks.
	RenewalAgent         string `json:"renewal_agent,omitempty"`
	RenewalClientManaged bool   `json:"renewal_client_managed"`

	// Dead marks a terminal matter.  No automated task generation happens for
	// a dead matter.
	Dead bool `json:"dead"`

	ExpireDate *time.Time `json:"expire_date,omitempty"`

	// TermAdjustDays is the patent term adjustment added to the computed
	// expiry date.
	TermAdjustDays int `json:"term_adjust_days"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the integrity of the matter record.
func (m *Matter) Validate() error {
	if m.Caseref == "" {
		return errors.New(errors.ErrCodeMatterRefInvalid, "caseref must not be empty")
	}
	if m.Country == "" {
		return errors.New(errors.ErrCodeMatterRefInvalid, "country must not be empty")
	}
	switch m.Category {
	case CategoryPatent, CategoryTrademark, CategoryDesign:
	default:
		return errors.Newf(errors.ErrCodeMatterRefInvalid, "unknown category %q", m.Category)
	}
	return nil
}

// HasParent reports whether the matter is a national-phase or divisional child.
func (m *Matter) HasParent() bool { return m.ParentID != nil }

// Kill marks the matter dead.  The engine consults Dead at the start of every
// event evaluation, so a killed matter accepts no further automated tasks.
func (m *Matter) Kill(at time.Time) {
	m.Dead = true
	m.UpdatedAt = at
}

// Event is a dated occurrence recorded against a matter.  Events are
// immutable in principle; amendment triggers recalculation of dependent tasks
// rather than mutation in place.
type Event struct {
	ID       int64     `json:"id"`
	MatterID int64     `json:"matter_id"`
	Code     EventCode `json:"code"`
	EventDate time.Time `json:"event_date"`

	// Detail carries free text such as a filing or publication number.
	Detail string `json:"detail,omitempty"`

	// AltMatterID references another matter, used for priority claims (the
	// cited earlier filing) and family linkage.
	AltMatterID *int64 `json:"alt_matter_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the integrity of the event record.
func (e *Event) Validate() error {
	if e.MatterID == 0 {
		return errors.New(errors.ErrCodeEventCodeInvalid, "event matter_id must be set")
	}
	if e.Code == "" {
		return errors.New(errors.ErrCodeEventCodeInvalid, "event code must not be empty")
	}
	if e.EventDate.IsZero() {
		return errors.New(errors.ErrCodeEventDateInvalid, "event date must not be zero")
	}
	return nil
}

// EarliestPriorityDate returns the earliest PRI event date among events, or
// nil when no priority claim is recorded.
func EarliestPriorityDate(events []*Event) *time.Time {
	var earliest *time.Time
	for _, ev := range events {
		if ev.Code != EventPriority {
			continue
		}
		if earliest == nil || ev.EventDate.Before(*earliest) {
			d := ev.EventDate
			earliest = &d
		}
	}
	return earliest
}

// HasEvent reports whether an event with the given code exists in events.
func HasEvent(events []*Event, code EventCode) bool {
	for _, ev := range events {
		if ev.Code == code {
			return true
		}
	}
	return false
}
