// Package kafka carries docket outcomes and renewal transitions over the
// message bus, and feeds externally sourced matter events into the worker.
package kafka

import (
	"encoding/json"
	"time"
)

// Topic constants.
const (
	// TopicEventReceived carries matter events arriving from external
	// sources (agent feeds, bulk imports) into the ingestion worker.
	TopicEventReceived = "docket.event.received"

	// TopicTaskChanged announces engine outcomes: created, cleared, deleted
	// tasks and expiry updates.
	TopicTaskChanged = "docket.task.changed"

	// TopicMatterKilled announces that a killer event ended a matter.
	TopicMatterKilled = "matter.killed"

	// TopicRenewalTransition announces renewal workflow state changes.
	TopicRenewalTransition = "renewal.transition"

	// TopicDeadLetter receives event-intake messages that exhausted their
	// retries.
	TopicDeadLetter = "docket.dead_letter"
)

// Envelope standardises bus messages.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// SchemaVersion of the envelopes this build writes.
const SchemaVersion = "1"

// EventReceivedPayload is the intake message: one dated occurrence on a
// matter, identified by caseref because external feeds do not know internal
// IDs.
type EventReceivedPayload struct {
	Caseref     string    `json:"caseref"`
	Code        string    `json:"code"`
	EventDate   time.Time `json:"event_date"`
	Detail      string    `json:"detail,omitempty"`
	AltCaseref  string    `json:"alt_caseref,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// MatterKilledPayload announces a terminal event on a matter.
type MatterKilledPayload struct {
	MatterID  int64  `json:"matter_id"`
	EventCode string `json:"event_code"`
}
