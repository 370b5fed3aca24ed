package matter

import (
	"sort"
	"sync"

	"github.com/ipdocket/ipdocket/pkg/errors"
)

// EventInfo describes the platform's knowledge about one event code.
type EventInfo struct {
	Code   EventCode `json:"code"`
	Name   string    `json:"name"`
	// Killer marks events that terminate the matter.  Processing a killer
	// event marks the matter dead.
	Killer bool `json:"killer"`
	// StatusEvent marks events that change the externally visible status of
	// the matter (shown in docket listings).
	StatusEvent bool `json:"status_event"`
}

// EventRegistry resolves event codes to their configuration.
type EventRegistry interface {
	Get(code EventCode) (*EventInfo, error)
	IsKiller(code EventCode) bool
	List() []*EventInfo
}

// InMemoryEventRegistry is the default EventRegistry seeded with the standard
// event vocabulary.  Deployments with additional codes extend it at startup.
type InMemoryEventRegistry struct {
	mu    sync.RWMutex
	codes map[EventCode]*EventInfo
}

// NewEventRegistry returns a registry seeded with the standard event codes.
func NewEventRegistry() *InMemoryEventRegistry {
	r := &InMemoryEventRegistry{codes: make(map[EventCode]*EventInfo)}
	r.init()
	return r
}

func (r *InMemoryEventRegistry) init() {
	r.add(EventFiled, "Filing", false, true)
	r.add(EventPublished, "Publication", false, true)
	r.add(EventGranted, "Grant", false, true)
	r.add(EventRegistered, "Registration", false, true)
	r.add(EventPriority, "Priority claim", false, false)
	r.add(EventRenewal, "Renewal", false, false)
	r.add(EventExpiry, "Expiry", true, true)
	r.add(EventAbandoned, "Abandonment", true, true)
	r.add(EventLapsed, "Lapse", true, true)
	r.add(EventWithdrawn, "Withdrawal", true, true)
	r.add(EventRefused, "Refusal", true, true)
	r.add(EventEntered, "National phase entry", false, true)
}

func (r *InMemoryEventRegistry) add(code EventCode, name string, killer, status bool) {
	r.codes[code] = &EventInfo{Code: code, Name: name, Killer: killer, StatusEvent: status}
}

// Register adds or replaces an event code definition.
func (r *InMemoryEventRegistry) Register(info *EventInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[info.Code] = info
}

// Get returns the configuration for code.
func (r *InMemoryEventRegistry) Get(code EventCode) (*EventInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.codes[code]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeEventCodeInvalid, "unknown event code %q", code)
	}
	return info, nil
}

// IsKiller reports whether code terminates a matter.  Unknown codes are not
// killers.
func (r *InMemoryEventRegistry) IsKiller(code EventCode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.codes[code]
	return ok && info.Killer
}

// List returns all known event codes sorted alphabetically.
func (r *InMemoryEventRegistry) List() []*EventInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EventInfo, 0, len(r.codes))
	for _, info := range r.codes {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
