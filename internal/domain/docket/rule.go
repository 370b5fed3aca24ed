// Package docket holds the task-rule vocabulary and the Task aggregate: the
// declarative configuration that maps matter events to deadline tasks, and
// the tasks themselves.
package docket

import (
	"fmt"
	"sort"
	"time"

	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// RuleAction is what a matched rule does when its trigger event arrives.
type RuleAction string

const (
	// ActionCreate schedules a new task relative to the trigger date.
	ActionCreate RuleAction = "create"
	// ActionClear marks existing open tasks with the rule's task code done.
	ActionClear RuleAction = "clear"
	// ActionDelete removes existing open tasks with the rule's task code.
	ActionDelete RuleAction = "delete"
	// ActionExpiry computes and stores the matter's expiry date instead of
	// creating a task.
	ActionExpiry RuleAction = "expiry"
)

// TaskRule is one row of deadline configuration: when Trigger arrives on a
// matching matter, perform Action for TaskCode at Trigger date + offset.
//
// ForCountry, ForOrigin, ForCategory and ForType are match dimensions.  An
// empty dimension matches any value; a set dimension matches only matters
// with that exact value.  When several rules share the same (TaskCode,
// Trigger) pair, the dimension-specific rule shadows the generic one per
// dimension (see SelectApplicable).
type TaskRule struct {
	ID       int64      `json:"id"`
	TaskCode string     `json:"task_code"`
	Trigger  matter.EventCode `json:"trigger"`
	Action   RuleAction `json:"action"`

	ForCountry  string          `json:"for_country,omitempty"`
	ForOrigin   string          `json:"for_origin,omitempty"`
	ForCategory matter.Category `json:"for_category,omitempty"`
	ForType     string          `json:"for_type,omitempty"`

	// Offset from the base date, applied years first, then months, then days.
	OffsetYears  int `json:"offset_years"`
	OffsetMonths int `json:"offset_months"`
	OffsetDays   int `json:"offset_days"`

	// UsePriority bases the deadline on the matter's earliest priority date
	// instead of the trigger event date.
	UsePriority bool `json:"use_priority"`

	// EndOfMonth snaps the computed deadline to the last day of its month.
	EndOfMonth bool `json:"end_of_month"`

	// Recurring generates a series of tasks (annuities), one per year, from
	// the first offset anniversary until the matter's expiry date.
	Recurring bool `json:"recurring"`

	// RecurStartYear is the first annuity year generated for a recurring
	// rule.  Zero means start at the first offset anniversary.
	RecurStartYear int `json:"recur_start_year,omitempty"`

	// NotForChildren suppresses the rule on matters that have a parent.
	// Deadlines inherited from the parent case must not be duplicated.
	NotForChildren bool `json:"not_for_children"`

	// AbortOn skips the rule when an event with this code already exists on
	// the matter.
	AbortOn matter.EventCode `json:"abort_on,omitempty"`
	// ConditionEvent requires an event with this code to exist on the matter
	// before the rule fires.
	ConditionEvent matter.EventCode `json:"condition_event,omitempty"`

	// UseAfter and UseBefore bound the rule's validity window.  Rules for
	// superseded law stay in the table with a closed window.
	UseAfter  *time.Time `json:"use_after,omitempty"`
	UseBefore *time.Time `json:"use_before,omitempty"`

	Detail             string  `json:"detail,omitempty"`
	DefaultResponsible string  `json:"default_responsible,omitempty"`
	Cost               float64 `json:"cost,omitempty"`
	Fee                float64 `json:"fee,omitempty"`
	Currency           string  `json:"currency,omitempty"`

	Active bool `json:"active"`
}

// InWindow reports whether the rule is valid at time now.
func (r *TaskRule) InWindow(now time.Time) bool {
	if r.UseAfter != nil && now.Before(*r.UseAfter) {
		return false
	}
	if r.UseBefore != nil && !now.Before(*r.UseBefore) {
		return false
	}
	return true
}

// Validate checks structural integrity of a single rule.
func (r *TaskRule) Validate() error {
	if r.TaskCode == "" {
		return errors.New(errors.ErrCodeRuleInvalid, "rule task_code must not be empty")
	}
	if r.Trigger == "" {
		return errors.New(errors.ErrCodeRuleInvalid, "rule trigger must not be empty")
	}
	switch r.Action {
	case ActionCreate, ActionClear, ActionDelete, ActionExpiry:
	default:
		return errors.Newf(errors.ErrCodeRuleInvalid, "rule %d: unknown action %q", r.ID, r.Action)
	}
	if r.Recurring && r.Action != ActionCreate {
		return errors.Newf(errors.ErrCodeRuleInvalid, "rule %d: recurring requires action create", r.ID)
	}
	return nil
}

// Matches reports whether the rule's dimensions accept the matter.  Empty
// dimensions accept anything.
func (r *TaskRule) Matches(m *matter.Matter) bool {
	if r.ForCountry != "" && r.ForCountry != m.Country {
		return false
	}
	if r.ForOrigin != "" && r.ForOrigin != m.Origin {
		return false
	}
	if r.ForCategory != "" && r.ForCategory != m.Category {
		return false
	}
	if r.ForType != "" && r.ForType != m.TypeCode {
		return false
	}
	return true
}

// groupKey identifies the set of rules competing for one outcome.
type groupKey struct {
	task    string
	trigger matter.EventCode
}

// SelectApplicable filters rules down to the ones that should execute for the
// matter.  A rule is a candidate when it is active, its validity window
// contains now, its dimensions accept the matter, no abort-on event exists
// and any condition event does exist.  Within each (task_code, trigger)
// group, a candidate with a specific value in some dimension then shadows
// candidates leaving that dimension open; a generic rule survives in a
// dimension only if no matching rule pins that dimension.
func SelectApplicable(rules []*TaskRule, m *matter.Matter, events []*matter.Event, now time.Time) []*TaskRule {
	groups := make(map[groupKey][]*TaskRule)
	var order []groupKey
	for _, r := range rules {
		if !r.Active || !r.InWindow(now) || !r.Matches(m) {
			continue
		}
		if r.AbortOn != "" && matter.HasEvent(events, r.AbortOn) {
			continue
		}
		if r.ConditionEvent != "" && !matter.HasEvent(events, r.ConditionEvent) {
			continue
		}
		k := groupKey{task: r.TaskCode, trigger: r.Trigger}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out []*TaskRule
	for _, k := range order {
		out = append(out, resolveGroup(groups[k])...)
	}
	return out
}

// resolveGroup applies the per-dimension shadowing inside one (task, trigger)
// group.  candidates all match the matter already.
func resolveGroup(candidates []*TaskRule) []*TaskRule {
	if len(candidates) == 1 {
		return candidates
	}

	countryPinned := anyPinned(candidates, func(r *TaskRule) bool { return r.ForCountry != "" })
	originPinned := anyPinned(candidates, func(r *TaskRule) bool { return r.ForOrigin != "" })
	categoryPinned := anyPinned(candidates, func(r *TaskRule) bool { return r.ForCategory != "" })
	typePinned := anyPinned(candidates, func(r *TaskRule) bool { return r.ForType != "" })

	var out []*TaskRule
	for _, r := range candidates {
		if countryPinned && r.ForCountry == "" {
			continue
		}
		if originPinned && r.ForOrigin == "" {
			continue
		}
		if categoryPinned && r.ForCategory == "" {
			continue
		}
		if typePinned && r.ForType == "" {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		// Shadowing across different dimensions eliminated everyone: the
		// most specific rule wins.
		sort.SliceStable(candidates, func(i, j int) bool {
			return specificity(candidates[i]) > specificity(candidates[j])
		})
		out = candidates[:1]
	}
	return out
}

func anyPinned(rules []*TaskRule, pinned func(*TaskRule) bool) bool {
	for _, r := range rules {
		if pinned(r) {
			return true
		}
	}
	return false
}

func specificity(r *TaskRule) int {
	n := 0
	if r.ForCountry != "" {
		n++
	}
	if r.ForOrigin != "" {
		n++
	}
	if r.ForCategory != "" {
		n++
	}
	if r.ForType != "" {
		n++
	}
	return n
}

// ValidateRules checks a rule set for structural errors and for ambiguous
// pairs: two active rules with the same (task_code, trigger) and identical
// dimension values would fire twice for the same matter.  All problems are
// reported, not just the first.
func ValidateRules(rules []*TaskRule) []error {
	var errs []error
	seen := make(map[string]*TaskRule)
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if !r.Active {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%s|%s|%s", r.TaskCode, r.Trigger, r.ForCountry, r.ForOrigin, r.ForCategory, r.ForType)
		if prev, dup := seen[key]; dup {
			errs = append(errs, errors.Newf(errors.ErrCodeRuleConflict,
				"rules %d and %d are ambiguous: same task %s, trigger %s and match dimensions",
				prev.ID, r.ID, r.TaskCode, r.Trigger))
			continue
		}
		seen[key] = r
	}
	return errs
}
