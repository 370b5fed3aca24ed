package docket

import (
	"context"

	domaindocket "github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

// cascade propagates a date change through the linkage graph.
//
// A FIL event on this matter changes the priority basis of every matter that
// cites it, so their filing-triggered tasks are recomputed.  A PRI event
// changes this matter's own earliest priority date, so its own FIL tasks are
// recomputed first, then the change propagates outward the same way.
//
// The traversal is breadth-first with a visited set and a depth cap: linkage
// back-references can contain cycles from bad data, and the original event
// must never be held hostage by a broken linked matter, so every failure
// here is logged and skipped.
func (e *Engine) cascade(ctx context.Context, m *matter.Matter, ev *matter.Event, res *Result) {
	type node struct {
		id    int64
		depth int
	}

	var queue []node
	visited := map[int64]bool{m.ID: true}

	switch ev.Code {
	case matter.EventFiled:
		deps, err := e.linkage.Dependents(ctx, m.ID)
		if err != nil {
			e.logger.Warn("linkage lookup failed, cascade skipped",
				logging.Int64("matter_id", m.ID), logging.Err(err))
			return
		}
		for _, id := range deps {
			queue = append(queue, node{id: id, depth: 1})
		}
	case matter.EventPriority:
		// The matter's own filing deadlines depend on the earliest priority
		// date, which this event may have moved.  The caller already holds
		// this matter's lock.
		if err := e.recalculateFilTasksLocked(ctx, m); err != nil {
			e.logger.Warn("recalculation failed",
				logging.Int64("matter_id", m.ID), logging.Err(err))
		} else {
			res.Recalculated++
		}
		deps, err := e.linkage.Dependents(ctx, m.ID)
		if err != nil {
			return
		}
		for _, id := range deps {
			queue = append(queue, node{id: id, depth: 1})
		}
	default:
		return
	}

	maxDepth := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.id] || n.depth > e.opts.MaxCascadeDepth {
			continue
		}
		visited[n.id] = true
		if n.depth > maxDepth {
			maxDepth = n.depth
		}

		linked, err := e.matters.GetByID(ctx, n.id)
		if err != nil {
			e.logger.Warn("linked matter load failed, skipped",
				logging.Int64("matter_id", n.id), logging.Err(err))
			continue
		}
		if linked.Dead {
			continue
		}
		if err := e.recalculateFilTasks(ctx, linked); err != nil {
			e.logger.Warn("linked matter recalculation failed, skipped",
				logging.Int64("matter_id", n.id), logging.Err(err))
			continue
		}
		res.Recalculated++

		deps, err := e.linkage.Dependents(ctx, n.id)
		if err != nil {
			continue
		}
		for _, id := range deps {
			if !visited[id] {
				queue = append(queue, node{id: id, depth: n.depth + 1})
			}
		}
	}

	if e.metrics != nil && res.Recalculated > 0 {
		e.metrics.CascadeDepth.Observe(float64(maxDepth))
	}
}

// recalculateFilTasks serializes against other engine runs on the matter,
// then recomputes its filing-triggered tasks.
func (e *Engine) recalculateFilTasks(ctx context.Context, m *matter.Matter) error {
	unlock, err := e.locker.Lock(ctx, m.ID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.recalculateFilTasksLocked(ctx, m)
}

// recalculateFilTasksLocked recomputes the due dates of the open,
// rule-generated tasks hanging off the matter's filing event.  Tasks are
// updated in place, never re-inserted, so done flags, steps and manual edits
// survive.  Caller holds the matter lock.
func (e *Engine) recalculateFilTasksLocked(ctx context.Context, m *matter.Matter) error {
	events, err := e.events.ListByMatter(ctx, m.ID)
	if err != nil {
		return err
	}
	fil, err := e.events.LatestByCode(ctx, m.ID, matter.EventFiled)
	if err != nil {
		return err
	}
	if fil == nil {
		return nil
	}

	return e.tx.WithinTx(ctx, func(ctx context.Context) error {
		generated, err := e.tasks.FindByTrigger(ctx, fil.ID)
		if err != nil {
			return err
		}
		for _, t := range generated {
			if t.Done || t.RuleUsed == nil {
				continue
			}
			rule, err := e.ruleByID(ctx, fil.Code, *t.RuleUsed)
			if err != nil || rule == nil {
				continue
			}
			due := e.dueDate(m, fil, events, rule)
			if rule.Recurring {
				due = domaindocket.OffsetDate(e.baseDate(fil, events, rule), t.AnnuityYear, rule.OffsetMonths, rule.OffsetDays)
				if rule.EndOfMonth {
					due = domaindocket.EndOfMonth(due)
				}
			}
			if due.Equal(t.DueDate) {
				continue
			}
			t.DueDate = due
			t.UpdatedAt = e.clock()
			if err := e.tasks.Update(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) ruleByID(ctx context.Context, trigger matter.EventCode, id int64) (*domaindocket.TaskRule, error) {
	rules, err := e.rules.RulesForTrigger(ctx, trigger)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}
