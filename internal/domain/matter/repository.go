package matter

import (
	"context"
	"time"

	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// Filter narrows matter listings.  Zero values mean "no constraint".
type Filter struct {
	Country     string
	Category    Category
	Responsible string
	IncludeDead bool
	Caseref     string
}

// Repository provides persistence for matters.
type Repository interface {
	Create(ctx context.Context, m *Matter) error
	Update(ctx context.Context, m *Matter) error
	GetByID(ctx context.Context, id int64) (*Matter, error)
	GetByCaseref(ctx context.Context, caseref string) (*Matter, error)
	List(ctx context.Context, filter Filter, p common.Pagination) ([]*Matter, int64, error)
	// Children returns the direct descendants of a matter (divisionals,
	// continuations, national phase entries).
	Children(ctx context.Context, parentID int64) ([]*Matter, error)
	// MarkDead flips the dead flag without touching anything else.
	MarkDead(ctx context.Context, id int64) error
}

// EventRepository provides persistence for matter events.
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Event, error)
	// ListByMatter returns every event on the matter ordered by event date.
	ListByMatter(ctx context.Context, matterID int64) ([]*Event, error)
	// FindByCode returns events with the given code on the matter, oldest
	// first.
	FindByCode(ctx context.Context, matterID int64, code EventCode) ([]*Event, error)
	// LatestByCode returns the most recent event with the given code, or nil
	// when none exists.
	LatestByCode(ctx context.Context, matterID int64, code EventCode) (*Event, error)
	// ListInRange returns events across all matters whose event date falls in
	// [from, to), used by the reminder sweep.
	ListInRange(ctx context.Context, from, to time.Time) ([]*Event, error)
}

// LinkageRepository reads the citation/priority graph between matters.  The
// graph drives cascade recalculation: a date change on one matter reaches the
// matters that claim priority from it.
type LinkageRepository interface {
	// Link records that child claims priority from (or is derived from)
	// parent.
	Link(ctx context.Context, parentID, childID int64, relation string) error
	// Dependents returns the IDs of matters that reference matterID.
	Dependents(ctx context.Context, matterID int64) ([]int64, error)
	// References returns the IDs of matters that matterID references.
	References(ctx context.Context, matterID int64) ([]int64, error)
	Unlink(ctx context.Context, parentID, childID int64) error
}
