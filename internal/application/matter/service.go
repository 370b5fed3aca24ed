// Package matter contains the matter application service: recording matters
// and events, full-text search, and the linkage bookkeeping that feeds the
// rule engine's cascade.
package matter

import (
	"context"
	"time"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	domainmatter "github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// Indexer mirrors matters into the search index.  Index failures are logged
// and tolerated; the database remains the source of truth.
type Indexer interface {
	Index(ctx context.Context, m *domainmatter.Matter) error
	Remove(ctx context.Context, id int64) error
	Search(ctx context.Context, query string, p common.Pagination) ([]int64, int64, error)
}

// EventProcessor runs the rule engine for a freshly persisted event.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *domainmatter.Event) (*appdocket.Result, error)
}

// Service orchestrates matter and event persistence around the rule engine.
type Service struct {
	matters domainmatter.Repository
	events  domainmatter.EventRepository
	linkage domainmatter.LinkageRepository
	engine  EventProcessor
	indexer Indexer
	logger  logging.Logger
	clock   func() time.Time
}

// NewService wires the matter service.  indexer may be nil when search is
// disabled.
func NewService(
	matters domainmatter.Repository,
	events domainmatter.EventRepository,
	linkage domainmatter.LinkageRepository,
	engine EventProcessor,
	indexer Indexer,
	logger logging.Logger,
) *Service {
	return &Service{
		matters: matters,
		events:  events,
		linkage: linkage,
		engine:  engine,
		indexer: indexer,
		logger:  logger.Named("matter-service"),
		clock:   time.Now,
	}
}

// WithClock overrides the service's time source.  Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// RecordMatter validates and stores a new matter, then mirrors it into the
// search index.
func (s *Service) RecordMatter(ctx context.Context, m *domainmatter.Matter) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if existing, err := s.matters.GetByCaseref(ctx, m.Caseref); err == nil && existing != nil {
		return errors.Newf(errors.ErrCodeMatterAlreadyExists, "caseref %s already exists", m.Caseref)
	}
	now := s.clock()
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.matters.Create(ctx, m); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "create matter")
	}
	s.index(ctx, m)
	return nil
}

// UpdateMatter stores matter changes and refreshes the search index.
func (s *Service) UpdateMatter(ctx context.Context, m *domainmatter.Matter) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = s.clock()
	if err := s.matters.Update(ctx, m); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "update matter")
	}
	s.index(ctx, m)
	return nil
}

// GetMatter loads one matter by ID.
func (s *Service) GetMatter(ctx context.Context, id int64) (*domainmatter.Matter, error) {
	return s.matters.GetByID(ctx, id)
}

// ListMatters returns a filtered page of matters.
func (s *Service) ListMatters(ctx context.Context, filter domainmatter.Filter, p common.Pagination) ([]*domainmatter.Matter, int64, error) {
	p.Validate()
	return s.matters.List(ctx, filter, p)
}

// Search resolves a free-text query against the search index and loads the
// matching matters in index order.
func (s *Service) Search(ctx context.Context, query string, p common.Pagination) ([]*domainmatter.Matter, int64, error) {
	if s.indexer == nil {
		return nil, 0, errors.New(errors.CodeNotImplemented, "search index not configured")
	}
	p.Validate()
	ids, total, err := s.indexer.Search(ctx, query, p)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeSearchError, "search matters")
	}
	out := make([]*domainmatter.Matter, 0, len(ids))
	for _, id := range ids {
		m, err := s.matters.GetByID(ctx, id)
		if err != nil {
			// Index lag: a deleted matter may linger in the index briefly.
			s.logger.Debug("indexed matter missing in store",
				logging.Int64("matter_id", id))
			continue
		}
		out = append(out, m)
	}
	return out, total, nil
}

// RecordEvent persists the event and runs the rule engine over it.  The
// event row is stored first; the engine owns everything downstream.
func (s *Service) RecordEvent(ctx context.Context, ev *domainmatter.Event) (*appdocket.Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.matters.GetByID(ctx, ev.MatterID); err != nil {
		return nil, err
	}
	ev.CreatedAt = s.clock()
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "create event")
	}

	// A priority claim naming another matter is also a linkage edge: the
	// cited matter's filing date changes must reach this one.
	if ev.Code == domainmatter.EventPriority && ev.AltMatterID != nil {
		if err := s.linkage.Link(ctx, *ev.AltMatterID, ev.MatterID, "priority"); err != nil {
			s.logger.Warn("record priority linkage failed",
				logging.Int64("matter_id", ev.MatterID),
				logging.Int64("alt_matter_id", *ev.AltMatterID),
				logging.Err(err))
		}
	}

	res, err := s.engine.ProcessEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	// Killer events and expiry updates change what the index shows.
	if res.MatterKilled || res.ExpiryUpdated {
		if m, err := s.matters.GetByID(ctx, ev.MatterID); err == nil {
			s.index(ctx, m)
		}
	}
	return res, nil
}

// RecordEventByCaseref resolves caserefs to matter IDs and records the
// event.  This is the intake path for messages arriving from upstream
// systems, which identify matters by reference, not by ID.
func (s *Service) RecordEventByCaseref(ctx context.Context, caseref string, code domainmatter.EventCode, eventDate time.Time, detail, altCaseref string) (*appdocket.Result, error) {
	m, err := s.matters.GetByCaseref(ctx, caseref)
	if err != nil {
		return nil, err
	}
	ev := &domainmatter.Event{
		MatterID:  m.ID,
		Code:      code,
		EventDate: eventDate,
		Detail:    detail,
	}
	if altCaseref != "" {
		alt, err := s.matters.GetByCaseref(ctx, altCaseref)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMatterNotFound, "resolve alt caseref")
		}
		ev.AltMatterID = &alt.ID
	}
	return s.RecordEvent(ctx, ev)
}

// ListEvents returns the events recorded on one matter.
func (s *Service) ListEvents(ctx context.Context, matterID int64) ([]*domainmatter.Event, error) {
	return s.events.ListByMatter(ctx, matterID)
}

func (s *Service) index(ctx context.Context, m *domainmatter.Matter) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, m); err != nil {
		s.logger.Warn("index matter failed",
			logging.Int64("matter_id", m.ID), logging.Err(err))
	}
}
