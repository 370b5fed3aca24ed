// Package repositories provides the Neo4j implementation of the
// matter-linkage graph.
package repositories

import (
	"context"

	"github.com/ipdocket/ipdocket/internal/domain/matter"
	driver "github.com/ipdocket/ipdocket/internal/infrastructure/database/neo4j"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

// LinkageRepository stores matter relationships as LINKS edges between
// Matter nodes.  The edge direction is child -> parent: the child claims
// priority from (or derives from) the parent.
type LinkageRepository struct {
	driver *driver.Driver
	logger logging.Logger
}

// NewLinkageRepository constructs a ready-to-use LinkageRepository.
func NewLinkageRepository(d *driver.Driver, logger logging.Logger) *LinkageRepository {
	return &LinkageRepository{driver: d, logger: logger.Named("linkage-repo")}
}

var _ matter.LinkageRepository = (*LinkageRepository)(nil)

func (r *LinkageRepository) Link(ctx context.Context, parentID, childID int64, relation string) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (parent:Matter {id: $parent})
			MERGE (child:Matter {id: $child})
			MERGE (child)-[l:LINKS]->(parent)
			ON CREATE SET l.relation = $relation, l.created_at = datetime()
			ON MATCH SET l.relation = $relation`,
			map[string]any{"parent": parentID, "child": childID, "relation": relation})
		return nil, err
	})
	return err
}

// Dependents returns the matters that link to matterID, i.e. the cases whose
// deadlines may shift when matterID's dates change.
func (r *LinkageRepository) Dependents(ctx context.Context, matterID int64) ([]int64, error) {
	return r.collectIDs(ctx, `
		MATCH (child:Matter)-[:LINKS]->(:Matter {id: $id})
		RETURN child.id AS id ORDER BY id`, matterID)
}

// References returns the matters matterID links to.
func (r *LinkageRepository) References(ctx context.Context, matterID int64) ([]int64, error) {
	return r.collectIDs(ctx, `
		MATCH (:Matter {id: $id})-[:LINKS]->(parent:Matter)
		RETURN parent.id AS id ORDER BY id`, matterID)
}

func (r *LinkageRepository) Unlink(ctx context.Context, parentID, childID int64) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (:Matter {id: $child})-[l:LINKS]->(:Matter {id: $parent})
			DELETE l`,
			map[string]any{"parent": parentID, "child": childID})
		return nil, err
	})
	return err
}

func (r *LinkageRepository) collectIDs(ctx context.Context, cypher string, matterID int64) ([]int64, error) {
	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": matterID})
		if err != nil {
			return nil, err
		}
		var ids []int64
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				if id, ok := v.(int64); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}
	ids, _ := out.([]int64)
	return ids, nil
}
