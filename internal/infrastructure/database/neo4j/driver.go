// Package neo4j wraps the Neo4j driver for the matter-linkage graph.  The
// priority/family relationships between matters form a directed graph the
// cascade recalculation walks; a graph store keeps the traversal queries
// trivial.
package neo4j

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Transaction abstracts neo4j.ManagedTransaction so repositories are
// testable without a live cluster.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

// Driver is the high-level wrapper repositories depend on.
type Driver struct {
	driver   neo4j.DriverWithContext
	database string
	logger   logging.Logger
}

// NewDriver connects and verifies connectivity.
func NewDriver(cfg config.Neo4jConfig, logger logging.Logger) (*Driver, error) {
	d, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			} else {
				c.MaxConnectionPoolSize = 50
			}
			if cfg.ConnectionTimeout > 0 {
				c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
			} else {
				c.ConnectionAcquisitionTimeout = 60 * time.Second
			}
		})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create neo4j driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "connect to neo4j")
	}

	logger.Info("neo4j connected",
		logging.String("uri", cfg.URI),
		logging.String("database", cfg.Database))

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Driver{driver: d, database: database, logger: logger}, nil
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.database,
		AccessMode:   mode,
	})
}

// ExecuteRead runs work in a managed read transaction.
func (d *Driver) ExecuteRead(ctx context.Context, work func(tx Transaction) (any, error)) (any, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j read")
	}
	return out, nil
}

// ExecuteWrite runs work in a managed write transaction.
func (d *Driver) ExecuteWrite(ctx context.Context, work func(tx Transaction) (any, error)) (any, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j write")
	}
	return out, nil
}

// Close shuts the driver down.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
