package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

const storeOpTimeout = 5 * time.Second

// GraphStore is the read/write interface over the graph database. The
// transactional distinction is preserved: Read runs in a read transaction,
// Write in a write transaction.
type GraphStore interface {
	Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Neo4jOptions holds graph store connection options
type Neo4jOptions struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore is a GraphStore backed by a Neo4j driver. The driver is
// acquired once at process start and injected wherever graph access is
// needed; Shutdown releases it.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger
}

// AcquireNeo4j opens and verifies the graph store connection
func AcquireNeo4j(ctx context.Context, opts Neo4jOptions, logger zerolog.Logger) (*Neo4jStore, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("neo4j credentials are required")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	logger.Info().Str("uri", opts.URI).Str("database", opts.Database).Msg("Graph store acquired")

	return &Neo4jStore{
		driver:   driver,
		database: opts.Database,
		logger:   logger,
	}, nil
}

// Read runs a query in a read transaction
func (s *Neo4jStore) Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return s.run(ctx, neo4j.AccessModeRead, query, params)
}

// Write runs a query in a write transaction
func (s *Neo4jStore) Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return s.run(ctx, neo4j.AccessModeWrite, query, params)
}

func (s *Neo4jStore) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) ([]map[string]any, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	session := s.driver.NewSession(opCtx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
	defer session.Close(opCtx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(opCtx, query, params)
		if err != nil {
			return nil, err
		}

		records := []map[string]any{}
		for result.Next(opCtx) {
			records = append(records, result.Record().AsMap())
		}
		return records, result.Err()
	}

	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(opCtx, work)
	} else {
		out, err = session.ExecuteWrite(opCtx, work)
	}
	if err != nil {
		return nil, fmt.Errorf("graph query failed: %w", err)
	}

	return out.([]map[string]any), nil
}

// Shutdown closes the underlying driver
func (s *Neo4jStore) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Graph store shutting down")
	return s.driver.Close(ctx)
}
