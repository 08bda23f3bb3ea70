package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Repository runs Cypher against one Neo4j database.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// Config holds Neo4j connection configuration
type Config struct {
	URI      string
	Username string
	Password string
	// Database selects a database on the server; empty means the default.
	Database string
}

// Complete reports whether every credential is present.
func (c Config) Complete() bool {
	return c.URI != "" && c.Username != "" && c.Password != ""
}

// New creates a repository and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	logger.Info("connected to neo4j", zap.String("uri", cfg.URI), zap.String("user", cfg.Username))
	return &Repository{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Close closes the Neo4j connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Run executes query in an auto-commit transaction and returns every record
// serialized. Queries may write, so the session is opened in write mode.
func (r *Repository) Run(ctx context.Context, query string) ([]Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	for result.Next(ctx) {
		rec := result.Record()
		records = append(records, SerializeRecord(rec.Keys, rec.Values))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
