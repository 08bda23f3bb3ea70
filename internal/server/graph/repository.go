package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/systemshift/cypherview/internal/metrics"
)

// DefaultQuery is run when a request names no query.
const DefaultQuery = "MATCH (n) RETURN n LIMIT 10"

// EmptyResultMessage answers a custom query that returned no records.
const EmptyResultMessage = "Query executed successfully."

// Executor runs Cypher against one database. Both *Repository and test
// fakes implement it.
type Executor interface {
	Run(ctx context.Context, query string) ([]Record, error)
	Close(ctx context.Context) error
}

// Opener connects an Executor for a database configuration.
type Opener func(ctx context.Context, cfg Config) (Executor, error)

// CredentialsError reports a database name with no usable credentials.
type CredentialsError struct {
	Database string
}

func (e *CredentialsError) Error() string {
	return "Invalid database name or missing credentials for " + e.Database
}

// ConnectError reports a failure to open the driver for a database.
type ConnectError struct {
	Database string
	Err      error
}

func (e *ConnectError) Error() string {
	return "Error initializing Neo4j driver: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsDatabaseError reports whether err came from the Neo4j server itself
// (syntax errors, constraint violations) rather than the client.
func IsDatabaseError(err error) bool {
	return neo4j.IsNeo4jError(err)
}

// Pool keeps one lazily opened Executor per configured database.
type Pool struct {
	configs map[string]Config
	open    Opener
	logger  *zap.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	execs map[string]Executor
	group singleflight.Group
}

// NewPool creates a pool over configs. A nil opener connects real Neo4j
// drivers; m may be nil.
func NewPool(configs map[string]Config, open Opener, logger *zap.Logger, m *metrics.Collector) *Pool {
	if open == nil {
		open = func(ctx context.Context, cfg Config) (Executor, error) {
			return New(ctx, cfg, logger)
		}
	}
	return &Pool{
		configs: configs,
		open:    open,
		logger:  logger,
		metrics: m,
		execs:   make(map[string]Executor),
	}
}

// Databases returns the configured database names, sorted.
func (p *Pool) Databases() []string {
	names := make([]string, 0, len(p.configs))
	for name, cfg := range p.configs {
		if cfg.Complete() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Check returns a *CredentialsError unless database is fully configured.
func (p *Pool) Check(database string) error {
	if cfg, ok := p.configs[database]; !ok || !cfg.Complete() {
		return &CredentialsError{Database: database}
	}
	return nil
}

func (p *Pool) executor(ctx context.Context, database string) (Executor, error) {
	if err := p.Check(database); err != nil {
		return nil, err
	}
	cfg := p.configs[database]

	p.mu.Lock()
	ex, ok := p.execs[database]
	p.mu.Unlock()
	if ok {
		return ex, nil
	}

	v, err, _ := p.group.Do(database, func() (interface{}, error) {
		p.mu.Lock()
		if ex, ok := p.execs[database]; ok {
			p.mu.Unlock()
			return ex, nil
		}
		p.mu.Unlock()

		ex, err := p.open(ctx, cfg)
		if err != nil {
			return nil, &ConnectError{Database: database, Err: err}
		}
		p.mu.Lock()
		p.execs[database] = ex
		p.mu.Unlock()
		return ex, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Executor), nil
}

// Run executes query against database.
func (p *Pool) Run(ctx context.Context, database, query string) ([]Record, error) {
	ex, err := p.executor(ctx, database)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Executing query", zap.String("database", database), zap.String("query", query))
	records, err := ex.Run(ctx, query)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.Queries.WithLabelValues(database, status).Inc()
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Fetch runs query and encodes the result the way the HTTP query API does:
// an empty query runs DefaultQuery, and a custom query with no records
// answers the EmptyResultMessage object.
func (p *Pool) Fetch(ctx context.Context, database, query string) ([]byte, error) {
	custom := query != ""
	if !custom {
		query = DefaultQuery
	}
	records, err := p.Run(ctx, database, query)
	if err != nil {
		return nil, err
	}
	return Encode(records, custom)
}

// Encode writes records as a JSON array. When emptyMessage is set, zero
// records encode as {"message": EmptyResultMessage} instead of [].
func Encode(records []Record, emptyMessage bool) ([]byte, error) {
	var body any = records
	switch {
	case len(records) == 0 && emptyMessage:
		body = map[string]string{"message": EmptyResultMessage}
	case records == nil:
		body = []Record{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}
	return data, nil
}

// Close closes every opened executor.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, ex := range p.execs {
		if err := ex.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(p.execs, name)
	}
	return errors.Join(errs...)
}
