package database

import (
	"context"
	"time"
)

// =============================================================================
// ISP-COMPLIANT DATABASE INTERFACES
// Each interface is small and focused on a single responsibility
// Enables easy mocking, testing, and future optimizations
// =============================================================================

// -----------------------------------------------------------------------------
// Core Query Interfaces
// -----------------------------------------------------------------------------

// QueryExecutor executes database queries (read operations)
type QueryExecutor interface {
	QueryRow(ctx context.Context, query string, args ...interface{}) Scanner
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
}

// CommandExecutor executes database commands (write operations)
type CommandExecutor interface {
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// TransactionExecutor combines query and command execution
type TransactionExecutor interface {
	QueryExecutor
	CommandExecutor
}

// Scanner wraps database row scanning
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows wraps database result rows
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Result wraps command execution result
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// -----------------------------------------------------------------------------
// Transaction Interfaces
// -----------------------------------------------------------------------------

// TransactionManager manages database transactions
type TransactionManager interface {
	Begin(ctx context.Context) (Tx, error)
	BeginReadOnly(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction interface
type Tx interface {
	TransactionExecutor
	Commit() error
	Rollback() error
}

// TransactionFunc is a function that runs within a transaction
type TransactionFunc func(tx Tx) error

// -----------------------------------------------------------------------------
// Repository Interfaces (Domain-specific)
// -----------------------------------------------------------------------------

// ShareReader handles share read operations.
type ShareReader interface {
	GetSharesByConnection(ctx context.Context, connectionID string, limit int) ([]*ShareRow, error)
	GetShareCount(ctx context.Context, connectionID string, since time.Time) (int64, error)
}

// ShareWriter handles share write operations.
type ShareWriter interface {
	CreateShare(ctx context.Context, share *ShareRow) error
	CreateShareBatch(ctx context.Context, shares []*ShareRow) error

	// RecordShare persists share and, in the same transaction, increments
	// the owning connection's total_shares counter (and valid_shares when
	// valid is true). Callers must populate share.ConnectionID.
	RecordShare(ctx context.Context, share *ShareRow, valid bool) error
}

// ShareRepository combines read and write operations.
type ShareRepository interface {
	ShareReader
	ShareWriter
}

// ConnectionReader handles connection-history read operations.
type ConnectionReader interface {
	GetConnectionByID(ctx context.Context, id string) (*ConnectionRow, error)
	GetRecentConnections(ctx context.Context, limit int) ([]*ConnectionRow, error)
}

// ConnectionWriter handles connection-history write operations.
type ConnectionWriter interface {
	RecordConnection(ctx context.Context, conn *ConnectionRow) error
	RecordDisconnect(ctx context.Context, id string, at time.Time) error
}

// ConnectionRepository combines read and write operations.
type ConnectionRepository interface {
	ConnectionReader
	ConnectionWriter
}

// AlertReader handles alert read operations.
type AlertReader interface {
	GetRecentAlerts(ctx context.Context, limit int) ([]*AlertRow, error)
}

// AlertWriter handles alert write operations.
type AlertWriter interface {
	CreateAlert(ctx context.Context, alert *AlertRow) error
}

// AlertRepository combines read and write operations.
type AlertRepository interface {
	AlertReader
	AlertWriter
}

// ApiKeyReader handles API key read operations.
type ApiKeyReader interface {
	GetApiKeyByID(ctx context.Context, id string) (*ApiKeyRow, error)
	GetApiKeyByHash(ctx context.Context, secretHash string) (*ApiKeyRow, error)
	ListApiKeys(ctx context.Context) ([]*ApiKeyRow, error)
}

// ApiKeyWriter handles API key write operations.
type ApiKeyWriter interface {
	CreateApiKey(ctx context.Context, key *ApiKeyRow) error
	RevokeApiKey(ctx context.Context, id string) error
}

// ApiKeyRepository combines read and write operations.
type ApiKeyRepository interface {
	ApiKeyReader
	ApiKeyWriter
}

// ConfigHistoryReader handles config-history read operations.
type ConfigHistoryReader interface {
	GetLatestConfig(ctx context.Context) (*ConfigHistoryRow, error)
	ListConfigHistory(ctx context.Context, limit int) ([]*ConfigHistoryRow, error)
}

// ConfigHistoryWriter handles config-history write operations.
type ConfigHistoryWriter interface {
	RecordConfigChange(ctx context.Context, entry *ConfigHistoryRow) error
}

// ConfigHistoryRepository combines read and write operations.
type ConfigHistoryRepository interface {
	ConfigHistoryReader
	ConfigHistoryWriter
}

// TemplateRepository persists work templates for restart recovery and
// block-found audit trails.
type TemplateRepository interface {
	SaveTemplate(ctx context.Context, tmpl *TemplateRow) error
	GetLatestTemplate(ctx context.Context) (*TemplateRow, error)
	GetTemplateByID(ctx context.Context, jobID string) (*TemplateRow, error)
	ListTemplates(ctx context.Context, limit int) ([]*TemplateRow, error)
}

// -----------------------------------------------------------------------------
// Health & Metrics Interfaces
// -----------------------------------------------------------------------------

// HealthChecker checks database health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Ping(ctx context.Context) error
}

// MetricsProvider provides database metrics
type MetricsProvider interface {
	GetPoolStats() PoolStats
	GetQueryStats() QueryStats
}

// QueryStats tracks query performance
type QueryStats struct {
	TotalQueries     int64
	SlowQueries      int64 // > 100ms
	FailedQueries    int64
	AvgQueryTimeMs   float64
	MaxQueryTimeMs   float64
	QueriesPerSecond float64
}

// -----------------------------------------------------------------------------
// Batch Operations Interface
// -----------------------------------------------------------------------------

// BatchInserter handles high-performance batch inserts
type BatchInserter interface {
	// InsertBatch inserts multiple rows in a single statement
	// Returns the number of rows inserted
	InsertBatch(ctx context.Context, table string, columns []string, values [][]interface{}) (int64, error)

	// CopyFrom uses PostgreSQL COPY protocol for maximum throughput
	// Can handle 100k+ rows/second
	CopyFrom(ctx context.Context, table string, columns []string, values [][]interface{}) (int64, error)
}

// -----------------------------------------------------------------------------
// Cache Interface
// -----------------------------------------------------------------------------

// QueryCache caches frequently accessed data
type QueryCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CachedReader wraps a reader with caching
type CachedReader interface {
	WithCache(cache QueryCache) CachedReader
	InvalidateCache(keys ...string)
}

// -----------------------------------------------------------------------------
// Read Replica Interface
// -----------------------------------------------------------------------------

// ReadReplicaRouter routes read queries to replicas
type ReadReplicaRouter interface {
	// Primary returns the primary database for writes
	Primary() TransactionExecutor

	// Replica returns a read replica for queries
	// Implements round-robin or least-connections load balancing
	Replica() QueryExecutor

	// PreferPrimary forces reads to primary (for consistency)
	PreferPrimary() QueryExecutor
}
