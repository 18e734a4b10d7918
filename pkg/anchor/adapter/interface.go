// Package adapter provides the unified interface for all database adapters.
// This package defines the contracts that database-specific implementations must follow.
package adapter

import (
	"context"

	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// DatabaseAdapter represents a database technology adapter.
// Each database type (PostgreSQL, MySQL, MongoDB, etc.) must implement this interface.
type DatabaseAdapter interface {
	// Type returns the canonical database type identifier
	Type() dbcapabilities.DatabaseType

	// Capabilities returns the capability metadata for this database type
	Capabilities() dbcapabilities.Capability

	// Connect establishes a connection to a specific database
	Connect(ctx context.Context, config ConnectionConfig) (Connection, error)
}

// Connection represents an active connection to a specific database.
// This is the main interface for interacting with a database.
type Connection interface {
	// Identity and status
	ID() string
	Type() dbcapabilities.DatabaseType
	IsConnected() bool

	// Lifecycle management
	Ping(ctx context.Context) error
	Close() error

	// Operation interfaces
	QueryOperations() QueryOperator
	MetadataOperations() MetadataOperator

	// Raw returns the underlying database-specific connection object.
	// Type assertion is required when using Raw().
	Raw() interface{}

	// Configuration
	Config() ConnectionConfig
	Adapter() DatabaseAdapter
}

// Namespace scopes a native query inside a connection: the logical database
// and, for engines that have one, the schema. Empty fields mean "connection default".
type Namespace struct {
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// Column describes one result column as reported by the backend driver.
// Type is the driver's own type name ("int4", "VARCHAR", "string", ...).
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is a fully materialised result set. Every row has len(Columns) values.
type QueryResult struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// ColumnNames returns the column names in order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// QueryOperator executes native queries. The query text is in the backend's own
// language: SQL for relational engines, a find command document for MongoDB,
// a SCAN command line for Redis.
type QueryOperator interface {
	ExecuteInNamespace(ctx context.Context, ns Namespace, query string) (*QueryResult, error)
}

// MetadataOperator handles metadata collection and introspection.
type MetadataOperator interface {
	GetVersion(ctx context.Context) (string, error)
}
