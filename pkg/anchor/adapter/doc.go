// Package adapter provides the unified interface for all database adapters.
//
// Every backend the federation engine can read from is reached through the same
// small set of contracts:
//
//   - DatabaseAdapter: builds a Connection from a ConnectionConfig
//   - Connection: an open session with a QueryOperator and MetadataOperator
//   - QueryOperator: runs a native query inside a Namespace and returns a QueryResult
//   - Registry: maps database ids to adapters
//
// # Usage
//
// Adapters register themselves from their package init:
//
//	func init() {
//	    adapter.Register(postgres.NewAdapter())
//	}
//
// Connect through the registry and run a native query:
//
//	conn, err := adapter.GlobalRegistry().Connect(ctx, adapter.ConnectionConfig{
//	    DatabaseID:     "prod_pg",
//	    ConnectionType: "postgres",
//	    Host:           "localhost",
//	    Port:           5432,
//	    DatabaseName:   "app",
//	    Username:       "user",
//	    Password:       "pass",
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	res, err := conn.QueryOperations().ExecuteInNamespace(ctx,
//	    adapter.Namespace{Database: "app", Schema: "public"},
//	    `SELECT * FROM "users" LIMIT 100`)
//
// # Errors
//
// Adapters return the sentinel errors in this package wrapped in DatabaseError,
// ConnectionError or ConfigurationError, so callers can use errors.Is:
//
//	if adapter.IsConnectionError(err) { ... }
package adapter
