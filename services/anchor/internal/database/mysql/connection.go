package mysql

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Connection implements adapter.Connection for MySQL.
type Connection struct {
	id        string
	db        *sql.DB
	config    adapter.ConnectionConfig
	adapter   *Adapter
	connected int32
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Type returns the database type.
func (c *Connection) Type() dbcapabilities.DatabaseType {
	return c.adapter.dbType
}

// IsConnected returns whether the connection is active.
func (c *Connection) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Ping checks if the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the connection.
func (c *Connection) Close() error {
	atomic.StoreInt32(&c.connected, 0)
	return c.db.Close()
}

// QueryOperations returns the query operator for MySQL.
func (c *Connection) QueryOperations() adapter.QueryOperator {
	return &QueryOps{conn: c}
}

// MetadataOperations returns the metadata operator for MySQL.
func (c *Connection) MetadataOperations() adapter.MetadataOperator {
	return &MetadataOps{conn: c}
}

// Raw returns the underlying *sql.DB.
func (c *Connection) Raw() interface{} {
	return c.db
}

// Config returns the connection configuration.
func (c *Connection) Config() adapter.ConnectionConfig {
	return c.config
}

// Adapter returns the database adapter.
func (c *Connection) Adapter() adapter.DatabaseAdapter {
	return c.adapter
}

// MetadataOps implements adapter.MetadataOperator for MySQL.
type MetadataOps struct {
	conn *Connection
}

// GetVersion returns the server version string.
func (m *MetadataOps) GetVersion(ctx context.Context) (string, error) {
	var version string
	if err := m.conn.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", adapter.WrapError(m.conn.Type(), "get_version", err)
	}
	return version, nil
}
