package redis

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Connection implements adapter.Connection for Redis.
type Connection struct {
	id        string
	client    *redis.Client
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
	return dbcapabilities.Redis
}

// IsConnected returns whether the connection is active.
func (c *Connection) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Ping checks if the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Connection) Close() error {
	atomic.StoreInt32(&c.connected, 0)
	return c.client.Close()
}

// QueryOperations returns the query operator for Redis.
func (c *Connection) QueryOperations() adapter.QueryOperator {
	return &QueryOps{conn: c}
}

// MetadataOperations returns the metadata operator for Redis.
func (c *Connection) MetadataOperations() adapter.MetadataOperator {
	return &MetadataOps{conn: c}
}

// Raw returns the underlying *redis.Client.
func (c *Connection) Raw() interface{} {
	return c.client
}

// Config returns the connection configuration.
func (c *Connection) Config() adapter.ConnectionConfig {
	return c.config
}

// Adapter returns the database adapter.
func (c *Connection) Adapter() adapter.DatabaseAdapter {
	return c.adapter
}

// MetadataOps implements adapter.MetadataOperator for Redis.
type MetadataOps struct {
	conn *Connection
}

// GetVersion returns redis_version from INFO server.
func (m *MetadataOps) GetVersion(ctx context.Context) (string, error) {
	info, err := m.conn.client.Info(ctx, "server").Result()
	if err != nil {
		return "", adapter.WrapError(dbcapabilities.Redis, "get_version", err)
	}
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "redis_version:"); ok {
			return v, nil
		}
	}
	return "", nil
}
