package mongodb

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Connection implements adapter.Connection for MongoDB.
type Connection struct {
	id        string
	client    *mongo.Client
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
	return dbcapabilities.MongoDB
}

// IsConnected returns whether the connection is active.
func (c *Connection) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Ping checks if the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Connection) Close() error {
	atomic.StoreInt32(&c.connected, 0)
	return c.client.Disconnect(context.Background())
}

// QueryOperations returns the query operator for MongoDB.
func (c *Connection) QueryOperations() adapter.QueryOperator {
	return &QueryOps{conn: c}
}

// MetadataOperations returns the metadata operator for MongoDB.
func (c *Connection) MetadataOperations() adapter.MetadataOperator {
	return &MetadataOps{conn: c}
}

// Raw returns the underlying *mongo.Client.
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

// MetadataOps implements adapter.MetadataOperator for MongoDB.
type MetadataOps struct {
	conn *Connection
}

// GetVersion returns the server version from buildInfo.
func (m *MetadataOps) GetVersion(ctx context.Context) (string, error) {
	var info bson.M
	err := m.conn.client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info)
	if err != nil {
		return "", adapter.WrapError(dbcapabilities.MongoDB, "get_version", err)
	}
	version, _ := info["version"].(string)
	return version, nil
}
