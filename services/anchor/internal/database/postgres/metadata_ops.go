package postgres

import (
	"context"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
)

// MetadataOps implements adapter.MetadataOperator for PostgreSQL database connections.
type MetadataOps struct {
	conn *Connection
}

// GetVersion returns the PostgreSQL version.
func (m *MetadataOps) GetVersion(ctx context.Context) (string, error) {
	var version string
	err := m.conn.pool.QueryRow(ctx, "SELECT version()").Scan(&version)
	if err != nil {
		return "", adapter.WrapError(m.conn.Type(), "get_version", err)
	}
	return version, nil
}
