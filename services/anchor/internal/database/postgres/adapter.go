package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Adapter implements the adapter.DatabaseAdapter interface for PostgreSQL and
// the wire-compatible engines registered in init.
type Adapter struct {
	dbType dbcapabilities.DatabaseType
}

// NewAdapter creates a new PostgreSQL adapter.
func NewAdapter() adapter.DatabaseAdapter {
	return &Adapter{dbType: dbcapabilities.PostgreSQL}
}

// NewAdapterFor creates an adapter speaking the PostgreSQL protocol for another database id.
func NewAdapterFor(dbType dbcapabilities.DatabaseType) adapter.DatabaseAdapter {
	return &Adapter{dbType: dbType}
}

// Type returns the database type identifier.
func (a *Adapter) Type() dbcapabilities.DatabaseType {
	return a.dbType
}

// Capabilities returns the capabilities metadata for the database.
func (a *Adapter) Capabilities() dbcapabilities.Capability {
	return dbcapabilities.MustGet(a.dbType)
}

// Connect establishes a connection pool to a PostgreSQL database.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	pool, err := pgxpool.New(ctx, buildConnString(config))
	if err != nil {
		return nil, adapter.NewConnectionError(
			a.dbType,
			config.Host,
			config.Port,
			fmt.Errorf("error connecting to database: %w", err),
		)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, adapter.NewConnectionError(
			a.dbType,
			config.Host,
			config.Port,
			fmt.Errorf("error pinging database: %w", err),
		)
	}

	return &Connection{
		id:        config.DatabaseID,
		pool:      pool,
		config:    config,
		adapter:   a,
		connected: 1,
	}, nil
}

func buildConnString(config adapter.ConnectionConfig) string {
	var connString strings.Builder

	user := url.UserPassword(config.Username, config.Password)
	if config.Password == "" {
		user = url.User(config.Username)
	}

	fmt.Fprintf(&connString, "postgres://%s@%s:%d/%s",
		user.String(),
		config.Host,
		config.Port,
		url.PathEscape(config.DatabaseName))

	if config.SSL {
		fmt.Fprintf(&connString, "?sslmode=%s", getSslMode(config))

		if cert, key := adapter.GetString(config.SSLCert), adapter.GetString(config.SSLKey); cert != "" && key != "" {
			fmt.Fprintf(&connString, "&sslcert=%s&sslkey=%s", url.QueryEscape(cert), url.QueryEscape(key))
		}
		if rootCert := adapter.GetString(config.SSLRootCert); rootCert != "" {
			fmt.Fprintf(&connString, "&sslrootcert=%s", url.QueryEscape(rootCert))
		}
	} else {
		connString.WriteString("?sslmode=disable")
	}

	if appName := config.OptionString("application_name", "redb-federation"); appName != "" {
		fmt.Fprintf(&connString, "&application_name=%s", url.QueryEscape(appName))
	}

	return connString.String()
}

// getSslMode returns the SSL mode for the connection, verify-full unless configured
func getSslMode(config adapter.ConnectionConfig) string {
	if config.SSLMode != "" {
		return config.SSLMode
	}
	return "verify-full"
}
