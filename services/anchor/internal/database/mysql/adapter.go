package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Adapter implements the adapter.DatabaseAdapter interface for MySQL and its
// protocol-compatible forks.
type Adapter struct {
	dbType dbcapabilities.DatabaseType
}

// NewAdapter creates a new MySQL adapter.
func NewAdapter() adapter.DatabaseAdapter {
	return &Adapter{dbType: dbcapabilities.MySQL}
}

// NewAdapterFor creates an adapter speaking the MySQL protocol for another database id.
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

// Connect establishes a connection to a MySQL database.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	db, err := sql.Open("mysql", buildDSN(config))
	if err != nil {
		return nil, adapter.NewConnectionError(a.dbType, config.Host, config.Port,
			fmt.Errorf("failed to open MySQL connection: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, adapter.NewConnectionError(a.dbType, config.Host, config.Port,
			fmt.Errorf("failed to ping MySQL database: %w", err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Connection{
		id:        config.DatabaseID,
		db:        db,
		config:    config,
		adapter:   a,
		connected: 1,
	}, nil
}

func buildDSN(config adapter.ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	cfg.DBName = config.DatabaseName
	cfg.ParseTime = true

	switch {
	case !config.SSL:
		cfg.TLSConfig = "false"
	case config.SSLMode == "prefer" || config.SSLMode == "skip-verify":
		cfg.TLSConfig = "skip-verify"
	default:
		cfg.TLSConfig = "true"
	}

	return cfg.FormatDSN()
}
