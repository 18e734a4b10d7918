package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Adapter implements the adapter.DatabaseAdapter interface for Redis.
type Adapter struct{}

// NewAdapter creates a new Redis adapter.
func NewAdapter() adapter.DatabaseAdapter {
	return &Adapter{}
}

// Type returns the database type identifier.
func (a *Adapter) Type() dbcapabilities.DatabaseType {
	return dbcapabilities.Redis
}

// Capabilities returns the capabilities metadata for Redis.
func (a *Adapter) Capabilities() dbcapabilities.Capability {
	return dbcapabilities.MustGet(dbcapabilities.Redis)
}

// Connect establishes a connection to a Redis server.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	options, err := buildOptions(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, adapter.NewConnectionError(dbcapabilities.Redis, config.Host, config.Port,
			fmt.Errorf("error connecting to Redis: %w", err))
	}

	return &Connection{
		id:        config.DatabaseID,
		client:    client,
		config:    config,
		adapter:   a,
		connected: 1,
	}, nil
}

func buildOptions(config adapter.ConnectionConfig) (*redis.Options, error) {
	options := &redis.Options{
		Addr:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Username: config.Username,
		Password: config.Password,
	}

	// The database name of a Redis connection is the logical DB index.
	if config.DatabaseName != "" {
		dbIndex, err := strconv.Atoi(config.DatabaseName)
		if err != nil || dbIndex < 0 {
			return nil, adapter.NewConfigurationError(dbcapabilities.Redis, "databaseName",
				fmt.Sprintf("expected a database index, got %q", config.DatabaseName))
		}
		options.DB = dbIndex
	}

	if !config.SSL {
		return options, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         config.Host,
		InsecureSkipVerify: config.SSLMode == "prefer" || config.SSLMode == "allow",
	}

	if cert, key := adapter.GetString(config.SSLCert), adapter.GetString(config.SSLKey); cert != "" && key != "" {
		pair, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, adapter.NewConfigurationError(dbcapabilities.Redis, "sslCert",
				fmt.Sprintf("error loading client certificates: %v", err))
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	if root := adapter.GetString(config.SSLRootCert); root != "" {
		pem, err := os.ReadFile(root)
		if err != nil {
			return nil, adapter.NewConfigurationError(dbcapabilities.Redis, "sslRootCert", err.Error())
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, adapter.NewConfigurationError(dbcapabilities.Redis, "sslRootCert", "no certificates found")
		}
		tlsConfig.RootCAs = pool
	}

	options.TLSConfig = tlsConfig
	return options, nil
}
