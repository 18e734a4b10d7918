package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Adapter implements the adapter.DatabaseAdapter interface for MongoDB.
type Adapter struct{}

// NewAdapter creates a new MongoDB adapter.
func NewAdapter() adapter.DatabaseAdapter {
	return &Adapter{}
}

// Type returns the database type identifier.
func (a *Adapter) Type() dbcapabilities.DatabaseType {
	return dbcapabilities.MongoDB
}

// Capabilities returns the capabilities metadata for MongoDB.
func (a *Adapter) Capabilities() dbcapabilities.Capability {
	return dbcapabilities.MustGet(dbcapabilities.MongoDB)
}

// Connect establishes a connection to a MongoDB deployment.
func (a *Adapter) Connect(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(buildURI(config)))
	if err != nil {
		return nil, adapter.NewConnectionError(dbcapabilities.MongoDB, config.Host, config.Port,
			fmt.Errorf("error connecting to database: %w", err))
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, adapter.NewConnectionError(dbcapabilities.MongoDB, config.Host, config.Port,
			fmt.Errorf("error pinging database: %w", err))
	}

	return &Connection{
		id:        config.DatabaseID,
		client:    client,
		config:    config,
		adapter:   a,
		connected: 1,
	}, nil
}

func buildURI(config adapter.ConnectionConfig) string {
	var connString strings.Builder

	connString.WriteString("mongodb://")
	if config.Username != "" {
		connString.WriteString(url.UserPassword(config.Username, config.Password).String())
		connString.WriteString("@")
	}
	fmt.Fprintf(&connString, "%s:%d/%s?authSource=%s",
		config.Host,
		config.Port,
		url.PathEscape(config.DatabaseName),
		config.OptionString("authSource", "admin"))

	if config.SSL {
		connString.WriteString("&tls=true")
		if cert := adapter.GetString(config.SSLCert); cert != "" {
			fmt.Fprintf(&connString, "&tlsCertificateKeyFile=%s", url.QueryEscape(cert))
		}
		if root := adapter.GetString(config.SSLRootCert); root != "" {
			fmt.Fprintf(&connString, "&tlsCAFile=%s", url.QueryEscape(root))
		}
		if config.SSLMode == "allow" || config.SSLMode == "prefer" {
			connString.WriteString("&tlsInsecure=true")
		}
	} else {
		connString.WriteString("&tls=false")
	}

	return connString.String()
}
