package adapter

import (
	"fmt"

	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// ConnectionConfig contains the configuration for a database connection.
// This is a unified configuration that works across all database types.
type ConnectionConfig struct {
	// Session id the connection is registered under (e.g. "prod_pg").
	DatabaseID string `json:"databaseId"`
	Name       string `json:"name,omitempty"`

	// Database type, e.g. "postgres", "mysql"
	ConnectionType string `json:"connectionType"`

	// Connection details
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	DatabaseName string `json:"databaseName"`

	// SSL/TLS configuration
	SSL         bool    `json:"ssl,omitempty"`
	SSLMode     string  `json:"sslMode,omitempty"` // verify-full, require, etc.
	SSLCert     *string `json:"sslCert,omitempty"`
	SSLKey      *string `json:"sslKey,omitempty"`
	SSLRootCert *string `json:"sslRootCert,omitempty"`

	// Database-specific options (use sparingly)
	Options map[string]interface{} `json:"options,omitempty"`
}

// Validate checks the fields every adapter needs.
func (c ConnectionConfig) Validate() error {
	dbType := dbcapabilities.DatabaseType(c.ConnectionType)
	if c.DatabaseID == "" {
		return NewConfigurationError(dbType, "databaseId", "must not be empty")
	}
	if _, ok := dbcapabilities.ParseID(c.ConnectionType); !ok {
		return NewConfigurationError(dbType, "connectionType", fmt.Sprintf("unknown database type: %s", c.ConnectionType))
	}
	if c.Host == "" {
		return NewConfigurationError(dbType, "host", "must not be empty")
	}
	return nil
}

// ConfigFromDetails builds a ConnectionConfig from a parsed connection string.
func ConfigFromDetails(id, name string, details *dbcapabilities.ConnectionDetails) ConnectionConfig {
	cfg := ConnectionConfig{
		DatabaseID:     id,
		Name:           name,
		ConnectionType: details.DatabaseType,
		Host:           details.Host,
		Port:           int(details.Port),
		Username:       details.Username,
		Password:       details.Password,
		DatabaseName:   details.DatabaseName,
		SSL:            details.SSL,
		SSLMode:        details.SSLMode,
		SSLCert:        GetStringPtr(details.Parameters["ssl_cert"]),
		SSLKey:         GetStringPtr(details.Parameters["ssl_key"]),
		SSLRootCert:    GetStringPtr(details.Parameters["ssl_root_cert"]),
	}
	if len(details.Parameters) > 0 {
		cfg.Options = make(map[string]interface{}, len(details.Parameters))
		for k, v := range details.Parameters {
			cfg.Options[k] = v
		}
	}
	return cfg
}

// GetStringPtr returns a pointer to a string value, or nil if the string is empty.
func GetStringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetString returns the string value from a pointer, or empty string if nil.
func GetString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionString returns a string option or def when unset.
func (c ConnectionConfig) OptionString(key, def string) string {
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}
