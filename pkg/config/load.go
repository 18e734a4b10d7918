package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Well-known keys.
const (
	KeyHTTPPort          = "server.http_port"
	KeyDefaultTimeoutMs  = "federation.default_timeout_ms"
	KeySourceTimeoutMs   = "federation.source_timeout_ms"
	KeyRowLimitPerSource = "federation.row_limit_per_source"
	KeyStreamBuffer      = "federation.stream_buffer"
	KeyLogLevel          = "log.level"

	// KeyConnectionsDigest holds a hash of the connections list so a reload
	// can tell whether it changed without keeping credentials in Config.
	KeyConnectionsDigest = "connections_digest"
)

// Defaults are applied before the config file and environment are read.
var Defaults = map[string]interface{}{
	KeyHTTPPort:          8082,
	KeyDefaultTimeoutMs:  60000,
	KeySourceTimeoutMs:   30000,
	KeyRowLimitPerSource: 100000,
	KeyStreamBuffer:      100,
	KeyLogLevel:          "info",
}

// ConnectionEntry declares one backend connection opened at startup.
// Either URL or the discrete fields may be used.
type ConnectionEntry struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSL      bool   `mapstructure:"ssl"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// Load reads configuration from an optional file (yaml, json or toml) and from
// environment variables carrying envPrefix, e.g. REDB_FEDERATION_SERVER_HTTP_PORT
// for server.http_port. An empty path skips the file.
func Load(path, envPrefix string) (*Config, []ConnectionEntry, error) {
	v := viper.New()
	for k, def := range Defaults {
		v.SetDefault(k, def)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if envPrefix != "" {
		v.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	var connections []ConnectionEntry
	if err := v.UnmarshalKey("connections", &connections); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	cfg := New()
	values := make(map[string]string)
	for _, key := range v.AllKeys() {
		if key == "connections" || strings.HasPrefix(key, "connections.") {
			continue
		}
		values[key] = v.GetString(key)
	}
	digest, err := connectionsDigest(connections)
	if err != nil {
		return nil, nil, err
	}
	values[KeyConnectionsDigest] = digest
	cfg.Update(values)

	return cfg, connections, nil
}

func connectionsDigest(connections []ConnectionEntry) (string, error) {
	b, err := json.Marshal(connections)
	if err != nil {
		return "", fmt.Errorf("failed to hash connections: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
