package main

import (
	"context"
	"fmt"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/config"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
	"github.com/redbco/redb-federation/pkg/logger"
	"github.com/redbco/redb-federation/services/anchor/internal/database"
	"github.com/redbco/redb-federation/services/anchor/internal/federation"
)

// connectionConfig turns a configured connection into an adapter config. A URL
// wins over the discrete fields; explicit fields still override what it carries.
func connectionConfig(entry config.ConnectionEntry) (adapter.ConnectionConfig, error) {
	if entry.ID == "" {
		return adapter.ConnectionConfig{}, fmt.Errorf("connection without id")
	}

	var cfg adapter.ConnectionConfig
	if entry.URL != "" {
		details, err := dbcapabilities.ParseConnectionString(entry.URL)
		if err != nil {
			return adapter.ConnectionConfig{}, fmt.Errorf("connection %s: %w", entry.ID, err)
		}
		cfg = adapter.ConfigFromDetails(entry.ID, entry.Name, details)
	} else {
		cfg = adapter.ConnectionConfig{
			DatabaseID:     entry.ID,
			Name:           entry.Name,
			ConnectionType: entry.Type,
			Host:           entry.Host,
			Port:           entry.Port,
			Username:       entry.Username,
			Password:       entry.Password,
			DatabaseName:   entry.Database,
			SSL:            entry.SSL,
			SSLMode:        entry.SSLMode,
		}
	}

	if entry.URL != "" {
		if entry.Type != "" {
			cfg.ConnectionType = entry.Type
		}
		if entry.Database != "" {
			cfg.DatabaseName = entry.Database
		}
	}
	if id, ok := dbcapabilities.ParseID(cfg.ConnectionType); ok {
		cfg.ConnectionType = string(id)
	}
	return cfg, cfg.Validate()
}

// openSessions connects every configured backend. It fails on the first
// connection that cannot be opened and closes the ones already open.
func openSessions(ctx context.Context, entries []config.ConnectionEntry, log *logger.Logger) (*database.SessionRegistry, error) {
	sessions := database.NewSessionRegistry(nil, log)
	for _, entry := range entries {
		cfg, err := connectionConfig(entry)
		if err != nil {
			sessions.CloseAll()
			return nil, err
		}
		if _, err := sessions.Open(ctx, cfg); err != nil {
			sessions.CloseAll()
			return nil, fmt.Errorf("failed to open connection %s: %w", entry.ID, err)
		}
	}
	return sessions, nil
}

// configuredAliases maps each configured connection id to an alias without
// connecting, for plans that never touch a backend.
func configuredAliases(entries []config.ConnectionEntry) (federation.AliasTable, error) {
	aliases := make(federation.AliasTable, len(entries))
	for _, entry := range entries {
		cfg, err := connectionConfig(entry)
		if err != nil {
			return nil, err
		}
		aliases[cfg.DatabaseID] = federation.AliasEntry{
			SessionID:   cfg.DatabaseID,
			DriverID:    cfg.ConnectionType,
			DisplayName: cfg.Name,
		}
	}
	return aliases, nil
}
