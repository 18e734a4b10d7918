package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/logger"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// SessionInfo describes one open session for listings.
type SessionInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type"`
	Host      string `json:"host,omitempty"`
	Database  string `json:"database,omitempty"`
	Connected bool   `json:"connected"`
}

type runningQuery struct {
	cancel context.CancelFunc
}

// SessionRegistry maps session ids to live adapter connections and tracks the
// queries currently running on them so they can be cancelled individually.
type SessionRegistry struct {
	adapters *adapter.Registry

	mu       sync.RWMutex
	sessions map[string]adapter.Connection

	runMu   sync.Mutex
	running map[string]*runningQuery

	dbLogger *DatabaseLogger
}

// NewSessionRegistry creates a registry that opens connections through adapters.
// A nil adapter registry means the global one.
func NewSessionRegistry(adapters *adapter.Registry, log *logger.Logger) *SessionRegistry {
	if adapters == nil {
		adapters = adapter.GlobalRegistry()
	}
	return &SessionRegistry{
		adapters: adapters,
		sessions: make(map[string]adapter.Connection),
		running:  make(map[string]*runningQuery),
		dbLogger: NewDatabaseLogger(log),
	}
}

// Open connects using the adapter for config.ConnectionType and registers the
// connection under config.DatabaseID, replacing (and closing) any previous one.
func (r *SessionRegistry) Open(ctx context.Context, config adapter.ConnectionConfig) (adapter.Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logCtx := DatabaseLogContext{
		DatabaseType: config.ConnectionType,
		SessionID:    config.DatabaseID,
		Host:         config.Host,
		Port:         config.Port,
	}
	r.dbLogger.LogConnectionAttempt(logCtx)

	conn, err := r.adapters.Connect(ctx, config)
	if err != nil {
		r.dbLogger.LogConnectionFailure(logCtx, err)
		return nil, err
	}

	r.Register(conn)
	r.dbLogger.LogConnectionSuccess(logCtx)
	return conn, nil
}

// Register adds an already-open connection under its ID.
func (r *SessionRegistry) Register(conn adapter.Connection) {
	r.mu.Lock()
	old, exists := r.sessions[conn.ID()]
	r.sessions[conn.ID()] = conn
	r.mu.Unlock()

	if exists && old != conn {
		_ = old.Close()
	}
}

// GetSession returns the connection registered under id.
func (r *SessionRegistry) GetSession(id string) (adapter.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrSessionNotFound, id)
	}
	return conn, nil
}

// ExecuteInNamespace runs a native query on a session. While it runs, the query
// can be cancelled with Cancel(sessionID, queryID).
func (r *SessionRegistry) ExecuteInNamespace(ctx context.Context, sessionID string, ns adapter.Namespace, query, queryID string) (*adapter.QueryResult, error) {
	conn, err := r.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsConnected() {
		return nil, adapter.NewDatabaseError(conn.Type(), "execute", adapter.ErrConnectionClosed)
	}

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entry *runningQuery
	if queryID != "" {
		entry = &runningQuery{cancel: cancel}
		key := runKey(sessionID, queryID)
		r.runMu.Lock()
		r.running[key] = entry
		r.runMu.Unlock()
		defer func() {
			r.runMu.Lock()
			if r.running[key] == entry {
				delete(r.running, key)
			}
			r.runMu.Unlock()
		}()
	}

	logCtx := DatabaseLogContext{
		DatabaseType: string(conn.Type()),
		SessionID:    sessionID,
		QueryID:      queryID,
		Operation:    "execute",
		Namespace:    common.NamespaceLabel(ns.Database, ns.Schema),
	}
	r.dbLogger.LogOperationAttempt(logCtx)

	result, err := conn.QueryOperations().ExecuteInNamespace(qctx, ns, query)
	if err != nil {
		if errors.Is(qctx.Err(), context.Canceled) && ctx.Err() == nil {
			r.dbLogger.LogCancellation(logCtx)
			return nil, fmt.Errorf("query %s on session %s cancelled: %w", queryID, sessionID, context.Canceled)
		}
		r.dbLogger.LogOperationFailure(logCtx, err)
		return nil, err
	}

	r.dbLogger.LogOperationSuccess(logCtx, len(result.Rows))
	return result, nil
}

// Cancel stops a running query. It reports whether a query was found.
func (r *SessionRegistry) Cancel(sessionID, queryID string) bool {
	r.runMu.Lock()
	entry, ok := r.running[runKey(sessionID, queryID)]
	r.runMu.Unlock()

	if !ok {
		return false
	}
	entry.cancel()
	return true
}

// Close closes and forgets a session.
func (r *SessionRegistry) Close(id string) error {
	r.mu.Lock()
	conn, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", adapter.ErrSessionNotFound, id)
	}

	err := conn.Close()
	r.dbLogger.LogDisconnection(DatabaseLogContext{DatabaseType: string(conn.Type()), SessionID: id}, err)
	return err
}

// CloseAll closes every session.
func (r *SessionRegistry) CloseAll() {
	for _, info := range r.List() {
		_ = r.Close(info.ID)
	}
}

// List returns the open sessions sorted by id.
func (r *SessionRegistry) List() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for id, conn := range r.sessions {
		cfg := conn.Config()
		infos = append(infos, SessionInfo{
			ID:        id,
			Name:      cfg.Name,
			Type:      string(conn.Type()),
			Host:      cfg.Host,
			Database:  cfg.DatabaseName,
			Connected: conn.IsConnected(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func runKey(sessionID, queryID string) string {
	return sessionID + "\x00" + queryID
}
