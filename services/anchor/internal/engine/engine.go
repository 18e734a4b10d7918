package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/redbco/redb-federation/pkg/config"
	"github.com/redbco/redb-federation/pkg/health"
	"github.com/redbco/redb-federation/pkg/logger"
	"github.com/redbco/redb-federation/services/anchor/internal/database"
	"github.com/redbco/redb-federation/services/anchor/internal/federation"
)

// Engine owns the HTTP surface of the federation service: the open sessions,
// the federation manager and the metrics registry.
type Engine struct {
	config   *config.Config
	server   *http.Server
	listener net.Listener
	sessions *database.SessionRegistry
	manager  *federation.Manager
	registry *prometheus.Registry
	checker  *health.Checker
	logger   *logger.Logger

	logEntries *prometheus.CounterVec
	logSub     <-chan logger.LogEntry
	logDone    chan struct{}
	state    struct {
		sync.Mutex
		isRunning         bool
		ongoingOperations int32
	}
	metrics struct {
		requestsProcessed int64
		errors            int64
	}
}

// NewEngine builds the manager from cfg. log may be nil.
func NewEngine(cfg *config.Config, sessions *database.SessionRegistry, log *logger.Logger) *Engine {
	if cfg == nil {
		cfg = config.New()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fedCfg := federationConfig(cfg)
	fedCfg.Metrics = federation.NewMetrics(reg)
	manager := federation.NewManager(sessions, fedCfg, log)

	return &Engine{
		config:   cfg,
		sessions: sessions,
		manager:  manager,
		registry: reg,
		checker:  health.NewChecker(),
		logger:   log,

		logEntries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_log_entries_total",
			Help: "Log entries written by the service, by level.",
		}, []string{"level"}),
	}
}

// countLogEntries feeds federation_log_entries_total until the subscription
// is closed.
func (e *Engine) countLogEntries(sub <-chan logger.LogEntry, done chan<- struct{}) {
	defer close(done)
	for entry := range sub {
		e.logEntries.WithLabelValues(strings.ToLower(entry.Level)).Inc()
	}
}

func federationConfig(cfg *config.Config) federation.Config {
	return federation.Config{
		DefaultTimeout: cfg.GetMillis(config.KeyDefaultTimeoutMs, federation.DefaultTimeout),
		SourceTimeout:  cfg.GetMillis(config.KeySourceTimeoutMs, federation.DefaultSourceTimeout),
		RowLimit:       cfg.GetInt(config.KeyRowLimitPerSource, federation.DefaultRowLimit),
		StreamBuffer:   cfg.GetInt(config.KeyStreamBuffer, federation.DefaultStreamBuffer),
	}
}

// Reload merges next into the running configuration and applies the
// federation timeouts and limits at once. It reports whether a key that is
// only read at startup changed, such as the HTTP port or the connections.
func (e *Engine) Reload(next *config.Config) bool {
	old := e.config.GetAll()
	e.config.Update(next.GetAll())
	e.manager.Reconfigure(federationConfig(e.config))

	restart := e.config.RequiresRestart(old)
	if e.logger != nil {
		if restart {
			e.logger.Warn("Configuration reloaded; listener and connection changes need a restart")
		} else {
			e.logger.Info("Configuration reloaded")
		}
	}
	return restart
}

// Manager exposes the federation manager for in-process callers such as the CLI.
func (e *Engine) Manager() *federation.Manager {
	return e.manager
}

// Handler returns the routed HTTP handler without starting a listener.
func (e *Engine) Handler() http.Handler {
	return NewServer(e)
}

func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	defer e.state.Unlock()

	if e.state.isRunning {
		return fmt.Errorf("engine is already running")
	}

	port := e.config.GetInt(config.KeyHTTPPort, 8082)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	e.listener = listener
	e.server = &http.Server{
		Handler: NewServer(e),
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	go func() {
		if err := e.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			atomic.AddInt64(&e.metrics.errors, 1)
			if e.logger != nil {
				e.logger.Errorf("HTTP server stopped: %v", err)
			}
		}
	}()

	e.state.isRunning = true
	if e.logger != nil {
		e.logSub = e.logger.Subscribe()
		e.logDone = make(chan struct{})
		go e.countLogEntries(e.logSub, e.logDone)
		e.logger.Infof("Federation HTTP API listening on %s", listener.Addr())
	}
	return nil
}

// Addr is the bound listener address, or "" before Start.
func (e *Engine) Addr() string {
	e.state.Lock()
	defer e.state.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	server := e.server
	logSub, logDone := e.logSub, e.logDone
	e.logSub, e.logDone = nil, nil
	e.state.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	if ongoing := atomic.LoadInt32(&e.state.ongoingOperations); ongoing > 0 && e.logger != nil {
		e.logger.Warnf("Stopping with %d federated queries still running", ongoing)
	}
	e.sessions.CloseAll()
	if logSub != nil {
		e.logger.Unsubscribe(logSub)
		<-logDone
	}
	return err
}

func (e *Engine) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests_processed": atomic.LoadInt64(&e.metrics.requestsProcessed),
		"errors":             atomic.LoadInt64(&e.metrics.errors),
		"ongoing_operations": int64(atomic.LoadInt32(&e.state.ongoingOperations)),
	}
}

func (e *Engine) CheckHealth() error {
	e.state.Lock()
	defer e.state.Unlock()

	if !e.state.isRunning {
		return fmt.Errorf("service not initialized")
	}

	return nil
}

// CheckSessions pings every open session and records the outcome in the
// health checker.
func (e *Engine) CheckSessions(ctx context.Context) health.Status {
	seen := make(map[string]bool)
	for _, info := range e.sessions.List() {
		name := "session:" + info.ID
		seen[name] = true
		id := info.ID
		e.checker.RunCheck(name, func() error {
			conn, err := e.sessions.GetSession(id)
			if err != nil {
				return err
			}
			return conn.Ping(ctx)
		})
	}
	for _, check := range e.checker.GetAllChecks() {
		if !seen[check.Name] {
			e.checker.Forget(check.Name)
		}
	}
	return e.checker.GetOverallStatus()
}

func (e *Engine) TrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, 1)
}

func (e *Engine) UntrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, -1)
}

// DefaultAliases maps every open session to an alias named after its id.
func (e *Engine) DefaultAliases() federation.AliasTable {
	aliases := make(federation.AliasTable)
	for _, info := range e.sessions.List() {
		aliases[info.ID] = federation.AliasEntry{
			SessionID:   info.ID,
			DriverID:    info.Type,
			DisplayName: info.Name,
		}
	}
	return aliases
}

// ResolveAliases returns requested, or the session defaults when it is empty.
// Entries without a driver take it from their open session.
func (e *Engine) ResolveAliases(requested federation.AliasTable) federation.AliasTable {
	if len(requested) == 0 {
		return e.DefaultAliases()
	}
	out := make(federation.AliasTable, len(requested))
	for name, entry := range requested {
		if entry.SessionID == "" {
			entry.SessionID = name
		}
		if entry.DriverID == "" {
			if conn, err := e.sessions.GetSession(entry.SessionID); err == nil {
				entry.DriverID = string(conn.Type())
			}
		}
		out[name] = entry
	}
	return out
}
