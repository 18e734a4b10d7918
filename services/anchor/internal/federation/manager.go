package federation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/logger"
)

// Sessions is the driver/session layer sources are fetched through.
type Sessions interface {
	GetSession(id string) (adapter.Connection, error)
	ExecuteInNamespace(ctx context.Context, sessionID string, ns adapter.Namespace, query, queryID string) (*adapter.QueryResult, error)
	Cancel(sessionID, queryID string) bool
}

// Config tunes a Manager. Zero values select the package defaults.
type Config struct {
	DefaultTimeout time.Duration
	SourceTimeout  time.Duration
	RowLimit       int
	StreamBuffer   int
	Dialects       *DialectRegistry
	Metrics        *Metrics
}

// Manager runs federated queries: plan, fetch every source concurrently,
// load the results into a private LocalEngine and run the rewritten query
// there. It keeps no state between requests.
type Manager struct {
	sessions Sessions
	planner  *Planner
	metrics  *Metrics
	logger   *logger.Logger

	mu             sync.RWMutex
	defaultTimeout time.Duration
	sourceTimeout  time.Duration
	rowLimit       int
	streamBuffer   int
}

// NewManager creates a manager fetching through sessions. log may be nil.
func NewManager(sessions Sessions, cfg Config, log *logger.Logger) *Manager {
	m := &Manager{
		sessions: sessions,
		planner:  NewPlanner(cfg.Dialects, cfg.RowLimit),
		metrics:  cfg.Metrics,
		logger:   log,
	}
	m.Reconfigure(cfg)
	return m
}

// Reconfigure replaces the timeouts, the default row cap and the stream
// buffer. It is safe to call while requests run. Dialects and Metrics are
// fixed at construction and ignored here.
func (m *Manager) Reconfigure(cfg Config) {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = DefaultRowLimit
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}

	m.mu.Lock()
	m.defaultTimeout = cfg.DefaultTimeout
	m.sourceTimeout = cfg.SourceTimeout
	m.rowLimit = cfg.RowLimit
	m.streamBuffer = cfg.StreamBuffer
	m.mu.Unlock()
}

// StreamBuffer is the channel capacity callers should give their sinks.
func (m *Manager) StreamBuffer() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streamBuffer
}

func (m *Manager) timeouts() (global, source time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultTimeout, m.sourceTimeout
}

// Plan compiles query without touching any backend.
func (m *Manager) Plan(query string, aliases AliasTable, opts Options) (*Plan, error) {
	rowLimit := rowLimitOf(opts.RowLimitPerSource)
	if rowLimit <= 0 {
		m.mu.RLock()
		rowLimit = m.rowLimit
		m.mu.RUnlock()
	}
	return m.planner.BuildPlan(query, aliases, rowLimit, opts.Stream)
}

// Execute runs a federated query and returns the full result.
func (m *Manager) Execute(ctx context.Context, query string, aliases AliasTable, opts Options) (*Result, *Metadata, error) {
	start := time.Now()
	opts.Stream = false
	result := &Result{}
	md, err := m.run(ctx, query, aliases, opts, nil, result)
	m.metrics.observeRequest("batch", err, time.Since(start))
	if err != nil {
		return nil, nil, err
	}
	return result, md, nil
}

// ExecuteStream runs a federated query and emits the result into sink as
// columns, rows and done events. A consumer that closes the sink ends the
// request early without an error and cancels outstanding backend queries.
func (m *Manager) ExecuteStream(ctx context.Context, query string, aliases AliasTable, opts Options, sink Sink) (*Metadata, error) {
	start := time.Now()
	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-sink.Done():
			stop()
		case <-streamCtx.Done():
		}
	}()

	opts.Stream = true
	md, err := m.run(streamCtx, query, aliases, opts, sink, nil)
	if err != nil && sinkClosed(sink) && ctx.Err() == nil && !errors.Is(err, ErrTimeout) {
		m.infof(md.QueryID, "Stream consumer disconnected, federated query stopped")
		m.metrics.observeRequest("stream", context.Canceled, time.Since(start))
		return md, nil
	}
	m.metrics.observeRequest("stream", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return md, nil
}

// run drives the pipeline under the global timeout. On timeout the pipeline
// goroutine is abandoned; on cancellation it is awaited so the metadata it
// filled in can be returned.
func (m *Manager) run(ctx context.Context, query string, aliases AliasTable, opts Options, sink Sink, out *Result) (*Metadata, error) {
	start := time.Now()
	timeout, _ := m.timeouts()
	if opts.TimeoutMs > 0 {
		timeout = timeoutOf(opts.TimeoutMs)
	}
	queryID := opts.QueryID
	if queryID == "" {
		queryID = uuid.New().String()
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	md := &Metadata{QueryID: queryID}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- panicError("federated query", r)
			}
		}()
		done <- m.pipeline(runCtx, query, aliases, opts, md, sink, out)
	}()

	var err error
	select {
	case err = <-done:
	case <-runCtx.Done():
		select {
		case err = <-done:
		default:
			if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				err = &TimeoutError{Scope: ScopeFederation, Duration: timeout}
				m.errorf(queryID, "Federated query failed: %v", err)
				return &Metadata{QueryID: queryID}, err
			}
			err = <-done
		}
	}

	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			err = &TimeoutError{Scope: ScopeFederation, Duration: timeout}
		} else if ctx.Err() != nil && !errors.Is(err, ErrSinkClosed) {
			err = fmt.Errorf("federated query cancelled: %w", ctx.Err())
		}
		m.errorf(queryID, "Federated query failed: %v", err)
	}
	md.TotalDuration = time.Since(start)
	return md, err
}

func (m *Manager) pipeline(ctx context.Context, query string, aliases AliasTable, opts Options, md *Metadata, sink Sink, out *Result) error {
	plan, err := m.Plan(query, aliases, opts)
	if err != nil {
		return err
	}
	for _, src := range plan.Sources {
		if _, err := m.sessions.GetSession(src.SessionID); err != nil {
			return &ValidationError{
				Message:          fmt.Sprintf("connection alias '%s' refers to session '%s' which is not open", src.Ref.Alias, src.SessionID),
				AvailableAliases: aliases.Names(),
			}
		}
	}
	m.debugf(md.QueryID, "Planned federated query with %d sources: %s", len(plan.Sources), plan.RewrittenQuery)

	results, err := m.fetchAll(ctx, md, plan)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	eng, err := NewLocalEngine(ctx)
	if err != nil {
		return &ExecutionError{Phase: PhaseLoad, Cause: err}
	}
	defer eng.Close()

	for i, src := range plan.Sources {
		res := results[i]
		if err := eng.CreateTable(ctx, src.Ref.LocalAlias, res.Columns); err != nil {
			return tagSource(err, src)
		}
		if err := eng.LoadBatch(ctx, src.Ref.LocalAlias, res.Rows, nil); err != nil {
			return tagSource(err, src)
		}
	}

	localStart := time.Now()
	if sink == nil {
		columns, rows, err := eng.Execute(ctx, plan.RewrittenQuery)
		md.LocalDuration = time.Since(localStart)
		if err != nil {
			return err
		}
		out.Columns, out.Rows = columns, rows
		return nil
	}

	columns, rows, err := eng.ExecuteForStream(ctx, plan.RewrittenQuery)
	md.LocalDuration = time.Since(localStart)
	if err != nil {
		return err
	}
	eng.Close()
	return relay(ctx, sink, columns, rows)
}

// fetchAll fetches every source concurrently. Results are index-aligned with
// plan.Sources whatever order the fetches finish in.
func (m *Manager) fetchAll(ctx context.Context, md *Metadata, plan *Plan) ([]*adapter.QueryResult, error) {
	results := make([]*adapter.QueryResult, len(plan.Sources))
	fetched := make([]SourceFetchResult, len(plan.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i := range plan.Sources {
		i := i
		g.Go(func() error {
			res, info, err := m.fetchSource(gctx, md.QueryID, i, plan.Sources[i])
			if err != nil {
				return err
			}
			results[i], fetched[i] = res, info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	md.Sources = fetched
	for i, info := range fetched {
		if !info.RowCapHit {
			continue
		}
		warning := fmt.Sprintf("Source '%s.%s' returned the maximum %d rows. Results may be incomplete.",
			info.Alias, info.Table, plan.Sources[i].RowLimit)
		md.Warnings = append(md.Warnings, warning)
		m.warnf(md.QueryID, "%s", warning)
	}
	return results, nil
}

func (m *Manager) fetchSource(ctx context.Context, queryID string, index int, src SourceFetchPlan) (res *adapter.QueryResult, info SourceFetchResult, err error) {
	info = SourceFetchResult{Alias: src.Ref.Alias, Table: src.Ref.Table}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError("fetch of "+src.Ref.Qualified(), r)
		}
	}()

	sourceQueryID := fmt.Sprintf("%s:%d", queryID, index)
	_, sourceTimeout := m.timeouts()
	sctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	type outcome struct {
		res *adapter.QueryResult
		err error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: panicError("fetch of "+src.Ref.Qualified(), r)}
			}
		}()
		r, err := m.sessions.ExecuteInNamespace(sctx, src.SessionID, src.Ref.Namespace(), src.SourceQuery, sourceQueryID)
		ch <- outcome{res: r, err: err}
	}()

	select {
	case out := <-ch:
		info.Duration = time.Since(start)
		switch {
		case out.err == nil:
			res = out.res
		case errors.Is(out.err, ErrInternal):
			return nil, info, out.err
		case ctx.Err() != nil:
			return nil, info, ctx.Err()
		case errors.Is(sctx.Err(), context.DeadlineExceeded):
			return nil, info, &TimeoutError{Scope: ScopeSource, Alias: src.Ref.Alias, Table: src.Ref.Table, Duration: sourceTimeout}
		default:
			return nil, info, &ExecutionError{
				Phase: PhaseFetch,
				Alias: src.Ref.Alias,
				Table: src.Ref.Table,
				Query: src.SourceQuery,
				Cause: out.err,
			}
		}
	case <-sctx.Done():
		info.Duration = time.Since(start)
		m.sessions.Cancel(src.SessionID, sourceQueryID)
		if ctx.Err() != nil {
			return nil, info, ctx.Err()
		}
		return nil, info, &TimeoutError{Scope: ScopeSource, Alias: src.Ref.Alias, Table: src.Ref.Table, Duration: sourceTimeout}
	}

	if res == nil {
		res = &adapter.QueryResult{}
	}
	if dialect, ok := m.planner.Dialects().Lookup(src.DriverID); ok {
		for i, row := range res.Rows {
			res.Rows[i] = dialect.ParseRow(row)
		}
	}
	info.RowsFetched = len(res.Rows)
	info.RowCapHit = src.RowLimit > 0 && info.RowsFetched >= src.RowLimit
	m.metrics.observeFetch(src.DriverID, info.RowsFetched, info.Duration, info.RowCapHit)
	m.infof(queryID, "Fetched %d rows from %s in %s", info.RowsFetched, src.Ref.Qualified(), info.Duration)
	return res, info, nil
}

func relay(ctx context.Context, sink Sink, columns []string, rows [][]interface{}) error {
	if err := sink.Send(ctx, Event{Type: EventColumns, Columns: columns}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := sink.Send(ctx, Event{Type: EventRow, Row: row}); err != nil {
			return err
		}
	}
	return sink.Send(ctx, Event{Type: EventDone, RowCount: len(rows)})
}

func tagSource(err error, src SourceFetchPlan) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		execErr.Alias, execErr.Table = src.Ref.Alias, src.Ref.Table
	}
	return err
}

func sinkClosed(sink Sink) bool {
	select {
	case <-sink.Done():
		return true
	default:
		return false
	}
}

// timeoutOf converts milliseconds to a Duration, saturating instead of
// overflowing.
func timeoutOf(ms uint64) time.Duration {
	if ms > uint64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

func rowLimitOf(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func (m *Manager) debugf(queryID, format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.WithFields(map[string]string{"query_id": queryID}).Debug(format, args...)
	}
}

func (m *Manager) infof(queryID, format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.WithFields(map[string]string{"query_id": queryID}).Info(format, args...)
	}
}

func (m *Manager) warnf(queryID, format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.WithFields(map[string]string{"query_id": queryID}).Warn(format, args...)
	}
}

func (m *Manager) errorf(queryID, format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.WithFields(map[string]string{"query_id": queryID}).Error(format, args...)
	}
}
