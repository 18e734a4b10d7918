package federation

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// maxBindVariables stays below SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const (
	maxBindVariables = 32000
	maxBatchRows     = 500
)

// emptyColumn is declared for sources that reported no columns at all.
const emptyColumn = "_fed_empty"

// LocalEngine is a disposable in-memory SQLite database holding the
// ephemeral tables of one federated request. It is not safe for concurrent
// use; the owning request drives it from a single goroutine.
type LocalEngine struct {
	db *sql.DB

	mu      sync.Mutex
	columns map[string][]string
	closed  bool
}

// NewLocalEngine opens a fresh in-memory database.
func NewLocalEngine(ctx context.Context) (*LocalEngine, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open local engine: %w", err)
	}
	// every connection to :memory: is its own database, so there must be
	// exactly one and it must never be recycled
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to local engine: %w", err)
	}
	return &LocalEngine{db: db, columns: make(map[string][]string)}, nil
}

// CreateTable declares an ephemeral table. Column types are the backend's
// type names and are mapped onto SQLite affinities.
func (e *LocalEngine) CreateTable(ctx context.Context, name string, columns []adapter.Column) error {
	names := uniqueColumnNames(columns)
	defs := make([]string, len(names))
	for i, n := range names {
		def := common.QuoteIdentifier(n)
		if i < len(columns) {
			if t := affinity(columns[i].Type); t != "" {
				def += " " + t
			}
		}
		defs[i] = def
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", common.QuoteIdentifier(name), strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return &ExecutionError{Phase: PhaseCreateTable, LocalTable: name, Cause: err}
	}

	e.mu.Lock()
	e.columns[name] = names
	e.mu.Unlock()
	return nil
}

// LoadBatch inserts rows into a table created by CreateTable using
// multi-row INSERT statements inside one transaction. columns names the
// order of values in each row; nil means the declared order.
func (e *LocalEngine) LoadBatch(ctx context.Context, name string, rows [][]interface{}, columns []string) error {
	e.mu.Lock()
	declared, ok := e.columns[name]
	e.mu.Unlock()
	if !ok {
		return &ExecutionError{Phase: PhaseLoad, LocalTable: name, Cause: fmt.Errorf("table does not exist")}
	}
	if len(rows) == 0 {
		return nil
	}
	if columns == nil || (len(declared) == 1 && declared[0] == emptyColumn) {
		columns = declared
	}
	width := len(columns)

	quoted := make([]string, width)
	for i, c := range columns {
		quoted[i] = common.QuoteIdentifier(c)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(quoted)), ",") + ")"
	perStmt := maxBindVariables / len(quoted)
	if perStmt > maxBatchRows {
		perStmt = maxBatchRows
	}
	if perStmt < 1 {
		perStmt = 1
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", common.QuoteIdentifier(name), strings.Join(quoted, ", "))

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return &ExecutionError{Phase: PhaseLoad, LocalTable: name, Cause: err}
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += perStmt {
		end := start + perStmt
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]interface{}, 0, len(chunk)*len(quoted))
		for i, row := range chunk {
			for c := 0; c < len(quoted); c++ {
				var v interface{}
				if c < len(row) {
					v = bindValue(row[c])
				}
				args = append(args, v)
			}
			if len(row) > width {
				return &ExecutionError{
					Phase:      PhaseLoad,
					LocalTable: name,
					Cause:      fmt.Errorf("row %d has %d values for %d columns", start+i, len(row), width),
				}
			}
		}
		stmt := prefix + strings.TrimSuffix(strings.Repeat(placeholder+",", len(chunk)), ",")
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return &ExecutionError{Phase: PhaseLoad, LocalTable: name, Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &ExecutionError{Phase: PhaseLoad, LocalTable: name, Cause: err}
	}
	return nil
}

// Execute runs query and materializes its result.
func (e *LocalEngine) Execute(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	return e.query(ctx, query)
}

// ExecuteForStream runs query for a streaming caller. The result is fully
// read on the calling goroutine; relaying rows to a consumer is the
// caller's job once the engine is no longer in use.
func (e *LocalEngine) ExecuteForStream(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	return e.query(ctx, query)
}

func (e *LocalEngine) query(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, &ExecutionError{Phase: PhaseExecute, Query: query, Cause: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, &ExecutionError{Phase: PhaseExecute, Query: query, Cause: err}
	}
	result := make([][]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, &ExecutionError{Phase: PhaseExecute, Query: query, Cause: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &ExecutionError{Phase: PhaseExecute, Query: query, Cause: err}
	}
	return columns, result, nil
}

// Tables lists the ephemeral tables created so far.
func (e *LocalEngine) Tables() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.columns))
	for n := range e.columns {
		names = append(names, n)
	}
	return names
}

// Close discards the database and every table in it.
func (e *LocalEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.db.Close()
}

// uniqueColumnNames fills in blank names and disambiguates names that
// collide case-insensitively, which SQLite rejects.
func uniqueColumnNames(columns []adapter.Column) []string {
	if len(columns) == 0 {
		return []string{emptyColumn}
	}
	names := make([]string, len(columns))
	used := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := c.Name
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; used[strings.ToLower(candidate)]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		used[strings.ToLower(candidate)] = true
		names[i] = candidate
	}
	return names
}

// affinity maps a backend type name to a SQLite column type. Unknown types
// get no declared type so values keep their own storage class.
func affinity(typeName string) string {
	t := strings.ToUpper(typeName)
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "BOOL"):
		return "INTEGER"
	case strings.Contains(t, "INTERVAL"), strings.Contains(t, "POINT"):
		return "TEXT"
	case strings.Contains(t, "INT") || t == "SERIAL" || t == "BIGSERIAL" || t == "OID":
		return "INTEGER"
	case strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"), strings.Contains(t, "REAL"):
		return "REAL"
	case strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"), strings.Contains(t, "MONEY"):
		return "NUMERIC"
	case strings.Contains(t, "TIMESTAMP"), strings.Contains(t, "DATETIME"):
		return "TIMESTAMP"
	case t == "DATE":
		return "DATE"
	case strings.Contains(t, "BYTEA"), strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"):
		return "BLOB"
	default:
		return "TEXT"
	}
}

func bindValue(v interface{}) interface{} {
	v = common.NormalizeValue(v)
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
