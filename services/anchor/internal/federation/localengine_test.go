package federation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
)

func newTestEngine(t *testing.T) *LocalEngine {
	t.Helper()
	eng, err := NewLocalEngine(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestLocalEngineJoin(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	require.NoError(t, eng.CreateTable(ctx, "__fed_users_0", []adapter.Column{
		{Name: "id", Type: "int8"}, {Name: "email", Type: "text"}, {Name: "active", Type: "bool"},
	}))
	require.NoError(t, eng.LoadBatch(ctx, "__fed_users_0", [][]interface{}{
		{int64(1), "a@example.com", true},
		{int64(2), "b@example.com", false},
	}, nil))

	require.NoError(t, eng.CreateTable(ctx, "__fed_events_1", []adapter.Column{
		{Name: "user_id", Type: "int64"}, {Name: "type", Type: "string"}, {Name: "score", Type: "double"},
	}))
	require.NoError(t, eng.LoadBatch(ctx, "__fed_events_1", [][]interface{}{
		{int32(1), "click", 1.5},
		{int32(1), "view", 0.5},
		{int32(2), "view", 2.0},
	}, nil))

	cols, rows, err := eng.Execute(ctx, `SELECT u.email, count(*) AS n, sum(e.score) AS total
		FROM __fed_users_0 u JOIN __fed_events_1 e ON e.user_id = u.id
		WHERE u.active = 1 GROUP BY u.email`)
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "n", "total"}, cols)
	assert.Equal(t, [][]interface{}{{"a@example.com", int64(2), 2.0}}, rows)

	cols, rows, err = eng.ExecuteForStream(ctx, "SELECT type FROM __fed_events_1 ORDER BY type, user_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"type"}, cols)
	assert.Equal(t, [][]interface{}{{"click"}, {"view"}, {"view"}}, rows)

	assert.ElementsMatch(t, []string{"__fed_users_0", "__fed_events_1"}, eng.Tables())
}

func TestLocalEngineLoadsLargeBatches(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable(ctx, "t", []adapter.Column{{Name: "n", Type: "integer"}}))

	rows := make([][]interface{}, 1234)
	for i := range rows {
		rows[i] = []interface{}{i}
	}
	require.NoError(t, eng.LoadBatch(ctx, "t", rows, nil))

	_, out, err := eng.Execute(ctx, "SELECT count(*), max(n) FROM t")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{int64(1234), int64(1233)}}, out)
}

func TestLocalEngineColumnNames(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	require.NoError(t, eng.CreateTable(ctx, "docs", []adapter.Column{
		{Name: "Name", Type: "string"}, {Name: "name", Type: "string"}, {Name: ""},
	}))
	require.NoError(t, eng.LoadBatch(ctx, "docs", [][]interface{}{{"A", "a", nil}, {"B"}}, nil))

	cols, rows, err := eng.Execute(ctx, "SELECT * FROM docs ORDER BY 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "name_2", "column_3"}, cols)
	assert.Equal(t, [][]interface{}{{"A", "a", nil}, {"B", nil, nil}}, rows)
}

func TestLocalEngineEmptySource(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	require.NoError(t, eng.CreateTable(ctx, "empty", nil))
	require.NoError(t, eng.LoadBatch(ctx, "empty", nil, nil))

	_, rows, err := eng.Execute(ctx, "SELECT count(*) FROM empty")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{int64(0)}}, rows)
}

func TestLocalEngineValueTypes(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	ts := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, eng.CreateTable(ctx, "v", []adapter.Column{
		{Name: "amount", Type: "numeric"}, {Name: "created", Type: "timestamptz"}, {Name: "payload", Type: "jsonb"},
	}))
	require.NoError(t, eng.LoadBatch(ctx, "v", [][]interface{}{
		{"12.50", ts, map[string]interface{}{"k": 1}},
	}, nil))

	_, rows, err := eng.Execute(ctx, "SELECT amount * 2, created, payload FROM v")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25.0, rows[0][0])
	created, ok := rows[0][1].(time.Time)
	require.True(t, ok, "timestamp columns come back as time.Time")
	assert.True(t, ts.Equal(created))
	assert.Equal(t, `{"k":1}`, rows[0][2])
}

func TestLocalEngineErrors(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	err := eng.LoadBatch(ctx, "missing", [][]interface{}{{1}}, nil)
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, PhaseLoad, execErr.Phase)
	assert.Equal(t, "missing", execErr.LocalTable)

	require.NoError(t, eng.CreateTable(ctx, "t", []adapter.Column{{Name: "a"}}))
	err = eng.CreateTable(ctx, "t", []adapter.Column{{Name: "a"}})
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, PhaseCreateTable, execErr.Phase)

	err = eng.LoadBatch(ctx, "t", [][]interface{}{{1, 2}}, nil)
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, err.Error(), "2 values for 1 columns")

	_, _, err = eng.Execute(ctx, "SELECT nope FROM t")
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, PhaseExecute, execErr.Phase)
	assert.Equal(t, "SELECT nope FROM t", execErr.Query)
	assert.True(t, errors.Is(err, ErrExecution))
}

func TestLocalEnginesAreIsolated(t *testing.T) {
	ctx := context.Background()
	first := newTestEngine(t)
	second := newTestEngine(t)

	require.NoError(t, first.CreateTable(ctx, "t", []adapter.Column{{Name: "a"}}))
	_, _, err := second.Execute(ctx, "SELECT * FROM t")
	assert.Error(t, err)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
}

func TestAffinity(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"int4":         "INTEGER",
		"BIGINT":       "INTEGER",
		"bool":         "INTEGER",
		"double":       "REAL",
		"float8":       "REAL",
		"numeric":      "NUMERIC",
		"DECIMAL":      "NUMERIC",
		"timestamptz":  "TIMESTAMP",
		"DATETIME":     "TIMESTAMP",
		"date":         "DATE",
		"bytea":        "BLOB",
		"VARBINARY":    "BLOB",
		"interval":     "TEXT",
		"point":        "TEXT",
		"varchar":      "TEXT",
		"uuid":         "TEXT",
		"string":       "TEXT",
	}
	for in, want := range tests {
		assert.Equal(t, want, affinity(in), in)
	}
}
