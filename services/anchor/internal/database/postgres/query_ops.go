package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

var typeMap = pgtype.NewMap()

// QueryOps implements adapter.QueryOperator for PostgreSQL.
type QueryOps struct {
	conn *Connection
}

// ExecuteInNamespace runs query with the namespace's schema as search_path.
// The search_path is set transaction-locally so pooled connections are not affected.
func (q *QueryOps) ExecuteInNamespace(ctx context.Context, ns adapter.Namespace, query string) (*adapter.QueryResult, error) {
	dbType := q.conn.Type()
	schema := searchPathFor(q.conn.config.DatabaseName, ns)

	if schema == "" {
		rows, err := q.conn.pool.Query(ctx, query)
		if err != nil {
			return nil, adapter.WrapError(dbType, "execute_query", err)
		}
		res, err := collectRows(rows)
		if err != nil {
			return nil, adapter.WrapError(dbType, "execute_query", err)
		}
		return res, nil
	}

	tx, err := q.conn.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, adapter.WrapError(dbType, "begin", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, "SELECT set_config('search_path', $1, true)", schema); err != nil {
		return nil, adapter.NewDatabaseError(dbType, "set_search_path", err).With("schema", schema)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, adapter.WrapError(dbType, "execute_query", err)
	}
	res, err := collectRows(rows)
	if err != nil {
		return nil, adapter.WrapError(dbType, "execute_query", err)
	}
	return res, nil
}

// searchPathFor picks the schema to search. References look like
// alias.database[.schema].table; on PostgreSQL the middle segment of a
// three-part reference usually names a schema, not a second database.
func searchPathFor(connectedDB string, ns adapter.Namespace) string {
	if ns.Schema != "" {
		return ns.Schema
	}
	if ns.Database != "" && !strings.EqualFold(ns.Database, connectedDB) {
		return ns.Database
	}
	return ""
}

func collectRows(rows pgx.Rows) (*adapter.QueryResult, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &adapter.QueryResult{
		Columns: make([]adapter.Column, len(fields)),
		Rows:    make([][]interface{}, 0),
	}
	for i, fd := range fields {
		res.Columns[i] = adapter.Column{Name: fd.Name, Type: typeName(fd.DataTypeOID)}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, common.NormalizeRow(values))
	}

	return res, rows.Err()
}

func typeName(oid uint32) string {
	if t, ok := typeMap.TypeForOID(oid); ok {
		return t.Name
	}
	return "unknown"
}
