package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// QueryOps implements adapter.QueryOperator for MySQL.
type QueryOps struct {
	conn *Connection
}

// ExecuteInNamespace runs query against the namespace's database. MySQL has no
// schemas below a database, so a schema, when given, is taken as the database.
func (q *QueryOps) ExecuteInNamespace(ctx context.Context, ns adapter.Namespace, query string) (*adapter.QueryResult, error) {
	dbType := q.conn.Type()
	target := targetDatabase(q.conn.config.DatabaseName, ns)

	if target == "" {
		rows, err := q.conn.db.QueryContext(ctx, query)
		if err != nil {
			return nil, adapter.WrapError(dbType, "execute_query", err)
		}
		res, err := collectRows(rows)
		if err != nil {
			return nil, adapter.WrapError(dbType, "execute_query", err)
		}
		return res, nil
	}

	// USE is connection state, so pin one connection and restore it before
	// handing it back to the pool.
	conn, err := q.conn.db.Conn(ctx)
	if err != nil {
		return nil, adapter.WrapError(dbType, "acquire", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE "+common.QuoteBacktick(target)); err != nil {
		return nil, adapter.NewDatabaseError(dbType, "use_database", err).With("database", target)
	}
	defer func() {
		if home := q.conn.config.DatabaseName; home != "" {
			if _, err := conn.ExecContext(context.Background(), "USE "+common.QuoteBacktick(home)); err != nil {
				// discard the connection instead of pooling it in the wrong database
				_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
		}
	}()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, adapter.WrapError(dbType, "execute_query", err)
	}
	res, err := collectRows(rows)
	if err != nil {
		return nil, adapter.WrapError(dbType, "execute_query", err)
	}
	return res, nil
}

func targetDatabase(connectedDB string, ns adapter.Namespace) string {
	name := ns.Schema
	if name == "" {
		name = ns.Database
	}
	if name == "" || strings.EqualFold(name, connectedDB) {
		return ""
	}
	return name
}

func collectRows(rows *sql.Rows) (*adapter.QueryResult, error) {
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	res := &adapter.QueryResult{
		Columns: make([]adapter.Column, len(colTypes)),
		Rows:    make([][]interface{}, 0),
	}
	for i, ct := range colTypes {
		res.Columns[i] = adapter.Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]interface{}, len(colTypes))
		valuePtrs := make([]interface{}, len(colTypes))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = convertValue(v, res.Columns[i].Type)
		}
		res.Rows = append(res.Rows, values)
	}

	return res, rows.Err()
}

// convertValue turns the driver's raw bytes into text for every non-binary type.
func convertValue(v interface{}, dbType string) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return common.NormalizeValue(v)
	}
	switch strings.ToUpper(dbType) {
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "GEOMETRY":
		out := make([]byte, len(b))
		copy(out, b)
		return out
	default:
		return string(b)
	}
}
