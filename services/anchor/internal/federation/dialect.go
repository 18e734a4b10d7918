package federation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redbco/redb-federation/pkg/dbcapabilities"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// Dialect synthesizes a backend's native fetch for one source and converts
// the rows it returns into local-engine values.
type Dialect interface {
	BuildSourceQuery(src SourceFetchPlan) (string, error)
	ParseRow(row []interface{}) []interface{}
}

// DialectRegistry maps driver ids to dialects.
type DialectRegistry struct {
	mu       sync.RWMutex
	dialects map[string]Dialect
}

// NewDialectRegistry returns a registry holding the built-in dialects.
func NewDialectRegistry() *DialectRegistry {
	r := &DialectRegistry{dialects: make(map[string]Dialect)}
	quoted := SQLDialect{Quote: common.QuoteIdentifier}
	for _, id := range []dbcapabilities.DatabaseID{
		dbcapabilities.PostgreSQL, dbcapabilities.CockroachDB, dbcapabilities.Redshift,
		dbcapabilities.TimescaleDB, dbcapabilities.DuckDB,
	} {
		r.RegisterDialect(string(id), quoted)
	}
	backtick := SQLDialect{Quote: common.QuoteBacktick}
	for _, id := range []dbcapabilities.DatabaseID{
		dbcapabilities.MySQL, dbcapabilities.MariaDB, dbcapabilities.TiDB,
	} {
		r.RegisterDialect(string(id), backtick)
	}
	r.RegisterDialect(string(dbcapabilities.MongoDB), DocumentDialect{})
	r.RegisterDialect(string(dbcapabilities.Redis), KeyValueDialect{})
	return r
}

// RegisterDialect adds or replaces the dialect for driverID.
func (r *DialectRegistry) RegisterDialect(driverID string, d Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialects[strings.ToLower(driverID)] = d
}

// Lookup finds the dialect for driverID, trying the id as given, then its
// canonical form ("postgresql" -> "postgres"), then the SQL fallback for
// relational and columnar backends.
func (r *DialectRegistry) Lookup(driverID string) (Dialect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.dialects[strings.ToLower(driverID)]; ok {
		return d, true
	}
	id, ok := dbcapabilities.ParseID(driverID)
	if !ok {
		return nil, false
	}
	if d, ok := r.dialects[string(id)]; ok {
		return d, true
	}
	if dbcapabilities.IsSQLFamily(id) {
		return SQLDialect{Quote: common.QuoteIdentifier}, true
	}
	return nil, false
}

// SQLDialect renders SELECT <cols|*> FROM <table> [WHERE ...] LIMIT <cap>.
type SQLDialect struct {
	Quote func(string) string
}

func (d SQLDialect) BuildSourceQuery(src SourceFetchPlan) (string, error) {
	quote := d.Quote
	if quote == nil {
		quote = common.QuoteIdentifier
	}
	cols := "*"
	if len(src.Columns) > 0 {
		quoted := make([]string, len(src.Columns))
		for i, c := range src.Columns {
			quoted[i] = quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quote(src.Ref.Table))
	if len(src.Predicates) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(src.Predicates, " AND "))
	}
	fmt.Fprintf(&b, " LIMIT %d", src.RowLimit)
	return b.String(), nil
}

func (d SQLDialect) ParseRow(row []interface{}) []interface{} {
	return common.NormalizeRow(row)
}

// DocumentDialect renders a find command document:
// {"find":"<collection>","filter":{},"limit":<cap>}.
type DocumentDialect struct{}

func (DocumentDialect) BuildSourceQuery(src SourceFetchPlan) (string, error) {
	table, err := json.Marshal(src.Ref.Table)
	if err != nil {
		return "", err
	}
	filter := "{}"
	switch n := len(src.Predicates); {
	case n == 1:
		filter = src.Predicates[0]
	case n > 1:
		filter = `{"$and":[` + strings.Join(src.Predicates, ",") + `]}`
	}
	if !json.Valid([]byte(filter)) {
		return "", fmt.Errorf("document predicates must be JSON filter documents, got %s", filter)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `{"find":%s,"filter":%s`, table, filter)
	if len(src.Columns) > 0 {
		b.WriteString(`,"projection":{`)
		for i, c := range src.Columns {
			name, err := json.Marshal(c)
			if err != nil {
				return "", err
			}
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:1", name)
		}
		b.WriteByte('}')
	}
	fmt.Fprintf(&b, `,"limit":%d}`, src.RowLimit)
	return b.String(), nil
}

func (DocumentDialect) ParseRow(row []interface{}) []interface{} {
	return common.NormalizeRow(row)
}

// KeyValueDialect renders a keyspace scan over <table>:*.
type KeyValueDialect struct{}

func (KeyValueDialect) BuildSourceQuery(src SourceFetchPlan) (string, error) {
	if len(src.Predicates) > 0 {
		return "", fmt.Errorf("key-value sources do not support predicates")
	}
	if strings.ContainsAny(src.Ref.Table, " \t\r\n") {
		return "", fmt.Errorf("key prefix %q contains whitespace", src.Ref.Table)
	}
	return fmt.Sprintf("SCAN 0 MATCH %s:* COUNT %d", src.Ref.Table, src.RowLimit), nil
}

func (KeyValueDialect) ParseRow(row []interface{}) []interface{} {
	return common.NormalizeRow(row)
}
