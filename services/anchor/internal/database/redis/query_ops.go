package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

const maxScanBatch = 1000

// ScanCommand is the native query text accepted by ExecuteInNamespace:
//
//	SCAN 0 MATCH users:* COUNT 100000
//
// COUNT bounds the total number of keys returned, not the per-call hint.
type ScanCommand struct {
	Cursor uint64
	Match  string
	Count  int64
}

// ParseScanCommand parses a SCAN command line.
func ParseScanCommand(query string) (*ScanCommand, error) {
	fields := strings.Fields(query)
	if len(fields) > 0 && !strings.EqualFold(fields[0], "SCAN") {
		return nil, adapter.NewUnsupportedOperationError(dbcapabilities.Redis, strings.ToUpper(fields[0]), "only SCAN keyspace reads are federated")
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: expected SCAN <cursor> [MATCH pattern] [COUNT n]", adapter.ErrInvalidQuery)
	}

	cursor, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cursor %q", adapter.ErrInvalidQuery, fields[1])
	}
	cmd := &ScanCommand{Cursor: cursor, Match: "*"}

	for i := 2; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			return nil, fmt.Errorf("%w: %s needs a value", adapter.ErrInvalidQuery, fields[i])
		}
		switch strings.ToUpper(fields[i]) {
		case "MATCH":
			cmd.Match = fields[i+1]
		case "COUNT":
			n, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad count %q", adapter.ErrInvalidQuery, fields[i+1])
			}
			cmd.Count = n
		default:
			return nil, fmt.Errorf("%w: unknown SCAN option %s", adapter.ErrInvalidQuery, fields[i])
		}
	}
	return cmd, nil
}

// keyPrefix is the literal part of the pattern before the first glob character.
func (c *ScanCommand) keyPrefix() string {
	if i := strings.IndexAny(c.Match, "*?[\\"); i >= 0 {
		return c.Match[:i]
	}
	return c.Match
}

// QueryOps implements adapter.QueryOperator for Redis.
type QueryOps struct {
	conn *Connection
}

type keyEntry struct {
	key   string
	hash  map[string]string
	value interface{}
}

// ExecuteInNamespace scans matching keys and returns one row per key. Hash keys
// contribute one column per field; other types fill a "value" column (lists,
// sets and sorted sets as JSON arrays). The namespace is ignored: a connection
// is bound to one logical database.
func (q *QueryOps) ExecuteInNamespace(ctx context.Context, ns adapter.Namespace, query string) (*adapter.QueryResult, error) {
	cmd, err := ParseScanCommand(query)
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.Redis, "parse_query", err)
	}

	keys, err := q.scanKeys(ctx, cmd)
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.Redis, "scan", err)
	}

	entries, err := q.loadEntries(ctx, keys)
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.Redis, "read_values", err)
	}

	return assembleResult(cmd.keyPrefix(), entries), nil
}

func (q *QueryOps) scanKeys(ctx context.Context, cmd *ScanCommand) ([]string, error) {
	batch := int64(maxScanBatch)
	if cmd.Count > 0 && cmd.Count < batch {
		batch = cmd.Count
	}

	var keys []string
	cursor := cmd.Cursor
	for {
		page, next, err := q.conn.client.Scan(ctx, cursor, cmd.Match, batch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if cmd.Count > 0 && int64(len(keys)) >= cmd.Count {
			return keys[:cmd.Count], nil
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (q *QueryOps) loadEntries(ctx context.Context, keys []string) ([]keyEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	typePipe := q.conn.client.Pipeline()
	typeCmds := make([]*redis.StatusCmd, len(keys))
	for i, k := range keys {
		typeCmds[i] = typePipe.Type(ctx, k)
	}
	if _, err := typePipe.Exec(ctx); err != nil {
		return nil, err
	}

	valuePipe := q.conn.client.Pipeline()
	valueCmds := make([]redis.Cmder, len(keys))
	for i, k := range keys {
		switch typeCmds[i].Val() {
		case "hash":
			valueCmds[i] = valuePipe.HGetAll(ctx, k)
		case "string":
			valueCmds[i] = valuePipe.Get(ctx, k)
		case "list":
			valueCmds[i] = valuePipe.LRange(ctx, k, 0, -1)
		case "set":
			valueCmds[i] = valuePipe.SMembers(ctx, k)
		case "zset":
			valueCmds[i] = valuePipe.ZRange(ctx, k, 0, -1)
		}
	}
	// redis.Nil from keys that expired between SCAN and GET is not an error here
	if _, err := valuePipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]keyEntry, 0, len(keys))
	for i, k := range keys {
		entry := keyEntry{key: k}
		switch c := valueCmds[i].(type) {
		case *redis.MapStringStringCmd:
			entry.hash = c.Val()
		case *redis.StringCmd:
			if c.Err() == redis.Nil {
				continue
			}
			entry.value = c.Val()
		case *redis.StringSliceCmd:
			b, _ := json.Marshal(c.Val())
			entry.value = string(b)
		default:
			// streams and module types are skipped
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func assembleResult(prefix string, entries []keyEntry) *adapter.QueryResult {
	res := &adapter.QueryResult{
		Columns: []adapter.Column{{Name: "key", Type: "string"}, {Name: "id", Type: "string"}},
		Rows:    make([][]interface{}, 0, len(entries)),
	}
	index := map[string]int{"key": 0, "id": 1}

	addColumn := func(name string) {
		if _, ok := index[name]; !ok {
			index[name] = len(res.Columns)
			res.Columns = append(res.Columns, adapter.Column{Name: name, Type: "string"})
		}
	}

	for _, e := range entries {
		if e.hash != nil {
			fields := make([]string, 0, len(e.hash))
			for f := range e.hash {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				addColumn(f)
			}
		} else {
			addColumn("value")
		}
	}

	for _, e := range entries {
		row := make([]interface{}, len(res.Columns))
		row[0] = e.key
		row[1] = strings.TrimPrefix(e.key, prefix)
		if e.hash != nil {
			for f, v := range e.hash {
				row[index[f]] = v
			}
		} else {
			row[index["value"]] = e.value
		}
		res.Rows = append(res.Rows, row)
	}

	return res
}
