package federation

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
)

// Defaults applied when neither the request nor the manager configuration
// supplies a value.
const (
	DefaultRowLimit      = 100000
	DefaultTimeout       = 60 * time.Second
	DefaultSourceTimeout = 30 * time.Second
	DefaultStreamBuffer  = 100
)

// AliasEntry binds a connection alias to an open backend session.
type AliasEntry struct {
	SessionID   string `json:"session_id"`
	DriverID    string `json:"driver_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// AliasTable maps connection aliases ("prod_pg") to their sessions. It is
// read-only for the duration of a request.
type AliasTable map[string]AliasEntry

// Names returns the aliases in sorted order.
func (t AliasTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableRef is one occurrence of alias.database[.schema].table in a query.
type TableRef struct {
	Alias      string `json:"alias"`
	Database   string `json:"database"`
	Schema     string `json:"schema,omitempty"`
	Table      string `json:"table"`
	LocalAlias string `json:"local_alias"`

	// Original is the reference as written, Start and End its byte span.
	Original string `json:"original"`
	Start    int    `json:"-"`
	End      int    `json:"-"`
}

// Namespace returns the backend namespace the table lives in.
func (r TableRef) Namespace() adapter.Namespace {
	return adapter.Namespace{Database: r.Database, Schema: r.Schema}
}

// Qualified renders alias.table as used in warnings and errors.
func (r TableRef) Qualified() string {
	return r.Alias + "." + r.Table
}

// SourceFetchPlan describes what to fetch from one source.
type SourceFetchPlan struct {
	Ref         TableRef `json:"ref"`
	SessionID   string   `json:"session_id"`
	DriverID    string   `json:"driver_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Predicates  []string `json:"pushdown_predicates,omitempty"`
	RowLimit    int      `json:"row_limit"`
	SourceQuery string   `json:"source_query"`
}

// Plan is the compiled form of one federated query.
type Plan struct {
	Sources        []SourceFetchPlan `json:"sources"`
	RewrittenQuery string            `json:"rewritten_query"`
	OriginalQuery  string            `json:"original_query"`
	Stream         bool              `json:"stream"`
}

// SourceFetchResult reports how one source fetch went.
type SourceFetchResult struct {
	Alias       string
	Table       string
	RowsFetched int
	Duration    time.Duration
	RowCapHit   bool
}

func (r SourceFetchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Alias       string `json:"alias"`
		Table       string `json:"table"`
		RowsFetched int    `json:"rows_fetched"`
		DurationMs  int64  `json:"fetch_duration_ms"`
		RowCapHit   bool   `json:"row_cap_hit"`
	}{r.Alias, r.Table, r.RowsFetched, r.Duration.Milliseconds(), r.RowCapHit})
}

// Metadata aggregates the per-source results of a request.
type Metadata struct {
	QueryID       string
	Sources       []SourceFetchResult
	LocalDuration time.Duration
	TotalDuration time.Duration
	Warnings      []string
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	sources := m.Sources
	if sources == nil {
		sources = []SourceFetchResult{}
	}
	warnings := m.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return json.Marshal(struct {
		QueryID         string              `json:"query_id"`
		Sources         []SourceFetchResult `json:"sources"`
		LocalDurationMs int64               `json:"local_duration_ms"`
		TotalDurationMs int64               `json:"total_duration_ms"`
		Warnings        []string            `json:"warnings"`
	}{m.QueryID, sources, m.LocalDuration.Milliseconds(), m.TotalDuration.Milliseconds(), warnings})
}

// Result is the materialized output of the rewritten query.
type Result struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Options are the per-request knobs. Zero values select the defaults.
type Options struct {
	TimeoutMs         uint64 `json:"timeout_ms,omitempty"`
	Stream            bool   `json:"stream,omitempty"`
	QueryID           string `json:"query_id,omitempty"`
	RowLimitPerSource uint64 `json:"row_limit_per_source,omitempty"`
}
