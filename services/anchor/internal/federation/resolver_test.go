package federation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAliases = []string{"analytics_mongo", "cache", "prod_pg", "shop_mysql"}

func TestResolveTableReferences(t *testing.T) {
	type ref struct {
		alias, database, schema, table, local string
	}
	tests := []struct {
		name    string
		query   string
		refs    []ref
		unknown []string
	}{
		{
			name:  "join across two sources",
			query: "SELECT u.email, e.type FROM prod_pg.public.users u JOIN analytics_mongo.analytics.events e ON e.user_id = u.id",
			refs: []ref{
				{"prod_pg", "public", "", "users", "__fed_users_0"},
				{"analytics_mongo", "analytics", "", "events", "__fed_events_1"},
			},
		},
		{
			name:  "database and schema",
			query: "SELECT * FROM prod_pg.app.public.users",
			refs:  []ref{{"prod_pg", "app", "public", "users", "__fed_users_0"}},
		},
		{
			name:  "comma separated from list",
			query: "SELECT * FROM prod_pg.public.users u, analytics_mongo.analytics.events e WHERE e.user_id = u.id",
			refs: []ref{
				{"prod_pg", "public", "", "users", "__fed_users_0"},
				{"analytics_mongo", "analytics", "", "events", "__fed_events_1"},
			},
		},
		{
			name:  "same table twice",
			query: "SELECT a.id FROM prod_pg.public.users a JOIN prod_pg.public.users b ON a.manager_id = b.id",
			refs: []ref{
				{"prod_pg", "public", "", "users", "__fed_users_0"},
				{"prod_pg", "public", "", "users", "__fed_users_1"},
			},
		},
		{
			name:  "lower case keywords",
			query: "select * from shop_mysql.shop.orders o left join prod_pg.public.users u on u.id = o.user_id",
			refs: []ref{
				{"shop_mysql", "shop", "", "orders", "__fed_orders_0"},
				{"prod_pg", "public", "", "users", "__fed_users_1"},
			},
		},
		{
			name:  "quoted identifiers",
			query: `SELECT * FROM "prod_pg"."public"."user list"`,
			refs:  []ref{{"prod_pg", "public", "", "user list", "__fed_user_list_0"}},
		},
		{
			name:  "subquery then comma",
			query: "SELECT * FROM (SELECT id FROM prod_pg.public.users WHERE active) t, analytics_mongo.analytics.events e",
			refs: []ref{
				{"prod_pg", "public", "", "users", "__fed_users_0"},
				{"analytics_mongo", "analytics", "", "events", "__fed_events_1"},
			},
		},
		{
			name:  "literals and comments are ignored",
			query: "SELECT 'FROM prod_pg.public.users' AS s FROM local_table -- JOIN prod_pg.public.x\n/* FROM prod_pg.public.y */",
		},
		{
			name:  "function arguments after where are not tables",
			query: "SELECT * FROM cache.kv.sessions s WHERE coalesce(s.user, 'x') IN ('a', 'b')",
			refs:  []ref{{"cache", "kv", "", "sessions", "__fed_sessions_0"}},
		},
		{
			name:  "from inside extract is not a table position",
			query: "SELECT EXTRACT(YEAR FROM prod_pg.public.users.created_at) AS y FROM prod_pg.public.users",
			refs:  []ref{{"prod_pg", "public", "", "users", "__fed_users_0"}},
		},
		{
			name:  "subquery nested in a from-argument function",
			query: "SELECT TRIM(BOTH FROM (SELECT name FROM shop_mysql.shop.orders LIMIT 1))",
			refs:  []ref{{"shop_mysql", "shop", "", "orders", "__fed_orders_0"}},
		},
		{
			name:  "two segment chain with unknown lead is local",
			query: "SELECT * FROM main.lookup",
		},
		{
			name:    "three segment chain with unknown lead",
			query:   "SELECT * FROM warehouse.public.orders",
			unknown: []string{"warehouse.public.orders"},
		},
		{
			name:  "alias outside table position",
			query: "SELECT prod_pg.public.users.email FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.query, testAliases)
			require.NoError(t, err)

			got := make([]ref, len(res.Refs))
			for i, r := range res.Refs {
				got[i] = ref{r.Alias, r.Database, r.Schema, r.Table, r.LocalAlias}
				assert.Equal(t, r.Original, tt.query[r.Start:r.End])
			}
			if tt.refs == nil {
				tt.refs = []ref{}
			}
			assert.Equal(t, tt.refs, got)
			assert.Equal(t, tt.unknown, res.Unknown)
		})
	}
}

func TestResolveMalformedReference(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fragment string
		message  string
	}{
		{"missing table", "SELECT * FROM prod_pg.users", "prod_pg.users", "incomplete"},
		{"too many segments", "SELECT * FROM prod_pg.a.b.c.d", "prod_pg.a.b.c.d", "ambiguous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.query, testAliases)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.fragment, verr.Fragment)
			assert.Contains(t, verr.Error(), tt.message)
		})
	}
}

func TestRewrite(t *testing.T) {
	mapping := map[string]string{
		"prod_pg.public.users":            "__fed_users_0",
		`"analytics_mongo".analytics.events`: "__fed_events_1",
	}
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "qualified column keeps its tail",
			query: "SELECT prod_pg.public.users.email FROM x",
			want:  "SELECT __fed_users_0.email FROM x",
		},
		{
			name:  "segment boundary",
			query: "SELECT prod_pg.public.users_archive.id FROM prod_pg.public.users",
			want:  "SELECT prod_pg.public.users_archive.id FROM __fed_users_0",
		},
		{
			name:  "quoting does not matter",
			query: `SELECT * FROM analytics_mongo."analytics"."events"`,
			want:  "SELECT * FROM __fed_events_1",
		},
		{
			name:  "literal untouched",
			query: "SELECT 'prod_pg.public.users', 'it''s prod_pg.public.users' FROM prod_pg.public.users",
			want:  "SELECT 'prod_pg.public.users', 'it''s prod_pg.public.users' FROM __fed_users_0",
		},
		{
			name:  "comments untouched",
			query: "SELECT 1 -- prod_pg.public.users\nFROM prod_pg.public.users /* prod_pg.public.users */",
			want:  "SELECT 1 -- prod_pg.public.users\nFROM __fed_users_0 /* prod_pg.public.users */",
		},
		{
			name:  "shorter chain is not rewritten",
			query: "SELECT prod_pg.public FROM t",
			want:  "SELECT prod_pg.public FROM t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rewrite(tt.query, mapping)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteRejectsMalformedKey(t *testing.T) {
	_, err := Rewrite("SELECT 1", map[string]string{"prod_pg..users": "x"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSubstitute(t *testing.T) {
	query := "SELECT * FROM prod_pg.public.users a JOIN prod_pg.public.users b ON a.id = b.id"
	res, err := Resolve(query, testAliases)
	require.NoError(t, err)

	out, err := Substitute(query, res.Refs)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM __fed_users_0 a JOIN __fed_users_1 b ON a.id = b.id", out)

	_, err = Substitute("short", res.Refs)
	assert.Error(t, err)
}

func TestTokenizeReproducesInput(t *testing.T) {
	inputs := []string{
		"",
		"SELECT 1",
		"SELECT \"a\"\"b\".c FROM `x`.y -- trailing",
		"SELECT 'unterminated",
		"SELECT /* unterminated",
		"SELECT $1::int, x->>'k' FROM t WHERE a <> 2.5e3;",
		"SELECT naïve FROM café.menu",
	}
	for _, in := range inputs {
		var b strings.Builder
		for _, lx := range tokenize(in) {
			b.WriteString(lx.text)
		}
		assert.Equal(t, in, b.String())
	}
}

func TestSplitChain(t *testing.T) {
	segs := splitChain(`prod_pg."my ""quoted"" schema".users`)
	require.Len(t, segs, 3)
	assert.Equal(t, "prod_pg", segs[0].Name)
	assert.Equal(t, `my "quoted" schema`, segs[1].Name)
	assert.True(t, segs[1].Quoted)
	assert.Equal(t, "users", segs[2].Name)

	assert.Nil(t, splitChain("a..b"))
	assert.Nil(t, splitChain("a b"))
}

func TestLocalAliasSanitizesTableName(t *testing.T) {
	assert.Equal(t, "__fed_user_events_v2_3", localAlias("user-events.v2", 3))
}
