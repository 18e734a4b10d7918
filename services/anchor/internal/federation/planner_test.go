package federation

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinQuery = "SELECT u.email, e.type FROM prod_pg.public.users u JOIN analytics_mongo.analytics.events e ON e.user_id = u.id"

func testAliasTable() AliasTable {
	return AliasTable{
		"prod_pg":         {SessionID: "session-a", DriverID: "postgres", DisplayName: "Production"},
		"analytics_mongo": {SessionID: "session-b", DriverID: "mongodb", DisplayName: "Analytics"},
		"shop_mysql":      {SessionID: "session-c", DriverID: "mysql"},
		"cache":           {SessionID: "session-d", DriverID: "redis"},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestBuildPlanJoinAcrossSources(t *testing.T) {
	p := NewPlanner(nil, 0)
	plan, err := p.BuildPlan(joinQuery, testAliasTable(), 0, false)
	require.NoError(t, err)

	require.Len(t, plan.Sources, 2)
	assert.Equal(t, "users", plan.Sources[0].Ref.Table)
	assert.Equal(t, "postgres", plan.Sources[0].DriverID)
	assert.Equal(t, "session-a", plan.Sources[0].SessionID)
	assert.Equal(t, "events", plan.Sources[1].Ref.Table)
	assert.Equal(t, "mongodb", plan.Sources[1].DriverID)

	assert.Equal(t, `SELECT * FROM "users" LIMIT 100000`, plan.Sources[0].SourceQuery)
	assert.Equal(t, `{"find":"events","filter":{},"limit":100000}`, plan.Sources[1].SourceQuery)

	assert.NotContains(t, plan.RewrittenQuery, "prod_pg")
	assert.NotContains(t, plan.RewrittenQuery, "analytics_mongo")
	assert.Equal(t, joinQuery, plan.OriginalQuery)
	assert.False(t, plan.Stream)
	assert.Empty(t, plan.Sources[0].Predicates)
	assert.Empty(t, plan.Sources[0].Columns)

	newGoldie(t).Assert(t, "join_two_sources", []byte(plan.RewrittenQuery))
}

func TestBuildPlanRewritesEveryReference(t *testing.T) {
	tests := []struct {
		golden string
		query  string
	}{
		{"self_join", "SELECT a.id, b.id FROM prod_pg.public.users a JOIN prod_pg.public.users b ON a.manager_id = b.id"},
		{"qualified_columns", "SELECT prod_pg.public.users.email, count(*) FROM prod_pg.public.users GROUP BY prod_pg.public.users.email"},
		{"literals_and_comments", "SELECT e.type, 'prod_pg.public.users' AS label -- prod_pg.public.users\nFROM analytics_mongo.analytics.events e /* analytics_mongo.analytics.events */"},
		{"mysql_and_redis", "SELECT o.id, s.value FROM shop_mysql.shop.orders o, cache.kv.sessions s WHERE s.id = o.session_id"},
	}
	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			plan, err := NewPlanner(nil, 0).BuildPlan(tt.query, testAliasTable(), 0, false)
			require.NoError(t, err)
			newGoldie(t).Assert(t, tt.golden, []byte(plan.RewrittenQuery))
		})
	}
}

func TestBuildPlanRowLimit(t *testing.T) {
	plan, err := NewPlanner(nil, 0).BuildPlan(joinQuery, testAliasTable(), 50000, false)
	require.NoError(t, err)
	for _, src := range plan.Sources {
		assert.Equal(t, 50000, src.RowLimit)
		assert.Contains(t, src.SourceQuery, "50000")
	}
	assert.Contains(t, plan.Sources[0].SourceQuery, "LIMIT 50000")
	assert.NotContains(t, plan.Sources[1].SourceQuery, "LIMIT")
	assert.Contains(t, plan.Sources[1].SourceQuery, `"limit":50000`)

	plan, err = NewPlanner(nil, 250).BuildPlan(joinQuery, testAliasTable(), 0, true)
	require.NoError(t, err)
	assert.Equal(t, 250, plan.Sources[0].RowLimit)
	assert.True(t, plan.Stream)
}

func TestBuildPlanSourceQueries(t *testing.T) {
	plan, err := NewPlanner(nil, 0).BuildPlan(
		"SELECT * FROM shop_mysql.shop.orders o JOIN cache.kv.sessions s ON s.id = o.session_id",
		testAliasTable(), 10, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` LIMIT 10", plan.Sources[0].SourceQuery)
	assert.Equal(t, "SCAN 0 MATCH sessions:* COUNT 10", plan.Sources[1].SourceQuery)
}

func TestBuildPlanUnknownAlias(t *testing.T) {
	aliases := AliasTable{
		"prod_pg":         {SessionID: "a", DriverID: "postgres"},
		"analytics_mongo": {SessionID: "b", DriverID: "mongodb"},
	}
	_, err := NewPlanner(nil, 0).BuildPlan("SELECT * FROM warehouse.public.orders o JOIN prod_pg.public.users u ON u.id = o.user_id", aliases, 0, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindValidation, KindOf(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"analytics_mongo", "prod_pg"}, verr.AvailableAliases)
	for _, alias := range []string{"prod_pg", "analytics_mongo", "warehouse"} {
		assert.Contains(t, err.Error(), alias)
	}
}

func TestBuildPlanValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		aliases AliasTable
		message string
	}{
		{"empty query", "   ", testAliasTable(), "empty"},
		{"no federated tables", "SELECT 1", testAliasTable(), "does not reference"},
		{"incomplete reference", "SELECT * FROM prod_pg.users", testAliasTable(), "incomplete"},
		{
			"unsupported driver", "SELECT * FROM graph.db.nodes",
			AliasTable{"graph": {SessionID: "g", DriverID: "neo4j"}}, "unsupported driver 'neo4j'",
		},
		{"no aliases at all", "SELECT * FROM prod_pg.public.users", AliasTable{}, "no connection aliases available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlanner(nil, 0).BuildPlan(tt.query, tt.aliases, 0, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), err.Error())
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBuildPlanIsDeterministic(t *testing.T) {
	p := NewPlanner(nil, 0)
	query := "SELECT * FROM prod_pg.public.users a, analytics_mongo.analytics.events e, prod_pg.public.users b"
	first, err := p.BuildPlan(query, testAliasTable(), 0, false)
	require.NoError(t, err)
	second, err := p.BuildPlan(query, testAliasTable(), 0, false)
	require.NoError(t, err)

	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, first.RewrittenQuery, second.RewrittenQuery)

	locals := make([]string, len(first.Sources))
	for i, src := range first.Sources {
		locals[i] = src.Ref.LocalAlias
	}
	assert.Equal(t, []string{"__fed_users_0", "__fed_events_1", "__fed_users_2"}, locals)
}

func TestBuildPlanRewriteRemovesAliasForms(t *testing.T) {
	queries := []string{
		joinQuery,
		"SELECT prod_pg.public.users.id FROM prod_pg.public.users, analytics_mongo.analytics.events",
		`SELECT * FROM "prod_pg".public."users" JOIN analytics_mongo.analytics.events e ON TRUE`,
		"SELECT * FROM prod_pg.app.public.users",
	}
	for _, q := range queries {
		plan, err := NewPlanner(nil, 0).BuildPlan(q, testAliasTable(), 0, false)
		require.NoError(t, err)
		for _, src := range plan.Sources {
			assert.False(t, strings.Contains(plan.RewrittenQuery, src.Ref.Original), plan.RewrittenQuery)
		}
		assert.NotContains(t, plan.RewrittenQuery, "prod_pg")
	}
}
