// Package federation executes one query across several open database sessions.
//
// A query names federated tables as alias.database[.schema].table, where the
// alias identifies an open session:
//
//	SELECT u.email, e.type
//	FROM prod_pg.public.users u
//	JOIN analytics_mongo.analytics.events e ON e.user_id = u.id
//
// Resolve finds those references and gives each a local name. The Planner
// turns them into one SourceFetchPlan per reference, with a native fetch
// query per backend (see Dialect), and rewrites the query to use the local
// names. The Manager fetches every source concurrently with a row cap and a
// per-source timeout, loads the rows into a throwaway in-memory SQLite
// database (LocalEngine) and runs the rewritten query there, either
// returning the result or streaming it into a Sink.
package federation
