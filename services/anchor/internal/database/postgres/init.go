package postgres

import (
	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

func init() {
	adapter.Register(NewAdapter())
	for _, id := range []dbcapabilities.DatabaseType{
		dbcapabilities.CockroachDB,
		dbcapabilities.TimescaleDB,
		dbcapabilities.Redshift,
	} {
		adapter.Register(NewAdapterFor(id))
	}
}
