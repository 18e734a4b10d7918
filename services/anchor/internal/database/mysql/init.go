package mysql

import (
	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

func init() {
	adapter.Register(NewAdapter())
	adapter.Register(NewAdapterFor(dbcapabilities.MariaDB))
	adapter.Register(NewAdapterFor(dbcapabilities.TiDB))
}
