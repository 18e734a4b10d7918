package redis

import "github.com/redbco/redb-federation/pkg/anchor/adapter"

func init() {
	adapter.Register(NewAdapter())
}
