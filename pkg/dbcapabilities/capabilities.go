package dbcapabilities

import "strings"

// DatabaseID is the canonical identifier for a database technology ("postgres", "mongodb", ...).
// It doubles as the driver id carried in federation alias tables.
type DatabaseID string

// DatabaseType is kept as an alias for adapter code that reads better with it.
type DatabaseType = DatabaseID

const (
	// Relational SQL
	PostgreSQL  DatabaseID = "postgres"
	CockroachDB DatabaseID = "cockroach"
	Redshift    DatabaseID = "redshift"
	TimescaleDB DatabaseID = "timescaledb"
	MySQL       DatabaseID = "mysql"
	MariaDB     DatabaseID = "mariadb"
	TiDB        DatabaseID = "tidb"

	// Analytics / Columnar
	DuckDB     DatabaseID = "duckdb"
	ClickHouse DatabaseID = "clickhouse"
	SQLite     DatabaseID = "sqlite"

	// NoSQL
	MongoDB  DatabaseID = "mongodb"
	CosmosDB DatabaseID = "cosmosdb"
	Redis    DatabaseID = "redis"
)

// DataParadigm enumerates the primary data storage paradigms a database supports.
type DataParadigm string

const (
	ParadigmRelational DataParadigm = "relational"
	ParadigmDocument   DataParadigm = "document"
	ParadigmKeyValue   DataParadigm = "keyvalue"
	ParadigmColumnar   DataParadigm = "columnar"
	ParadigmTimeSeries DataParadigm = "timeseries"
)

// Capability describes a database technology uniformly.
type Capability struct {
	// Human-friendly product name, e.g. "PostgreSQL".
	Name string `json:"name"`

	// Canonical ID, e.g. "postgres".
	ID DatabaseID `json:"id"`

	// Port used when a connection string omits one.
	DefaultPort int `json:"defaultPort,omitempty"`

	// Whether the database exposes built-in system databases and their typical names.
	HasSystemDatabase bool     `json:"hasSystemDatabase"`
	SystemDatabases   []string `json:"systemDatabases,omitempty"`

	// Primary data storage paradigms supported.
	Paradigms []DataParadigm `json:"paradigms"`

	// Common aliases (URL schemes, driver names) that map to this database.
	Aliases []string `json:"aliases,omitempty"`
}

// All is a registry of capabilities keyed by the canonical database ID.
var All = map[DatabaseID]Capability{
	PostgreSQL: {
		Name:              "PostgreSQL",
		ID:                PostgreSQL,
		DefaultPort:       5432,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"postgres"},
		Paradigms:         []DataParadigm{ParadigmRelational},
		Aliases:           []string{"postgresql", "pgsql", "pg"},
	},
	CockroachDB: {
		Name:              "CockroachDB",
		ID:                CockroachDB,
		DefaultPort:       26257,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"system"},
		Paradigms:         []DataParadigm{ParadigmRelational},
		Aliases:           []string{"cockroachdb"},
	},
	Redshift: {
		Name:        "Amazon Redshift",
		ID:          Redshift,
		DefaultPort: 5439,
		Paradigms:   []DataParadigm{ParadigmRelational, ParadigmColumnar},
	},
	TimescaleDB: {
		Name:              "TimescaleDB",
		ID:                TimescaleDB,
		DefaultPort:       5432,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"postgres"},
		Paradigms:         []DataParadigm{ParadigmRelational, ParadigmTimeSeries},
		Aliases:           []string{"timescale"},
	},
	MySQL: {
		Name:              "MySQL",
		ID:                MySQL,
		DefaultPort:       3306,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"mysql"},
		Paradigms:         []DataParadigm{ParadigmRelational},
		Aliases:           []string{"aurora-mysql"},
	},
	MariaDB: {
		Name:              "MariaDB",
		ID:                MariaDB,
		DefaultPort:       3306,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"mysql"},
		Paradigms:         []DataParadigm{ParadigmRelational},
	},
	TiDB: {
		Name:              "TiDB",
		ID:                TiDB,
		DefaultPort:       4000,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"mysql"},
		Paradigms:         []DataParadigm{ParadigmRelational},
	},
	DuckDB: {
		Name:      "DuckDB",
		ID:        DuckDB,
		Paradigms: []DataParadigm{ParadigmColumnar, ParadigmRelational},
	},
	ClickHouse: {
		Name:              "ClickHouse",
		ID:                ClickHouse,
		DefaultPort:       9000,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"system"},
		Paradigms:         []DataParadigm{ParadigmColumnar},
	},
	SQLite: {
		Name:      "SQLite",
		ID:        SQLite,
		Paradigms: []DataParadigm{ParadigmRelational},
		Aliases:   []string{"sqlite3"},
	},
	MongoDB: {
		Name:              "MongoDB",
		ID:                MongoDB,
		DefaultPort:       27017,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"admin"},
		Paradigms:         []DataParadigm{ParadigmDocument},
		Aliases:           []string{"mongo", "mongodb+srv"},
	},
	CosmosDB: {
		Name:      "Azure Cosmos DB",
		ID:        CosmosDB,
		Paradigms: []DataParadigm{ParadigmDocument},
	},
	Redis: {
		Name:        "Redis",
		ID:          Redis,
		DefaultPort: 6379,
		Paradigms:   []DataParadigm{ParadigmKeyValue},
		Aliases:     []string{"rediss"},
	},
}

// nameToID is a normalized lookup index from any known name/alias to the canonical DatabaseID.
var nameToID map[string]DatabaseID

func init() {
	nameToID = make(map[string]DatabaseID, len(All)*2)
	for id, cap := range All {
		nameToID[strings.ToLower(string(id))] = id
		if cap.Name != "" {
			nameToID[strings.ToLower(cap.Name)] = id
		}
		for _, a := range cap.Aliases {
			if a == "" {
				continue
			}
			nameToID[strings.ToLower(a)] = id
		}
	}
}

// ParseID resolves an arbitrary database name (canonical id, alias, or product name)
// to a canonical DatabaseID. Returns false if unknown.
func ParseID(name string) (DatabaseID, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	id, ok := nameToID[n]
	return id, ok
}

// GetByName returns the Capability using a free-form name (id or alias).
func GetByName(name string) (Capability, bool) {
	if id, ok := ParseID(name); ok {
		return Get(id)
	}
	return Capability{}, false
}

// Get returns capabilities for the given ID and a boolean indicating existence.
func Get(id DatabaseID) (Capability, bool) {
	c, ok := All[id]
	return c, ok
}

// MustGet returns capabilities for the given ID and panics if not found.
func MustGet(id DatabaseID) Capability {
	c, ok := Get(id)
	if !ok {
		panic("dbcapabilities: unknown database id: " + string(id))
	}
	return c
}

// SupportsParadigm reports whether the database supports a given data paradigm.
func SupportsParadigm(id DatabaseID, p DataParadigm) bool {
	c, ok := Get(id)
	if !ok {
		return false
	}
	for _, dp := range c.Paradigms {
		if dp == p {
			return true
		}
	}
	return false
}

// SupportsParadigmString is SupportsParadigm for a free-form name.
func SupportsParadigmString(name string, p DataParadigm) bool {
	if id, ok := ParseID(name); ok {
		return SupportsParadigm(id, p)
	}
	return false
}

// IsSQLFamily reports whether sources of this database answer SQL text.
func IsSQLFamily(id DatabaseID) bool {
	return SupportsParadigm(id, ParadigmRelational) || SupportsParadigm(id, ParadigmColumnar)
}
