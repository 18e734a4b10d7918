package dbcapabilities

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionDetails holds parsed connection information
type ConnectionDetails struct {
	DatabaseType string            `json:"database_type"`
	Host         string            `json:"host"`
	Port         int32             `json:"port"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	DatabaseName string            `json:"database_name"`
	SSL          bool              `json:"ssl"`
	SSLMode      string            `json:"ssl_mode"`
	Parameters   map[string]string `json:"parameters"`
	IsSystemDB   bool              `json:"is_system_db"`
	SystemDBName string            `json:"system_db_name,omitempty"`
}

// ParseConnectionString parses a connection string and returns connection details
func ParseConnectionString(connectionString string) (*ConnectionDetails, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}

	parsedURL, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string format: %v", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme == "" {
		return nil, fmt.Errorf("connection string must include a scheme (e.g., postgresql://)")
	}

	dbType, ok := ParseID(scheme)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", scheme)
	}

	capability, ok := Get(dbType)
	if !ok {
		return nil, fmt.Errorf("database capabilities not found for type: %s", string(dbType))
	}

	details := &ConnectionDetails{
		DatabaseType: string(dbType),
		Parameters:   make(map[string]string),
	}

	if parsedURL.Hostname() == "" {
		return nil, fmt.Errorf("host is required in connection string")
	}
	details.Host = parsedURL.Hostname()

	if parsedURL.Port() != "" {
		port, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", parsedURL.Port())
		}
		details.Port = int32(port)
	} else {
		details.Port = int32(capability.DefaultPort)
	}

	if parsedURL.User != nil {
		details.Username = parsedURL.User.Username()
		if password, hasPassword := parsedURL.User.Password(); hasPassword {
			details.Password = password
		}
	}

	if path := strings.Trim(parsedURL.Path, "/"); path != "" {
		details.DatabaseName = path
	}

	if capability.HasSystemDatabase && len(capability.SystemDatabases) > 0 {
		systemDB := capability.SystemDatabases[0]
		if details.DatabaseName == "" || isSystemDatabase(details.DatabaseName, capability.SystemDatabases) {
			details.IsSystemDB = true
			details.SystemDBName = systemDB
			if details.DatabaseName == "" {
				details.DatabaseName = systemDB
			}
		}
	}

	queryParams := parsedURL.Query()
	for key, values := range queryParams {
		if len(values) > 0 {
			details.Parameters[key] = values[0]
		}
	}

	parseSSLConfiguration(details, dbType, scheme, queryParams)

	// Key-value stores commonly run without ACL users.
	if details.Username == "" && !SupportsParadigm(dbType, ParadigmKeyValue) {
		return nil, fmt.Errorf("username is required in connection string")
	}

	return details, nil
}

func isSystemDatabase(dbName string, systemDatabases []string) bool {
	for _, sysDB := range systemDatabases {
		if strings.EqualFold(dbName, sysDB) {
			return true
		}
	}
	return false
}

// parseSSLConfiguration handles SSL-related parameters based on database type
func parseSSLConfiguration(details *ConnectionDetails, dbType DatabaseID, scheme string, queryParams url.Values) {
	switch dbType {
	case PostgreSQL, CockroachDB, TimescaleDB, Redshift:
		parsePostgreSQLSSL(details, queryParams)
	case MySQL, MariaDB, TiDB:
		parseMySQLSSL(details, queryParams)
	case MongoDB:
		parseMongoDBSSL(details, queryParams)
	case Redis:
		if scheme == "rediss" {
			details.SSL = true
			details.SSLMode = "require"
			return
		}
		parseFlagSSL(details, queryParams, "ssl")
	case ClickHouse:
		parseFlagSSL(details, queryParams, "secure")
	default:
		parseFlagSSL(details, queryParams, "ssl")
	}
}

func parsePostgreSQLSSL(details *ConnectionDetails, queryParams url.Values) {
	sslMode := queryParams.Get("sslmode")
	if sslMode == "" {
		sslMode = "prefer"
	}

	details.SSLMode = sslMode
	details.SSL = sslMode != "disable"

	if sslCert := queryParams.Get("sslcert"); sslCert != "" {
		details.Parameters["ssl_cert"] = sslCert
	}
	if sslKey := queryParams.Get("sslkey"); sslKey != "" {
		details.Parameters["ssl_key"] = sslKey
	}
	if sslRootCert := queryParams.Get("sslrootcert"); sslRootCert != "" {
		details.Parameters["ssl_root_cert"] = sslRootCert
	}
}

func parseMySQLSSL(details *ConnectionDetails, queryParams url.Values) {
	tls := queryParams.Get("tls")
	details.SSL = tls == "true" || tls == "skip-verify"
	switch {
	case tls == "skip-verify":
		details.SSLMode = "prefer"
	case details.SSL:
		details.SSLMode = "require"
	default:
		details.SSLMode = "disable"
	}
}

func parseMongoDBSSL(details *ConnectionDetails, queryParams url.Values) {
	tls := queryParams.Get("tls")
	ssl := queryParams.Get("ssl") // legacy

	if tls != "" {
		details.SSL = tls == "true"
	} else {
		details.SSL = ssl == "true"
	}

	if details.SSL {
		details.SSLMode = "require"
		if queryParams.Get("tlsInsecure") == "true" {
			details.SSLMode = "prefer"
		}
	} else {
		details.SSLMode = "disable"
	}
}

// parseFlagSSL handles databases that toggle TLS with a single boolean parameter.
func parseFlagSSL(details *ConnectionDetails, queryParams url.Values, param string) {
	details.SSL = queryParams.Get(param) == "true"
	if details.SSL {
		details.SSLMode = "require"
	} else {
		details.SSLMode = "disable"
	}
}

// GetSystemDatabaseName returns the system database name for instance connections
func GetSystemDatabaseName(databaseType string) (string, error) {
	dbType, ok := ParseID(databaseType)
	if !ok {
		return "", fmt.Errorf("unsupported database type: %s", databaseType)
	}

	capability := MustGet(dbType)
	if !capability.HasSystemDatabase || len(capability.SystemDatabases) == 0 {
		return "", fmt.Errorf("database type %s does not have a system database", databaseType)
	}

	return capability.SystemDatabases[0], nil
}

// ValidateConnectionString validates a connection string without keeping the result
func ValidateConnectionString(connectionString string) error {
	_, err := ParseConnectionString(connectionString)
	return err
}
