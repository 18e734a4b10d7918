package common

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes an identifier with double quotes, escaping embedded quotes.
func QuoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, `"`, `""`)
	return fmt.Sprintf(`"%s"`, name)
}

// QuoteBacktick quotes an identifier MySQL-style.
func QuoteBacktick(name string) string {
	name = strings.ReplaceAll(name, "`", "``")
	return "`" + name + "`"
}

// QuoteStringSlice renders each value as a single-quoted SQL literal.
func QuoteStringSlice(slice []string) []string {
	quoted := make([]string, len(slice))
	for i, s := range slice {
		quoted[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(s, "'", "''"))
	}
	return quoted
}

// NamespaceLabel renders a namespace for logs ("sales", "sales.public").
func NamespaceLabel(database, schema string) string {
	switch {
	case database == "":
		return schema
	case schema == "":
		return database
	default:
		return database + "." + schema
	}
}
