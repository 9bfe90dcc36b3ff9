package store

import (
	"strings"

	"github.com/ragyverse/apiserver/config"
)

// rebind rewrites $n placeholders into ? for SQLite. Queries are written
// once in Postgres form.
func rebind(driver, query string) string {
	if driver != config.DriverSQLite {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}
