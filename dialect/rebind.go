package dialect

import (
	"strconv"
	"strings"
)

// Rebind rewrites the "?" placeholders produced by the compiler into the
// vendor's bind syntax. PostgreSQL uses numbered "$n" parameters; every other
// vendor keeps "?". Question marks inside quoted strings or identifiers are
// left alone.
func (c *Connection) Rebind(sql string) string {
	if c.Vendor != PostgreSQL {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
