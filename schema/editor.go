// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package schema produces the DDL statements of each database vendor.
package schema

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
	"github.com/canonical/sqlexpr/internal/logger"
)

// Editor renders schema statements for one vendor.
type Editor interface {
	// CreateIndexSQL returns the CREATE INDEX statement of an index called
	// name over cols on the table of m. using is an optional index method
	// and tablespace an optional tablespace. suffixes holds the sort
	// suffix ("" or "DESC") of each column.
	CreateIndexSQL(m expr.Model, cols []IndexColumn, name, using, tablespace string, suffixes []string) (string, error)

	// QuoteName quotes an identifier.
	QuoteName(name string) string

	// QuoteValue renders v as a SQL literal, for statements that cannot
	// take bound parameters.
	QuoteValue(v any) (string, error)

	// DeleteIndexTemplate returns the DROP INDEX statement with "{table}"
	// and "{name}" placeholders.
	DeleteIndexTemplate() string
}

// IndexColumn is one column of an index.
type IndexColumn struct {
	// Field is the indexed model field, or nil for an expression.
	Field *expr.Field
	// SQL is the compiled column or expression, with literals in place of
	// parameters.
	SQL string
}

// ForConnection returns the editor for the vendor of conn.
func ForConnection(conn *dialect.Connection) Editor {
	switch conn.Vendor {
	case dialect.PostgreSQL:
		return newPostgres(conn)
	case dialect.SQLite:
		return newSQLite(conn)
	case dialect.MySQL:
		return newMySQL(conn)
	}
	return newGeneric(conn)
}

// usingPlacement says where a vendor writes the index method.
type usingPlacement int

const (
	usingUnsupported usingPlacement = iota
	// usingAfterTable is "CREATE INDEX name ON table USING method (...)".
	usingAfterTable
	// usingAfterName is "CREATE INDEX name USING method ON table (...)".
	usingAfterName
)

// editor is the Editor of every vendor. The vendor constructors set the
// syntax differences.
type editor struct {
	conn        *dialect.Connection
	deleteIndex string
	using       usingPlacement
	literals    literals
}

func (e *editor) QuoteName(name string) string {
	return e.conn.QuoteName(name)
}

func (e *editor) QuoteValue(v any) (string, error) {
	return e.literals.quoteValue(v)
}

func (e *editor) DeleteIndexTemplate() string {
	return e.deleteIndex
}

func (e *editor) CreateIndexSQL(m expr.Model, cols []IndexColumn, name, using, tablespace string, suffixes []string) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("cannot create index %q: no columns", name)
	}
	if len(suffixes) != 0 && len(suffixes) != len(cols) {
		return "", fmt.Errorf("cannot create index %q: %d columns but %d suffixes", name, len(cols), len(suffixes))
	}

	columns := make([]string, len(cols))
	for i, col := range cols {
		s := col.SQL
		if col.Field == nil {
			s = "(" + s + ")"
		}
		if len(suffixes) > 0 && suffixes[i] != "" {
			s += " " + suffixes[i]
		}
		columns[i] = s
	}

	method := ""
	if using != "" {
		if e.using == usingUnsupported {
			return "", fmt.Errorf("cannot create index %q: index methods are not supported by %s", name, e.conn.Vendor)
		}
		method = " USING " + using
	}

	var b strings.Builder
	b.WriteString("CREATE INDEX ")
	b.WriteString(e.QuoteName(name))
	if e.using == usingAfterName {
		b.WriteString(method)
	}
	b.WriteString(" ON ")
	b.WriteString(e.QuoteName(m.DBTable()))
	if e.using == usingAfterTable {
		b.WriteString(method)
	}
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(")")

	if tablespace != "" {
		if e.conn.Supports(dialect.FeatureIndexTablespaces) {
			b.WriteString(" TABLESPACE ")
			b.WriteString(e.QuoteName(tablespace))
		} else {
			logger.Debug("ignoring index tablespace", "vendor", e.conn.Vendor, "index", name, "tablespace", tablespace)
		}
	}
	return b.String(), nil
}
