// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package dialect describes the database a statement is compiled for: the
// vendor, its version and the features that version supports.
package dialect

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlexpr/internal/logger"
)

// Vendor identifies a SQL dialect.
type Vendor string

const (
	Generic    Vendor = "sql"
	SQLite     Vendor = "sqlite"
	PostgreSQL Vendor = "postgresql"
	MySQL      Vendor = "mysql"
)

// vendorAliases maps accepted spellings onto vendors.
var vendorAliases = map[string]Vendor{
	"sql":        Generic,
	"generic":    Generic,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"dqlite":     SQLite,
	"postgres":   PostgreSQL,
	"postgresql": PostgreSQL,
	"pgx":        PostgreSQL,
	"mysql":      MySQL,
	"mariadb":    MySQL,
}

// LookupVendor returns the vendor for name, or false if it is not known.
func LookupVendor(name string) (Vendor, bool) {
	v, ok := vendorAliases[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Feature is a piece of SQL syntax that is not available on every vendor or
// version.
type Feature int

const (
	// FeatureAggregateFilter is "<aggregate> FILTER (WHERE ...)".
	FeatureAggregateFilter Feature = iota
	// FeatureRollup is GROUP BY ROLLUP(...) or its MySQL WITH ROLLUP form.
	FeatureRollup
	// FeatureExpressionIndexes is CREATE INDEX over expressions rather than
	// plain columns.
	FeatureExpressionIndexes
	// FeatureIndexTablespaces is CREATE INDEX ... TABLESPACE.
	FeatureIndexTablespaces
)

func (f Feature) String() string {
	switch f {
	case FeatureAggregateFilter:
		return "aggregate FILTER clause"
	case FeatureRollup:
		return "GROUP BY ROLLUP"
	case FeatureExpressionIndexes:
		return "expression indexes"
	case FeatureIndexTablespaces:
		return "index tablespaces"
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// minVersions holds, for each feature, the minimum version of each vendor
// that supports it. A vendor missing from the map never supports the feature.
var minVersions = map[Feature]map[Vendor]int{
	FeatureAggregateFilter: {
		Generic:    0,
		PostgreSQL: 90400,
		SQLite:     3030000,
	},
	FeatureRollup: {
		Generic:    0,
		PostgreSQL: 90500,
		MySQL:      0,
	},
	FeatureExpressionIndexes: {
		Generic:    0,
		PostgreSQL: 0,
		SQLite:     3009000,
		MySQL:      80013,
	},
	FeatureIndexTablespaces: {
		Generic:    0,
		PostgreSQL: 0,
	},
}

// MinVersion returns the minimum version of vendor v supporting f.
func MinVersion(v Vendor, f Feature) (int, bool) {
	min, ok := minVersions[f][v]
	return min, ok
}

// Connection carries the dialect information a compiler needs. It is passed
// explicitly through compilation; there is no process-wide default.
type Connection struct {
	Vendor Vendor
	// Version is the vendor's numeric version: PostgreSQL's
	// server_version_num (90400), SQLite's SQLITE_VERSION_NUMBER (3039004) or
	// MySQL's major*10000+minor*100+patch (80013).
	Version int
}

// New returns a connection description for vendor v at version.
func New(v Vendor, version int) *Connection {
	return &Connection{Vendor: v, Version: version}
}

// SQLiteLibrary describes the SQLite library linked into this binary.
func SQLiteLibrary() *Connection {
	_, version, _ := sqlite3.Version()
	return New(SQLite, version)
}

// Supports reports whether the connection's vendor and version support f.
func (c *Connection) Supports(f Feature) bool {
	min, ok := MinVersion(c.Vendor, f)
	return ok && c.Version >= min
}

// Require returns an error describing the missing feature when the connection
// does not support f.
func (c *Connection) Require(f Feature) error {
	if c.Supports(f) {
		return nil
	}
	if min, ok := MinVersion(c.Vendor, f); ok {
		return fmt.Errorf("%s requires %s %s or later, have %s", f, c.Vendor, FormatVersion(c.Vendor, min), FormatVersion(c.Vendor, c.Version))
	}
	return fmt.Errorf("%s is not supported by %s", f, c.Vendor)
}

// PGVersion returns the connection version.
//
// Deprecated: use the Version field.
func (c *Connection) PGVersion() int {
	logger.Deprecated("dialect.Connection.PGVersion", "dialect.Connection.Version")
	return c.Version
}

// QuoteName quotes an identifier for the vendor. Names that are already
// quoted are returned unchanged.
func (c *Connection) QuoteName(name string) string {
	q := c.quoteChar()
	if len(name) >= 2 && name[0] == q && name[len(name)-1] == q {
		return name
	}
	if c.Vendor == PostgreSQL {
		return pgx.Identifier{name}.Sanitize()
	}
	s := string(q)
	return s + strings.ReplaceAll(name, s, s+s) + s
}

func (c *Connection) quoteChar() byte {
	if c.Vendor == MySQL {
		return '`'
	}
	return '"'
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s", c.Vendor, FormatVersion(c.Vendor, c.Version))
}
