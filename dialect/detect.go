// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"context"
	"database/sql"
	"fmt"

	dqlitedriver "github.com/canonical/go-dqlite/driver"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// versionQueries holds the statement used to ask each vendor for its version.
var versionQueries = map[Vendor]string{
	SQLite:     "SELECT sqlite_version()",
	PostgreSQL: "SHOW server_version_num",
	MySQL:      "SELECT VERSION()",
}

// DriverVendor returns the vendor spoken by the driver behind db.
func DriverVendor(db *sql.DB) (Vendor, error) {
	switch d := db.Driver().(type) {
	case *sqlite3.SQLiteDriver:
		return SQLite, nil
	case *dqlitedriver.Driver:
		// dqlite replicates SQLite and speaks its dialect.
		return SQLite, nil
	case *stdlib.Driver:
		return PostgreSQL, nil
	default:
		return "", fmt.Errorf("cannot detect dialect of driver %T", d)
	}
}

// Detect returns the Connection describing db, asking the server for its
// version.
func Detect(ctx context.Context, db *sql.DB) (*Connection, error) {
	vendor, err := DriverVendor(db)
	if err != nil {
		return nil, err
	}
	var raw string
	if err := db.QueryRowContext(ctx, versionQueries[vendor]).Scan(&raw); err != nil {
		return nil, fmt.Errorf("cannot query %s version: %s", vendor, err)
	}
	version, err := ParseVersion(vendor, raw)
	if err != nil {
		return nil, err
	}
	return New(vendor, version), nil
}
