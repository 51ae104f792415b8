// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by this package. It is
// go-sqlite3 with the functions compiled expressions rely on, such as
// sqlexpr_power, registered on every connection.
const DriverName = "sqlite3_sqlexpr"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{ConnectHook: registerFunctions})
}

// registerFunctions adds the user defined functions to a SQLite connection.
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	return conn.RegisterFunc("sqlexpr_power", power, true)
}

// power implements sqlexpr_power(x, y). SQLite has no built-in power
// function before 3.35 and then only when compiled with math functions.
func power(x, y any) (any, error) {
	if x == nil || y == nil {
		return nil, nil
	}
	fx, err := toFloat(x)
	if err != nil {
		return nil, err
	}
	fy, err := toFloat(y)
	if err != nil {
		return nil, err
	}
	return math.Pow(fx, fy), nil
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, fmt.Errorf("sqlexpr_power: cannot use %T as a number", v)
}
