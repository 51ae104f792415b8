// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package sqlexpr compiles query expressions into vendor specific SQL and runs
them on database/sql databases.

Queries are built from a model of the table, either described field by field
with the model package or taken from the "db" tags of a Go struct:

	type Employee struct {
		Name   string `db:"name"`
		Team   string `db:"team"`
		Salary int    `db:"salary"`
	}

	employees, err := model.Of(Employee{})

The expr package provides the expression tree. Conditions are written as
field lookups, aggregates can be restricted with a FILTER clause and grouped
results can be rolled up:

	q := expr.NewQuery(employees).
		Values("team").
		Annotate("seniors", expr.MustFilter(expr.Count("name"), expr.Cond("salary__gte", 2000)))

# Dialects

SQL is compiled for a [dialect.Connection], the vendor and version of the
server. Syntax the connection does not support, such as FILTER on
PostgreSQL before 9.4 or ROLLUP on SQLite, is rejected when the query is
compiled rather than by the server. [Open] detects the SQLite library
version; other databases are described explicitly or loaded from a
configuration file:

	conn, err := dialect.LoadConfig([]byte("vendor: postgresql\nversion: \"9.6.2\""))
	db := sqlexpr.NewDB(sqldb, conn)

# Running queries

[DB.Prepare] compiles a query into a [Statement]. The driver prepared
statement is created the first time the statement runs on a database and is
reused afterwards, including inside transactions:

	stmt, err := db.Prepare(q)
	var rows []sqlexpr.M
	err = db.Query(ctx, stmt).GetAll(&rows)

Rows are decoded into maps keyed by column, into structs whose "db" tags name
the columns, or into one pointer per column.

# Indexes

The index package describes indexes over fields or expressions. Names are
generated from the table and columns when none is given. [DB.CreateIndex]
and [DB.DropIndex] run the DDL produced by the schema editor of the
database dialect.
*/
package sqlexpr
