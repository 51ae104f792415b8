// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/internal/logger"
)

// Compiler renders expressions, and whole queries, for one connection.
type Compiler struct {
	query *Query
	conn  *dialect.Connection
	// using names the database the SQL is destined for.
	using string
}

// NewCompiler returns a compiler for q on conn.
func NewCompiler(q *Query, conn *dialect.Connection, using string) *Compiler {
	return &Compiler{query: q, conn: conn, using: using}
}

// Query returns the query being compiled.
func (c *Compiler) Query() *Query {
	return c.query
}

// Connection returns the connection SQL is compiled for.
func (c *Compiler) Connection() *dialect.Connection {
	return c.conn
}

// Using returns the name of the target database.
func (c *Compiler) Using() string {
	return c.using
}

// Compile renders e. A renderer registered by e for the connection's vendor
// takes precedence over e.AsSQL.
func (c *Compiler) Compile(e Expression) (string, []any, error) {
	if vr, ok := e.(VendorRenderer); ok {
		if render, ok := vr.VendorSQL(c.conn.Vendor); ok {
			return render(c, c.conn)
		}
	}
	return e.AsSQL(c, c.conn)
}

// compileList compiles each expression and joins the fragments with sep.
// Parameters are concatenated in the same order.
func (c *Compiler) compileList(exprs []Expression, sep string) (string, []any, error) {
	fragments := make([]string, 0, len(exprs))
	params := []any{}
	for _, e := range exprs {
		sql, p, err := c.Compile(e)
		if err != nil {
			return "", nil, err
		}
		fragments = append(fragments, sql)
		params = append(params, p...)
	}
	return strings.Join(fragments, sep), params, nil
}

// AsSQL compiles the whole query into a SELECT statement. Placeholders are
// rewritten into the vendor's bind syntax.
func (c *Compiler) AsSQL() (sql string, params []any, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile query: %w", err)
		}
	}()

	q := c.query
	if q == nil {
		return "", nil, fmt.Errorf("no query")
	}
	if q.err != nil {
		return "", nil, q.err
	}

	var b strings.Builder
	params = []any{}

	columns := []string{}
	for _, v := range q.values {
		s, p, err := c.Compile(v.col)
		if err != nil {
			return "", nil, err
		}
		if v.col.Target.Column != v.name {
			s += " AS " + c.conn.QuoteName(v.name)
		}
		columns = append(columns, s)
		params = append(params, p...)
	}
	for _, a := range q.annotations {
		s, p, err := c.Compile(a.expr)
		if err != nil {
			return "", nil, fmt.Errorf("annotation %q: %w", a.alias, err)
		}
		columns = append(columns, s+" AS "+c.conn.QuoteName(a.alias))
		params = append(params, p...)
	}
	if len(columns) == 0 {
		columns = append(columns, "*")
	}
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(c.conn.QuoteName(q.model.DBTable()))

	if q.where != nil {
		s, p, err := c.Compile(q.where)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(s)
		params = append(params, p...)
	}

	groupBy, groupParams, err := c.groupBy()
	if err != nil {
		return "", nil, err
	}
	if groupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(groupBy)
		params = append(params, groupParams...)
	}

	sql = c.conn.Rebind(b.String())
	logger.Debug("compiled query", "vendor", c.conn.Vendor, "sql", sql, "params", len(params))
	return sql, params, nil
}

// groupBy returns the GROUP BY clause body. A query is grouped when it has
// aggregate annotations alongside selected values. The grouping columns are
// the selected values followed by the columns of non-aggregate annotations,
// without duplicates. When the query asks for a rollup the columns are
// wrapped in a RollUp node.
func (c *Compiler) groupBy() (string, []any, error) {
	q := c.query
	if len(q.values) == 0 || !q.hasAggregate() {
		return "", nil, nil
	}

	var cols []Expression
	seen := map[string]bool{}
	add := func(e Expression) {
		key := e.String()
		if !seen[key] {
			seen[key] = true
			cols = append(cols, e)
		}
	}
	for _, v := range q.values {
		for _, e := range v.col.GroupByCols() {
			add(e)
		}
	}
	for _, a := range q.annotations {
		for _, e := range a.expr.GroupByCols() {
			add(e)
		}
	}

	if q.rollup {
		return c.Compile(NewRollUp(cols...))
	}
	return c.compileList(cols, ", ")
}
