package expr_test

import (
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
)

func (s *ExprSuite) TestRollUpString(c *C) {
	r := expr.NewRollUp(expr.F("char_field"), expr.F("integer_field"))
	c.Assert(r.String(), Equals, "ROLLUP(F(char_field), F(integer_field))")
	c.Assert(r.ContainsAggregate(), Equals, false)
	c.Assert(r.GroupByCols(), HasLen, 0)
}

func (s *ExprSuite) TestRollUpResolveStampsSummary(c *C) {
	r := expr.NewRollUp(expr.F("char_field"))
	q := expr.NewQuery(aggregationModel)

	resolved, err := r.ResolveExpression(q, expr.ResolveOptions{Summarize: true})
	c.Assert(err, IsNil)
	rr := resolved.(*expr.RollUp)
	c.Check(rr, Not(Equals), r)
	c.Check(rr.IsSummary(), Equals, true)
	c.Check(r.IsSummary(), Equals, false)

	// The grouping expressions are carried over unresolved.
	c.Check(rr.Expressions(), DeepEquals, []expr.Expression{expr.F("char_field")})

	resolved, err = r.ResolveExpression(q, expr.DefaultResolve)
	c.Assert(err, IsNil)
	c.Check(resolved.(*expr.RollUp).IsSummary(), Equals, false)
}

func (s *ExprSuite) TestRollUpSQL(c *C) {
	tests := []struct {
		summary string
		conn    *dialect.Connection
		sql     string
	}{{
		summary: "postgresql",
		conn:    dialect.New(dialect.PostgreSQL, 90500),
		sql:     `SELECT "aggregation_test"."char_field", SUM("aggregation_test"."integer_field") AS "total" FROM "aggregation_test" GROUP BY ROLLUP("aggregation_test"."char_field")`,
	}, {
		summary: "generic",
		conn:    generic,
		sql:     `SELECT "aggregation_test"."char_field", SUM("aggregation_test"."integer_field") AS "total" FROM "aggregation_test" GROUP BY ROLLUP("aggregation_test"."char_field")`,
	}, {
		summary: "mysql",
		conn:    mysql,
		sql:     "SELECT `aggregation_test`.`char_field`, SUM(`aggregation_test`.`integer_field`) AS `total` FROM `aggregation_test` GROUP BY `aggregation_test`.`char_field` WITH ROLLUP",
	}}
	q := expr.NewQuery(aggregationModel).
		Values("char_field").
		Annotate("total", expr.Sum("integer_field")).
		GroupByRollup()
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		sql, params, err := compile(q, test.conn)
		c.Assert(err, IsNil)
		c.Check(sql, Equals, test.sql)
		c.Check(params, HasLen, 0)
	}
}

func (s *ExprSuite) TestRollUpOrderIsGroupingPriority(c *C) {
	q := expr.NewQuery(aggregationModel).
		Values("integer_field", "char_field").
		Annotate("n", expr.Count("*")).
		GroupByRollup()
	sql, _, err := compile(q, postgres)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `SELECT "aggregation_test"."integer_field", "aggregation_test"."char_field", COUNT(*) AS "n" FROM "aggregation_test" GROUP BY ROLLUP("aggregation_test"."integer_field", "aggregation_test"."char_field")`)
}

func (s *ExprSuite) TestRollUpNotSupported(c *C) {
	tests := []struct {
		conn *dialect.Connection
		err  string
	}{{
		conn: sqlite,
		err:  `cannot compile query: feature not supported: GROUP BY ROLLUP is not supported by sqlite`,
	}, {
		conn: dialect.New(dialect.PostgreSQL, 90400),
		err:  `cannot compile query: feature not supported: GROUP BY ROLLUP requires postgresql 9.5.0 or later, have 9.4.0`,
	}}
	q := expr.NewQuery(aggregationModel).
		Values("char_field").
		Annotate("total", expr.Sum("integer_field")).
		GroupByRollup()
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.conn)
		_, _, err := compile(q, test.conn)
		c.Check(err, ErrorMatches, test.err)
		c.Check(errors.Is(err, expr.ErrNotSupported), Equals, true)
	}
}

func (s *ExprSuite) TestRollUpEmpty(c *C) {
	comp := expr.NewCompiler(expr.NewQuery(aggregationModel), postgres, "")
	_, _, err := comp.Compile(expr.NewRollUp())
	c.Assert(err, ErrorMatches, "cannot compile a rollup without expressions")
}
