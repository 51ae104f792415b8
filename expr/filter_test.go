package expr_test

import (
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
)

func (s *ExprSuite) TestNewFilterRequiresAggregate(c *C) {
	tests := []struct {
		summary    string
		expression expr.Expression
	}{{
		summary:    "field reference",
		expression: expr.F("integer_field"),
	}, {
		summary:    "value",
		expression: expr.Value(1),
	}, {
		summary:    "function over a field",
		expression: expr.Round("float_field"),
	}, {
		summary:    "nil expression",
		expression: nil,
	}}
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		f, err := expr.NewFilter(test.expression, expr.Cond("integer_field__gte", 2000))
		c.Assert(err, ErrorMatches, "expression must either be an aggregate function or contain an aggregate function")
		c.Assert(errors.Is(err, expr.ErrNotAggregate), Equals, true)
		c.Assert(f, IsNil)
	}
}

func (s *ExprSuite) TestNewFilterRequiresResolvableCondition(c *C) {
	var nilQ *expr.Q
	for i, condition := range []any{nil, "integer_field__gte", 2000, true, nilQ} {
		c.Logf("test %d: %#v", i, condition)
		f, err := expr.NewFilter(expr.Count("*"), condition)
		c.Assert(err, ErrorMatches, "condition must be a type defining ResolveExpression")
		c.Assert(errors.Is(err, expr.ErrNotResolvable), Equals, true)
		c.Assert(f, IsNil)
	}
}

func (s *ExprSuite) TestNewFilterRejectsNilAggregate(c *C) {
	var nilAggregate *expr.Aggregate
	f, err := expr.NewFilter(nilAggregate, expr.Cond("integer_field__gte", 2000))
	c.Assert(errors.Is(err, expr.ErrNotAggregate), Equals, true)
	c.Assert(f, IsNil)

	_, err = expr.NewFilter(nil, expr.Cond("integer_field__gte", 2000))
	c.Assert(errors.Is(err, expr.ErrNotAggregate), Equals, true)
}

func (s *ExprSuite) TestNewFilterChecksAggregateFirst(c *C) {
	_, err := expr.NewFilter(expr.F("integer_field"), "not a condition")
	c.Assert(errors.Is(err, expr.ErrNotAggregate), Equals, true)
}

func (s *ExprSuite) TestNewFilter(c *C) {
	f, err := expr.NewFilter(expr.Count("*"), expr.Cond("integer_field__gte", 2000))
	c.Assert(err, IsNil)
	c.Check(f.ContainsAggregate(), Equals, true)
	c.Check(f.GroupByCols(), HasLen, 0)
	c.Check(f.OutputField(), Equals, expr.IntegerField)

	// An aggregate nested in a function is accepted.
	f, err = expr.NewFilter(expr.Round(expr.Avg("float_field")), expr.Cond("char_field", "Canada"))
	c.Assert(err, IsNil)
	c.Check(f.OutputField(), Equals, expr.IntegerField)

	f, err = expr.NewFilter(expr.Sum("integer_field"), expr.Cond("char_field", "Canada"), expr.FloatField)
	c.Assert(err, IsNil)
	c.Check(f.OutputField(), Equals, expr.FloatField)
}

func (s *ExprSuite) TestMustFilterPanics(c *C) {
	c.Assert(func() { expr.MustFilter(expr.F("integer_field"), expr.Cond("integer_field", 1)) },
		PanicMatches, "expression must either be an aggregate function or contain an aggregate function")
}

func (s *ExprSuite) TestFilterString(c *C) {
	f := expr.MustFilter(expr.Count("*"), expr.Cond("integer_field__gte", 2000))
	c.Assert(f.String(), Equals, "Count('*') FILTER (WHERE (AND: ('integer_field__gte', 2000)))")

	f = expr.MustFilter(expr.Sum("integer_field"), expr.Or(expr.Cond("char_field", "Australia"), expr.Cond("char_field", "Canada")))
	c.Assert(f.String(), Equals, "Sum(F(integer_field)) FILTER (WHERE (OR: ('char_field', 'Australia'), ('char_field', 'Canada')))")
}

func (s *ExprSuite) TestFilterSQL(c *C) {
	tests := []struct {
		summary string
		conn    *dialect.Connection
		filter  *expr.Filter
		sql     string
		params  []any
	}{{
		summary: "count on postgresql",
		conn:    postgres,
		filter:  expr.MustFilter(expr.Count("*"), expr.Cond("integer_field__gte", 2000)),
		sql:     `SELECT COUNT(*) FILTER (WHERE "aggregation_test"."integer_field" >= $1) AS "n" FROM "aggregation_test"`,
		params:  []any{2000},
	}, {
		summary: "sum on sqlite",
		conn:    sqlite,
		filter:  expr.MustFilter(expr.Sum("integer_field"), expr.Cond("char_field__in", []string{"Australia", "Canada"})),
		sql:     `SELECT SUM("aggregation_test"."integer_field") FILTER (WHERE "aggregation_test"."char_field" IN (?, ?)) AS "n" FROM "aggregation_test"`,
		params:  []any{"Australia", "Canada"},
	}, {
		summary: "aggregate parameters",
		conn:    postgres,
		filter:  expr.MustFilter(expr.Sum(expr.Power("integer_field", 2)), expr.Cond("char_field__isnull", false)),
		sql:     `SELECT SUM(POW("aggregation_test"."integer_field", $1)) FILTER (WHERE "aggregation_test"."char_field" IS NOT NULL) AS "n" FROM "aggregation_test"`,
		params:  []any{2},
	}}
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		q := expr.NewQuery(aggregationModel).Annotate("n", test.filter)
		sql, params, err := compile(q, test.conn)
		c.Assert(err, IsNil)
		c.Check(sql, Equals, test.sql)
		c.Check(params, DeepEquals, test.params)
	}
}

func (s *ExprSuite) TestFilterParamsConditionFirst(c *C) {
	f := expr.MustFilter(expr.Count("*"), expr.And(expr.Cond("integer_field__gte", 1000), expr.Cond("char_field__startswith", "B")))
	q := expr.NewQuery(aggregationModel).
		Annotate("n", f).
		Where(expr.Cond("float_field__lt", 0.5))
	sql, params, err := compile(q, postgres)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `SELECT COUNT(*) FILTER (WHERE ("aggregation_test"."integer_field" >= $1 AND "aggregation_test"."char_field" LIKE $2 ESCAPE '\')) AS "n" FROM "aggregation_test" WHERE "aggregation_test"."float_field" < $3`)
	c.Check(params, DeepEquals, []any{1000, "B%", 0.5})
}

func (s *ExprSuite) TestFilterRejectsParamsOnBothSides(c *C) {
	f := expr.MustFilter(expr.Sum(expr.Power("integer_field", 2)), expr.Cond("char_field", "Australia"))
	_, _, err := compile(expr.NewQuery(aggregationModel).Annotate("n", f), postgres)
	c.Assert(err, ErrorMatches, `cannot compile query: annotation "n": cannot compile filter: both the aggregate and the condition have parameters`)
}

func (s *ExprSuite) TestFilterNotSupported(c *C) {
	tests := []struct {
		conn *dialect.Connection
		err  string
	}{{
		conn: dialect.New(dialect.PostgreSQL, 90302),
		err:  `cannot compile query: annotation "n": feature not supported: aggregate FILTER clause requires postgresql 9.4.0 or later, have 9.3.2`,
	}, {
		conn: dialect.New(dialect.SQLite, 3029000),
		err:  `cannot compile query: annotation "n": feature not supported: aggregate FILTER clause requires sqlite 3.30.0 or later, have 3.29.0`,
	}, {
		conn: mysql,
		err:  `cannot compile query: annotation "n": feature not supported: aggregate FILTER clause is not supported by mysql`,
	}}
	f := expr.MustFilter(expr.Count("*"), expr.Cond("integer_field__gte", 2000))
	q := expr.NewQuery(aggregationModel).Annotate("n", f)
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.conn)
		sql, params, err := compile(q, test.conn)
		c.Check(err, ErrorMatches, test.err)
		c.Check(errors.Is(err, expr.ErrNotSupported), Equals, true)
		c.Check(sql, Equals, "")
		c.Check(params, IsNil)
	}
}

func (s *ExprSuite) TestFilterResolveCopies(c *C) {
	cond := expr.Cond("integer_field__gte", 2000)
	f := expr.MustFilter(expr.Count("*"), cond)
	q := expr.NewQuery(aggregationModel)

	resolved, err := f.ResolveExpression(q, expr.DefaultResolve)
	c.Assert(err, IsNil)
	r, ok := resolved.(*expr.Filter)
	c.Assert(ok, Equals, true)
	c.Check(r, Not(Equals), f)
	c.Check(f.Condition(), Equals, cond)
	c.Check(r.Condition(), Not(Equals), cond)
	c.Check(cond.String(), Equals, "(AND: ('integer_field__gte', 2000))")

	// The original stays unresolved.
	comp := expr.NewCompiler(q, sqlite, "")
	_, _, err = comp.Compile(f)
	c.Assert(err, ErrorMatches, `cannot compile lookup "integer_field__gte": expression has not been resolved`)
	c.Check(errors.Is(err, expr.ErrUnresolved), Equals, true)

	sql, params, err := comp.Compile(resolved)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `COUNT(*) FILTER (WHERE "aggregation_test"."integer_field" >= ?)`)
	c.Check(params, DeepEquals, []any{2000})
}

func (s *ExprSuite) TestFilterResolveUnknownField(c *C) {
	f := expr.MustFilter(expr.Count("*"), expr.Cond("missing__gte", 2000))
	q := expr.NewQuery(aggregationModel).Annotate("n", f)
	c.Assert(q.Err(), ErrorMatches, `cannot resolve keyword "missing" into field: aggregation_test has no field named "missing"`)
}
