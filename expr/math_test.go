package expr_test

import (
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
)

func (s *ExprSuite) TestFuncString(c *C) {
	tests := []struct {
		f      *expr.Func
		str    string
		output expr.FieldType
	}{
		{expr.ArcCos("float_field"), "ArcCos(F(float_field))", expr.FloatField},
		{expr.ArcSin("float_field"), "ArcSin(F(float_field))", expr.FloatField},
		{expr.Cos("float_field"), "Cos(F(float_field))", expr.FloatField},
		{expr.Cot("float_field"), "Cot(F(float_field))", expr.FloatField},
		{expr.Log(10, "float_field"), "Log(Value(10), F(float_field))", expr.FloatField},
		{expr.Log10("float_field"), "Log10(F(float_field))", expr.FloatField},
		{expr.Power("integer_field", 2), "Power(F(integer_field), Value(2))", expr.FloatField},
		{expr.Round("float_field"), "Round(F(float_field))", expr.IntegerField},
		{expr.Sin("float_field"), "Sin(F(float_field))", expr.FloatField},
		{expr.Sqrt("float_field"), "Sqrt(F(float_field))", expr.FloatField},
		{expr.Tan("float_field"), "Tan(F(float_field))", expr.FloatField},
		{expr.Now(), "Now()", expr.DateTimeField},
	}
	for _, test := range tests {
		c.Check(test.f.String(), Equals, test.str)
		c.Check(test.f.OutputField(), Equals, test.output)
		c.Check(test.f.ContainsAggregate(), Equals, false)
	}
}

func (s *ExprSuite) TestFuncSQL(c *C) {
	tests := []struct {
		f      *expr.Func
		sql    string
		params []any
	}{
		{expr.ArcCos("float_field"), `ACOS("aggregation_test"."float_field")`, []any{}},
		{expr.ArcSin("float_field"), `ASIN("aggregation_test"."float_field")`, []any{}},
		{expr.Cot("float_field"), `COT("aggregation_test"."float_field")`, []any{}},
		{expr.Log(2, "integer_field"), `LOG(?, "aggregation_test"."integer_field")`, []any{2}},
		{expr.Power("integer_field", 3), `POW("aggregation_test"."integer_field", ?)`, []any{3}},
		{expr.Round(expr.Sqrt("float_field")), `ROUND(SQRT("aggregation_test"."float_field"))`, []any{}},
		{expr.Now(), `CURRENT_TIMESTAMP`, []any{}},
	}
	q := expr.NewQuery(aggregationModel)
	comp := expr.NewCompiler(q, generic, "")
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.f)
		resolved, err := test.f.ResolveExpression(q, expr.DefaultResolve)
		c.Assert(err, IsNil)
		sql, params, err := comp.Compile(resolved)
		c.Assert(err, IsNil)
		c.Check(sql, Equals, test.sql)
		c.Check(params, DeepEquals, test.params)
	}
}

func (s *ExprSuite) TestFuncVendorName(c *C) {
	tests := []struct {
		conn *dialect.Connection
		sql  string
	}{{
		conn: sqlite,
		sql:  `SELECT sqlexpr_power("aggregation_test"."integer_field", ?) AS "p" FROM "aggregation_test"`,
	}, {
		conn: postgres,
		sql:  `SELECT POW("aggregation_test"."integer_field", $1) AS "p" FROM "aggregation_test"`,
	}, {
		conn: mysql,
		sql:  "SELECT POW(`aggregation_test`.`integer_field`, ?) AS `p` FROM `aggregation_test`",
	}}
	q := expr.NewQuery(aggregationModel).Annotate("p", expr.Power("integer_field", 2))
	for i, test := range tests {
		c.Logf("test %d: %s", i, test.conn)
		sql, params, err := compile(q, test.conn)
		c.Assert(err, IsNil)
		c.Check(sql, Equals, test.sql)
		c.Check(params, DeepEquals, []any{2})
	}
}

func (s *ExprSuite) TestFuncArity(c *C) {
	c.Assert(func() { expr.LogFunc.Call(1) }, PanicMatches, "Log takes 2 arguments, got 1")
	c.Assert(func() { expr.SinFunc.Call() }, PanicMatches, "Sin takes 1 arguments, got 0")
}

func (s *ExprSuite) TestFuncGroupBy(c *C) {
	q := expr.NewQuery(aggregationModel).
		Values("char_field").
		Annotate("r", expr.Round("float_field")).
		Annotate("total", expr.Count("*"))
	sql, _, err := compile(q, generic)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `SELECT "aggregation_test"."char_field", ROUND("aggregation_test"."float_field") AS "r", COUNT(*) AS "total" FROM "aggregation_test" GROUP BY "aggregation_test"."char_field", ROUND("aggregation_test"."float_field")`)

	// A function over an aggregate groups by the aggregate's arguments.
	f := expr.Round(expr.Avg("float_field"))
	c.Check(f.ContainsAggregate(), Equals, true)
	c.Check(f.GroupByCols(), HasLen, 0)
}

func (s *ExprSuite) TestCustomFunc(c *C) {
	upper := &expr.FuncDef{Name: "Upper", Function: "UPPER", Output: expr.TextField, Arity: 1}
	q := expr.NewQuery(aggregationModel).Annotate("u", upper.Call("name"))
	sql, _, err := compile(q, sqlite)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `SELECT UPPER("aggregation_test"."full_name") AS "u" FROM "aggregation_test"`)
}
