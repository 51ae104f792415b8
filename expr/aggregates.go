// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"github.com/canonical/sqlexpr/dialect"
)

// Aggregate is an aggregate function call such as COUNT(x) or SUM(x).
type Aggregate struct {
	name     string
	function string
	source   Expression
	distinct bool
	// output is the fixed result type, or UnknownField when the result has
	// the type of the source.
	output    FieldType
	summarize bool
}

func newAggregate(name, function string, source any, output FieldType) *Aggregate {
	return &Aggregate{
		name:     name,
		function: function,
		source:   parseExpression(source),
		output:   output,
	}
}

// Count counts rows. Pass "*" to count every row, a field name or an
// expression to count non-NULL values.
func Count(source any) *Aggregate {
	return newAggregate("Count", "COUNT", source, IntegerField)
}

// CountDistinct counts the distinct non-NULL values of source.
func CountDistinct(source any) *Aggregate {
	a := Count(source)
	a.distinct = true
	return a
}

// Sum adds the values of source.
func Sum(source any) *Aggregate {
	return newAggregate("Sum", "SUM", source, UnknownField)
}

// Avg averages the values of source.
func Avg(source any) *Aggregate {
	return newAggregate("Avg", "AVG", source, FloatField)
}

// Min returns the smallest value of source.
func Min(source any) *Aggregate {
	return newAggregate("Min", "MIN", source, UnknownField)
}

// Max returns the largest value of source.
func Max(source any) *Aggregate {
	return newAggregate("Max", "MAX", source, UnknownField)
}

// Name returns the aggregate's name, e.g. "Sum".
func (a *Aggregate) Name() string {
	return a.name
}

// Source returns the aggregated expression.
func (a *Aggregate) Source() Expression {
	return a.source
}

func (a *Aggregate) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	source, err := a.source.ResolveExpression(q, opts)
	if err != nil {
		return nil, err
	}
	if !opts.Summarize && source.ContainsAggregate() {
		return nil, fmt.Errorf("cannot compute %s: %s is an aggregate", a, a.source)
	}
	clone := *a
	clone.source = source
	clone.summarize = opts.Summarize
	return &clone, nil
}

func (a *Aggregate) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	sql, params, err := c.Compile(a.source)
	if err != nil {
		return "", nil, err
	}
	if a.distinct {
		return a.function + "(DISTINCT " + sql + ")", params, nil
	}
	return a.function + "(" + sql + ")", params, nil
}

// GroupByCols is empty: an aggregate is never a grouping column.
func (a *Aggregate) GroupByCols() []Expression { return nil }

func (a *Aggregate) ContainsAggregate() bool { return true }

func (a *Aggregate) OutputField() FieldType {
	if a.output != UnknownField {
		return a.output
	}
	return a.source.OutputField()
}

func (a *Aggregate) String() string {
	if a.distinct {
		return fmt.Sprintf("%s(%s, distinct=true)", a.name, a.source)
	}
	return fmt.Sprintf("%s(%s)", a.name, a.source)
}
