// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/sqlexpr/dialect"
)

const filterTemplate = "%s FILTER (WHERE %s)"

// Filter restricts the rows an aggregate sees to those matching a condition:
//
//	COUNT(*) FILTER (WHERE "integer_field" >= ?)
type Filter struct {
	expression Expression
	condition  Resolvable
	output     FieldType
}

// NewFilter wraps expression, which must contain an aggregate, with
// condition, which must be resolvable against a query. The result type is
// the one of expression unless output is given.
//
// The condition's parameters are bound before the aggregate's, so a filter
// where both carry parameters is built but fails to compile.
func NewFilter(expression Expression, condition any, output ...FieldType) (*Filter, error) {
	if isNil(expression) || !expression.ContainsAggregate() {
		return nil, ErrNotAggregate
	}
	cond, ok := condition.(Resolvable)
	if !ok || isNil(cond) {
		return nil, ErrNotResolvable
	}
	f := &Filter{expression: expression, condition: cond}
	if len(output) > 0 {
		f.output = output[0]
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on error.
func MustFilter(expression Expression, condition any, output ...FieldType) *Filter {
	f, err := NewFilter(expression, condition, output...)
	if err != nil {
		panic(err)
	}
	return f
}

// Expression returns the wrapped aggregate.
func (f *Filter) Expression() Expression {
	return f.expression
}

// Condition returns the filter condition.
func (f *Filter) Condition() Resolvable {
	return f.condition
}

func (f *Filter) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	condition, err := f.condition.ResolveExpression(q, opts)
	if err != nil {
		return nil, err
	}
	expression, err := f.expression.ResolveExpression(q, opts)
	if err != nil {
		return nil, err
	}
	return &Filter{expression: expression, condition: condition, output: f.output}, nil
}

// AsSQL renders the aggregate followed by its FILTER clause. The parameters
// of the condition come first, followed by those of the aggregate. As the
// aggregate precedes the condition in the SQL text, the two cannot both carry
// parameters.
func (f *Filter) AsSQL(c *Compiler, conn *dialect.Connection) (string, []any, error) {
	if err := conn.Require(dialect.FeatureAggregateFilter); err != nil {
		return "", nil, notSupported(err)
	}
	condition, ok := f.condition.(Expression)
	if !ok {
		return "", nil, fmt.Errorf("cannot compile filter condition %T: %w", f.condition, ErrUnresolved)
	}

	exprSQL, exprParams, err := c.Compile(f.expression)
	if err != nil {
		return "", nil, err
	}
	condSQL, condParams, err := c.Compile(condition)
	if err != nil {
		return "", nil, err
	}
	if len(condParams) > 0 && len(exprParams) > 0 {
		return "", nil, fmt.Errorf("cannot compile filter: both the aggregate and the condition have parameters")
	}
	params := make([]any, 0, len(condParams)+len(exprParams))
	params = append(params, condParams...)
	params = append(params, exprParams...)
	return fmt.Sprintf(filterTemplate, exprSQL, condSQL), params, nil
}

// GroupByCols is empty: a filtered aggregate is not a grouping column.
func (f *Filter) GroupByCols() []Expression { return nil }

func (f *Filter) ContainsAggregate() bool { return true }

func (f *Filter) OutputField() FieldType {
	if f.output != UnknownField {
		return f.output
	}
	return f.expression.OutputField()
}

// String mirrors the SQL template with the String forms of the children.
func (f *Filter) String() string {
	return fmt.Sprintf(filterTemplate, f.expression, f.condition)
}

// isNil reports whether v is nil or a typed nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
