package expr

import (
	"fmt"
	"reflect"

	"golang.org/x/exp/slices"

	"github.com/canonical/sqlexpr/dialect"
)

// FieldRef is an unresolved reference to a model field by its logical name.
// Resolution replaces it with a Col.
type FieldRef struct {
	Name string
}

// F returns a reference to the field called name.
func F(name string) FieldRef {
	return FieldRef{Name: name}
}

func (f FieldRef) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	return q.ResolveRef(f.Name, opts)
}

func (f FieldRef) AsSQL(*Compiler, *dialect.Connection) (string, []any, error) {
	return "", nil, fmt.Errorf("cannot compile %s: %w", f, ErrUnresolved)
}

func (f FieldRef) GroupByCols() []Expression { return []Expression{f} }
func (f FieldRef) ContainsAggregate() bool   { return false }
func (f FieldRef) OutputField() FieldType    { return UnknownField }

func (f FieldRef) String() string {
	return "F(" + f.Name + ")"
}

// Asc orders by the field, ascending.
func (f FieldRef) Asc() *OrderBy {
	return Asc(f)
}

// Desc orders by the field, descending.
func (f FieldRef) Desc() *OrderBy {
	return Desc(f)
}

// Col is a physical column of the query's table.
type Col struct {
	// Alias qualifies the column. It is empty when the query renders
	// columns without a table prefix.
	Alias  string
	Target *Field
}

func (c *Col) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	clone := *c
	return &clone, nil
}

func (c *Col) AsSQL(_ *Compiler, conn *dialect.Connection) (string, []any, error) {
	if c.Alias == "" {
		return conn.QuoteName(c.Target.Column), nil, nil
	}
	return conn.QuoteName(c.Alias) + "." + conn.QuoteName(c.Target.Column), nil, nil
}

func (c *Col) GroupByCols() []Expression { return []Expression{c} }
func (c *Col) ContainsAggregate() bool   { return false }
func (c *Col) OutputField() FieldType    { return c.Target.Type }

func (c *Col) String() string {
	if c.Alias == "" {
		return "Col(" + c.Target.Column + ")"
	}
	return "Col(" + c.Alias + ", " + c.Target.Column + ")"
}

// Ref refers to an annotation of the query by its alias.
type Ref struct {
	Alias  string
	Source Expression
}

func (r *Ref) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	clone := *r
	return &clone, nil
}

func (r *Ref) AsSQL(_ *Compiler, conn *dialect.Connection) (string, []any, error) {
	return conn.QuoteName(r.Alias), nil, nil
}

func (r *Ref) GroupByCols() []Expression { return []Expression{r} }
func (r *Ref) ContainsAggregate() bool   { return false }
func (r *Ref) OutputField() FieldType    { return r.Source.OutputField() }

func (r *Ref) String() string {
	return fmt.Sprintf("Ref(%s, %s)", r.Alias, r.Source)
}

// ValueExpr is a bound parameter.
type ValueExpr struct {
	V any
}

// Value wraps v as a bound parameter. A nil v renders as NULL.
func Value(v any) *ValueExpr {
	return &ValueExpr{V: v}
}

func (v *ValueExpr) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	clone := *v
	return &clone, nil
}

func (v *ValueExpr) AsSQL(*Compiler, *dialect.Connection) (string, []any, error) {
	if v.V == nil {
		return "NULL", []any{}, nil
	}
	return "?", []any{v.V}, nil
}

// GroupByCols is empty: constants do not affect grouping.
func (v *ValueExpr) GroupByCols() []Expression { return nil }
func (v *ValueExpr) ContainsAggregate() bool   { return false }

func (v *ValueExpr) OutputField() FieldType {
	return FieldTypeOf(reflect.TypeOf(v.V))
}

func (v *ValueExpr) String() string {
	return fmt.Sprintf("Value(%s)", repr(v.V))
}

// RawSQLExpr is a literal SQL fragment with its parameters.
type RawSQLExpr struct {
	SQL    string
	Params []any
	Output FieldType
}

// RawSQL returns a node rendering sql verbatim, in parentheses.
func RawSQL(sql string, params ...any) *RawSQLExpr {
	return &RawSQLExpr{SQL: sql, Params: params}
}

func (r *RawSQLExpr) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	clone := *r
	clone.Params = slices.Clone(r.Params)
	return &clone, nil
}

func (r *RawSQLExpr) AsSQL(*Compiler, *dialect.Connection) (string, []any, error) {
	return "(" + r.SQL + ")", slices.Clone(r.Params), nil
}

func (r *RawSQLExpr) GroupByCols() []Expression { return []Expression{r} }
func (r *RawSQLExpr) ContainsAggregate() bool   { return false }
func (r *RawSQLExpr) OutputField() FieldType    { return r.Output }

func (r *RawSQLExpr) String() string {
	return fmt.Sprintf("RawSQL(%s, %v)", r.SQL, r.Params)
}

type star struct{}

// Star returns the "*" used in COUNT(*).
func Star() Expression {
	return star{}
}

func (s star) ResolveExpression(*Query, ResolveOptions) (Expression, error) { return s, nil }

func (star) AsSQL(*Compiler, *dialect.Connection) (string, []any, error) {
	return "*", []any{}, nil
}

func (star) GroupByCols() []Expression { return nil }
func (star) ContainsAggregate() bool   { return false }
func (star) OutputField() FieldType    { return UnknownField }
func (star) String() string            { return "'*'" }

// OrderBy attaches a sort direction to an expression.
type OrderBy struct {
	Expression Expression
	descending bool
}

// Asc orders by e, ascending.
func Asc(e Expression) *OrderBy {
	return &OrderBy{Expression: e}
}

// Desc orders by e, descending.
func Desc(e Expression) *OrderBy {
	return &OrderBy{Expression: e, descending: true}
}

// Descending reports whether the order is descending.
func (o *OrderBy) Descending() bool {
	return o.descending
}

func (o *OrderBy) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	resolved, err := o.Expression.ResolveExpression(q, opts)
	if err != nil {
		return nil, err
	}
	return &OrderBy{Expression: resolved, descending: o.descending}, nil
}

func (o *OrderBy) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	sql, params, err := c.Compile(o.Expression)
	if err != nil {
		return "", nil, err
	}
	if o.descending {
		return sql + " DESC", params, nil
	}
	return sql + " ASC", params, nil
}

func (o *OrderBy) GroupByCols() []Expression { return o.Expression.GroupByCols() }
func (o *OrderBy) ContainsAggregate() bool   { return o.Expression.ContainsAggregate() }
func (o *OrderBy) OutputField() FieldType    { return o.Expression.OutputField() }

func (o *OrderBy) String() string {
	return fmt.Sprintf("OrderBy(%s, descending=%t)", o.Expression, o.descending)
}

// repr formats a Go value the way conditions and values print it: strings
// are single quoted, everything else uses its default format.
func repr(v any) string {
	switch v := v.(type) {
	case string:
		return "'" + v + "'"
	case nil:
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
