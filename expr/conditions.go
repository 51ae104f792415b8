// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/canonical/sqlexpr/dialect"
)

const (
	and = "AND"
	or  = "OR"

	// lookupSep separates a field name from its lookup: "age__gte".
	lookupSep = "__"
)

// Q is a boolean condition tree. Leaves are field lookups written as
// "field__lookup" keys; inner nodes join their children with AND or OR and
// may be negated.
//
// An unresolved Q is only a description. Resolving it against a query turns
// every leaf into a Lookup on a real column.
type Q struct {
	connector string
	negated   bool
	children  []Expression
}

// Cond returns a condition on a single lookup. The key is a field name
// optionally followed by "__" and a lookup name ("exact" when omitted):
//
//	Cond("integer_field__gte", 2000)
func Cond(key string, value any) *Q {
	return &Q{connector: and, children: []Expression{&lookupRef{key: key, value: value}}}
}

// And joins conditions with AND.
func And(qs ...*Q) *Q {
	return combine(and, qs)
}

// Or joins conditions with OR.
func Or(qs ...*Q) *Q {
	return combine(or, qs)
}

// Not negates q.
func Not(q *Q) *Q {
	c := q.copy()
	c.negated = !c.negated
	return c
}

// combine flattens conditions that share the connector into one node.
func combine(connector string, qs []*Q) *Q {
	result := &Q{connector: connector}
	for _, q := range qs {
		if q.Empty() {
			continue
		}
		if !q.negated && (q.connector == connector || len(q.children) == 1) {
			result.children = append(result.children, q.children...)
			continue
		}
		result.children = append(result.children, q.copy())
	}
	return result
}

// Empty reports whether q has no conditions.
func (q *Q) Empty() bool {
	return q == nil || len(q.children) == 0
}

func (q *Q) copy() *Q {
	return &Q{connector: q.connector, negated: q.negated, children: slices.Clone(q.children)}
}

func (q *Q) ResolveExpression(query *Query, opts ResolveOptions) (Expression, error) {
	children, err := resolveAll(q.children, query, opts)
	if err != nil {
		return nil, err
	}
	return &Q{connector: q.connector, negated: q.negated, children: children}, nil
}

func (q *Q) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	if q.Empty() {
		return "", nil, fmt.Errorf("cannot compile an empty condition")
	}
	sql, params, err := c.compileList(q.children, " "+q.connector+" ")
	if err != nil {
		return "", nil, err
	}
	if q.negated {
		return "NOT (" + sql + ")", params, nil
	}
	if len(q.children) > 1 {
		sql = "(" + sql + ")"
	}
	return sql, params, nil
}

func (q *Q) GroupByCols() []Expression {
	var cols []Expression
	for _, child := range q.children {
		cols = append(cols, child.GroupByCols()...)
	}
	return cols
}

func (q *Q) ContainsAggregate() bool {
	return containsAggregate(q.children)
}

func (q *Q) OutputField() FieldType { return BooleanField }

// String renders the tree as "(AND: ('age__gte', 2000), ...)".
func (q *Q) String() string {
	s := "(" + q.connector + ": " + joinStrings(q.children, ", ") + ")"
	if q.negated {
		return "(NOT " + s + ")"
	}
	return s
}

// lookupRef is an unresolved leaf of a Q.
type lookupRef struct {
	key   string
	value any
}

func (l *lookupRef) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	field, name := l.key, "exact"
	if i := strings.LastIndex(l.key, lookupSep); i >= 0 {
		if _, ok := lookups[l.key[i+len(lookupSep):]]; ok {
			field, name = l.key[:i], l.key[i+len(lookupSep):]
		}
	}
	lhs, err := q.ResolveRef(field, opts)
	if err != nil {
		return nil, err
	}
	rhs, err := lookupRHS(name, l.value, q, opts)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", l.key, err)
	}
	return &Lookup{name: name, lhs: lhs, rhs: rhs}, nil
}

func (l *lookupRef) AsSQL(*Compiler, *dialect.Connection) (string, []any, error) {
	return "", nil, fmt.Errorf("cannot compile lookup %q: %w", l.key, ErrUnresolved)
}

func (l *lookupRef) GroupByCols() []Expression { return nil }
func (l *lookupRef) ContainsAggregate() bool   { return false }
func (l *lookupRef) OutputField() FieldType    { return BooleanField }

func (l *lookupRef) String() string {
	return fmt.Sprintf("('%s', %s)", l.key, repr(l.value))
}

// lookupRHS builds the right hand side of a lookup from the user's value.
func lookupRHS(name string, value any, q *Query, opts ResolveOptions) (Expression, error) {
	switch name {
	case "in":
		v := reflect.ValueOf(value)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return nil, fmt.Errorf("need slice, got %T", value)
		}
		if v.Len() == 0 {
			return nil, fmt.Errorf("empty list")
		}
		items := make([]Expression, v.Len())
		for i := range items {
			items[i] = Value(v.Index(i).Interface())
		}
		return &valueList{items: items}, nil
	case "isnull":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("need bool, got %T", value)
		}
		return Value(b), nil
	case "contains":
		return likeValue(value, "%", "%")
	case "startswith":
		return likeValue(value, "", "%")
	}
	if e, ok := value.(Expression); ok {
		return e.ResolveExpression(q, opts)
	}
	return Value(value), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeValue(value any, prefix, suffix string) (Expression, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("need string, got %T", value)
	}
	return Value(prefix + likeEscaper.Replace(s) + suffix), nil
}

// valueList renders a parenthesised list of values for IN.
type valueList struct {
	items []Expression
}

func (v *valueList) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	return &valueList{items: slices.Clone(v.items)}, nil
}

func (v *valueList) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	sql, params, err := c.compileList(v.items, ", ")
	if err != nil {
		return "", nil, err
	}
	return "(" + sql + ")", params, nil
}

func (v *valueList) GroupByCols() []Expression { return nil }
func (v *valueList) ContainsAggregate() bool   { return false }
func (v *valueList) OutputField() FieldType    { return UnknownField }
func (v *valueList) String() string            { return "(" + joinStrings(v.items, ", ") + ")" }

// lookups maps a lookup name to its template. The first %s is the
// left hand side, the second the right hand side.
var lookups = map[string]string{
	"exact":      "%s = %s",
	"iexact":     "UPPER(%s) = UPPER(%s)",
	"gt":         "%s > %s",
	"gte":        "%s >= %s",
	"lt":         "%s < %s",
	"lte":        "%s <= %s",
	"in":         "%s IN %s",
	"isnull":     "",
	"contains":   `%s LIKE %s ESCAPE '\'`,
	"startswith": `%s LIKE %s ESCAPE '\'`,
}

// vendorLookups overrides lookup templates per vendor. MySQL treats the
// backslash as an escape inside string literals and uses it as the default
// LIKE escape character.
var vendorLookups = map[dialect.Vendor]map[string]string{
	dialect.MySQL: {
		"contains":   "%s LIKE %s",
		"startswith": "%s LIKE %s",
	},
}

// Lookup compares a column with a value: the resolved form of a Q leaf.
type Lookup struct {
	name string
	lhs  Expression
	rhs  Expression
}

func (l *Lookup) ResolveExpression(*Query, ResolveOptions) (Expression, error) {
	clone := *l
	return &clone, nil
}

func (l *Lookup) VendorSQL(v dialect.Vendor) (Renderer, bool) {
	template, ok := vendorLookups[v][l.name]
	if !ok {
		return nil, false
	}
	return func(c *Compiler, _ *dialect.Connection) (string, []any, error) {
		return l.render(c, template)
	}, true
}

func (l *Lookup) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	return l.render(c, lookups[l.name])
}

func (l *Lookup) render(c *Compiler, template string) (string, []any, error) {
	lhs, params, err := c.Compile(l.lhs)
	if err != nil {
		return "", nil, err
	}
	if l.name == "isnull" {
		if l.rhs.(*ValueExpr).V.(bool) {
			return lhs + " IS NULL", params, nil
		}
		return lhs + " IS NOT NULL", params, nil
	}
	if v, ok := l.rhs.(*ValueExpr); ok && v.V == nil && l.name == "exact" {
		return lhs + " IS NULL", params, nil
	}
	rhs, rhsParams, err := c.Compile(l.rhs)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(template, lhs, rhs), append(append([]any{}, params...), rhsParams...), nil
}

func (l *Lookup) GroupByCols() []Expression {
	return append(l.lhs.GroupByCols(), l.rhs.GroupByCols()...)
}

func (l *Lookup) ContainsAggregate() bool {
	return l.lhs.ContainsAggregate() || l.rhs.ContainsAggregate()
}

func (l *Lookup) OutputField() FieldType { return BooleanField }

func (l *Lookup) String() string {
	return fmt.Sprintf("%s__%s %s", l.lhs, l.name, l.rhs)
}
