// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/canonical/sqlexpr/dialect"
)

var (
	// ErrNotAggregate is returned when a node that must wrap an aggregate is
	// given something else.
	ErrNotAggregate = errors.New("expression must either be an aggregate function or contain an aggregate function")

	// ErrNotResolvable is returned when a condition cannot be resolved
	// against a query.
	ErrNotResolvable = errors.New("condition must be a type defining ResolveExpression")

	// ErrNotSupported is returned when the target dialect cannot express a
	// node. Compilation stops rather than emitting SQL the server would
	// reject.
	ErrNotSupported = errors.New("feature not supported")

	// ErrUnresolved is returned when compiling a node that must be resolved
	// against a query first.
	ErrUnresolved = errors.New("expression has not been resolved")
)

// notSupported wraps a dialect.Connection.Require error in ErrNotSupported.
func notSupported(err error) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, err)
}

// ResolveOptions controls how an expression is bound to a query.
type ResolveOptions struct {
	// AllowJoins permits references that would need a join.
	AllowJoins bool
	// Reuse lists table aliases that may be reused by joins.
	Reuse map[string]bool
	// Summarize is set when the expression is evaluated over the result of
	// an aggregation, for example in an aggregate over annotations.
	Summarize bool
	// ForSave is set when the expression is used to compute a value to be
	// stored.
	ForSave bool
}

// DefaultResolve are the options used when none are given.
var DefaultResolve = ResolveOptions{AllowJoins: true}

// Resolvable is the capability of binding to a query. Conditions given to a
// Filter must have it.
type Resolvable interface {
	// ResolveExpression binds the node to q and returns a new node. The
	// receiver is left untouched.
	ResolveExpression(q *Query, opts ResolveOptions) (Expression, error)
}

// Expression is a node in a SQL expression tree.
type Expression interface {
	Resolvable

	// AsSQL renders the node for conn. It returns the SQL fragment and the
	// parameters referenced by its placeholders, in placeholder order.
	// Children must be rendered through c.Compile so that vendor overrides
	// apply to them too.
	AsSQL(c *Compiler, conn *dialect.Connection) (string, []any, error)

	// GroupByCols returns the expressions this node adds to a GROUP BY
	// clause when it appears in a grouped query.
	GroupByCols() []Expression

	// ContainsAggregate reports whether the node is, or contains, an
	// aggregate.
	ContainsAggregate() bool

	// OutputField is the type of the value the node produces.
	OutputField() FieldType

	// String returns a representation of the node for diagnostics.
	String() string
}

// Renderer renders a node for a specific vendor.
type Renderer func(c *Compiler, conn *dialect.Connection) (string, []any, error)

// VendorRenderer is implemented by nodes that render differently on some
// vendors. The compiler uses the returned Renderer in place of AsSQL.
type VendorRenderer interface {
	VendorSQL(v dialect.Vendor) (Renderer, bool)
}

// FieldType is the semantic type of a column or expression result.
type FieldType int

const (
	UnknownField FieldType = iota
	IntegerField
	FloatField
	TextField
	BooleanField
	DateTimeField
	BinaryField
)

var fieldTypeNames = map[FieldType]string{
	UnknownField:  "UnknownField",
	IntegerField:  "IntegerField",
	FloatField:    "FloatField",
	TextField:     "TextField",
	BooleanField:  "BooleanField",
	DateTimeField: "DateTimeField",
	BinaryField:   "BinaryField",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

var timeType = reflect.TypeOf(time.Time{})

// FieldTypeOf returns the field type matching the Go type t.
func FieldTypeOf(t reflect.Type) FieldType {
	if t == nil {
		return UnknownField
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return DateTimeField
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return IntegerField
	case reflect.Float32, reflect.Float64:
		return FloatField
	case reflect.String:
		return TextField
	case reflect.Bool:
		return BooleanField
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return BinaryField
		}
	}
	return UnknownField
}

// Field describes a model field.
type Field struct {
	// Name is the logical name used in expressions.
	Name string
	// Column is the physical column name.
	Column string
	Type   FieldType
}

// Model is the table an expression is resolved against.
type Model interface {
	// DBTable returns the table name, optionally schema qualified as
	// `"schema"."table"`.
	DBTable() string
	// Field returns the field with the given logical name.
	Field(name string) (*Field, error)
}

// parseExpression turns a constructor argument into an expression: strings
// name fields ("*" is the star), expressions are used as they are and any
// other value becomes a bound parameter.
func parseExpression(arg any) Expression {
	switch a := arg.(type) {
	case Expression:
		return a
	case string:
		if a == "*" {
			return Star()
		}
		return F(a)
	default:
		return Value(a)
	}
}

func parseExpressions(args []any) []Expression {
	exprs := make([]Expression, len(args))
	for i, arg := range args {
		exprs[i] = parseExpression(arg)
	}
	return exprs
}

// resolveAll resolves each expression with the same options.
func resolveAll(exprs []Expression, q *Query, opts ResolveOptions) ([]Expression, error) {
	resolved := make([]Expression, len(exprs))
	for i, e := range exprs {
		r, err := e.ResolveExpression(q, opts)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}
	return resolved, nil
}

func containsAggregate(exprs []Expression) bool {
	for _, e := range exprs {
		if e.ContainsAggregate() {
			return true
		}
	}
	return false
}

// joinStrings joins the String form of each expression.
func joinStrings(exprs []Expression, sep string) string {
	strs := make([]string, len(exprs))
	for i, e := range exprs {
		strs[i] = e.String()
	}
	return strings.Join(strs, sep)
}
