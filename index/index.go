// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package index describes database indexes and produces their DDL.
package index

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/canonical/sqlexpr/expr"
)

var (
	// ErrNoFields is returned when an index is defined without fields.
	ErrNoFields = errors.New("at least one field is required to define an index")

	// ErrInvalidField is returned for index fields that are neither field
	// names nor expressions.
	ErrInvalidField = errors.New("index fields must be field names or expressions")

	// ErrInvalidName is returned when an explicit index name breaks the
	// naming rules.
	ErrInvalidName = errors.New("invalid index name")

	// ErrExpressionIndexUnnamed is returned when a name must be generated
	// for an index over expressions.
	ErrExpressionIndexUnnamed = errors.New("an index with expressions must be given a name")

	// ErrExpressionIndexNotSupported is returned when the database cannot
	// index expressions.
	ErrExpressionIndexNotSupported = errors.New("expression indexes are not supported")
)

const (
	// Descending is the sort suffix of descending columns.
	Descending = "DESC"

	// descMarker prefixes the names of descending fields: "-age".
	descMarker = "-"
)

// FieldOrder is an indexed field, or expression, and its sort suffix.
type FieldOrder struct {
	// Field is the field name. It is empty for expressions.
	Field string
	// Expression is the indexed expression, or nil for fields.
	Expression expr.Expression
	// Order is "" or Descending.
	Order string
}

func (fo FieldOrder) String() string {
	name := fo.Field
	if fo.Expression != nil {
		name = fo.Expression.String()
	}
	return fmt.Sprintf("(%s, %q)", name, fo.Order)
}

// Index is an index over fields of a model.
//
// The name of an index is either given to New or generated from the model
// the first time the index is used with one. It does not change afterwards.
type Index struct {
	fields       []any
	expressions  []expr.Expression
	fieldsOrders []FieldOrder
	tablespace   string

	mu   sync.Mutex
	name string
}

// Option configures an Index.
type Option func(*Index)

// WithName names the index.
func WithName(name string) Option {
	return func(i *Index) {
		i.name = name
	}
}

// WithTablespace puts the index in a tablespace, on the databases that have
// them.
func WithTablespace(tablespace string) Option {
	return func(i *Index) {
		i.tablespace = tablespace
	}
}

// New returns an index over fields. Each field is either a field name,
// prefixed with "-" for a descending column, or an expr.Expression. An
// expression is descending when it is an *expr.OrderBy built with expr.Desc.
func New(fields []any, opts ...Option) (*Index, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	i := &Index{fields: slices.Clone(fields)}
	seen := make(map[string]bool)
	for n, field := range fields {
		switch f := field.(type) {
		case string:
			name, desc := strings.CutPrefix(f, descMarker)
			if name == "" {
				return nil, errors.Wrapf(ErrInvalidField, "field %d is empty", n)
			}
			if seen[name] {
				return nil, errors.Wrapf(ErrInvalidField, "field %q given twice", name)
			}
			seen[name] = true
			i.expressions = append(i.expressions, expr.F(name))
			i.fieldsOrders = append(i.fieldsOrders, FieldOrder{Field: name, Order: order(desc)})
		case expr.Expression:
			if f == nil || (reflect.ValueOf(f).Kind() == reflect.Pointer && reflect.ValueOf(f).IsNil()) {
				return nil, errors.Wrapf(ErrInvalidField, "field %d is nil", n)
			}
			i.expressions = append(i.expressions, f)
			i.fieldsOrders = append(i.fieldsOrders, FieldOrder{Expression: f, Order: order(isDescending(f))})
		default:
			return nil, errors.Wrapf(ErrInvalidField, "field %d has type %T", n, field)
		}
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.name != "" {
		corrected, problems := checkName(i.name)
		if len(problems) > 0 {
			return nil, fmt.Errorf("%w %q: %s", ErrInvalidName, i.name, strings.Join(problems, "; "))
		}
		i.name = corrected
	}
	return i, nil
}

// MustNew is like New but panics on error.
func MustNew(fields []any, opts ...Option) *Index {
	i, err := New(fields, opts...)
	if err != nil {
		panic(err)
	}
	return i
}

func order(desc bool) string {
	if desc {
		return Descending
	}
	return ""
}

// isDescending reports the direction an expression carries, if any.
func isDescending(e expr.Expression) bool {
	d, ok := e.(interface{ Descending() bool })
	return ok && d.Descending()
}

// Fields returns the fields the index was defined with.
func (i *Index) Fields() []any {
	return slices.Clone(i.fields)
}

// Expressions returns the indexed expressions, one per field. Field names
// are turned into field references.
func (i *Index) Expressions() []expr.Expression {
	return slices.Clone(i.expressions)
}

// FieldsOrders returns each indexed field or expression with its sort
// suffix.
func (i *Index) FieldsOrders() []FieldOrder {
	return slices.Clone(i.fieldsOrders)
}

// Name returns the index name, or "" when it is not yet named.
func (i *Index) Name() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.name
}

// Tablespace returns the tablespace of the index, or "".
func (i *Index) Tablespace() string {
	return i.tablespace
}

func (i *Index) hasExpressions() bool {
	for _, fo := range i.fieldsOrders {
		if fo.Expression != nil {
			return true
		}
	}
	return false
}

// Deconstructed holds the arguments an Index is built from.
type Deconstructed struct {
	// Path is the import path qualified type of the index.
	Path       string
	Fields     []any
	Name       string
	Tablespace string
}

var indexPath = reflect.TypeOf((*Index)(nil)).Elem().PkgPath() + ".Index"

// Deconstruct returns the arguments that rebuild the index with
// Reconstruct.
func (i *Index) Deconstruct() Deconstructed {
	return Deconstructed{
		Path:       indexPath,
		Fields:     slices.Clone(i.fields),
		Name:       i.Name(),
		Tablespace: i.tablespace,
	}
}

// Reconstruct builds the index described by d.
func Reconstruct(d Deconstructed) (*Index, error) {
	if d.Path != indexPath {
		return nil, errors.Errorf("cannot reconstruct %q as an index", d.Path)
	}
	var opts []Option
	if d.Name != "" {
		opts = append(opts, WithName(d.Name))
	}
	if d.Tablespace != "" {
		opts = append(opts, WithTablespace(d.Tablespace))
	}
	return New(d.Fields, opts...)
}

// Clone returns an independent copy of the index.
func (i *Index) Clone() *Index {
	c, err := Reconstruct(i.Deconstruct())
	if err != nil {
		// The arguments were accepted when i was built.
		panic(fmt.Sprintf("cannot clone index: %v", err))
	}
	return c
}

// Equal reports whether both indexes are built from the same arguments.
func (i *Index) Equal(other *Index) bool {
	if i == nil || other == nil {
		return i == other
	}
	return reflect.DeepEqual(i.Deconstruct(), other.Deconstruct())
}

func (i *Index) String() string {
	parts := make([]string, len(i.fields))
	for n, f := range i.fields {
		parts[n] = fmt.Sprint(f)
	}
	return "Index(fields=" + strings.Join(parts, ", ") + ")"
}
