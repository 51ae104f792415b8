// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// Query is the context expressions are resolved against: a model plus the
// selected values, annotations and filters of a SELECT statement.
//
// Query values are immutable. Every builder method returns a new Query. An
// error met while building is kept on the Query and returned when it is
// compiled.
type Query struct {
	model Model
	// aliasCols is false when columns must be rendered without the table
	// prefix, as in index definitions.
	aliasCols   bool
	values      []selectedValue
	annotations []annotation
	where       Expression
	rollup      bool
	err         error
}

type selectedValue struct {
	name string
	col  *Col
}

type annotation struct {
	alias string
	expr  Expression
}

// NewQuery returns an empty query over m.
func NewQuery(m Model) *Query {
	return &Query{model: m, aliasCols: true}
}

// Model returns the model the query selects from.
func (q *Query) Model() Model {
	return q.model
}

// Err returns the first error met while building the query.
func (q *Query) Err() error {
	return q.err
}

// Alias returns the alias columns are qualified with, or "" when column
// aliasing is disabled.
func (q *Query) Alias() string {
	if !q.aliasCols {
		return ""
	}
	return q.model.DBTable()
}

func (q *Query) clone() *Query {
	c := *q
	c.values = slices.Clone(q.values)
	c.annotations = slices.Clone(q.annotations)
	return &c
}

func (q *Query) fail(err error) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.err = err
	return c
}

// WithoutColumnAliases returns a copy of the query whose columns render
// without a table qualifier.
func (q *Query) WithoutColumnAliases() *Query {
	c := q.clone()
	c.aliasCols = false
	return c
}

// Values selects the named fields. When the query also has aggregate
// annotations the result is grouped by these fields.
func (q *Query) Values(fields ...string) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	for _, name := range fields {
		f, err := q.lookupField(name)
		if err != nil {
			return q.fail(err)
		}
		c.values = append(c.values, selectedValue{
			name: name,
			col:  &Col{Alias: c.Alias(), Target: f},
		})
	}
	return c
}

// Annotate adds e to the selected columns under alias. The expression is
// resolved against the query immediately.
func (q *Query) Annotate(alias string, e Expression) *Query {
	if q.err != nil {
		return q
	}
	if _, err := q.model.Field(alias); err == nil {
		return q.fail(fmt.Errorf("the annotation %q conflicts with a field on the model", alias))
	}
	for _, a := range q.annotations {
		if a.alias == alias {
			return q.fail(fmt.Errorf("the annotation %q is already defined", alias))
		}
	}
	resolved, err := e.ResolveExpression(q, DefaultResolve)
	if err != nil {
		return q.fail(err)
	}
	c := q.clone()
	c.annotations = append(c.annotations, annotation{alias: alias, expr: resolved})
	return c
}

// Where restricts the rows to those matching cond. Successive calls are
// combined with AND.
func (q *Query) Where(cond *Q) *Query {
	if q.err != nil {
		return q
	}
	if cond.Empty() {
		return q
	}
	resolved, err := cond.ResolveExpression(q, DefaultResolve)
	if err != nil {
		return q.fail(err)
	}
	c := q.clone()
	if c.where == nil {
		c.where = resolved
	} else {
		c.where = &Q{connector: and, children: []Expression{q.where, resolved}}
	}
	return c
}

// GroupByRollup asks for the GROUP BY clause to produce subtotal rows with
// ROLLUP.
func (q *Query) GroupByRollup() *Query {
	c := q.clone()
	c.rollup = true
	return c
}

func (q *Query) hasAggregate() bool {
	for _, a := range q.annotations {
		if a.expr.ContainsAggregate() {
			return true
		}
	}
	return false
}

// ResolveRef resolves a field reference. Annotations are looked up first,
// then model fields.
func (q *Query) ResolveRef(name string, opts ResolveOptions) (Expression, error) {
	for _, a := range q.annotations {
		if a.alias == name {
			if opts.Summarize {
				return &Ref{Alias: name, Source: a.expr}, nil
			}
			return a.expr, nil
		}
	}
	if strings.Contains(name, lookupSep) && !opts.AllowJoins {
		return nil, fmt.Errorf("joined field references are not permitted in this query")
	}
	f, err := q.lookupField(name)
	if err != nil {
		return nil, err
	}
	return &Col{Alias: q.Alias(), Target: f}, nil
}

func (q *Query) lookupField(name string) (*Field, error) {
	f, err := q.model.Field(name)
	if err == nil {
		return f, nil
	}
	if len(q.annotations) == 0 {
		return nil, fmt.Errorf("cannot resolve keyword %q into field: %s", name, err)
	}
	var choices []string
	for _, a := range q.annotations {
		choices = append(choices, a.alias)
	}
	sort.Strings(choices)
	return nil, fmt.Errorf("cannot resolve keyword %q into field: %s (annotations: %s)", name, err, strings.Join(choices, ", "))
}
