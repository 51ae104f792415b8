// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/canonical/sqlexpr/dialect"
)

const rollUpTemplate = "ROLLUP(%s)"

// rollUpTemplates holds the vendors that spell ROLLUP differently.
var rollUpTemplates = map[dialect.Vendor]string{
	dialect.MySQL: "%s WITH ROLLUP",
}

// RollUp is a GROUP BY modifier computing subtotals over its expressions,
// from the most detailed level (all expressions) up to the grand total. The
// order of the expressions sets the order of the grouping levels.
type RollUp struct {
	expressions []Expression
	isSummary   bool
}

// NewRollUp returns a rollup over the grouping expressions.
func NewRollUp(expressions ...Expression) *RollUp {
	return &RollUp{expressions: expressions}
}

// Expressions returns the grouping expressions.
func (r *RollUp) Expressions() []Expression {
	return slices.Clone(r.expressions)
}

// IsSummary reports whether the rollup was resolved in summary mode.
func (r *RollUp) IsSummary() bool {
	return r.isSummary
}

func (r *RollUp) copy() *RollUp {
	return &RollUp{expressions: slices.Clone(r.expressions), isSummary: r.isSummary}
}

// ResolveExpression copies the node and records the summarize flag. The
// grouping expressions are carried over as they are: they are expected to be
// columns already resolved by the query that groups by them.
func (r *RollUp) ResolveExpression(_ *Query, opts ResolveOptions) (Expression, error) {
	c := r.copy()
	c.isSummary = opts.Summarize
	return c, nil
}

func (r *RollUp) VendorSQL(v dialect.Vendor) (Renderer, bool) {
	template, ok := rollUpTemplates[v]
	if !ok {
		return nil, false
	}
	return func(c *Compiler, conn *dialect.Connection) (string, []any, error) {
		return r.render(c, conn, template)
	}, true
}

func (r *RollUp) AsSQL(c *Compiler, conn *dialect.Connection) (string, []any, error) {
	return r.render(c, conn, rollUpTemplate)
}

func (r *RollUp) render(c *Compiler, conn *dialect.Connection, template string) (string, []any, error) {
	if err := conn.Require(dialect.FeatureRollup); err != nil {
		return "", nil, notSupported(err)
	}
	if len(r.expressions) == 0 {
		return "", nil, fmt.Errorf("cannot compile a rollup without expressions")
	}
	sql, params, err := c.compileList(r.expressions, ", ")
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(template, sql), params, nil
}

// GroupByCols is empty: the rollup wraps the grouping columns, it does not
// add any.
func (r *RollUp) GroupByCols() []Expression { return nil }

// ContainsAggregate is always false, a rollup wraps GROUP BY columns.
func (r *RollUp) ContainsAggregate() bool { return false }

func (r *RollUp) OutputField() FieldType { return UnknownField }

func (r *RollUp) String() string {
	return fmt.Sprintf(rollUpTemplate, joinStrings(r.expressions, ", "))
}
