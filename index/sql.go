// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package index

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlexpr/dialect"
	"github.com/canonical/sqlexpr/expr"
	"github.com/canonical/sqlexpr/schema"
)

// CreateSQL returns the CREATE INDEX statement of the index on the table of
// m. The index is named from m first if it has no name. using is an
// optional index method such as "gist".
//
// Each indexed expression is compiled against m. DDL statements cannot take
// bound parameters, so parameters are quoted by editor and written into the
// statement.
func (i *Index) CreateSQL(m expr.Model, editor schema.Editor, conn *dialect.Connection, using string) (sql string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "cannot create index")
		}
	}()

	if err := i.SetNameWithModel(m); err != nil {
		return "", err
	}
	if i.hasExpressions() {
		if err := conn.Require(dialect.FeatureExpressionIndexes); err != nil {
			return "", fmt.Errorf("%w: %s", ErrExpressionIndexNotSupported, err)
		}
	}

	q := expr.NewQuery(m).WithoutColumnAliases()
	comp := expr.NewCompiler(q, conn, "")
	cols := make([]schema.IndexColumn, len(i.expressions))
	suffixes := make([]string, len(i.fieldsOrders))
	for n, e := range i.expressions {
		// The direction is rendered by the editor from the suffixes.
		if o, ok := e.(*expr.OrderBy); ok {
			e = o.Expression
		}
		resolved, err := e.ResolveExpression(q, expr.DefaultResolve)
		if err != nil {
			return "", err
		}
		columnSQL, params, err := comp.Compile(resolved)
		if err != nil {
			return "", err
		}
		columnSQL, err = inlineParams(columnSQL, params, editor)
		if err != nil {
			return "", err
		}
		cols[n].SQL = columnSQL
		fo := i.fieldsOrders[n]
		if fo.Expression == nil {
			if cols[n].Field, err = m.Field(fo.Field); err != nil {
				return "", err
			}
		}
		suffixes[n] = fo.Order
	}
	return editor.CreateIndexSQL(m, cols, i.Name(), using, i.tablespace, suffixes)
}

// RemoveSQL returns the DROP INDEX statement of the index on the table of
// m. The index is named from m first if it has no name.
func (i *Index) RemoveSQL(m expr.Model, editor schema.Editor) (string, error) {
	if err := i.SetNameWithModel(m); err != nil {
		return "", errors.Wrap(err, "cannot remove index")
	}
	r := strings.NewReplacer(
		"{table}", editor.QuoteName(m.DBTable()),
		"{name}", editor.QuoteName(i.Name()),
	)
	return r.Replace(editor.DeleteIndexTemplate()), nil
}

// inlineParams replaces each "?" placeholder of sql outside quotes with the
// matching parameter, quoted as a literal by editor.
func inlineParams(sql string, params []any, editor schema.Editor) (string, error) {
	if len(params) == 0 {
		return sql, nil
	}
	var b strings.Builder
	n := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '?':
			if n >= len(params) {
				return "", errors.Errorf("more placeholders than parameters in %q", sql)
			}
			literal, err := editor.QuoteValue(params[n])
			if err != nil {
				return "", err
			}
			b.WriteString(literal)
			n++
			continue
		}
		b.WriteByte(ch)
	}
	if n != len(params) {
		return "", errors.Errorf("%d parameters for %d placeholders in %q", len(params), n, sql)
	}
	return b.String(), nil
}
