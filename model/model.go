// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package model describes database tables for expression resolution, either
// from tagged Go structs or from explicit field lists.
package model

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqlexpr/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Model is a table and its fields. It implements expr.Model.
type Model struct {
	table  string
	fields []*expr.Field
	byName map[string]*expr.Field
	// typ is the Go struct the model was built from, if any.
	typ reflect.Type
}

var _ expr.Model = (*Model)(nil)

// New returns a model of table with the given fields.
func New(table string, fields ...expr.Field) (*Model, error) {
	if table == "" {
		return nil, errors.New("model table name is empty")
	}
	m := &Model{table: table, byName: make(map[string]*expr.Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.Errorf("table %q: field with empty name", table)
		}
		if _, ok := m.byName[f.Name]; ok {
			return nil, errors.Errorf("table %q: field %q defined twice", table, f.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		field := f
		m.fields = append(m.fields, &field)
		m.byName[f.Name] = &field
	}
	return m, nil
}

// MustNew is like New but panics on error.
func MustNew(table string, fields ...expr.Field) *Model {
	m, err := New(table, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

// Of returns the model of the struct sample. Fields are taken from the "db"
// tags, named after the snake_case Go field names. The table is given by a
// TableName method or else is the snake_case struct name.
//
//	type Customer struct {
//		ID   int    `db:"id"`
//		Name string `db:"full_name"`
//	}
func Of(sample any) (*Model, error) {
	info, err := typeinfo.GetTypeInfo(sample)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build model")
	}
	fields := make([]expr.Field, len(info.Fields))
	for i, f := range info.Fields {
		fields[i] = expr.Field{
			Name:   f.Name,
			Column: f.Column,
			Type:   expr.FieldTypeOf(f.Type),
		}
	}
	m, err := New(info.Table, fields...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build model")
	}
	m.typ = info.Type
	return m, nil
}

// DBTable returns the table name.
func (m *Model) DBTable() string {
	return m.table
}

// Field returns the field called name.
func (m *Model) Field(name string) (*expr.Field, error) {
	f, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s has no field named %q", m.table, name)
	}
	return f, nil
}

// Fields returns the fields in declaration order.
func (m *Model) Fields() []expr.Field {
	fields := make([]expr.Field, len(m.fields))
	for i, f := range m.fields {
		fields[i] = *f
	}
	return fields
}

// Type returns the struct type the model was built from, or nil.
func (m *Model) Type() reflect.Type {
	return m.typ
}

func (m *Model) String() string {
	return "model(" + m.table + ")"
}
