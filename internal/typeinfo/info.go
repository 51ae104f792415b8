package typeinfo

import (
	"reflect"
)

// Field represents a single tagged field from a struct type.
type Field struct {
	Type reflect.Type

	// GoName is the name of the struct field.
	GoName string

	// Name is the logical field name used in expressions.
	Name string

	// Column is the physical column name from the "db" tag.
	Column string

	// Index of this field in the structure.
	Index int
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Table is the database table the struct maps to.
	Table string

	// Fields in declaration order.
	Fields []Field

	// Relate logical field names to positions in Fields.
	NameToField map[string]int
}

// Field returns the field with the given logical name.
func (i *Info) Field(name string) (Field, bool) {
	n, ok := i.NameToField[name]
	if !ok {
		return Field{}, false
	}
	return i.Fields[n], true
}
