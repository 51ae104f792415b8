// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// tabler is implemented by structs that choose their own table name.
type tabler interface {
	TableName() string
}

// GetTypeInfo will return the Info of a given type, generating and caching as
// required.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, errors.New("cannot reflect nil value")
	}

	v := reflect.ValueOf(value)
	v = reflect.Indirect(v)

	cacheMutex.RLock()
	info, found := cache[v.Type()]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(v)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	cache[v.Type()] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns reflection information for the input
// reflect.Value.
func generate(value reflect.Value) (*Info, error) {
	// Dereference the value if it is a pointer.
	value = reflect.Indirect(value)

	// Reflection information is only generated for structs.
	if value.Kind() != reflect.Struct {
		return &Info{}, errors.New("can only reflect struct type")
	}

	typ := value.Type()
	info := Info{
		Type:        typ,
		Table:       tableName(value),
		NameToField: make(map[string]int),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		// Fields without a "db" tag are not part of the model.
		tag := field.Tag.Get("db")
		if tag == "" {
			continue
		}
		column, err := parseTag(tag)
		if err != nil {
			return &Info{}, errors.Wrapf(err, "field %q", field.Name)
		}
		name := SnakeCase(field.Name)
		if _, ok := info.NameToField[name]; ok {
			return &Info{}, errors.Errorf("field %q clashes with another field named %q", field.Name, name)
		}
		info.NameToField[name] = len(info.Fields)
		info.Fields = append(info.Fields, Field{
			Type:   field.Type,
			GoName: field.Name,
			Name:   name,
			Column: column,
			Index:  i,
		})
	}
	if len(info.Fields) == 0 {
		return &Info{}, errors.Errorf("struct %q has no fields with a 'db' tag", typ.Name())
	}

	return &info, nil
}

// tableName returns the table chosen by a TableName method, falling back to
// the snake_case struct name.
func tableName(value reflect.Value) string {
	if t, ok := value.Interface().(tabler); ok {
		return t.TableName()
	}
	if value.CanAddr() {
		if t, ok := value.Addr().Interface().(tabler); ok {
			return t.TableName()
		}
	}
	if t, ok := reflect.New(value.Type()).Interface().(tabler); ok {
		return t.TableName()
	}
	return SnakeCase(value.Type().Name())
}

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns the column name.
func parseTag(tag string) (string, error) {
	options := strings.Split(tag, ",")
	if len(options) > 1 {
		return "", errors.Errorf("unexpected tag value %q", options[1])
	}

	name := options[0]
	if len(name) == 0 {
		return "", errors.New("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", errors.New("invalid column name in 'db' tag")
	}

	return name, nil
}

// SnakeCase converts a Go identifier such as "IntegerField" or "UserID" into
// "integer_field" or "user_id".
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
