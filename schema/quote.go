// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// literals describes how a vendor spells constants.
type literals struct {
	trueValue  string
	falseValue string
	timeFormat string
	quote      func(s string) string
	bytes      func(b []byte) string
}

func quoteStandard(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var mysqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

// quoteMySQL also escapes backslashes, which MySQL treats as an escape
// character inside string literals.
func quoteMySQL(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func hexBlob(b []byte) string {
	return "X'" + hex.EncodeToString(b) + "'"
}

func byteaLiteral(b []byte) string {
	return `'\x` + hex.EncodeToString(b) + `'::bytea`
}

// quoteValue renders v as a literal of the vendor.
func (l *literals) quoteValue(v any) (string, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return "", fmt.Errorf("cannot quote parameter value %v: %w", v, err)
		}
		v = dv
	}

	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		if strings.IndexByte(v, 0) >= 0 {
			return "", fmt.Errorf("cannot quote string containing a NUL byte")
		}
		return l.quote(v), nil
	case []byte:
		return l.bytes(v), nil
	case bool:
		if v {
			return l.trueValue, nil
		}
		return l.falseValue, nil
	case time.Time:
		return l.quote(v.Format(l.timeFormat)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("cannot quote non-finite float %v", f)
		}
		return strconv.FormatFloat(f, 'g', -1, rv.Type().Bits()), nil
	case reflect.String:
		return l.quoteValue(rv.String())
	case reflect.Bool:
		return l.quoteValue(rv.Bool())
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return l.quoteValue(rv.Elem().Interface())
	}
	return "", fmt.Errorf("cannot quote parameter value %v of type %T", v, v)
}
