package index

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/canonical/sqlexpr/expr"
	"github.com/canonical/sqlexpr/internal/logger"
)

const (
	// MaxNameLength is the longest index name accepted by every supported
	// database, Oracle being the shortest.
	MaxNameLength = 30

	nameSuffix = "idx"
)

// checkName returns name with a leading underscore or digit replaced by
// "D", along with a description of each rule name broke.
func checkName(name string) (string, []string) {
	var problems []string
	first, size := utf8.DecodeRuneInString(name)
	switch {
	case first == '_':
		problems = append(problems, "index names cannot start with an underscore (_)")
		name = "D" + name[size:]
	case unicode.IsDigit(first):
		problems = append(problems, "index names cannot start with a number (0-9)")
		name = "D" + name[size:]
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("index names cannot be longer than %d characters", MaxNameLength))
	}
	return name, problems
}

// hashNames returns the first 6 hex digits of the MD5 digest of the
// concatenated parts. The digest keeps truncated names apart, it is not used
// for security.
func hashNames(parts ...string) string {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:6]
}

// splitIdentifier splits a `"schema"."table"` name into its parts. The
// schema is empty for unqualified names.
func splitIdentifier(identifier string) (namespace, name string) {
	if ns, n, ok := strings.Cut(identifier, `"."`); ok {
		return strings.Trim(ns, `"`), strings.Trim(n, `"`)
	}
	return "", strings.Trim(identifier, `"`)
}

// truncate returns the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// SetNameWithModel generates the name of the index from the table and
// columns of m, unless it already has one:
//
//	<table:11>_<first column:7>_<hash:6>_idx
//
// The hash covers the table, every column with its direction and the
// suffix, so names stay distinct when the visible parts are truncated.
func (i *Index) SetNameWithModel(m expr.Model) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.name != "" {
		return nil
	}
	if i.hasExpressions() {
		return ErrExpressionIndexUnnamed
	}

	_, table := splitIdentifier(m.DBTable())
	columns := make([]string, len(i.fieldsOrders))
	hashData := []string{table}
	for n, fo := range i.fieldsOrders {
		f, err := m.Field(fo.Field)
		if err != nil {
			return errors.Wrap(err, "cannot name index")
		}
		columns[n] = f.Column
		if fo.Order != "" {
			hashData = append(hashData, descMarker+f.Column)
		} else {
			hashData = append(hashData, f.Column)
		}
	}
	hashData = append(hashData, nameSuffix)

	name := fmt.Sprintf("%s_%s_%s_%s", truncate(table, 11), truncate(columns[0], 7), hashNames(hashData...), nameSuffix)
	if utf8.RuneCountInString(name) > MaxNameLength {
		panic(fmt.Sprintf("index name %q is longer than %d characters", name, MaxNameLength))
	}
	corrected, problems := checkName(name)
	for _, p := range problems {
		logger.Warn("generated index name corrected", "name", corrected, "problem", p)
	}
	i.name = corrected
	return nil
}
