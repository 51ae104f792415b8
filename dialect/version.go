package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion converts a dotted version string such as "9.4.1", "13.2" or
// "3.39.4" into the vendor's numeric form. A plain integer is taken to be
// already encoded.
func ParseVersion(v Vendor, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty version")
	}
	if !strings.Contains(s, ".") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q", s)
		}
		return n, nil
	}

	// Drop any suffix such as "-MariaDB" or " (Debian 13.2-1)".
	if i := strings.IndexFunc(s, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); i >= 0 {
		s = s[:i]
	}
	var parts [3]int
	fields := strings.Split(strings.Trim(s, "."), ".")
	if len(fields) > 3 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q", s)
		}
		parts[i] = n
	}

	major, minor, patch := parts[0], parts[1], parts[2]
	switch v {
	case PostgreSQL:
		if major >= 10 {
			// From 10 onwards the second component is the minor release.
			return major*10000 + minor, nil
		}
		return major*10000 + minor*100 + patch, nil
	case SQLite:
		return major*1000000 + minor*1000 + patch, nil
	default:
		return major*10000 + minor*100 + patch, nil
	}
}

// FormatVersion is the inverse of ParseVersion.
func FormatVersion(v Vendor, n int) string {
	switch v {
	case PostgreSQL:
		if n >= 100000 {
			return fmt.Sprintf("%d.%d", n/10000, n%10000)
		}
		return fmt.Sprintf("%d.%d.%d", n/10000, n/100%100, n%100)
	case SQLite:
		return fmt.Sprintf("%d.%d.%d", n/1000000, n/1000%1000, n%1000)
	default:
		return fmt.Sprintf("%d.%d.%d", n/10000, n/100%100, n%100)
	}
}
