// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Config is the serialised form of a Connection, read from YAML or JSON:
//
//	vendor: postgresql
//	version: "9.6.2"
type Config struct {
	Vendor  string      `json:"vendor"`
	Version VersionSpec `json:"version"`
}

// VersionSpec accepts either a dotted version string or an already encoded
// integer.
type VersionSpec string

// UnmarshalJSON implements json.Unmarshaler.
func (v *VersionSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = VersionSpec(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("version must be a string or a number, got %s", data)
	}
	*v = VersionSpec(n.String())
	return nil
}

// Connection converts the configuration into a Connection.
func (c Config) Connection() (*Connection, error) {
	vendor, ok := LookupVendor(c.Vendor)
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q", c.Vendor)
	}
	if c.Version == "" {
		if vendor == SQLite {
			return SQLiteLibrary(), nil
		}
		return nil, fmt.Errorf("missing version for vendor %q", c.Vendor)
	}
	version, err := ParseVersion(vendor, string(c.Version))
	if err != nil {
		return nil, err
	}
	return New(vendor, version), nil
}

// LoadConfig parses a YAML (or JSON) document into a Connection.
func LoadConfig(data []byte) (conn *Connection, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot load dialect config: %s", err)
		}
	}()

	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, err
	}
	return config.Connection()
}

// LoadConfigFile reads and parses the configuration file at path.
func LoadConfigFile(path string) (*Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load dialect config: %s", err)
	}
	return LoadConfig(data)
}
