package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed schema.yaml
var schemaYAML []byte

// Column types understood by the artifact writer.
const (
	ColumnInt64   = "int64"
	ColumnFloat64 = "float64"
	ColumnString  = "string"
	ColumnDate    = "date"
)

// Column is one declared output column.
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// Schema is the declared layout of the daily snapshot.
type Schema struct {
	Table   string   `yaml:"table"`
	Format  string   `yaml:"format"`
	Columns []Column `yaml:"columns"`
}

// LoadSchema parses the embedded schema declaration.
func LoadSchema() (*Schema, error) {
	return ParseSchema(schemaYAML)
}

// ParseSchema parses a schema declaration and checks it for duplicates and unknown types.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema declares no columns")
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		switch c.Type {
		case ColumnInt64, ColumnFloat64, ColumnString, ColumnDate:
		default:
			return nil, fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("column %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return &s, nil
}

// Column returns the declared column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
