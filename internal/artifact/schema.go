package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/Phil-Grim/london-properties-analysis/config"
)

// CheckSchema compares the Parquet layout of Row with the declared column
// set. Every declared column must exist with a matching physical type and
// nullability, and Row must not carry undeclared columns.
func CheckSchema(declared *config.Schema) error {
	fields := make(map[string]parquet.Field)
	for _, f := range parquet.SchemaOf(Row{}).Fields() {
		fields[f.Name()] = f
	}

	var problems []string
	for _, col := range declared.Columns {
		f, ok := fields[col.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not written", col.Name))
			continue
		}
		delete(fields, col.Name)

		if !typeMatches(col.Type, f.Type()) {
			problems = append(problems, fmt.Sprintf("%s: declared %s, written %s", col.Name, col.Type, f.Type()))
		}
		if col.Required == f.Optional() {
			problems = append(problems, fmt.Sprintf("%s: declared required=%t, written optional=%t", col.Name, col.Required, f.Optional()))
		}
	}
	for name := range fields {
		problems = append(problems, fmt.Sprintf("%s: not declared", name))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("artifact schema mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

func typeMatches(declared string, t parquet.Type) bool {
	switch declared {
	case config.ColumnInt64:
		return t.Kind() == parquet.Int64
	case config.ColumnFloat64:
		return t.Kind() == parquet.Double
	case config.ColumnString:
		return t.Kind() == parquet.ByteArray
	case config.ColumnDate:
		lt := t.LogicalType()
		return t.Kind() == parquet.Int32 && lt != nil && lt.Date != nil
	}
	return false
}
