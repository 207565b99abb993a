package columnar

import (
	"fmt"
	"sort"
	"strings"
)

// Column describes one attribute of the stored entity.
type Column struct {
	// Type is the SQL column type (TEXT, INTEGER, REAL, BLOB).
	Type string

	// Required rejects Create calls that omit the field.
	Required bool

	// Default is applied on Create when the field is absent.
	Default any

	// SQLColumn overrides the column name; defaults to the field name.
	SQLColumn string

	// Serialize converts the in-memory value to its SQL representation.
	Serialize func(any) (any, error)

	// Deserialize converts the SQL value back to the in-memory form.
	Deserialize func(any) (any, error)
}

// Schema declares the one-row-per-entity table layout.
type Schema struct {
	// Table is the SQL table name.
	Table string

	// PrimaryKey is the field holding the entity id (TEXT column).
	PrimaryKey string

	// Columns maps field names to their column definitions. The primary key
	// must not appear here.
	Columns map[string]Column

	// Optional bookkeeping fields, auto-managed by the store when set.
	VersionField        string
	CreatedAtField      string
	UpdatedAtField      string
	CheckpointedAtField string
}

// Validate checks the schema for structural problems.
func (s *Schema) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("columnar schema: table name is required")
	}
	if s.PrimaryKey == "" {
		return fmt.Errorf("columnar schema: primary key is required")
	}
	if _, ok := s.Columns[s.PrimaryKey]; ok {
		return fmt.Errorf("columnar schema: primary key %q must not be listed in columns", s.PrimaryKey)
	}
	for name, col := range s.Columns {
		switch col.Type {
		case "TEXT", "INTEGER", "REAL", "BLOB":
		default:
			return fmt.Errorf("columnar schema: column %q has unsupported type %q", name, col.Type)
		}
	}
	return nil
}

// sqlColumn resolves the SQL column name for a field.
func (s *Schema) sqlColumn(field string) string {
	if col, ok := s.Columns[field]; ok && col.SQLColumn != "" {
		return col.SQLColumn
	}
	return field
}

// fieldNames returns the non-key fields in deterministic order.
func (s *Schema) fieldNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// createTableSQL renders the idempotent DDL for the schema.
func (s *Schema) createTableSQL() string {
	var cols []string
	cols = append(cols, fmt.Sprintf("%s TEXT PRIMARY KEY", s.sqlColumn(s.PrimaryKey)))
	for _, name := range s.fieldNames() {
		col := s.Columns[name]
		def := fmt.Sprintf("%s %s", s.sqlColumn(name), col.Type)
		if col.Required {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Table, strings.Join(cols, ", "))
}

// upsertSQL renders the single-row UPSERT used by checkpoints.
func (s *Schema) upsertSQL() string {
	fields := s.fieldNames()
	columns := make([]string, 0, len(fields)+1)
	columns = append(columns, s.sqlColumn(s.PrimaryKey))
	for _, f := range fields {
		columns = append(columns, s.sqlColumn(f))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	updates := make([]string, 0, len(fields))
	for _, f := range fields {
		c := s.sqlColumn(f)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		s.Table,
		strings.Join(columns, ", "),
		placeholders,
		s.sqlColumn(s.PrimaryKey),
		strings.Join(updates, ", "))
}
