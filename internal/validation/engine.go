// Package validation checks tabular product data against attribute definitions.
//
// The engine is pure: it performs no I/O and returns the same result for the
// same input. Each data type has its own rule set looked up from a table.
package validation

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/product-import/internal/domain"
)

// Options tunes engine behavior that is not part of the attribute schema
type Options struct {
	// DefaultShortTextMaxLength applies to short_text attributes without a
	// MaxLength of their own. Zero means unlimited.
	DefaultShortTextMaxLength int
}

// column binds an input column position to an attribute
type column struct {
	index  int
	header string
	attr   *domain.AttributeDefinition
}

// Validate checks every row against the schema.
// Row indices in the result are 1-based positions in rows.
func Validate(rows [][]string, headers []string, schema []domain.AttributeDefinition, opts Options) *domain.ValidationResult {
	columns, ignored := resolveHeaders(headers, schema)

	result := &domain.ValidationResult{
		ValidRecords:   make([]map[string]any, 0, len(rows)),
		IgnoredColumns: ignored,
		RowErrors:      []domain.RowError{},
		MatchedColumns: make([]string, 0, len(columns)),
		TotalRows:      len(rows),
	}
	for _, col := range columns {
		result.MatchedColumns = append(result.MatchedColumns, col.attr.Name)
	}

	for i, row := range rows {
		rowIndex := i + 1
		record := make(map[string]any, len(columns))
		var rowErrors []domain.RowError

		for _, col := range columns {
			var raw string
			if col.index < len(row) {
				raw = row[col.index]
			}

			value, cerr := validateCell(raw, col.attr, opts)
			if cerr != nil {
				rowErrors = append(rowErrors, domain.RowError{
					RowIndex:   rowIndex,
					ColumnName: col.header,
					ErrorKind:  cerr.kind,
					Message:    fmt.Sprintf("row %d, column %q: %s", rowIndex, col.header, cerr.message),
				})
				continue
			}
			record[col.attr.Name] = value
		}

		if len(rowErrors) > 0 {
			result.RowErrors = append(result.RowErrors, rowErrors...)
			continue
		}
		result.ValidRecords = append(result.ValidRecords, record)
	}

	return result
}

// resolveHeaders matches input headers to attributes by trimmed,
// case-insensitive name. A header that matches nothing, or matches an
// attribute already bound to an earlier column, is ignored.
func resolveHeaders(headers []string, schema []domain.AttributeDefinition) ([]column, []string) {
	byName := make(map[string]*domain.AttributeDefinition, len(schema))
	for i := range schema {
		key := normalizeName(schema[i].Name)
		if _, exists := byName[key]; !exists {
			byName[key] = &schema[i]
		}
	}

	columns := make([]column, 0, len(headers))
	ignored := []string{}
	bound := make(map[string]bool, len(headers))

	for i, h := range headers {
		header := strings.TrimSpace(h)
		key := normalizeName(header)
		attr, ok := byName[key]
		if !ok || bound[key] {
			ignored = append(ignored, header)
			continue
		}
		bound[key] = true
		columns = append(columns, column{index: i, header: header, attr: attr})
	}

	return columns, ignored
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validateCell applies required, then the data type's rule set
func validateCell(raw string, attr *domain.AttributeDefinition, opts Options) (any, *cellError) {
	value := strings.TrimSpace(raw)

	if value != "" {
		apply, ok := rules[attr.DataType]
		if !ok {
			apply = longTextRule
		}
		coerced, cerr := apply(value, attr, opts)
		if cerr != nil {
			return nil, cerr
		}
		if coerced != nil {
			return coerced, nil
		}
	}

	if attr.Required {
		return nil, &cellError{
			kind:    domain.ErrorKindMissingRequired,
			message: "value is required but is empty",
		}
	}
	return nil, nil
}
