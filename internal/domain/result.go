package domain

// ErrorKind classifies a row-level validation failure
type ErrorKind string

const (
	ErrorKindMissingRequired ErrorKind = "MISSING_REQUIRED"
	ErrorKindTypeMismatch    ErrorKind = "TYPE_MISMATCH"
	ErrorKindInvalidOption   ErrorKind = "INVALID_OPTION"
	ErrorKindTooLong         ErrorKind = "TOO_LONG"
)

// RowError is one failed cell; RowIndex is 1-based over the data rows
type RowError struct {
	RowIndex   int       `json:"rowIndex"`
	ColumnName string    `json:"columnName"`
	ErrorKind  ErrorKind `json:"errorKind"`
	Message    string    `json:"message"`
}

// ValidationResult is the output of validating one table against a schema
type ValidationResult struct {
	ValidRecords   []map[string]any `json:"validRecords"`
	IgnoredColumns []string         `json:"ignoredColumns"`
	RowErrors      []RowError       `json:"rowErrors"`
	MatchedColumns []string         `json:"matchedColumns"`
	TotalRows      int              `json:"totalRows"`
}
