// Package tabular reads uploaded product files into a header row and data rows.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies the encoding of an uploaded file
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrEmptyInput is returned when the file has no content at all
	ErrEmptyInput = errors.New("file is empty")

	// ErrNoHeader is returned when the first row carries no usable column names
	ErrNoHeader = errors.New("file has no recognizable header row")

	// ErrMalformed is returned when the file structure cannot be decoded
	ErrMalformed = errors.New("file is malformed")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed file: one header row followed by data rows
type Table struct {
	Headers []string
	Rows    [][]string
}

// FormatFromKey picks the format from the object key's extension; CSV is the default
func FormatFromKey(key string) Format {
	switch strings.ToLower(path.Ext(key)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// Parse reads r according to format. Errors wrapping ErrEmptyInput,
// ErrNoHeader or ErrMalformed describe the input; any other error came
// from reading r.
func Parse(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatXLSX:
		return parseXLSX(r)
	default:
		return parseCSV(r)
	}
}

func parseCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, classifyCSVError(err)
	}

	table := &Table{Headers: headers}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyCSVError(err)
		}
		table.Rows = append(table.Rows, record)
	}

	if err := checkHeaders(table.Headers); err != nil {
		return nil, err
	}
	return table, nil
}

// classifyCSVError separates syntax errors from failures of the underlying reader
func classifyCSVError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fmt.Errorf("failed to read file: %w", err)
}

func parseXLSX(r io.Reader) (*Table, error) {
	// excelize needs random access, so the stream is buffered first
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	table := &Table{Headers: rows[0], Rows: rows[1:]}
	if err := checkHeaders(table.Headers); err != nil {
		return nil, err
	}
	return table, nil
}

func checkHeaders(headers []string) error {
	for _, h := range headers {
		if strings.TrimSpace(h) != "" {
			return nil
		}
	}
	return ErrNoHeader
}

// IsInputError reports whether err describes the file rather than the transport
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrNoHeader) || errors.Is(err, ErrMalformed)
}
