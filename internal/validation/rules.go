package validation

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/product-import/internal/domain"
)

// MultiSelectDelimiter separates values inside a multi_select cell
const MultiSelectDelimiter = ";"

// cellError is a failed check on a non-empty cell
type cellError struct {
	kind    domain.ErrorKind
	message string
}

// rule coerces a trimmed, non-empty cell for one attribute.
// Checks run in order: type coercion, option membership, length.
type rule func(value string, attr *domain.AttributeDefinition, opts Options) (any, *cellError)

// rules dispatches each data type to its rule set
var rules = map[domain.DataType]rule{
	domain.DataTypeShortText:    shortTextRule,
	domain.DataTypeLongText:     longTextRule,
	domain.DataTypeNumber:       numberRule,
	domain.DataTypeBoolean:      booleanRule,
	domain.DataTypeSingleSelect: singleSelectRule,
	domain.DataTypeMultiSelect:  multiSelectRule,
}

var booleanTokens = map[string]bool{
	"true":  true,
	"false": false,
	"1":     true,
	"0":     false,
	"yes":   true,
	"no":    false,
}

func shortTextRule(value string, attr *domain.AttributeDefinition, opts Options) (any, *cellError) {
	limit := opts.DefaultShortTextMaxLength
	if attr.MaxLength != nil {
		limit = *attr.MaxLength
	}
	if limit > 0 {
		if n := utf8.RuneCountInString(value); n > limit {
			return nil, &cellError{
				kind:    domain.ErrorKindTooLong,
				message: fmt.Sprintf("value has %d characters, exceeds max length of %d", n, limit),
			}
		}
	}
	return value, nil
}

func longTextRule(value string, _ *domain.AttributeDefinition, _ Options) (any, *cellError) {
	return value, nil
}

func numberRule(value string, _ *domain.AttributeDefinition, _ Options) (any, *cellError) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &cellError{
			kind:    domain.ErrorKindTypeMismatch,
			message: fmt.Sprintf("value %q is not a valid number", value),
		}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

func booleanRule(value string, _ *domain.AttributeDefinition, _ Options) (any, *cellError) {
	b, ok := booleanTokens[strings.ToLower(value)]
	if !ok {
		return nil, &cellError{
			kind:    domain.ErrorKindTypeMismatch,
			message: fmt.Sprintf("value %q is not a valid boolean (expected true/false/1/0/yes/no)", value),
		}
	}
	return b, nil
}

func singleSelectRule(value string, attr *domain.AttributeDefinition, _ Options) (any, *cellError) {
	if !slices.Contains(attr.Options, value) {
		return nil, &cellError{
			kind:    domain.ErrorKindInvalidOption,
			message: fmt.Sprintf("value %q is not one of the allowed options %v", value, attr.Options),
		}
	}
	return value, nil
}

func multiSelectRule(value string, attr *domain.AttributeDefinition, _ Options) (any, *cellError) {
	selected := splitMulti(value)
	if len(selected) == 0 {
		// only delimiters; the caller treats this as an empty cell
		return nil, nil
	}

	var invalid []string
	for _, v := range selected {
		if !slices.Contains(attr.Options, v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) > 0 {
		return nil, &cellError{
			kind:    domain.ErrorKindInvalidOption,
			message: fmt.Sprintf("values %q are not in the allowed options %v", invalid, attr.Options),
		}
	}
	return selected, nil
}

func splitMulti(value string) []string {
	var out []string
	for _, part := range strings.Split(value, MultiSelectDelimiter) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
