package domain

import "strings"

// DataType is the closed set of attribute value types
type DataType string

const (
	DataTypeShortText    DataType = "short_text"
	DataTypeLongText     DataType = "long_text"
	DataTypeNumber       DataType = "number"
	DataTypeBoolean      DataType = "boolean"
	DataTypeSingleSelect DataType = "single_select"
	DataTypeMultiSelect  DataType = "multi_select"
)

// DataTypes lists every supported data type
var DataTypes = []DataType{
	DataTypeShortText,
	DataTypeLongText,
	DataTypeNumber,
	DataTypeBoolean,
	DataTypeSingleSelect,
	DataTypeMultiSelect,
}

// ParseDataType normalizes s into a DataType
func ParseDataType(s string) (DataType, bool) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DataTypes {
		if dt == known {
			return dt, true
		}
	}
	return "", false
}

// AttributeDefinition is a user-authored schema entry for one product field
type AttributeDefinition struct {
	ID        string   `json:"id" validate:"required"`
	Name      string   `json:"name" validate:"required"`
	DataType  DataType `json:"dataType" validate:"required,oneof=short_text long_text number boolean single_select multi_select"`
	Required  bool     `json:"required"`
	Options   []string `json:"options,omitempty" validate:"required_if=DataType single_select,required_if=DataType multi_select"`
	Unit      string   `json:"unit,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" validate:"omitempty,gt=0"`
}

// SkippedAttribute is a stored definition that cannot be used for validation
type SkippedAttribute struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// SchemaSnapshot is the attribute schema as read at one point in time
type SchemaSnapshot struct {
	Definitions []AttributeDefinition
	Skipped     []SkippedAttribute
}
