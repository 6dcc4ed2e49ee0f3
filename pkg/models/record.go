// Package models provides the data structures shared by connectors:
// the record alias and the schema types used by stream discovery.
package models

import (
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// Record is a type alias for pool.Record.
type Record = pool.Record

// RecordMetadata is a type alias for pool.RecordMetadata.
type RecordMetadata = pool.RecordMetadata

// FieldType names a column type understood by destinations.
type FieldType string

// Everything a report file carries is text until a column hint says otherwise.
const (
	FieldTypeString FieldType = "string"
	FieldTypeBigInt FieldType = "bigint"
	FieldTypeFloat  FieldType = "float"
	FieldTypeDate   FieldType = "date"
)

// Schema defines the structure of a stream.
type Schema struct {
	// Name identifies the schema (the output table name)
	Name string `json:"name"`

	// Version tracks schema changes
	Version string `json:"version"`

	// Fields lists the known columns
	Fields []Field `json:"fields"`

	// PrimaryKey lists the columns that identify a row
	PrimaryKey []string `json:"primary_key,omitempty"`
}

// Field represents a single column in the schema.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// FieldByName returns the named field, if present.
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
