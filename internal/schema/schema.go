// Package schema validates interaction records against the published
// JSON schema before they leave the process.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"stepcap/internal/model"
)

// RecordSchemaURL is the $id of the embedded record schema.
const RecordSchemaURL = "https://stepcap.local/schema/interaction-record-v1.schema.json"

//go:embed interaction-record-v1.schema.json
var recordSchemaJSON []byte

// ErrInvalidRecord wraps every validation failure.
var ErrInvalidRecord = errors.New("schema: record does not match schema")

var compileRecord = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return Compile(RecordSchemaURL, recordSchemaJSON)
})

// RecordSchema returns the raw embedded schema document.
func RecordSchema() []byte {
	return append([]byte(nil), recordSchemaJSON...)
}

// Compile compiles a draft 2020-12 schema document registered under url.
func Compile(url string, doc []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return s, nil
}

// ValidateRecord checks rec against the record schema. It has the shape
// of an emitter record validator.
func ValidateRecord(rec *model.InteractionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("schema: marshal record: %w", err)
	}
	return ValidateJSON(data)
}

// ValidateJSON checks an encoded record against the record schema.
func ValidateJSON(data []byte) error {
	s, err := compileRecord()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("schema: decode record: %w", err)
	}

	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
