package scopeddb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas holds the JSON Schemas rows must satisfy per collection. Collections
// without a schema are not validated.
type Schemas struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemas returns an empty registry.
func NewSchemas() *Schemas {
	return &Schemas{compiled: make(map[string]*jsonschema.Schema)}
}

// Register compiles definition and binds it to collection, replacing any previous schema.
func (s *Schemas) Register(collection string, definition []byte) error {
	if !ValidIdentifier(collection) {
		return fmt.Errorf("register schema: invalid collection name %q", collection)
	}

	url := "memory://collections/" + collection + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(string(definition))); err != nil {
		return fmt.Errorf("register schema %s: %w", collection, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", collection, err)
	}

	s.mu.Lock()
	s.compiled[collection] = compiled
	s.mu.Unlock()
	return nil
}

// MustRegister is Register for schemas embedded at build time.
func (s *Schemas) MustRegister(collection string, definition []byte) {
	if err := s.Register(collection, definition); err != nil {
		panic(err)
	}
}

// Validate checks row against the collection's schema. Partial rows are
// validated only for the properties they carry when partial is set.
func (s *Schemas) Validate(collection string, row Row, partial bool) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	compiled, ok := s.compiled[collection]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	// Round trip through JSON so the validator sees plain JSON types.
	raw, err := json.Marshal(row)
	if err != nil {
		return invalid("body", "row is not serialisable")
	}
	var document map[string]any
	if err := json.Unmarshal(raw, &document); err != nil {
		return invalid("body", "row is not serialisable")
	}
	delete(document, TenantColumn)

	err = compiled.Validate(document)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	fields := make(FieldErrors)
	collectSchemaErrors(verr, fields)
	if partial {
		for field := range fields {
			if _, present := document[field]; !present && field != "body" {
				delete(fields, field)
			}
		}
		if len(fields) == 0 {
			return nil
		}
	}
	return &ValidationError{Fields: fields}
}

func collectSchemaErrors(verr *jsonschema.ValidationError, fields FieldErrors) {
	if len(verr.Causes) == 0 {
		field := strings.TrimPrefix(verr.InstanceLocation, "/")
		if field == "" {
			if missing := missingProperty(verr.Message); missing != "" {
				field = missing
			} else {
				field = "body"
			}
		}
		if i := strings.Index(field, "/"); i > 0 {
			field = field[:i]
		}
		fields[field] = verr.Message
		return
	}
	for _, cause := range verr.Causes {
		collectSchemaErrors(cause, fields)
	}
}

// missingProperty extracts the property name from "missing properties: 'name'".
func missingProperty(msg string) string {
	const prefix = "missing properties: "
	if !strings.HasPrefix(msg, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(msg, prefix)
	rest = strings.SplitN(rest, ",", 2)[0]
	return strings.Trim(strings.TrimSpace(rest), "'")
}
