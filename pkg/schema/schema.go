// Package schema compiles the small JSON-Schema subset the core supports
// from typed field descriptors, and validates incoming parameters against it
// at dispatch time.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// FieldKind is the subset of JSON-Schema "type" values this engine supports.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindInteger FieldKind = "integer"
	KindBoolean FieldKind = "boolean"
	KindArray   FieldKind = "array"
	KindObject  FieldKind = "object"
)

// Field describes one property of a generated object schema.
type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	Required    bool
	Enum        []string
	Items       *Field // for KindArray
	Properties  []Field // for KindObject
}

// Generator builds JSON-Schema documents (as map[string]any, ready to embed
// in a ToolDefinition.InputSchema) from a Field list, and compiles and caches
// a validator for each one.
type Generator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

// NewGenerator returns a ready-to-use Generator.
func NewGenerator() *Generator {
	return &Generator{cache: make(map[string]*gojsonschema.Schema)}
}

// Build renders fields into a draft-7-compatible JSON-Schema document.
func Build(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	var required []string

	for _, f := range fields {
		properties[f.Name] = buildField(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func buildField(f Field) map[string]any {
	node := map[string]any{"type": string(f.Kind)}
	if f.Description != "" {
		node["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		enum := make([]any, len(f.Enum))
		for i, v := range f.Enum {
			enum[i] = v
		}
		node["enum"] = enum
	}
	switch f.Kind {
	case KindArray:
		if f.Items != nil {
			node["items"] = buildField(*f.Items)
		}
	case KindObject:
		node["properties"] = Build(f.Properties)["properties"]
		if nested := Build(f.Properties); nested["required"] != nil {
			node["required"] = nested["required"]
		}
	}
	return node
}

// Compile compiles a JSON-Schema document (as produced by Build, or supplied
// directly by a handler) and caches it under name for reuse across calls.
func (g *Generator) Compile(name string, document map[string]any) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal document for %q: %w", name, err)
	}

	loader := gojsonschema.NewBytesLoader(raw)
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %q: %w", name, err)
	}

	g.mu.Lock()
	g.cache[name] = compiled
	g.mu.Unlock()

	return compiled, nil
}

// ValidationError is one failed JSON-Schema rule, shaped per the wire error
// data contract: path, rule, message.
type ValidationError struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Validate validates args against the schema previously compiled under name.
// The first error (if any) is returned as errs[0]; all failures are included
// so a caller can place the full list into error.data per spec.
func (g *Generator) Validate(name string, args map[string]any) (errs []ValidationError, err error) {
	g.mu.Lock()
	compiled, ok := g.cache[name]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("schema: no compiled schema registered for %q", name)
	}

	documentLoader := gojsonschema.NewGoLoader(args)
	result, err := compiled.Validate(documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema: validate %q: %w", name, err)
	}

	if result.Valid() {
		return nil, nil
	}

	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{
			Path:    re.Field(),
			Rule:    re.Type(),
			Message: re.Description(),
		})
	}
	return errs, nil
}
