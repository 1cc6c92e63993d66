// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator is a utility to validate JSON objects against a given schema
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a new Validator using all top-level json files
// from schemaFS as schemas.
func NewValidatorFromFS(schemaFS embed.FS) (*Validator, error) {
	files, err := schemaFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("cannot read schema dir %w", err)
	}
	var schemas []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		str, err := schemaFS.ReadFile(f.Name())
		if err != nil {
			return nil, fmt.Errorf("cannot read file '%s' %w", f.Name(), err)
		}
		schemas = append(schemas, string(str))
	}
	return NewValidator(schemas)
}

// NewValidator creates a new Validator from the given JSON schemas. Every
// schema must carry an $id, which becomes its schemaID for validation.
func NewValidator(schemas []string) (*Validator, error) {
	type schema struct {
		ID string `json:"$id"`
	}
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		s := schema{}
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, str)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", str)
		}
		compiled, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s %s", s.ID, err)
		}
		validator.schemaValidators[s.ID] = compiled
	}
	return &validator, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemaValidators[schemaID]
	return ok
}

// ValidateString validates the given json against schemaID. If no error is
// returned, then the passed json is valid
func (v *Validator) ValidateString(json, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(json), schemaID)
}

// ValidateStruct validates the given json as a struct against schemaID. If no
// error is returned, then the passed json is valid
func (v *Validator) ValidateStruct(json interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(json), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {

	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}

	if !result.Valid() {
		err := "the document is not valid :\n"
		for _, e := range result.Errors() {
			err += fmt.Sprintf("- %s\n", e)
		}
		return errors.New(err)
	}
	return nil
}
