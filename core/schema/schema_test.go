package schema_test

import (
	"testing"

	"github.com/relabs-tech/provisio/core/schema"
)

const (
	topLevel1 = `
	{ "$id" : "http://some_host.com/top1.json",
	  "type" : "string",
	  "maxLength" : 5
	}`
	topLevel2 = `
	{ "$id" : "http://some_host.com/top2.json",
	  "type": "string",
	  "minLength": 3
	}`
)

func TestValidateString(t *testing.T) {
	v, err := schema.NewValidator([]string{topLevel1, topLevel2})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}

	schemaID1 := "http://some_host.com/top1.json"
	schemaID2 := "http://some_host.com/top2.json"
	jsonShortString := `"ab"`
	jsonLongString := `"a very long string"`

	if err := v.ValidateString(jsonShortString, schemaID1); err != nil {
		t.Fatalf("No error expected, got %v", err)
	}
	if err := v.ValidateString(jsonLongString, schemaID1); err == nil {
		t.Fatal("Error expected for string exceeding maxLength")
	}
	if err := v.ValidateString(jsonShortString, schemaID2); err == nil {
		t.Fatal("Error expected for string below minLength")
	}
	if err := v.ValidateString(jsonLongString, schemaID2); err != nil {
		t.Fatalf("No error expected, got %v", err)
	}
}

func TestValidateStruct(t *testing.T) {
	objectSchema := `
	{ "$id" : "http://some_host.com/object.json",
	  "type": "object",
	  "required": ["name"],
	  "properties": { "name": { "type": "string", "minLength": 1 } }
	}`
	v, err := schema.NewValidator([]string{objectSchema})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}

	type payload struct {
		Name string `json:"name"`
	}
	schemaID := "http://some_host.com/object.json"
	if err := v.ValidateStruct(payload{Name: "dev-1"}, schemaID); err != nil {
		t.Fatalf("No error expected, got %v", err)
	}
	if err := v.ValidateStruct(payload{}, schemaID); err == nil {
		t.Fatal("Error expected for empty name")
	}
}

func TestValidatorRequiresID(t *testing.T) {
	if _, err := schema.NewValidator([]string{`{ "type": "string" }`}); err == nil {
		t.Fatal("Error expected for schema without $id")
	}
}

func TestHasSchema(t *testing.T) {
	v, err := schema.NewValidator([]string{topLevel1})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}
	if !v.HasSchema("http://some_host.com/top1.json") {
		t.Fatal("schema expected")
	}
	if v.HasSchema("http://some_host.com/unknown.json") {
		t.Fatal("no schema expected")
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	v, err := schema.NewValidator(nil)
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}
	if err := v.ValidateString(`"x"`, "http://some_host.com/unknown.json"); err == nil {
		t.Fatal("Error expected for unknown schema")
	}
}
