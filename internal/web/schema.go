package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

const invoiceSchemaURL = "invoice.json"

// invoiceSchemaDoc describes the body of invoice create and update requests.
// Amounts are derived server-side and are not part of the body. Status is
// refused outright so it cannot bypass the status transition rules.
const invoiceSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items", "dueDate"],
  "properties": {
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["description", "quantity", "price"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "quantity": {"type": "integer", "minimum": 1},
          "price": {"type": ["number", "string"]}
        }
      }
    },
    "dueDate": {"type": "string", "minLength": 1},
    "notes": {"type": "string"},
    "panCardNumber": {"type": "string"},
    "status": false,
    "updatedAt": {"type": "string"}
  }
}`

// invoiceSchema validates raw request bodies before they are decoded.
type invoiceSchema struct {
	schema *jsonschema.Schema
}

func compileInvoiceSchema() (*invoiceSchema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(invoiceSchemaURL, strings.NewReader(invoiceSchemaDoc)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(invoiceSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &invoiceSchema{schema: schema}, nil
}

func mustInvoiceSchema() *invoiceSchema {
	s, err := compileInvoiceSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks body against the schema. Violations are returned as
// core.ValidationErrors, one per failing leaf.
func (s *invoiceSchema) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return &core.ValidationError{Field: "body", Message: "invalid value: malformed JSON"}
	}

	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate request: %w", err)
	}

	var errs core.ValidationErrors
	collectLeaves(verr, &errs)
	if len(errs) == 0 {
		errs = append(errs, &core.ValidationError{Field: "body", Message: "invalid value: " + verr.Message})
	}
	return errs
}

func collectLeaves(e *jsonschema.ValidationError, out *core.ValidationErrors) {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			collectLeaves(c, out)
		}
		return
	}
	*out = append(*out, &core.ValidationError{
		Field:   fieldPath(e.InstanceLocation),
		Message: keywordPrefix(e.KeywordLocation) + e.Message,
	})
}

// fieldPath turns a JSON pointer such as /items/0/price into items.0.price.
func fieldPath(ptr string) string {
	p := strings.Trim(ptr, "/")
	if p == "" {
		return "body"
	}
	return strings.ReplaceAll(p, "/", ".")
}

// keywordPrefix makes the message match the user-facing error patterns.
func keywordPrefix(keywordLoc string) string {
	switch keywordLoc[strings.LastIndex(keywordLoc, "/")+1:] {
	case "required", "minItems", "minLength":
		return "required field: "
	case "enum":
		return "invalid enum value: "
	case "minimum":
		return "invalid number: "
	}
	return "invalid value: "
}
