package claim_service

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/serisow/claimdesk/pipeline_type"
)

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

type Field struct {
	Name        string    `yaml:"name"`
	Type        FieldType `yaml:"type"`
	Description string    `yaml:"description"`
}

// FactSchema is the ordered set of facts extracted from a question.
type FactSchema struct {
	Fields []Field `yaml:"fields"`
}

func DefaultFactSchema() *FactSchema {
	return &FactSchema{Fields: []Field{
		{Name: "age", Type: FieldNumber, Description: "age of the person the claim is for, in years"},
		{Name: "gender", Type: FieldString, Description: "gender of that person"},
		{Name: "procedure", Type: FieldString, Description: "medical procedure, treatment or event being claimed"},
		{Name: "location", Type: FieldString, Description: "city or place where the treatment happens"},
		{Name: "policy_duration", Type: FieldString, Description: "how long the policy has been active, e.g. \"3 months\""},
		{Name: "relationship", Type: FieldString, Description: "relationship of the patient to the policyholder, e.g. self, son, spouse"},
		{Name: "claim_amount", Type: FieldNumber, Description: "amount claimed, as a plain number"},
	}}
}

// LoadFactSchema reads a YAML schema of the form:
//
//	fields:
//	  - name: age
//	    type: number
//	    description: age in years
func LoadFactSchema(path string) (*FactSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fact schema: %w", err)
	}

	var schema FactSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse fact schema: %w", err)
	}
	if err := schema.check(); err != nil {
		return nil, fmt.Errorf("invalid fact schema %s: %w", path, err)
	}
	return &schema, nil
}

func (s *FactSchema) check() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("no fields defined")
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldString, FieldNumber, FieldBoolean:
		case "":
			s.Fields[i].Type = FieldString
		default:
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Names returns the field names in schema order.
func (s *FactSchema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Describe lists the fields for a prompt, one per line.
func (s *FactSchema) Describe() string {
	var b strings.Builder
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %q (%s or null): %s\n", f.Name, f.Type, f.Description)
	}
	return b.String()
}

// Empty returns a parsed query with every field null.
func (s *FactSchema) Empty() pipeline_type.ParsedQuery {
	parsed := make(pipeline_type.ParsedQuery, len(s.Fields))
	for _, f := range s.Fields {
		parsed[f.Name] = nil
	}
	return parsed
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Validate turns raw model output into a parsed query holding exactly the
// schema fields. Values that cannot be read as the field type become null.
func (s *FactSchema) Validate(raw string) (pipeline_type.ParsedQuery, error) {
	object, err := decodeObject(raw)
	if err != nil {
		return nil, &pipeline_type.MalformedOutputError{Stage: "parse", Reason: err.Error(), Raw: raw}
	}

	parsed := s.Empty()
	for _, f := range s.Fields {
		value, ok := object[f.Name]
		if !ok || value == nil {
			continue
		}
		parsed[f.Name] = coerce(f.Type, value)
	}
	return parsed, nil
}

func coerce(t FieldType, value interface{}) interface{} {
	switch t {
	case FieldNumber:
		switch v := value.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			match := numberPattern.FindString(strings.ReplaceAll(v, ",", ""))
			if f, err := strconv.ParseFloat(match, 64); err == nil {
				return f
			}
		}
		return nil
	case FieldBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes":
				return true
			case "false", "no":
				return false
			}
		}
		return nil
	default:
		switch v := value.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" && !strings.EqualFold(v, "null") {
				return v
			}
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
		return nil
	}
}

// decodeObject parses the single JSON object in raw. A code fence or prose
// around the object is tolerated; arrays and several values are not.
func decodeObject(raw string) (map[string]interface{}, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found")
	}
	if strings.ContainsAny(raw[:start], "[]") {
		return nil, fmt.Errorf("JSON value is not an object")
	}

	decoder := json.NewDecoder(strings.NewReader(raw[start:]))
	decoder.UseNumber()
	var object map[string]interface{}
	if err := decoder.Decode(&object); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	if object == nil {
		return nil, fmt.Errorf("JSON value is not an object")
	}
	if rest := raw[start+int(decoder.InputOffset()):]; strings.ContainsAny(rest, "{}[]") {
		return nil, fmt.Errorf("more than one JSON value")
	}
	return object, nil
}
