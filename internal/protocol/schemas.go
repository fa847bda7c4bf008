package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://sceneviz.dev/schemas/"

// Schemas holds the compiled envelope schemas keyed by message type.
type Schemas struct {
	byType map[string]*jsonschema.Schema
}

func CompileSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	s := &Schemas{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range map[string]string{
		TypeMarkers: "markers.schema.json",
		TypeTF:      "tf.schema.json",
		TypeError:   "error.schema.json",
	} {
		compiled, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		s.byType[typ] = compiled
	}
	return s, nil
}

// Validate checks a decoded JSON value (as produced by json.Unmarshal into
// any) against the schema for its "type" field.
func (s *Schemas) Validate(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("message is not an object")
	}
	typ, _ := m["type"].(string)
	schema, ok := s.byType[typ]
	if !ok {
		return fmt.Errorf("unknown message type %q", typ)
	}
	return schema.Validate(v)
}
