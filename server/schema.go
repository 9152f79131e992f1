package server

import (
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonschema"
)

// Request bodies. The structs double as the source of their JSON Schema.

type sendRequest struct {
	Message string `json:"message" jsonschema:"minLength=1,description=The user's question"`
	Metric  string `json:"metric" jsonschema:"enum=stats,enum=timeseries,description=Seeded session to talk to"`
}

type toolQueryRequest struct {
	Message     string `json:"message" jsonschema:"minLength=1"`
	ClusterName string `json:"cluster_name" jsonschema:"minLength=1"`
}

type seedStatsRequest struct {
	Text        string `json:"text" jsonschema:"minLength=1,description=Free-form diagnostic text"`
	ClusterName string `json:"cluster_name,omitempty"`
}

// seedTimeSeriesRequest only describes the shape; records are decoded with
// their key order preserved by chat.Record.
type seedTimeSeriesRequest struct {
	Records []map[string]any `json:"records" jsonschema:"minItems=1,description=Objects whose third field is the metric value"`
}

// schemaSet holds the reflected and compiled schema of every request body.
type schemaSet struct {
	raw      map[string]json.RawMessage
	compiled map[string]*jsonschema.Schema
}

var requestTypes = map[string]any{
	"send":            &sendRequest{},
	"tool-query":      &toolQueryRequest{},
	"seed-stats":      &seedStatsRequest{},
	"seed-timeseries": &seedTimeSeriesRequest{},
}

func buildSchemas() (*schemaSet, error) {
	reflector := &invopop.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
		DoNotReference: true,
	}
	compiler := jsonschema.NewCompiler()

	set := &schemaSet{
		raw:      make(map[string]json.RawMessage, len(requestTypes)),
		compiled: make(map[string]*jsonschema.Schema, len(requestTypes)),
	}
	for name, v := range requestTypes {
		data, err := json.Marshal(reflector.Reflect(v))
		if err != nil {
			return nil, fmt.Errorf("reflect %s schema: %w", name, err)
		}
		schema, err := compiler.Compile(data)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		set.raw[name] = data
		set.compiled[name] = schema
	}
	return set, nil
}

// validate checks body against the named schema.
func (s *schemaSet) validate(name string, body []byte) error {
	schema, ok := s.compiled[name]
	if !ok {
		return fmt.Errorf("no schema %q", name)
	}
	result := schema.ValidateJSON(body)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %v", errInvalidRequest, result.Errors)
}
