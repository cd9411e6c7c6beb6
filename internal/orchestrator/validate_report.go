package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateReport implements the AgentLoop's "validate structured output"
// step (§4.G): it checks a parsed report.json document against the
// mission's report_schema and returns one message per violation, or nil
// when the report conforms. A nil/empty schema is treated as an open
// object schema that accepts anything.
func ValidateReport(report any, schema map[string]any) ([]string, error) {
	compiled, err := compileReportSchema(schema)
	if err != nil {
		return nil, err
	}
	if err := compiled.Validate(report); err != nil {
		return validationMessages(err), nil
	}
	return nil, nil
}

// compileReportSchema mirrors the teacher's own compileSchema idiom
// (internal/agent/tool_registry.go): marshal the decoded schema document
// back to bytes and hand it to the compiler as an in-memory resource.
func compileReportSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal report schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("report.schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("load report schema: %w", err)
	}
	return c.Compile("report.schema.json")
}

// validationMessages flattens a jsonschema.ValidationError tree into one
// message per leaf cause, each prefixed with the offending instance path.
func validationMessages(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return msgs
}
