package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Property options not provided by mcp-go.

func integer() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["type"] = "integer"
	}
}

func minimum(v float64) mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["minimum"] = v
	}
}

func maximum(v float64) mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["maximum"] = v
	}
}

func stringItems() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["items"] = map[string]any{"type": "string"}
	}
}

func uriFormat() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["format"] = "uri"
	}
}

// normalizeArgs maps absent or null arguments to an empty object.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}

// argsValidator validates tool arguments against the tool's input schema.
// Compiled schemas are shared by every registry.
type argsValidator struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

var validators = &argsValidator{schemas: map[string]*jsonschema.Schema{}}

// httpURLFormat narrows "uri" to absolute http(s) URLs.
var httpURLFormat = &jsonschema.Format{
	Name: "uri",
	Validate: func(v any) error {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		if !isHTTPURL(s) {
			return fmt.Errorf("not an absolute http(s) URL")
		}
		return nil
	},
}

func (v *argsValidator) schema(spec mcp.ToolInputSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.schemas[key]; ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.RegisterFormat(httpURLFormat)
	c.AssertFormat()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add input schema: %w", err)
	}
	sch, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}

	v.schemas[key] = sch
	return sch, nil
}

// validateArgs checks raw against spec. A schema that does not compile is
// reported as *schemaError so it is not blamed on the model.
func validateArgs(spec mcp.ToolInputSchema, raw json.RawMessage) error {
	sch, err := validators.schema(spec)
	if err != nil {
		return &schemaError{err: err}
	}

	args, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("%s", validationSummary(err))
	}
	return nil
}

// schemaError marks an input schema that does not compile.
type schemaError struct {
	err error
}

func (e *schemaError) Error() string { return e.err.Error() }

func (e *schemaError) Unwrap() error { return e.err }

// validationSummary flattens a validation error to its leaf messages.
func validationSummary(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "; ")
}

func isHTTPURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
