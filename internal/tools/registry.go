// Package tools builds the per-request set of tools exposed to the model.
//
// A Registry is assembled from the always-on built-ins plus whichever plugins
// the caller enabled. Each tool validates its arguments against its declared
// input schema before decoding them into a typed parameter struct and running.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

// Kind identifies one tool variant.
type Kind string

const (
	KindRememberInformation Kind = "rememberInformation"
	KindGenerateTitle       Kind = "generateTitle"
	KindGetCurrentDate      Kind = "getCurrentDate"
	KindCalculator          Kind = "calculator"
	KindHackerNews          Kind = "hackerNews"
	KindWebSearch           Kind = "webSearch"
	KindWebScrape           Kind = "webScrape"
	KindBingWebSearch       Kind = "bingWebSearch"
)

// Plugin identifiers as sent by the client.
const (
	PluginGoogleSearch = "google-search"
	PluginFirecrawl    = "firecrawl"
	PluginBingSearch   = "bing-search"
)

// PluginSettings is the client configuration of one plugin.
type PluginSettings struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
	CX      string `json:"cx,omitempty"`
}

// PluginConfig maps plugin ids to their settings.
type PluginConfig map[string]PluginSettings

// ParsePluginConfig decodes the plugin configuration string. An empty string
// means no plugins.
func ParsePluginConfig(raw string) (PluginConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return PluginConfig{}, nil
	}

	var cfg PluginConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, chaterr.Wrap(chaterr.KindInvalidRequest, err, "Invalid plugin configuration")
	}
	if cfg == nil {
		cfg = PluginConfig{}
	}
	return cfg, nil
}

// Tool is one callable tool.
type Tool struct {
	Kind Kind
	Spec mcp.Tool
	run  func(ctx context.Context, args json.RawMessage) (any, error)
}

// Name returns the model-facing tool name.
func (t *Tool) Name() string {
	return t.Spec.Name
}

// Call validates args and runs the tool. Errors are always *chaterr.Error.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	args = normalizeArgs(args)
	if err := validateArgs(t.Spec.InputSchema, args); err != nil {
		var bad *schemaError
		if errors.As(err, &bad) {
			return nil, chaterr.Wrap(chaterr.KindToolExecution, err, chaterr.MsgToolExecution)
		}
		return nil, chaterr.Wrap(chaterr.KindInvalidToolArguments, err, chaterr.MsgInvalidToolArguments)
	}

	result, err := t.run(ctx, args)
	if err != nil {
		var classified *chaterr.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, chaterr.Wrap(chaterr.KindToolExecution, err, chaterr.MsgToolExecution)
	}
	return result, nil
}

// define binds a typed executor to a tool spec.
func define[P any](kind Kind, spec mcp.Tool, run func(ctx context.Context, params P) (any, error)) *Tool {
	return &Tool{
		Kind: kind,
		Spec: spec,
		run: func(ctx context.Context, args json.RawMessage) (any, error) {
			var params P
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, chaterr.Wrap(chaterr.KindInvalidToolArguments, err, chaterr.MsgInvalidToolArguments)
			}
			return run(ctx, params)
		},
	}
}

// Registry is an immutable set of tools keyed by name.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// Empty returns a registry with no tools.
func Empty() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

func (r *Registry) add(t *Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Specs returns the tool schemas in registration order.
func (r *Registry) Specs() []mcp.Tool {
	specs := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, chaterr.Wrap(chaterr.KindNoSuchTool, fmt.Errorf("tool %q is not registered", name), chaterr.MsgNoSuchTool)
	}
	return t.Call(ctx, args)
}

// Endpoints are the upstream API base URLs used by tools.
type Endpoints struct {
	GoogleSearch string
	Firecrawl    string
	BingSearch   string
	HackerNews   string
}

// DefaultEndpoints returns the public API endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		GoogleSearch: "https://www.googleapis.com/customsearch/v1",
		Firecrawl:    "https://api.firecrawl.dev/v1/scrape",
		BingSearch:   "https://api.bing.microsoft.com/v7.0/search",
		HackerNews:   "https://hacker-news.firebaseio.com/v0",
	}
}

// Deps are the process-wide collaborators shared by every registry.
type Deps struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Endpoints  Endpoints
}

// Builder assembles registries. It is safe for concurrent use.
type Builder struct {
	fetch     *fetcher
	now       func() time.Time
	endpoints Endpoints
}

// NewBuilder creates a registry builder.
func NewBuilder(deps Deps) *Builder {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Endpoints == (Endpoints{}) {
		deps.Endpoints = DefaultEndpoints()
	}
	return &Builder{
		fetch:     newFetcher(deps.HTTPClient),
		now:       deps.Now,
		endpoints: deps.Endpoints,
	}
}

// Build returns the built-in tools plus one tool per enabled plugin.
func (b *Builder) Build(pluginsJSON string) (*Registry, error) {
	cfg, err := ParsePluginConfig(pluginsJSON)
	if err != nil {
		return nil, err
	}

	r := Empty()
	r.add(b.rememberInformation())
	r.add(b.generateTitle())
	r.add(b.getCurrentDate())
	r.add(b.calculator())
	r.add(b.hackerNews())

	if s, ok := cfg[PluginGoogleSearch]; ok && s.Enabled {
		r.add(b.webSearch(s))
	}
	if s, ok := cfg[PluginFirecrawl]; ok && s.Enabled {
		r.add(b.webScrape(s))
	}
	if s, ok := cfg[PluginBingSearch]; ok && s.Enabled {
		r.add(b.bingWebSearch(s))
	}

	return r, nil
}

func missingSetting(plugin, field string) error {
	return chaterr.New(chaterr.KindToolConfiguration,
		fmt.Sprintf("The %s plugin is missing its %s.", plugin, field))
}
