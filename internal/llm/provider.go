package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
)

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter}
}

// ParseProvider maps a client-supplied id onto a Provider.
func ParseProvider(id string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(id)))
	if _, ok := variants[p]; !ok {
		return "", chaterr.New(chaterr.KindUnsupportedProvider, chaterr.MsgUnsupportedProvider)
	}
	return p, nil
}

// Options configure client construction.
type Options struct {
	OpenAIBaseURL         string
	AnthropicBaseURL      string
	OpenRouterBaseURL     string
	AnthropicToolsEnabled bool
	HTTPClient            *http.Client
}

type variant struct {
	newClient     func(apiKey string, opts Options) (Client, error)
	supportsTools func(opts Options) bool
}

var variants = map[Provider]variant{
	ProviderOpenAI: {
		newClient: func(apiKey string, opts Options) (Client, error) {
			return NewOpenAIClient(apiKey, opts)
		},
		supportsTools: func(Options) bool { return true },
	},
	ProviderAnthropic: {
		newClient: func(apiKey string, opts Options) (Client, error) {
			return NewAnthropicClient(apiKey, opts)
		},
		supportsTools: func(opts Options) bool { return opts.AnthropicToolsEnabled },
	},
	ProviderOpenRouter: {
		newClient: func(apiKey string, opts Options) (Client, error) {
			return NewOpenRouterClient(apiKey, opts)
		},
		supportsTools: func(Options) bool { return true },
	},
}

// Selector creates request-scoped client factories.
type Selector struct {
	opts Options
}

// NewSelector creates a selector.
func NewSelector(opts Options) *Selector {
	return &Selector{opts: opts}
}

// Select constructs a client for providerID bound to apiKey. No network call
// is made.
func (s *Selector) Select(providerID, apiKey string) (*Factory, error) {
	p, err := ParseProvider(providerID)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, chaterr.New(chaterr.KindCredentialNotFound, chaterr.MsgCredentialNotFound)
	}

	v := variants[p]
	client, err := v.newClient(apiKey, s.opts)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.KindConfiguration, err, "Failed to create model client")
	}

	return NewFactory(p, client, v.supportsTools(s.opts)), nil
}

// Factory produces model-bound clients for a single provider credential.
type Factory struct {
	provider      Provider
	client        Client
	supportsTools bool
}

// NewFactory wraps an existing client.
func NewFactory(p Provider, client Client, supportsTools bool) *Factory {
	return &Factory{provider: p, client: client, supportsTools: supportsTools}
}

// Provider returns the provider of the factory.
func (f *Factory) Provider() Provider {
	return f.provider
}

// SupportsTools reports whether tools may be passed to this provider.
func (f *Factory) SupportsTools() bool {
	return f.supportsTools
}

// Model returns a client whose requests always use the given model id.
func (f *Factory) Model(id string) Client {
	return &boundModel{Client: f.client, model: id}
}

type boundModel struct {
	Client
	model string
}

func (m *boundModel) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	r := *req
	r.Model = m.model
	return m.Client.Complete(ctx, &r)
}

func (m *boundModel) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	r := *req
	r.Model = m.model
	return m.Client.CompleteStream(ctx, &r, callback)
}
