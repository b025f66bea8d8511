package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
)

// SearchResult is one web search hit as returned to the model.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type queryParams struct {
	Query string `json:"query"`
}

func (b *Builder) webSearch(settings PluginSettings) *Tool {
	spec := mcp.NewTool(string(KindWebSearch),
		mcp.WithDescription("Search the web with Google. Use this for recent events or facts you are unsure about."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
	)
	return define(KindWebSearch, spec, func(ctx context.Context, p queryParams) (any, error) {
		if settings.APIKey == "" {
			return nil, missingSetting(PluginGoogleSearch, "apiKey")
		}
		if settings.CX == "" {
			return nil, missingSetting(PluginGoogleSearch, "cx")
		}

		var body struct {
			Items []SearchResult `json:"items"`
		}
		err := b.fetch.doJSON(ctx, "google search", func(ctx context.Context) (*http.Request, error) {
			q := url.Values{}
			q.Set("key", settings.APIKey)
			q.Set("cx", settings.CX)
			q.Set("q", p.Query)
			return http.NewRequestWithContext(ctx, http.MethodGet, b.endpoints.GoogleSearch+"?"+q.Encode(), nil)
		}, &body)
		if err != nil {
			return nil, err
		}
		if body.Items == nil {
			return []SearchResult{}, nil
		}
		return body.Items, nil
	})
}

type scrapeParams struct {
	URL string `json:"url"`
}

// ScrapeResult is a scraped page as returned to the model.
type ScrapeResult struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

func (b *Builder) webScrape(settings PluginSettings) *Tool {
	spec := mcp.NewTool(string(KindWebScrape),
		mcp.WithDescription("Fetch a web page and return its content as markdown."),
		mcp.WithString("url",
			mcp.Required(),
			uriFormat(),
			mcp.Description("Absolute URL of the page"),
		),
	)
	return define(KindWebScrape, spec, func(ctx context.Context, p scrapeParams) (any, error) {
		if settings.APIKey == "" {
			return nil, missingSetting(PluginFirecrawl, "apiKey")
		}

		payload, err := json.Marshal(map[string]any{
			"url":     p.URL,
			"formats": []string{"markdown"},
		})
		if err != nil {
			return nil, err
		}

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Markdown string `json:"markdown"`
				Metadata struct {
					Title string `json:"title"`
				} `json:"metadata"`
			} `json:"data"`
		}
		err = b.fetch.doJSON(ctx, "firecrawl", func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoints.Firecrawl, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+settings.APIKey)
			return req, nil
		}, &body)
		if err != nil {
			return nil, err
		}

		return ScrapeResult{
			URL:      p.URL,
			Title:    body.Data.Metadata.Title,
			Markdown: body.Data.Markdown,
		}, nil
	})
}

func (b *Builder) bingWebSearch(settings PluginSettings) *Tool {
	spec := mcp.NewTool(string(KindBingWebSearch),
		mcp.WithDescription("Search the web with Bing. Use this for recent events or facts you are unsure about."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
	)
	return define(KindBingWebSearch, spec, func(ctx context.Context, p queryParams) (any, error) {
		if settings.APIKey == "" {
			return nil, missingSetting(PluginBingSearch, "apiKey")
		}

		var body struct {
			WebPages struct {
				Value []struct {
					Name    string `json:"name"`
					URL     string `json:"url"`
					Snippet string `json:"snippet"`
				} `json:"value"`
			} `json:"webPages"`
		}
		err := b.fetch.doJSON(ctx, "bing search", func(ctx context.Context) (*http.Request, error) {
			q := url.Values{}
			q.Set("q", p.Query)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoints.BingSearch+"?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Ocp-Apim-Subscription-Key", settings.APIKey)
			return req, nil
		}, &body)
		if err != nil {
			return nil, err
		}

		results := make([]SearchResult, 0, len(body.WebPages.Value))
		for _, v := range body.WebPages.Value {
			results = append(results, SearchResult{Title: v.Name, Link: v.URL, Snippet: v.Snippet})
		}
		return results, nil
	})
}
