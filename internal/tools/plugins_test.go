package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/suite"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

type PluginSuite struct {
	suite.Suite
	mux      *http.ServeMux
	server   *httptest.Server
	builder  *Builder
	attempts atomic.Int32
}

func TestPluginSuite(t *testing.T) {
	suite.Run(t, new(PluginSuite))
}

func (s *PluginSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.attempts.Store(0)

	s.builder = NewBuilder(Deps{
		HTTPClient: s.server.Client(),
		Endpoints: Endpoints{
			GoogleSearch: s.server.URL + "/customsearch/v1",
			Firecrawl:    s.server.URL + "/v1/scrape",
			BingSearch:   s.server.URL + "/v7.0/search",
			HackerNews:   s.server.URL + "/v0",
		},
	})
	s.builder.fetch.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
}

func (s *PluginSuite) TearDownTest() {
	s.server.Close()
}

func (s *PluginSuite) call(plugins, tool, args string) (any, error) {
	r, err := s.builder.Build(plugins)
	s.Require().NoError(err)
	return r.Call(context.Background(), tool, json.RawMessage(args))
}

func (s *PluginSuite) TestGoogleSearch() {
	s.mux.HandleFunc("/customsearch/v1", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("google-key", r.URL.Query().Get("key"))
		s.Equal("engine-id", r.URL.Query().Get("cx"))
		s.Equal("golang generics", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"items":[{"title":"Generics","link":"https://go.dev/doc","snippet":"Intro","kind":"x"}]}`)
	})

	got, err := s.call(`{"google-search":{"enabled":true,"apiKey":"google-key","cx":"engine-id"}}`,
		"webSearch", `{"query":"golang generics"}`)
	s.Require().NoError(err)
	s.Equal([]SearchResult{{Title: "Generics", Link: "https://go.dev/doc", Snippet: "Intro"}}, got)
}

func (s *PluginSuite) TestGoogleSearchRetriesServerErrors() {
	s.mux.HandleFunc("/customsearch/v1", func(w http.ResponseWriter, r *http.Request) {
		if s.attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{}`)
	})

	got, err := s.call(`{"google-search":{"enabled":true,"apiKey":"k","cx":"c"}}`, "webSearch", `{"query":"q"}`)
	s.Require().NoError(err)
	s.Equal([]SearchResult{}, got)
	s.Equal(int32(2), s.attempts.Load())
}

func (s *PluginSuite) TestClientErrorIsNotRetried() {
	s.mux.HandleFunc("/customsearch/v1", func(w http.ResponseWriter, r *http.Request) {
		s.attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := s.call(`{"google-search":{"enabled":true,"apiKey":"very-secret-key","cx":"c"}}`, "webSearch", `{"query":"q"}`)
	s.Require().Error(err)
	s.True(chaterr.Is(err, chaterr.KindToolExecution))
	s.Equal(int32(1), s.attempts.Load())
	s.NotContains(err.Error(), "very-secret-key")
}

func (s *PluginSuite) TestRetriesExhausted() {
	s.mux.HandleFunc("/v7.0/search", func(w http.ResponseWriter, r *http.Request) {
		s.attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := s.call(`{"bing-search":{"enabled":true,"apiKey":"k"}}`, "bingWebSearch", `{"query":"q"}`)
	s.Require().Error(err)
	s.True(chaterr.Is(err, chaterr.KindToolExecution))
	s.Equal(int32(maxTries), s.attempts.Load())
}

func (s *PluginSuite) TestFirecrawl() {
	s.mux.HandleFunc("/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("Bearer fc-key", r.Header.Get("Authorization"))

		var body map[string]any
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&body))
		s.Equal("https://example.com/post", body["url"])

		fmt.Fprint(w, `{"success":true,"data":{"markdown":"# Hello","metadata":{"title":"Hello page"}}}`)
	})

	got, err := s.call(`{"firecrawl":{"enabled":true,"apiKey":"fc-key"}}`, "webScrape", `{"url":"https://example.com/post"}`)
	s.Require().NoError(err)
	s.Equal(ScrapeResult{URL: "https://example.com/post", Title: "Hello page", Markdown: "# Hello"}, got)
}

func (s *PluginSuite) TestBingSearch() {
	s.mux.HandleFunc("/v7.0/search", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("bing-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		s.Equal("weather", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"webPages":{"value":[{"name":"Forecast","url":"https://w.example","snippet":"Sunny"}]}}`)
	})

	got, err := s.call(`{"bing-search":{"enabled":true,"apiKey":"bing-key"}}`, "bingWebSearch", `{"query":"weather"}`)
	s.Require().NoError(err)
	s.Equal([]SearchResult{{Title: "Forecast", Link: "https://w.example", Snippet: "Sunny"}}, got)
}

func (s *PluginSuite) TestHackerNews() {
	s.mux.HandleFunc("/v0/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[11, 22, 33]`)
	})
	s.mux.HandleFunc("/v0/item/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		fmt.Sscanf(r.URL.Path, "/v0/item/%d.json", &id)
		fmt.Fprintf(w, `{"id":%d,"title":"Story %d","score":%d,"by":"pg"}`, id, id, id*10)
	})

	got, err := s.call("", "hackerNews", `{"count":2}`)
	s.Require().NoError(err)
	s.Equal([]Story{
		{ID: 11, Title: "Story 11", Score: 110, By: "pg"},
		{ID: 22, Title: "Story 22", Score: 220, By: "pg"},
	}, got)
}
