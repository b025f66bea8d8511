package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type rememberParams struct {
	Memory []string `json:"memory"`
}

func (b *Builder) rememberInformation() *Tool {
	spec := mcp.NewTool(string(KindRememberInformation),
		mcp.WithDescription("Remember durable facts about the user, such as their name, preferences or ongoing projects. Call this when the user shares something worth keeping for later conversations."),
		mcp.WithArray("memory",
			mcp.Description("Short standalone facts to remember"),
			stringItems(),
		),
	)
	return define(KindRememberInformation, spec, func(_ context.Context, p rememberParams) (any, error) {
		if p.Memory == nil {
			return []string{}, nil
		}
		return p.Memory, nil
	})
}

type titleParams struct {
	Title string `json:"title"`
}

func (b *Builder) generateTitle() *Tool {
	spec := mcp.NewTool(string(KindGenerateTitle),
		mcp.WithDescription("Set a short title for the current conversation. Call this once the topic of the conversation is clear."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Title of at most five words"),
		),
	)
	return define(KindGenerateTitle, spec, func(_ context.Context, p titleParams) (any, error) {
		return p.Title, nil
	})
}

type dateParams struct {
	Format string `json:"format,omitempty"`
}

func (b *Builder) getCurrentDate() *Tool {
	spec := mcp.NewTool(string(KindGetCurrentDate),
		mcp.WithDescription("Get the current date and time in UTC as an ISO-8601 timestamp."),
		mcp.WithString("format",
			mcp.Description("Ignored; the result is always ISO-8601"),
		),
	)
	return define(KindGetCurrentDate, spec, func(_ context.Context, _ dateParams) (any, error) {
		return b.now().UTC().Format(isoMillis), nil
	})
}

type calculatorParams struct {
	Expr string `json:"expr"`
}

func (b *Builder) calculator() *Tool {
	spec := mcp.NewTool(string(KindCalculator),
		mcp.WithDescription("Evaluate an arithmetic expression. Supports numbers, + - * / and parentheses."),
		mcp.WithString("expr",
			mcp.Required(),
			mcp.Description("Expression to evaluate, for example (2 + 3) * 4"),
		),
	)
	return define(KindCalculator, spec, func(_ context.Context, p calculatorParams) (any, error) {
		v, err := Evaluate(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("calculator: %w", err)
		}
		return v, nil
	})
}

type hackerNewsParams struct {
	Count int `json:"count,omitempty"`
}

// Story is a Hacker News item as returned to the model.
type Story struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Score int    `json:"score"`
	By    string `json:"by"`
}

const defaultStoryCount = 5

func (b *Builder) hackerNews() *Tool {
	spec := mcp.NewTool(string(KindHackerNews),
		mcp.WithDescription("Get the current top stories from Hacker News."),
		mcp.WithNumber("count",
			integer(),
			minimum(1),
			maximum(20),
			mcp.Description("Number of stories to return, 5 by default"),
		),
	)
	return define(KindHackerNews, spec, func(ctx context.Context, p hackerNewsParams) (any, error) {
		count := p.Count
		if count == 0 {
			count = defaultStoryCount
		}
		return b.topStories(ctx, count)
	})
}

func (b *Builder) topStories(ctx context.Context, count int) ([]Story, error) {
	base := strings.TrimRight(b.endpoints.HackerNews, "/")

	var ids []int64
	err := b.fetch.doJSON(ctx, "hackernews", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/topstories.json", nil)
	}, &ids)
	if err != nil {
		return nil, err
	}
	if len(ids) > count {
		ids = ids[:count]
	}

	stories := make([]Story, len(ids))
	grp, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		grp.Go(func() error {
			return b.fetch.doJSON(gctx, "hackernews", func(ctx context.Context) (*http.Request, error) {
				return http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/item/%d.json", base, id), nil)
			}, &stories[i])
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return stories, nil
}
