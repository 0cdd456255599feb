package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliolabs/foliod/internal/search"
)

type fakeSearcher struct {
	sets   map[string]search.ResultSet
	err    error
	limits map[string]int
}

func (f *fakeSearcher) SearchMany(ctx context.Context, query string, limits map[string]int) (map[string]search.ResultSet, error) {
	f.limits = limits
	if f.err != nil {
		return nil, f.err
	}
	return f.sets, nil
}

type fakeTemplates struct {
	template Template
	err      error
}

func (f *fakeTemplates) Get(ctx context.Context, name string) (Template, error) {
	if f.err != nil {
		return Template{}, f.err
	}
	return f.template, nil
}

func missingTemplates() *fakeTemplates {
	return &fakeTemplates{err: fmt.Errorf("%w: chat", ErrNotFound)}
}

func TestBuildInterpolatesContext(t *testing.T) {
	searcher := &fakeSearcher{sets: map[string]search.ResultSet{
		"projects": {Results: []search.Result{
			{ID: "p-1", Title: "Raytracer", Snippet: "A path tracer."},
		}},
		"blogs": {Results: []search.Result{
			{ID: "b-1", Title: "Devlog", Snippet: "Week one."},
		}},
	}}
	builder := NewBuilder(searcher, missingTemplates(), 6, nil)

	result := builder.Build(context.Background(), Input{Query: "tell me about the raytracer"})

	assert.Contains(t, result.Prompt, "- Raytracer: A path tracer.")
	assert.Contains(t, result.Prompt, "- Devlog: Week one.")
	assert.Contains(t, result.Prompt, "User: tell me about the raytracer")
	assert.NotContains(t, result.Prompt, "{{", "all placeholders must be substituted")

	require.Len(t, result.Sources, 2)
	assert.Equal(t, Source{Collection: "projects", ID: "p-1", Title: "Raytracer"}, result.Sources[0])
	assert.Equal(t, Source{Collection: "blogs", ID: "b-1", Title: "Devlog"}, result.Sources[1])

	assert.Equal(t, map[string]int{"projects": 3, "blogs": 3, "pages": 2}, searcher.limits)
}

func TestBuildFallbackCarriesQuery(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("retrieval down")}
	builder := NewBuilder(searcher, missingTemplates(), 6, nil)

	result := builder.Build(context.Background(), Input{Query: "what projects exist?"})

	assert.Contains(t, result.Prompt, "what projects exist?", "fallback prompt must carry the literal query")
	assert.Empty(t, result.Sources)
	assert.NotContains(t, result.Prompt, "{{")
}

func TestBuildHistoryTruncation(t *testing.T) {
	builder := NewBuilder(&fakeSearcher{}, missingTemplates(), 6, nil)

	var history []Message
	for i := 1; i <= 8; i++ {
		history = append(history,
			Message{Role: RoleUser, Content: fmt.Sprintf("question %d", i)},
			Message{Role: RoleAI, Content: fmt.Sprintf("answer %d", i)},
		)
	}

	result := builder.Build(context.Background(), Input{Query: "next", History: history})

	assert.NotContains(t, result.Prompt, "question 2", "older turns must be dropped")
	assert.Contains(t, result.Prompt, "User: question 3")
	assert.Contains(t, result.Prompt, "AI: answer 8")
}

func TestBuildHistoryChronological(t *testing.T) {
	builder := NewBuilder(&fakeSearcher{}, missingTemplates(), 6, nil)

	result := builder.Build(context.Background(), Input{
		Query: "next",
		History: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAI, Content: "second"},
		},
	})

	first := strings.Index(result.Prompt, "User: first")
	second := strings.Index(result.Prompt, "AI: second")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
}

func TestBuildUsesStoredTemplate(t *testing.T) {
	templates := &fakeTemplates{template: Template{
		Name:     ChatTemplateName,
		Template: "Q={{query}} unknown={{somethingElse}}",
	}}
	builder := NewBuilder(&fakeSearcher{}, templates, 6, nil)

	result := builder.Build(context.Background(), Input{Query: "hi"})

	assert.Equal(t, "Q=hi unknown=", result.Prompt, "unmatched placeholders substitute to empty")
}

func TestBuildSourcesFollowTemplatePlaceholders(t *testing.T) {
	searcher := &fakeSearcher{sets: map[string]search.ResultSet{
		"projects": {Results: []search.Result{
			{ID: "p-1", Title: "Raytracer", Snippet: "A path tracer."},
		}},
		"blogs": {Results: []search.Result{
			{ID: "b-1", Title: "Devlog", Snippet: "Week one."},
		}},
	}}
	templates := &fakeTemplates{template: Template{
		Name:     ChatTemplateName,
		Template: "Projects:\n{{projects}}\n\nUser: {{query}}",
	}}
	builder := NewBuilder(searcher, templates, 6, nil)

	result := builder.Build(context.Background(), Input{Query: "hi"})

	assert.Equal(t, map[string]int{"projects": 3}, searcher.limits,
		"collections absent from the template are not searched")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, Source{Collection: "projects", ID: "p-1", Title: "Raytracer"}, result.Sources[0])
	assert.NotContains(t, result.Prompt, "Devlog")
}

func TestBuildWebContext(t *testing.T) {
	builder := NewBuilder(&fakeSearcher{}, missingTemplates(), 6, nil)

	result := builder.Build(context.Background(), Input{
		Query:      "hi",
		WebContext: "today is launch day",
	})
	assert.Contains(t, result.Prompt, "today is launch day")
}
