package prompt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/search"
)

// Per-collection result limits interpolated into the prompt.
const (
	projectLimit = 3
	blogLimit    = 3
	pageLimit    = 2
)

// Message roles in the conversation history.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Message is one turn half in the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source identifies a content entity whose text was interpolated into the
// prompt, in interpolation order.
type Source struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Title      string `json:"title"`
}

// Input is everything a prompt build consumes besides retrieval.
type Input struct {
	Query string

	// History is the full conversation, oldest first. The builder keeps
	// only the trailing turns.
	History []Message

	// WebContext is optional extra context supplied by the caller.
	WebContext string
}

// Result is a built prompt plus the sources behind it.
type Result struct {
	Prompt  string
	Sources []Source
}

// Searcher runs the retrieval fan-out for a prompt build.
type Searcher interface {
	SearchMany(ctx context.Context, query string, limits map[string]int) (map[string]search.ResultSet, error)
}

// TemplateSource loads named templates.
type TemplateSource interface {
	Get(ctx context.Context, name string) (Template, error)
}

// placeholderPattern matches any {{name}} left after substitution.
var placeholderPattern = regexp.MustCompile(`\{\{\w+\}\}`)

// Builder assembles chat prompts. Build never returns an error: on
// retrieval or template failure it degrades to a context-free prompt that
// still carries the user's query.
type Builder struct {
	searcher     Searcher
	templates    TemplateSource
	historyTurns int
	logger       *logging.Logger
}

// NewBuilder creates a prompt builder. historyTurns is the number of
// user/AI exchange pairs kept; values below zero fall back to 6.
func NewBuilder(searcher Searcher, templates TemplateSource, historyTurns int, logger *logging.Logger) *Builder {
	if historyTurns < 0 {
		historyTurns = 6
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{
		searcher:     searcher,
		templates:    templates,
		historyTurns: historyTurns,
		logger:       logger,
	}
}

// Build assembles the prompt for one exchange. Only collections whose
// placeholder occurs in the template are searched, so Sources never cites a
// document the prompt does not carry.
func (b *Builder) Build(ctx context.Context, in Input) Result {
	template := b.loadTemplate(ctx)

	collectionLimits := map[string]int{
		"projects": projectLimit,
		"blogs":    blogLimit,
		"pages":    pageLimit,
	}
	limits := make(map[string]int, len(collectionLimits))
	for collection, limit := range collectionLimits {
		if strings.Contains(template, "{{"+collection+"}}") {
			limits[collection] = limit
		}
	}

	var sets map[string]search.ResultSet
	if len(limits) > 0 {
		var err error
		sets, err = b.searcher.SearchMany(ctx, in.Query, limits)
		if err != nil {
			b.logger.Warn(ctx, "retrieval failed, building context-free prompt", zap.Error(err))
			sets = nil
		}
	}

	var sources []Source
	sections := make(map[string]string, 3)
	for _, collection := range []string{"projects", "blogs", "pages"} {
		if _, wanted := limits[collection]; !wanted {
			continue
		}
		set := sets[collection]
		sections[collection] = formatResults(set.Results)
		for _, r := range set.Results {
			sources = append(sources, Source{
				Collection: collection,
				ID:         r.ID,
				Title:      r.Title,
			})
		}
	}

	prompt := strings.NewReplacer(
		"{{query}}", in.Query,
		"{{history}}", formatHistory(in.History, b.historyTurns),
		"{{webContext}}", in.WebContext,
		"{{projects}}", sections["projects"],
		"{{blogs}}", sections["blogs"],
		"{{pages}}", sections["pages"],
	).Replace(template)

	// Unknown placeholders substitute to empty.
	prompt = placeholderPattern.ReplaceAllString(prompt, "")

	return Result{Prompt: prompt, Sources: sources}
}

func (b *Builder) loadTemplate(ctx context.Context) string {
	t, err := b.templates.Get(ctx, ChatTemplateName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn(ctx, "loading chat template, using default", zap.Error(err))
		}
		return DefaultChatTemplate
	}
	return t.Template
}

// formatResults renders retrieval hits as bullet lines.
func formatResults(results []search.Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, r.Snippet)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatHistory renders the last turns chronologically as User:/AI: lines.
func formatHistory(history []Message, turns int) string {
	keep := turns * 2
	if len(history) > keep {
		history = history[len(history)-keep:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		label := "User"
		if m.Role == RoleAI {
			label = "AI"
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
