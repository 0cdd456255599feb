// Package services wires the foliod service graph into a single registry
// handed to the HTTP layer and the bootstrap code.
package services

import (
	"github.com/foliolabs/foliod/internal/chat"
	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/counter"
	"github.com/foliolabs/foliod/internal/indexer"
	"github.com/foliolabs/foliod/internal/prompt"
	"github.com/foliolabs/foliod/internal/search"
	"github.com/foliolabs/foliod/internal/vectorstore"
)

// Registry provides access to all foliod services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Counter() *counter.Service
	Repository() content.Repository
	Cache() *content.Cache
	VectorStore() vectorstore.Store
	Indexer() *indexer.Indexer
	Search() *search.Engine
	Templates() *prompt.Store
	PromptBuilder() *prompt.Builder
	Chat() *chat.Manager
}

// Options configures the registry with service instances.
type Options struct {
	Counter       *counter.Service
	Repository    content.Repository
	Cache         *content.Cache
	VectorStore   vectorstore.Store
	Indexer       *indexer.Indexer
	Search        *search.Engine
	Templates     *prompt.Store
	PromptBuilder *prompt.Builder
	Chat          *chat.Manager
}

// registry is the concrete implementation of Registry.
type registry struct {
	counter       *counter.Service
	repository    content.Repository
	cache         *content.Cache
	vectorStore   vectorstore.Store
	indexer       *indexer.Indexer
	search        *search.Engine
	templates     *prompt.Store
	promptBuilder *prompt.Builder
	chat          *chat.Manager
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		counter:       opts.Counter,
		repository:    opts.Repository,
		cache:         opts.Cache,
		vectorStore:   opts.VectorStore,
		indexer:       opts.Indexer,
		search:        opts.Search,
		templates:     opts.Templates,
		promptBuilder: opts.PromptBuilder,
		chat:          opts.Chat,
	}
}

func (r *registry) Counter() *counter.Service      { return r.counter }
func (r *registry) Repository() content.Repository { return r.repository }
func (r *registry) Cache() *content.Cache          { return r.cache }
func (r *registry) VectorStore() vectorstore.Store { return r.vectorStore }
func (r *registry) Indexer() *indexer.Indexer      { return r.indexer }
func (r *registry) Search() *search.Engine         { return r.search }
func (r *registry) Templates() *prompt.Store       { return r.templates }
func (r *registry) PromptBuilder() *prompt.Builder { return r.promptBuilder }
func (r *registry) Chat() *chat.Manager            { return r.chat }
