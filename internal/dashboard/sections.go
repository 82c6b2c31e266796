package dashboard

import (
	"context"
	"sort"

	"github.com/briangreenhill/chatdeck/internal/loader"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

// Section names double as loader keys
const (
	SectionFiles           = "files"
	SectionDatasets        = "datasets"
	SectionEmbeddings      = "embeddings"
	SectionModels          = "models"
	SectionChats           = "chats"
	SectionKnowledgeStores = "knowledge_stores"
	SectionIntegrations    = "integrations"
	SectionMCP             = "mcp"
	SectionAPIKeys         = "api_keys"
	SectionUsage           = "usage"
)

// Section is one panel of the dashboard backed by a platform read
type Section interface {
	// Name returns the section name (e.g., "files", "models")
	Name() string

	// Request describes the read for a batch
	Request(c *platform.Client) loader.Request

	// Load reads the section through l
	Load(ctx context.Context, l *loader.Loader, c *platform.Client) (any, error)
}

type section[T any] struct {
	key   loader.Key[T]
	fetch func(ctx context.Context, c *platform.Client) (T, error)
}

// NewSection creates a section whose value has type T
func NewSection[T any](name string, fetch func(ctx context.Context, c *platform.Client) (T, error)) Section {
	return &section[T]{key: loader.NewKey[T](name), fetch: fetch}
}

func (s *section[T]) Name() string { return s.key.Name() }

func (s *section[T]) fetcher(c *platform.Client) loader.Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		return s.fetch(ctx, c)
	}
}

func (s *section[T]) Request(c *platform.Client) loader.Request {
	return loader.Req(s.key, s.fetcher(c))
}

func (s *section[T]) Load(ctx context.Context, l *loader.Loader, c *platform.Client) (any, error) {
	return loader.Fetch(ctx, l, s.key, s.fetcher(c))
}

// Registry manages the sections shown on the dashboard
type Registry struct {
	sections map[string]Section
}

// NewRegistry creates an empty section registry
func NewRegistry() *Registry {
	return &Registry{
		sections: make(map[string]Section),
	}
}

// Register adds a section, replacing any section with the same name
func (r *Registry) Register(s Section) {
	r.sections[s.Name()] = s
}

func (r *Registry) Get(name string) (Section, bool) {
	s, exists := r.sections[name]
	return s, exists
}

// List returns all registered section names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.sections))
	for name := range r.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requests builds one batch request per registered section
func (r *Registry) Requests(c *platform.Client) []loader.Request {
	reqs := make([]loader.Request, 0, len(r.sections))
	for _, name := range r.List() {
		reqs = append(reqs, r.sections[name].Request(c))
	}
	return reqs
}

// firstPage adapts a paged list call to a section fetch of the first page
func firstPage[T any](list func(*platform.Client, context.Context, platform.Page) (platform.List[T], error)) func(context.Context, *platform.Client) (platform.List[T], error) {
	return func(ctx context.Context, c *platform.Client) (platform.List[T], error) {
		return list(c, ctx, platform.Page{})
	}
}

// DefaultRegistry returns the sections of the standard dashboard
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewSection(SectionFiles, firstPage((*platform.Client).ListFiles)))
	r.Register(NewSection(SectionDatasets, firstPage((*platform.Client).ListDatasets)))
	r.Register(NewSection(SectionEmbeddings, firstPage((*platform.Client).ListEmbeddings)))
	r.Register(NewSection(SectionModels, firstPage((*platform.Client).ListModels)))
	r.Register(NewSection(SectionChats, firstPage((*platform.Client).ListChats)))
	r.Register(NewSection(SectionKnowledgeStores, firstPage((*platform.Client).ListKnowledgeStores)))
	r.Register(NewSection(SectionIntegrations, firstPage((*platform.Client).ListIntegrations)))
	r.Register(NewSection(SectionAPIKeys, firstPage((*platform.Client).ListAPIKeys)))
	r.Register(NewSection(SectionMCP, func(ctx context.Context, c *platform.Client) (platform.MCPConfig, error) {
		return c.GetMCPConfig(ctx)
	}))
	r.Register(NewSection(SectionUsage, func(ctx context.Context, c *platform.Client) (platform.Usage, error) {
		return c.GetUsage(ctx)
	}))
	return r
}
