// Package dashboard serves the data behind the dashboard UI: one cached,
// de-duplicated loader per user in front of the platform API.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/chatdeck/internal/jobs"
	"github.com/briangreenhill/chatdeck/internal/loader"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrNoSession      = errors.New("no user session")
)

// DefaultRecomputeDelay is how long the platform usually needs to rebuild
// embeddings and knowledge stores after their sources change
const DefaultRecomputeDelay = 30 * time.Second

// User identifies whose data is loaded and with which token
type User struct {
	ID    string
	Token *oauth2.Token
}

// ClientFactory builds a platform client for one user's token
type ClientFactory func(tokens oauth2.TokenSource) (*platform.Client, error)

type Options struct {
	Sections       *Registry
	Loaders        *Loaders
	Clients        ClientFactory
	Jobs           jobs.Enqueuer // optional
	RecomputeDelay time.Duration
	Logger         zerolog.Logger
}

type Service struct {
	sections       *Registry
	loaders        *Loaders
	clients        ClientFactory
	jobs           jobs.Enqueuer
	recomputeDelay time.Duration
	logger         zerolog.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		sections:       opts.Sections,
		loaders:        opts.Loaders,
		clients:        opts.Clients,
		jobs:           opts.Jobs,
		recomputeDelay: opts.RecomputeDelay,
		logger:         opts.Logger,
	}
	if s.sections == nil {
		s.sections = DefaultRegistry()
	}
	if s.loaders == nil {
		s.loaders = NewLoaders(30*time.Minute, func() *loader.Loader { return loader.New() })
	}
	if s.clients == nil {
		s.clients = func(tokens oauth2.TokenSource) (*platform.Client, error) { return platform.New(tokens) }
	}
	if s.recomputeDelay <= 0 {
		s.recomputeDelay = DefaultRecomputeDelay
	}
	return s
}

func (s *Service) Sections() []string {
	return s.sections.List()
}

func (s *Service) session(u User) (*loader.Loader, *platform.Client, error) {
	if u.ID == "" || u.Token == nil || u.Token.AccessToken == "" {
		return nil, nil, ErrNoSession
	}
	c, err := s.clients(oauth2.StaticTokenSource(u.Token))
	if err != nil {
		return nil, nil, fmt.Errorf("platform client: %w", err)
	}
	return s.loaders.For(u.ID), c, nil
}

// SectionResult is either the data of a section or the reason it failed
type SectionResult struct {
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Cached bool   `json:"cached"`
}

// Overview maps every section name to its result
type Overview map[string]SectionResult

// Failed lists the sections that did not load, sorted
func (o Overview) Failed() []string {
	var names []string
	for name, res := range o {
		if res.Error != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Overview loads all sections at once. A failing section is reported in its
// own entry and never hides the others.
func (s *Service) Overview(ctx context.Context, u User) (Overview, error) {
	l, c, err := s.session(u)
	if err != nil {
		return nil, err
	}

	results := l.Batch(ctx, 0, s.sections.Requests(c)...)

	out := make(Overview, len(results))
	for name, res := range results {
		if res.Err != nil {
			out[name] = SectionResult{Error: res.Err.Error()}
			continue
		}
		out[name] = SectionResult{Data: res.Value, Cached: res.Cached}
	}
	return out, nil
}

// Section loads one section
func (s *Service) Section(ctx context.Context, u User, name string) (any, error) {
	sec, ok := s.sections.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	l, c, err := s.session(u)
	if err != nil {
		return nil, err
	}
	return sec.Load(ctx, l, c)
}

// Preload starts loading every section in the background
func (s *Service) Preload(ctx context.Context, u User) error {
	l, c, err := s.session(u)
	if err != nil {
		return err
	}
	l.Preload(ctx, s.sections.Requests(c)...)
	return nil
}

// Invalidate drops cached sections for a user; no keys drops all of them.
// Users without a loader are skipped.
func (s *Service) Invalidate(userID string, keys ...string) {
	l, ok := s.loaders.Lookup(userID)
	if !ok {
		return
	}
	l.Invalidate(keys...)
}

// Stats returns the user's loader counters, or zero values without a loader
func (s *Service) Stats(userID string) loader.Stats {
	l, ok := s.loaders.Lookup(userID)
	if !ok {
		return loader.Stats{}
	}
	return l.Stats()
}

// Forget disposes of a user's loader, e.g. on sign-out
func (s *Service) Forget(userID string) {
	s.loaders.Forget(userID)
}

func (s *Service) DeleteFile(ctx context.Context, u User, id string) error {
	_, c, err := s.session(u)
	if err != nil {
		return err
	}
	if err := c.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	s.Invalidate(u.ID, SectionFiles, SectionDatasets, SectionEmbeddings, SectionKnowledgeStores, SectionUsage)
	s.scheduleInvalidate(u.ID, SectionEmbeddings, SectionKnowledgeStores)
	return nil
}

func (s *Service) DeleteDataset(ctx context.Context, u User, id string) error {
	_, c, err := s.session(u)
	if err != nil {
		return err
	}
	if err := c.DeleteDataset(ctx, id); err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	s.Invalidate(u.ID, SectionDatasets, SectionEmbeddings, SectionKnowledgeStores, SectionUsage)
	s.scheduleInvalidate(u.ID, SectionEmbeddings, SectionKnowledgeStores)
	return nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, u User, id string) error {
	_, c, err := s.session(u)
	if err != nil {
		return err
	}
	if err := c.RevokeAPIKey(ctx, id); err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	s.Invalidate(u.ID, SectionAPIKeys)
	return nil
}

// scheduleInvalidate drops keys again once the platform has had time to
// rebuild them, so a read made in between does not stay cached
func (s *Service) scheduleInvalidate(userID string, keys ...string) {
	if s.jobs == nil {
		s.logger.Debug().Str("user_id", userID).Strs("keys", keys).Msg("no job queue, skipping delayed invalidation")
		return
	}
	task, err := jobs.NewInvalidateTask(userID, keys, s.recomputeDelay)
	if err != nil {
		s.logger.Error().Err(err).Msg("build invalidate task")
		return
	}
	info, err := s.jobs.Enqueue(task)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("enqueue invalidate task")
		return
	}
	s.logger.Debug().Str("task_id", info.ID).Str("user_id", userID).Strs("keys", keys).Msg("delayed invalidation queued")
}

// HandleInvalidateTask processes jobs.TaskInvalidate
func (s *Service) HandleInvalidateTask(ctx context.Context, t *asynq.Task) error {
	var p jobs.InvalidatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.UserID == "" {
		return fmt.Errorf("missing user_id: %w", asynq.SkipRetry)
	}
	s.Invalidate(p.UserID, p.Keys...)
	s.logger.Debug().Str("user_id", p.UserID).Strs("keys", p.Keys).Msg("invalidate task done")
	return nil
}
