// Package app wires configuration to the pipeline and its collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/config"
	"github.com/roach88/citytrain/internal/enhance"
	"github.com/roach88/citytrain/internal/enhance/voice"
	"github.com/roach88/citytrain/internal/feed"
	"github.com/roach88/citytrain/internal/logging"
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/synth"
	"github.com/roach88/citytrain/internal/tracker"
)

// FetchError reports that the source feed could not be retrieved or parsed.
type FetchError struct {
	Source string
	Err    error
}

// Error returns the fetcher's message, which already names the source.
func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError checks if an error is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*Application)

// WithStore uses s as the breadcrumb store.
func WithStore(s store.Store) Option {
	return func(a *Application) { a.store = s }
}

// WithService uses svc as the synthesis service.
func WithService(svc synth.Service) Option {
	return func(a *Application) { a.service = svc }
}

// WithHTTPClient uses c for feed fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Application) { a.httpClient = c }
}

// Application holds the wired pipeline for one process.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	store      store.Store
	closeStore func() error
	service    synth.Service
	httpClient *http.Client
	registry   *enhance.Registry
	runner     *pipeline.Runner
	fetcher    *feed.Fetcher
	tracker    *tracker.Tracker
}

// New validates cfg and builds the application. Call Close when done.
func New(cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, nil)
	}

	a := &Application{cfg: cfg, logger: baseLogger}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		s, closeFn, err := openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		a.store, a.closeStore = s, closeFn
	}
	if a.service == nil {
		a.service = newService(cfg.Synth)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: cfg.Fetch.Timeout}
	}

	a.registry = enhance.NewRegistry()
	for _, e := range enhance.Builtins() {
		a.registry.Register(e)
	}
	a.registry.Register(voice.New(voice.Deps{
		Store:   a.store,
		Service: a.service,
		Config:  cfg.Voice.Map(),
		Logger:  baseLogger,
	}))

	a.runner = pipeline.NewRunner(a.registry, baseLogger)
	a.fetcher = feed.NewFetcher(a.httpClient)
	a.tracker = tracker.New(a.store, voice.Namespace(cfg.Voice.Table, cfg.Voice.Prefix), baseLogger)

	baseLogger.Debug("application ready",
		"store", cfg.Store.Driver,
		"synth", cfg.Synth.Mode,
		"enhancements", a.registry.Names())
	return a, nil
}

func openStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Driver {
	case config.StoreSQLite, config.StorePostgres:
		s, err := store.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		return s, s.Close, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}

func newService(cfg config.SynthConfig) synth.Service {
	if cfg.Mode == config.SynthHTTP {
		return synth.NewHTTPClient(cfg.Endpoint, cfg.APIKey, &http.Client{Timeout: cfg.Timeout})
	}
	return synth.NewLocal(cfg.Steps)
}

// Config returns the configuration the application was built with.
func (a *Application) Config() config.Config { return a.cfg }

// Registry returns the enhancement registry.
func (a *Application) Registry() *enhance.Registry { return a.registry }

// Service returns the synthesis service in use.
func (a *Application) Service() synth.Service { return a.service }

// Fetch retrieves the feed at src. Failures are *FetchError.
func (a *Application) Fetch(ctx context.Context, src string) (*ast.Feed, error) {
	f, err := a.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}
	return f, nil
}

// Enhance fetches src and runs funcs over it. funcs is annotated in place
// with per-step errors. A fetch failure is *FetchError; a catastrophic
// pipeline failure is *pipeline.PipelineError.
func (a *Application) Enhance(ctx context.Context, src string, funcs []pipeline.FuncInterface) (*ast.Feed, error) {
	f, err := a.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return a.runner.SetupASTPipeline(ctx, f, funcs)
}

// Breadcrumb returns the breadcrumb stored for key under the configured
// table and prefix. An absent key is store.ErrNotFound.
func (a *Application) Breadcrumb(ctx context.Context, key string) (tracker.Breadcrumb, error) {
	return a.tracker.Get(ctx, key)
}

// BreadcrumbKeys lists the content keys with a stored breadcrumb.
func (a *Application) BreadcrumbKeys(ctx context.Context) ([]string, error) {
	return a.tracker.Keys(ctx)
}

// Close releases the store.
func (a *Application) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
