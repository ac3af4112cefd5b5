// Package voice implements addVoice, the text-to-speech caching
// enhancement.
//
// Each item's narratable text is fingerprinted together with the service
// configuration into a content key. The key decides what happens:
//
//	no breadcrumb         -> submit a synthesis task, then write the breadcrumb
//	breadcrumb, unfinished -> poll the service, item unchanged this pass
//	breadcrumb, completed  -> attach the audio to the item
//	breadcrumb, failed     -> log, item unchanged
//
// Re-running the enhancement on the same content never submits twice.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/canon"
	"github.com/roach88/citytrain/internal/enhance"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/synth"
	"github.com/roach88/citytrain/internal/tracker"
)

// Name is the registry name of the enhancement.
const Name = "addVoice"

// maxFlights bounds how often one item rejoins a shared check-then-submit
// that ended with another caller's cancellation.
const maxFlights = 3

// Deps are the collaborators of the enhancement.
type Deps struct {
	Store   store.Store
	Service synth.Service
	// Config is the service-level configuration; step params overlay it.
	Config map[string]any
	Logger *slog.Logger
}

// Voice is the addVoice enhancement.
//
// Thread-safety: Voice is safe for concurrent use. Concurrent pipeline runs
// that reach the same content key share one check-then-submit.
type Voice struct {
	store    store.Store
	service  synth.Service
	base     map[string]any
	logger   *slog.Logger
	inflight singleflight.Group
}

var _ enhance.Enhancement = (*Voice)(nil)

// New creates the enhancement.
func New(deps Deps) *Voice {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Voice{
		store:   deps.Store,
		service: deps.Service,
		base:    deps.Config,
		logger:  logger.With("component", "enhance.voice"),
	}
}

// Name implements enhance.Enhancement.
func (v *Voice) Name() string { return Name }

// Apply implements enhance.Enhancement. Invalid configuration yields a
// step that fails with *ConfigError before touching any item.
func (v *Voice) Apply(params enhance.Params) enhance.Func {
	settings, err := ResolveSettings(v.base, params)
	if err != nil {
		return enhance.Fail(err)
	}

	return func(ctx context.Context, feed *ast.Feed) (*ast.Feed, error) {
		if v.store == nil || v.service == nil {
			return nil, fmt.Errorf("%s: store and service are required", Name)
		}

		r := &run{
			voice:    v,
			settings: settings,
			tracker:  tracker.New(v.store, settings.Namespace(), v.logger),
			done:     make(map[string]tracker.Breadcrumb),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(settings.Concurrency)
		for i, it := range feed.Items {
			if it == nil {
				continue
			}
			g.Go(func() error {
				if err := r.item(gctx, it); err != nil {
					return fmt.Errorf("%s items[%d]: %w", Name, i, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return feed, nil
	}
}

// requestIdentity is the config half of the content key: everything that
// changes the produced audio except the text itself.
type requestIdentity struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	synth.Config
}

// Key derives the content key for text under settings.
func Key(settings Settings, text string) (string, error) {
	return canon.MakeKey(requestIdentity{
		Bucket: settings.Bucket,
		Prefix: settings.Prefix,
		Config: settings.SynthConfig(),
	}, text)
}

// run is the state of one enhancement call.
type run struct {
	voice    *Voice
	settings Settings
	tracker  *tracker.Tracker

	mu   sync.Mutex
	done map[string]tracker.Breadcrumb
}

func (r *run) item(ctx context.Context, it *ast.Item) error {
	text, err := enhance.ItemText(ctx, it)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	key, err := Key(r.settings, text)
	if err != nil {
		return err
	}

	b, err := r.breadcrumb(ctx, key, it, text)
	if err != nil {
		return err
	}

	switch {
	case tracker.IsMediaFinished(b):
		r.attach(it, b)
	case b.Failed():
		r.voice.logger.Warn("synthesis task failed",
			"key", key,
			"task_id", b.Task.IDs.TaskID,
			"reason", b.Task.IDs.TaskStatusReason)
	}
	return nil
}

// breadcrumb returns the current breadcrumb for key, submitting or polling
// as needed. Each key is handled once per run; items sharing content reuse
// the result.
func (r *run) breadcrumb(ctx context.Context, key string, it *ast.Item, text string) (tracker.Breadcrumb, error) {
	storageKey := r.tracker.StorageKey(key)
	var (
		b   tracker.Breadcrumb
		err error
	)
	for range maxFlights {
		b, err = r.shared(ctx, storageKey, key, it, text)
		// A flight led by another caller can end with that caller's
		// cancellation; start a new one while ctx is still live.
		if err == nil || !isContextErr(err) || ctx.Err() != nil {
			break
		}
	}
	return b, err
}

func (r *run) shared(ctx context.Context, storageKey, key string, it *ast.Item, text string) (tracker.Breadcrumb, error) {
	res, err, _ := r.voice.inflight.Do(storageKey, func() (any, error) {
		r.mu.Lock()
		b, seen := r.done[key]
		r.mu.Unlock()
		if seen {
			return b, nil
		}

		b, err := r.checkOrSubmit(ctx, key, it, text)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.done[key] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return tracker.Breadcrumb{}, err
	}
	return res.(tracker.Breadcrumb), nil
}

func (r *run) checkOrSubmit(ctx context.Context, key string, it *ast.Item, text string) (tracker.Breadcrumb, error) {
	logger := r.voice.logger

	b, started, err := r.tracker.HaveEverStarted(ctx, key)
	if err != nil {
		return tracker.Breadcrumb{}, err
	}
	if started {
		if tracker.IsTerminal(b) {
			return b, nil
		}
		polled, err := r.tracker.Poll(ctx, b, r.voice.service)
		if err != nil {
			return tracker.Breadcrumb{}, err
		}
		logger.Debug("polled synthesis task",
			"key", key,
			"task_id", polled.Task.IDs.TaskID,
			"status", string(polled.Task.IDs.TaskStatus))
		return polled, nil
	}

	task, err := r.voice.service.StartTask(ctx, synth.StartRequest{
		Text:   text,
		Bucket: r.settings.Bucket,
		Prefix: r.settings.Prefix,
		Config: r.settings.SynthConfig(),
	})
	if err != nil {
		return tracker.Breadcrumb{}, fmt.Errorf("submit synthesis task: %w", err)
	}

	// The task now exists remotely. Its breadcrumb is written even if ctx
	// has been cancelled meanwhile, or the next pass would submit again.
	ids, cfg := tracker.SplitSynthTaskResponse(task)
	snapshot := ast.CloneItem(it)
	snapshot.Attachments = nil
	b, err = r.tracker.CacheBreadcrumbs(context.WithoutCancel(ctx), *snapshot, key, cfg, ids)
	if err != nil {
		// The task exists remotely with no local record; a retry will
		// submit again.
		logger.Error("breadcrumb write failed after submission",
			"key", key,
			"task_id", ids.TaskID,
			"error", err)
		return tracker.Breadcrumb{}, err
	}

	logger.Info("submitted synthesis task",
		"key", key,
		"task_id", ids.TaskID,
		"chars", ids.RequestCharacters)
	return b, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// attach adds the finished audio to the item unless it is already there.
func (r *run) attach(it *ast.Item, b tracker.Breadcrumb) {
	ids := b.Task.IDs
	if ids.OutputURI == "" || it.HasAttachment(ids.OutputURI) {
		return
	}

	cfg := b.Task.Config
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = r.settings.OutputFormat
	}
	size, duration := synth.Task{
		RequestCharacters: ids.RequestCharacters,
		OutputBytes:       ids.OutputBytes,
		DurationSeconds:   ids.DurationSeconds,
		Config:            cfg,
	}.Media()

	it.Attachments = append(it.Attachments, ast.Attachment{
		URL:               ids.OutputURI,
		Title:             attachmentTitle(it),
		MimeType:          synth.MimeType(cfg.OutputFormat),
		SizeInBytes:       size,
		DurationInSeconds: duration,
	})
}

func attachmentTitle(it *ast.Item) string {
	if it.Title == "" {
		return "Audio narration"
	}
	return "Listen: " + it.Title
}
