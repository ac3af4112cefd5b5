package voice

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/enhance"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/synth"
	"github.com/roach88/citytrain/internal/tracker"
)

func baseConfig() map[string]any {
	return map[string]any{"bucket": "media", "table": "breadcrumbs"}
}

func newFeed(texts ...string) *ast.Feed {
	feed := &ast.Feed{Title: "test"}
	for i, text := range texts {
		feed.Items = append(feed.Items, &ast.Item{
			ID:      string(rune('a' + i)),
			Title:   "Post " + string(rune('A'+i)),
			Content: ast.Resolved(ast.Content{Text: text}),
		})
	}
	return feed
}

type fixture struct {
	store *store.MemoryStore
	svc   *synth.Local
	voice *Voice
	logs  *bytes.Buffer
}

func newFixture(steps int) *fixture {
	logs := &bytes.Buffer{}
	f := &fixture{
		store: store.NewMemoryStore(),
		svc:   synth.NewLocal(steps),
		logs:  logs,
	}
	f.voice = New(Deps{
		Store:   f.store,
		Service: f.svc,
		Config:  baseConfig(),
		Logger:  slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return f
}

func (f *fixture) apply(t *testing.T, params enhance.Params, feed *ast.Feed) *ast.Feed {
	t.Helper()
	out, err := f.voice.Apply(params)(context.Background(), feed)
	require.NoError(t, err)
	return out
}

func (f *fixture) breadcrumbs(t *testing.T) []tracker.Breadcrumb {
	t.Helper()
	tr := tracker.New(f.store, Namespace("breadcrumbs", ""), nil)
	keys, err := tr.Keys(context.Background())
	require.NoError(t, err)
	out := make([]tracker.Breadcrumb, 0, len(keys))
	for _, k := range keys {
		b, err := tr.Get(context.Background(), k)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestResolveSettings_Defaults(t *testing.T) {
	s, err := ResolveSettings(baseConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, Settings{
		Bucket:       "media",
		Table:        "breadcrumbs",
		Voice:        "Matthew",
		Engine:       "neural",
		LanguageCode: "en-US",
		OutputFormat: "mp3",
		SampleRate:   "24000",
		TextType:     "text",
		Concurrency:  4,
	}, s)
	assert.Equal(t, "breadcrumbs/", s.Namespace())
}

func TestResolveSettings_ParamsOverlayBase(t *testing.T) {
	s, err := ResolveSettings(baseConfig(), map[string]any{
		"voice":      "Joanna",
		"sampleRate": 16000,
		"prefix":     "audio/",
	})
	require.NoError(t, err)
	assert.Equal(t, "Joanna", s.Voice)
	assert.Equal(t, "16000", s.SampleRate)
	assert.Equal(t, "breadcrumbs/audio/", s.Namespace())
}

func TestResolveSettings_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		base   map[string]any
		want   string
	}{
		{name: "bucket is a number", base: map[string]any{"bucket": 5, "table": "t"}, want: "bucket"},
		{name: "bucket 42", base: map[string]any{"bucket": 42, "table": "t"}, want: "bucket"},
		{name: "missing table", base: map[string]any{"bucket": "42", "prefix": "prefix"}, want: "table"},
		{name: "missing bucket", base: map[string]any{"table": "t"}, want: "bucket"},
		{name: "unknown format", base: baseConfig(), params: map[string]any{"outputFormat": "wav"}, want: "outputFormat"},
		{name: "zero concurrency", base: baseConfig(), params: map[string]any{"concurrency": 0}, want: "concurrency"},
		{name: "unknown key", base: baseConfig(), params: map[string]any{"colour": "blue"}, want: "colour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveSettings(tt.base, tt.params)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply_InvalidConfigRejectsWholeCall(t *testing.T) {
	svc := synth.NewLocal(0)
	s := store.NewMemoryStore()
	v := New(Deps{Store: s, Service: svc, Config: map[string]any{"bucket": 5, "table": "t"}})

	_, err := v.Apply(nil)(context.Background(), newFeed("one", "two"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 0, svc.Tasks())
	assert.Equal(t, 0, s.Len())
}

func TestApply_IdempotentSubmission(t *testing.T) {
	f := newFixture(5)

	out := f.apply(t, nil, newFeed("hello world"))
	assert.Empty(t, out.Items[0].Attachments)
	assert.Equal(t, 1, f.svc.Tasks())

	out = f.apply(t, nil, newFeed("hello world"))
	assert.Empty(t, out.Items[0].Attachments)
	assert.Equal(t, 1, f.svc.Tasks())

	crumbs := f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	assert.Equal(t, crumbs[0].PK, crumbs[0].SK)
	assert.Equal(t, "a", crumbs[0].Item.ID)
	assert.False(t, tracker.IsMediaFinished(crumbs[0]))
}

func TestApply_CompletionAttachment(t *testing.T) {
	f := newFixture(0)

	// First pass submits; nothing to attach yet.
	out := f.apply(t, nil, newFeed("hello world"))
	assert.Empty(t, out.Items[0].Attachments)

	// Second pass polls, sees completion and attaches.
	out = f.apply(t, nil, out)
	require.Len(t, out.Items[0].Attachments, 1)
	att := out.Items[0].Attachments[0]
	assert.True(t, att.Complete())
	assert.Equal(t, "audio/mpeg", att.MimeType)
	assert.Equal(t, "Listen: Post A", att.Title)
	assert.Contains(t, att.URL, "local://media/")

	crumbs := f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	assert.True(t, tracker.IsMediaFinished(crumbs[0]))

	// Third pass on the same feed does not duplicate the attachment.
	out = f.apply(t, nil, out)
	assert.Len(t, out.Items[0].Attachments, 1)

	// A fresh feed with the same content attaches from the breadcrumb alone.
	fresh := f.apply(t, nil, newFeed("hello world"))
	require.Len(t, fresh.Items[0].Attachments, 1)
	assert.Equal(t, att.URL, fresh.Items[0].Attachments[0].URL)
	assert.Equal(t, 1, f.svc.Tasks())
}

func TestApply_NonCompletion(t *testing.T) {
	f := newFixture(3)

	out := f.apply(t, nil, newFeed("slow"))
	out = f.apply(t, nil, out)
	out = f.apply(t, nil, out)

	assert.Empty(t, out.Items[0].Attachments)
	crumbs := f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	assert.Equal(t, synth.StatusInProgress, crumbs[0].Task.IDs.TaskStatus)
	assert.False(t, tracker.IsMediaFinished(crumbs[0]))
}

func TestApply_FailedTaskIsLoggedNotAttached(t *testing.T) {
	f := newFixture(5)
	out := f.apply(t, nil, newFeed("doomed"))

	crumbs := f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	require.NoError(t, f.svc.SetStatus(crumbs[0].Task.IDs.TaskID, synth.StatusFailed, "voice unavailable"))

	out = f.apply(t, nil, out)
	assert.Empty(t, out.Items[0].Attachments)
	assert.Contains(t, f.logs.String(), "synthesis task failed")
	assert.Contains(t, f.logs.String(), "voice unavailable")

	crumbs = f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	assert.True(t, crumbs[0].Failed())
	assert.Equal(t, 1, f.svc.Tasks())
}

func TestApply_DuplicateContentSubmitsOnce(t *testing.T) {
	f := newFixture(0)
	feed := newFeed("same text", "same text", "same text", "other text")

	f.apply(t, nil, feed)
	assert.Equal(t, 2, f.svc.Tasks())
	assert.Len(t, f.breadcrumbs(t), 2)

	out := f.apply(t, nil, feed)
	for i, it := range out.Items {
		assert.Len(t, it.Attachments, 1, "items[%d]", i)
	}
	assert.Equal(t, out.Items[0].Attachments[0].URL, out.Items[1].Attachments[0].URL)
	assert.NotEqual(t, out.Items[0].Attachments[0].URL, out.Items[3].Attachments[0].URL)
}

func TestApply_TextSources(t *testing.T) {
	f := newFixture(0)
	feed := &ast.Feed{Items: []*ast.Item{
		{ID: "html", Content: ast.Resolved(ast.Content{HTML: "<p>Only <b>markup</b></p>"})},
		{ID: "empty", Content: ast.Resolved(ast.Content{})},
		{ID: "nil"},
		nil,
	}}

	f.apply(t, nil, feed)
	assert.Equal(t, 1, f.svc.Tasks())

	crumbs := f.breadcrumbs(t)
	require.Len(t, crumbs, 1)
	assert.Equal(t, "html", crumbs[0].Item.ID)
}

func TestApply_ConfigChangesKey(t *testing.T) {
	f := newFixture(5)
	f.apply(t, nil, newFeed("hello"))
	f.apply(t, enhance.Params{"voice": "Joanna"}, newFeed("hello"))
	assert.Equal(t, 2, f.svc.Tasks())

	a, err := ResolveSettings(baseConfig(), nil)
	require.NoError(t, err)
	b, err := ResolveSettings(baseConfig(), map[string]any{"voice": "Joanna"})
	require.NoError(t, err)

	ka, err := Key(a, "hello")
	require.NoError(t, err)
	kb, err := Key(b, "hello")
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

type brokenService struct{ err error }

func (b brokenService) StartTask(context.Context, synth.StartRequest) (synth.Task, error) {
	return synth.Task{}, b.err
}

func (b brokenService) GetTask(context.Context, string) (synth.Task, error) {
	return synth.Task{}, b.err
}

func TestApply_ServiceFailureRejectsWithoutBreadcrumb(t *testing.T) {
	boom := errors.New("service down")
	s := store.NewMemoryStore()
	v := New(Deps{Store: s, Service: brokenService{err: boom}, Config: baseConfig()})

	_, err := v.Apply(nil)(context.Background(), newFeed("hello"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestApply_MissingDeps(t *testing.T) {
	v := New(Deps{Config: baseConfig()})
	_, err := v.Apply(nil)(context.Background(), newFeed("hello"))
	assert.ErrorContains(t, err, "store and service are required")
}

// gatedService lets a test hold submissions open. A submission of text
// listed in hold signals entered and returns only once its context is done.
// It is then accepted when acceptLate is set, and fails with the context
// error otherwise. A submission of text listed in reject fails
// after every held submission has entered.
type gatedService struct {
	inner   *synth.Local
	hold    map[string]bool
	reject  map[string]bool
	entered chan struct{}
	// acceptLate accepts held submissions after cancellation.
	acceptLate bool

	mu    sync.Mutex
	calls map[string]int
}

func newGatedService(hold, reject []string) *gatedService {
	g := &gatedService{
		inner:   synth.NewLocal(0),
		hold:    map[string]bool{},
		reject:  map[string]bool{},
		entered: make(chan struct{}, len(hold)),
		calls:   map[string]int{},
	}
	for _, h := range hold {
		g.hold[h] = true
	}
	for _, r := range reject {
		g.reject[r] = true
	}
	return g
}

func (g *gatedService) StartTask(ctx context.Context, req synth.StartRequest) (synth.Task, error) {
	g.mu.Lock()
	g.calls[req.Text]++
	first := g.calls[req.Text] == 1
	g.mu.Unlock()

	switch {
	case g.hold[req.Text] && first:
		g.entered <- struct{}{}
		<-ctx.Done()
		if !g.acceptLate {
			return synth.Task{}, ctx.Err()
		}
	case g.reject[req.Text]:
		for range len(g.hold) {
			<-g.entered
		}
		return synth.Task{}, errors.New("remote rejected")
	}
	return g.inner.StartTask(context.Background(), req)
}

func (g *gatedService) GetTask(ctx context.Context, id string) (synth.Task, error) {
	return g.inner.GetTask(ctx, id)
}

func (g *gatedService) submissions(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[text]
}

func TestApply_AcceptedSubmissionKeepsBreadcrumbWhenSiblingFails(t *testing.T) {
	svc := newGatedService([]string{"slow"}, []string{"boom"})
	svc.acceptLate = true
	s := store.NewMemoryStore()
	v := New(Deps{Store: s, Service: svc, Config: baseConfig()})
	params := enhance.Params{"concurrency": 2}

	_, err := v.Apply(params)(context.Background(), newFeed("slow", "boom"))
	require.ErrorContains(t, err, "remote rejected")
	assert.Equal(t, 1, svc.submissions("slow"))
	assert.Equal(t, 1, s.Len())

	_, err = v.Apply(params)(context.Background(), newFeed("slow"))
	require.NoError(t, err)
	assert.Equal(t, 1, svc.submissions("slow"))
	assert.Equal(t, 1, s.Len())
}

func TestApply_CancelledSubmissionIsNotShared(t *testing.T) {
	svc := newGatedService([]string{"hello"}, nil)
	s := store.NewMemoryStore()
	v := New(Deps{Store: s, Service: svc, Config: baseConfig()})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := v.Apply(nil)(leaderCtx, newFeed("hello"))
		leaderErr <- err
	}()
	<-svc.entered

	followerErr := make(chan error, 1)
	go func() {
		_, err := v.Apply(nil)(context.Background(), newFeed("hello"))
		followerErr <- err
	}()
	// Give the follower time to join the leader's flight.
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-followerErr)
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	assert.Equal(t, 2, svc.submissions("hello"))
	assert.Equal(t, 1, s.Len())
}
