package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/citytrain/internal/app"
	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/config"
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/testutil"
	"github.com/roach88/citytrain/internal/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockBackend implements Backend for handler tests.
type mockBackend struct {
	EnhanceFunc    func(ctx context.Context, src string, funcs []pipeline.FuncInterface) (*ast.Feed, error)
	BreadcrumbFunc func(ctx context.Context, key string) (tracker.Breadcrumb, error)
}

func (m *mockBackend) Enhance(ctx context.Context, src string, funcs []pipeline.FuncInterface) (*ast.Feed, error) {
	if m.EnhanceFunc != nil {
		return m.EnhanceFunc(ctx, src, funcs)
	}
	return testutil.NewFeed("body"), nil
}

func (m *mockBackend) Breadcrumb(ctx context.Context, key string) (tracker.Breadcrumb, error) {
	if m.BreadcrumbFunc != nil {
		return m.BreadcrumbFunc(ctx, key)
	}
	return tracker.Breadcrumb{}, store.ErrNotFound
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, New(&mockBackend{}, nil), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestProxy_ReflectsParamsAndFuncs(t *testing.T) {
	var gotSrc string
	backend := &mockBackend{
		EnhanceFunc: func(_ context.Context, src string, funcs []pipeline.FuncInterface) (*ast.Feed, error) {
			gotSrc = src
			funcs[1].Errors = append(funcs[1].Errors, pipeline.MissingFunctionError)
			return testutil.NewFeed("body"), nil
		},
	}

	w := get(t, New(backend, nil), "/proxy?url="+url.QueryEscape("https://a/feed.json")+"&composition="+url.QueryEscape("limit(n=1)|nope"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, feedContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "https://a/feed.json", gotSrc)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc, "items")
	assert.JSONEq(t, `{
		"params": {"composition": "limit(n=1)|nope", "url": "https://a/feed.json", "outputFmt": "json"},
		"funcs": [
			{"fname": "limit", "params": {"n": 1}},
			{"fname": "nope", "params": {}, "errors": ["`+pipeline.MissingFunctionError+`"]}
		]
	}`, string(doc["_reflect"]))
}

func TestProxy_DefaultComposition(t *testing.T) {
	var got []pipeline.FuncInterface
	backend := &mockBackend{
		EnhanceFunc: func(_ context.Context, _ string, funcs []pipeline.FuncInterface) (*ast.Feed, error) {
			got = funcs
			return testutil.NewFeed(), nil
		},
	}
	w := get(t, New(backend, nil), "/proxy?url=https://example.com/feed.json")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got, 1)
	assert.Equal(t, pipeline.DefaultComposition, got[0].FName)
}

func TestProxy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		err     error
		status  int
		message string
	}{
		{name: "unsupported format", target: "/proxy?url=https://example.com/feed.json&outputFmt=rss", status: http.StatusBadRequest, message: "unsupported outputFmt"},
		{name: "missing url", target: "/proxy", status: http.StatusBadRequest, message: "url parameter required"},
		{name: "bad composition", target: "/proxy?url=https://example.com/feed.json&composition=" + url.QueryEscape("limit(n=1"), status: http.StatusBadRequest, message: "unbalanced parenthesis"},
		{
			name:    "fetch failure",
			target:  "/proxy?url=https://example.com/feed.json",
			err:     &app.FetchError{Source: "x", Err: errors.New("connection refused")},
			status:  http.StatusBadGateway,
			message: "connection refused",
		},
		{
			name:    "pipeline failure",
			target:  "/proxy?url=https://example.com/feed.json",
			err:     &pipeline.PipelineError{Code: pipeline.ErrCodeFoldPanic, Message: "fold panicked"},
			status:  http.StatusInternalServerError,
			message: "FOLD_PANIC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{
				EnhanceFunc: func(context.Context, string, []pipeline.FuncInterface) (*ast.Feed, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return testutil.NewFeed(), nil
				},
			}
			w := get(t, New(backend, nil), tt.target)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestProxy_RejectsLocalSources(t *testing.T) {
	dir := t.TempDir()
	private := filepath.Join(dir, "private.json")
	require.NoError(t, os.WriteFile(private, []byte(testutil.FeedJSON("secret")), 0o644))

	called := false
	backend := &mockBackend{
		EnhanceFunc: func(context.Context, string, []pipeline.FuncInterface) (*ast.Feed, error) {
			called = true
			return testutil.NewFeed(), nil
		},
	}
	s := New(backend, nil)

	for _, src := range []string{private, "file://" + private, filepath.Join(dir, "missing.json"), "example.com/feed.json", "https:///feed.json"} {
		t.Run(src, func(t *testing.T) {
			w := get(t, s, "/proxy?url="+url.QueryEscape(src))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "http or https")
			assert.NotContains(t, w.Body.String(), "secret")
		})
	}
	assert.False(t, called)
}

func TestBreadcrumbs(t *testing.T) {
	backend := &mockBackend{
		BreadcrumbFunc: func(_ context.Context, key string) (tracker.Breadcrumb, error) {
			switch key {
			case "k1":
				return tracker.Breadcrumb{PK: "k1", SK: "k1"}, nil
			case "broken":
				return tracker.Breadcrumb{}, errors.New("disk on fire")
			}
			return tracker.Breadcrumb{}, store.ErrNotFound
		},
	}
	s := New(backend, nil)

	w := get(t, s, "/breadcrumbs/k1")
	require.Equal(t, http.StatusOK, w.Code)
	var b tracker.Breadcrumb
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, "k1", b.PK)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/breadcrumbs/absent").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/breadcrumbs/broken").Code)
}

func TestProxy_EndToEnd(t *testing.T) {
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/feed+json")
		_, _ = w.Write([]byte(testutil.FeedJSON("spoken words", "more spoken words")))
	}))
	defer feedSrv.Close()

	cfg := config.Default()
	cfg.Voice.Bucket = "media"
	cfg.Synth.Steps = 0
	a, err := app.New(cfg, slog.New(slog.DiscardHandler), app.WithHTTPClient(feedSrv.Client()))
	require.NoError(t, err)
	defer a.Close()

	s := New(a, nil)
	target := "/proxy?url=" + url.QueryEscape(feedSrv.URL) + "&composition=" + url.QueryEscape("limit(n=1)|addVoice")

	require.Equal(t, http.StatusOK, get(t, s, target).Code)
	w := get(t, s, target)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []struct {
			Attachments []struct {
				URL      string `json:"url"`
				MimeType string `json:"mime_type"`
			} `json:"attachments"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Len(t, body.Items[0].Attachments, 1)
	assert.Equal(t, "audio/mpeg", body.Items[0].Attachments[0].MimeType)

	keys, err := a.BreadcrumbKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, http.StatusOK, get(t, s, "/breadcrumbs/"+keys[0]).Code)
}
