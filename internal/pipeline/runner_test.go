package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/canon"
	"github.com/roach88/citytrain/internal/enhance"
)

func testFeed() *ast.Feed {
	return &ast.Feed{
		Version: "https://jsonfeed.org/version/1.1",
		Title:   "T",
		Items: []*ast.Item{
			{ID: "a", Title: "first", Content: ast.Resolved(ast.Content{Text: "one"})},
			{ID: "b", Title: "second", Content: ast.Resolved(ast.Content{Text: "two"})},
		},
	}
}

func fn(name string, f func(p enhance.Params) enhance.Func) enhance.Enhancement {
	return enhance.FuncOf{FName: name, Fn: f}
}

// testRegistry holds well-behaved and misbehaving enhancements.
func testRegistry(t *testing.T) *enhance.Registry {
	t.Helper()
	r := enhance.NewRegistry()
	for _, e := range enhance.Builtins() {
		r.Register(e)
	}

	r.Register(fn("appendTitle", func(p enhance.Params) enhance.Func {
		suffix, err := p.String("suffix", "!")
		if err != nil {
			return enhance.Fail(err)
		}
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			feed.Title += suffix
			return feed, nil
		}
	}))
	r.Register(fn("boom", func(enhance.Params) enhance.Func {
		return enhance.Fail(errors.New("boom"))
	}))
	r.Register(fn("mutateThenFail", func(enhance.Params) enhance.Func {
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			feed.Title = "corrupted"
			feed.Items[0].ID = "corrupted"
			feed.Items[0].Attachments = append(feed.Items[0].Attachments, ast.Attachment{URL: "x"})
			feed.Items = feed.Items[:1]
			return nil, errors.New("gave up halfway")
		}
	}))
	r.Register(fn("panics", func(enhance.Params) enhance.Func {
		return func(context.Context, *ast.Feed) (*ast.Feed, error) {
			panic("kaboom")
		}
	}))
	r.Register(fn("panicsInApply", func(enhance.Params) enhance.Func {
		panic("apply kaboom")
	}))
	r.Register(fn("asyncFail", func(enhance.Params) enhance.Func {
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			feed.Title = "async"
			feed.Items[0].Content = ast.Pending(func(context.Context) (ast.Content, error) {
				return ast.Content{}, errors.New("remote fetch failed")
			})
			return feed, nil
		}
	}))
	r.Register(fn("returnsNil", func(enhance.Params) enhance.Func {
		return func(context.Context, *ast.Feed) (*ast.Feed, error) { return nil, nil }
	}))
	r.Register(fn("breaksItems", func(enhance.Params) enhance.Func {
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			feed.Items[1].ID = ""
			feed.Items[1].URL = ""
			return feed, nil
		}
	}))
	return r
}

func run(t *testing.T, composition string) (*ast.Feed, []FuncInterface) {
	t.Helper()
	funcs, err := ParseComposition(composition)
	require.NoError(t, err)
	out, err := NewRunner(testRegistry(t), nil).SetupASTPipeline(context.Background(), testFeed(), funcs)
	require.NoError(t, err)
	return out, funcs
}

func itemIDs(feed *ast.Feed) []string {
	ids := make([]string, len(feed.Items))
	for i, it := range feed.Items {
		ids[i] = it.ID
	}
	return ids
}

func TestSetupASTPipeline_FoldsInOrder(t *testing.T) {
	out, funcs := run(t, `appendTitle(suffix="-1")|appendTitle(suffix="-2")|limit(n=1)`)
	assert.Equal(t, "T-1-2", out.Title)
	assert.Equal(t, []string{"a"}, itemIDs(out))
	for _, fi := range funcs {
		assert.Empty(t, fi.Errors)
	}
}

func TestSetupASTPipeline_FaultIsolation(t *testing.T) {
	// [f1 failing, f2] produces f2(original).
	got, funcs := run(t, `boom|appendTitle(suffix="-x")`)
	want, _ := run(t, `appendTitle(suffix="-x")`)

	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, itemIDs(want), itemIDs(got))
	require.Len(t, funcs[0].Errors, 1)
	assert.Equal(t, "step 0 failed: boom: boom", funcs[0].Errors[0])
	assert.Empty(t, funcs[1].Errors)
}

func TestSetupASTPipeline_UnknownFunctionOmitted(t *testing.T) {
	got, funcs := run(t, `appendTitle|doesNotExist|limit(n=1)`)
	want, _ := run(t, `appendTitle|limit(n=1)`)

	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, itemIDs(want), itemIDs(got))
	assert.Equal(t, []string{MissingFunctionError}, funcs[1].Errors)
}

func TestSetupASTPipeline_MutationThenErrorIsRolledBack(t *testing.T) {
	in := testFeed()
	funcs, err := ParseComposition("mutateThenFail")
	require.NoError(t, err)

	out, err := NewRunner(testRegistry(t), nil).SetupASTPipeline(context.Background(), in, funcs)
	require.NoError(t, err)

	assert.Equal(t, "T", out.Title)
	assert.Equal(t, []string{"a", "b"}, itemIDs(out))
	assert.Empty(t, out.Items[0].Attachments)
	// The caller's feed is untouched too.
	assert.Equal(t, "T", in.Title)
	assert.Equal(t, "a", in.Items[0].ID)
	assert.Len(t, funcs[0].Errors, 1)
}

func TestSetupASTPipeline_PanicIsolation(t *testing.T) {
	out, funcs := run(t, `panics|panicsInApply|appendTitle(suffix="-ok")`)
	assert.Equal(t, "T-ok", out.Title)
	require.Len(t, funcs[0].Errors, 1)
	assert.Contains(t, funcs[0].Errors[0], "panic: kaboom")
	require.Len(t, funcs[1].Errors, 1)
	assert.Contains(t, funcs[1].Errors[0], "panic: apply kaboom")
}

func TestSetupASTPipeline_AsyncFailureRollsBack(t *testing.T) {
	out, funcs := run(t, "asyncFail")
	assert.Equal(t, "T", out.Title)

	c, err := out.Items[0].ResolveContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", c.Text)
	require.Len(t, funcs[0].Errors, 1)
	assert.Contains(t, funcs[0].Errors[0], "remote fetch failed")
	assert.Contains(t, funcs[0].Errors[0], "items[0].content")
}

func TestSetupASTPipeline_NilAndInvalidResults(t *testing.T) {
	out, funcs := run(t, "returnsNil|breaksItems")
	assert.Equal(t, []string{"a", "b"}, itemIDs(out))
	assert.Contains(t, funcs[0].Errors[0], "nil feed")
	assert.Contains(t, funcs[1].Errors[0], "invalid feed")
	assert.Contains(t, funcs[1].Errors[0], "items[1]")
}

func TestSetupASTPipeline_ImperfectInputStillProgresses(t *testing.T) {
	in := testFeed()
	in.Items = append(in.Items, &ast.Item{Title: "no identity"})
	funcs, err := ParseComposition(`appendTitle(suffix="+")`)
	require.NoError(t, err)

	out, err := NewRunner(testRegistry(t), nil).SetupASTPipeline(context.Background(), in, funcs)
	require.NoError(t, err)
	assert.Equal(t, "T+", out.Title)
	assert.Empty(t, funcs[0].Errors)
}

func TestSetupASTPipeline_BadParamsIsNoOp(t *testing.T) {
	out, funcs := run(t, `limit(n="lots")`)
	assert.Len(t, out.Items, 2)
	assert.Contains(t, funcs[0].Errors[0], "want integer")
}

func TestSetupASTPipeline_LogsFailedSteps(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	funcs, err := ParseComposition("appendTitle|boom")
	require.NoError(t, err)

	_, err = NewRunner(testRegistry(t), logger).SetupASTPipeline(context.Background(), testFeed(), funcs)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "pipeline step failed")
	assert.Contains(t, logs.String(), "index=1")
	assert.Contains(t, logs.String(), "fname=boom")
}

func TestSetupASTPipeline_NilFeedIsCatastrophic(t *testing.T) {
	_, err := NewRunner(testRegistry(t), nil).SetupASTPipeline(context.Background(), nil, nil)
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeNilFeed, pe.Code)
	assert.NotEmpty(t, pe.Stack)
}

func TestSetupASTPipeline_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := testRegistry(t)
	r.Register(fn("cancel", func(enhance.Params) enhance.Func {
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			cancel()
			return feed, nil
		}
	}))

	funcs, err := ParseComposition("cancel|appendTitle")
	require.NoError(t, err)
	_, err = NewRunner(r, nil).SetupASTPipeline(ctx, testFeed(), funcs)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetupASTPipeline_FoldPanicIsCatastrophic(t *testing.T) {
	runner := NewRunner(testRegistry(t), nil)
	runner.clone = func(*ast.Feed) *ast.Feed { panic("clone broke") }

	funcs, err := ParseComposition("appendTitle")
	require.NoError(t, err)
	out, err := runner.SetupASTPipeline(context.Background(), testFeed(), funcs)
	assert.Nil(t, out)
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeFoldPanic, pe.Code)
	assert.Contains(t, pe.Error(), "clone broke")
	assert.Contains(t, pe.Stack, "runtime/debug")
	assert.True(t, IsPipelineError(err))
}

func TestSetupASTPipeline_EmptyComposition(t *testing.T) {
	in := &ast.Feed{Items: []*ast.Item{{URL: "https://example.com/1", Content: ast.Resolved(ast.Content{Text: "x"})}}}
	funcs, err := ParseComposition("")
	require.NoError(t, err)

	out, err := NewRunner(testRegistry(t), nil).SetupASTPipeline(context.Background(), in, funcs)
	require.NoError(t, err)
	assert.Len(t, out.Items[0].ID, 64)
}

func TestStepError(t *testing.T) {
	err := error(&StepError{Index: 2, FName: "x", Cause: errors.New("bad")})
	assert.True(t, IsStepError(err))
	assert.False(t, IsPipelineError(err))
	assert.Equal(t, "step 2 failed: x: bad", err.Error())
}

func TestSetupASTPipeline_Golden(t *testing.T) {
	out, funcs := run(t, `appendTitle(suffix="-1")|boom|missing|limit(n=1)`)

	trace, err := canon.Marshal(map[string]any{
		"funcs": funcs,
		"items": itemIDs(out),
		"title": out.Title,
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "composition_trace", trace)
}
