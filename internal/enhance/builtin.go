package enhance

import (
	"context"
	"fmt"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/canon"
)

// Built-in enhancement names.
const (
	NameHash      = "hash"
	NameStripHTML = "stripHTML"
	NameLimit     = "limit"
)

// itemIdentity is the config half of the key the hash step assigns.
type itemIdentity struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Hash fills every empty item ID with the item's content key.
// It is the default composition, so it must be safe on any feed.
func Hash() Enhancement {
	return FuncOf{FName: NameHash, Fn: func(Params) Func {
		return func(ctx context.Context, feed *ast.Feed) (*ast.Feed, error) {
			for i, it := range feed.Items {
				if it == nil || it.ID != "" {
					continue
				}
				text, err := ItemText(ctx, it)
				if err != nil {
					return nil, fmt.Errorf("hash items[%d]: %w", i, err)
				}
				key, err := canon.MakeKey(itemIdentity{URL: it.URL, Title: it.Title}, text)
				if err != nil {
					return nil, fmt.Errorf("hash items[%d]: %w", i, err)
				}
				it.ID = key
			}
			return feed, nil
		}
	}}
}

// StripHTML fills an empty content text from the content HTML.
func StripHTML() Enhancement {
	return FuncOf{FName: NameStripHTML, Fn: func(Params) Func {
		return func(ctx context.Context, feed *ast.Feed) (*ast.Feed, error) {
			for i, it := range feed.Items {
				if it == nil {
					continue
				}
				c, err := it.ResolveContent(ctx)
				if err != nil {
					return nil, fmt.Errorf("stripHTML items[%d]: %w", i, err)
				}
				if c.Text != "" || c.HTML == "" {
					continue
				}
				text, err := HTMLText(c.HTML)
				if err != nil {
					return nil, fmt.Errorf("stripHTML items[%d]: %w", i, err)
				}
				c.Text = text
				it.SetContent(c)
			}
			return feed, nil
		}
	}}
}

// Limit keeps the first n items. limit(n=K) with K < 0 is an error.
func Limit() Enhancement {
	return FuncOf{FName: NameLimit, Fn: func(p Params) Func {
		n, err := p.Int("n", 10)
		if err != nil {
			return Fail(fmt.Errorf("limit: %w", err))
		}
		if n < 0 {
			return Fail(fmt.Errorf("limit: n must not be negative, got %d", n))
		}
		return func(_ context.Context, feed *ast.Feed) (*ast.Feed, error) {
			if len(feed.Items) > n {
				feed.Items = feed.Items[:n]
			}
			return feed, nil
		}
	}}
}

// Builtins returns the synchronous built-in enhancements.
func Builtins() []Enhancement {
	return []Enhancement{Hash(), StripHTML(), Limit()}
}
