package ast

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// ResolveContent resolves the item's content slot. A nil slot is empty content.
func (it *Item) ResolveContent(ctx context.Context) (Content, error) {
	if it.Content == nil {
		return Content{}, nil
	}
	return it.Content.Resolve(ctx)
}

// SetContent replaces the item's content with a resolved value.
func (it *Item) SetContent(c Content) {
	it.Content = Resolved(c)
}

// Resolve forces every computable slot in the feed. The first failure is
// returned with the index of the item it came from; later slots are still
// resolved so repeated calls stay cheap.
func Resolve(ctx context.Context, feed *Feed) error {
	if feed == nil {
		return nil
	}

	var first error
	for i, it := range feed.Items {
		if it == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := it.ResolveContent(ctx); err != nil && first == nil {
			first = fmt.Errorf("items[%d].content: %w", i, err)
		}
	}
	return first
}

// Clone deep-copies the feed structure. Computable slots are shared: they
// are memoized, so sharing one between copies never re-runs a computation.
func Clone(feed *Feed) *Feed {
	if feed == nil {
		return nil
	}

	out := *feed
	out.Authors = slices.Clone(feed.Authors)
	if feed.Items != nil {
		out.Items = make([]*Item, len(feed.Items))
		for i, it := range feed.Items {
			out.Items[i] = CloneItem(it)
		}
	}
	return &out
}

// CloneItem deep-copies one item.
func CloneItem(it *Item) *Item {
	if it == nil {
		return nil
	}

	out := *it
	out.Authors = slices.Clone(it.Authors)
	out.Attachments = slices.Clone(it.Attachments)
	out.Links.ExternalURLs = slices.Clone(it.Links.ExternalURLs)
	out.Links.Tags = slices.Clone(it.Links.Tags)
	out.Links.RelLinks = maps.Clone(it.Links.RelLinks)
	return &out
}
