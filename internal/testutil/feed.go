package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/citytrain/internal/ast"
)

// TextItem builds an item with resolved plain-text content.
func TextItem(id, text string) *ast.Item {
	return &ast.Item{
		ID:      id,
		URL:     "https://example.com/posts/" + id,
		Title:   "Post " + id,
		Content: ast.Resolved(ast.Content{Text: text}),
	}
}

// HTMLItem builds an item whose only content is HTML.
func HTMLItem(id, html string) *ast.Item {
	return &ast.Item{
		ID:      id,
		URL:     "https://example.com/posts/" + id,
		Title:   "Post " + id,
		Content: ast.Resolved(ast.Content{HTML: html}),
	}
}

// NewFeed builds a feed with one text item per entry, ids "1", "2", ...
func NewFeed(texts ...string) *ast.Feed {
	f := &ast.Feed{
		Version:     "https://jsonfeed.org/version/1.1",
		Title:       "Fixture",
		HomePageURL: "https://example.com/",
		Items:       make([]*ast.Item, 0, len(texts)),
	}
	for i, text := range texts {
		f.Items = append(f.Items, TextItem(fmt.Sprint(i+1), text))
	}
	return f
}

// FeedJSON renders a minimal JSON Feed 1.1 document with one text item per
// entry, for fetch and server tests.
func FeedJSON(texts ...string) string {
	doc := `{"version":"https://jsonfeed.org/version/1.1","title":"Fixture","items":[`
	for i, text := range texts {
		if i > 0 {
			doc += ","
		}
		quoted, _ := json.Marshal(text)
		doc += fmt.Sprintf(`{"id":"%d","url":"https://example.com/posts/%d","title":"Post %d","content_text":%s}`, i+1, i+1, i+1, quoted)
	}
	return doc + "]}"
}
