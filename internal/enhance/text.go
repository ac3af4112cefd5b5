package enhance

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/citytrain/internal/ast"
)

// HTMLText extracts readable text from an HTML fragment. Script and style
// bodies are dropped and runs of whitespace collapse to a single space.
func HTMLText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	// Block elements would otherwise glue adjacent words together.
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// ItemText returns the item's narratable text: the plain text when present,
// otherwise the text extracted from its HTML.
func ItemText(ctx context.Context, it *ast.Item) (string, error) {
	c, err := it.ResolveContent(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(c.Text) != "" {
		return c.Text, nil
	}
	return HTMLText(c.HTML)
}
