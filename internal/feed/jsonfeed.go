// Package feed converts between JSON Feed documents and the AST, and
// fetches feeds from the network or the local filesystem.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/citytrain/internal/ast"
)

// Version11 is the JSON Feed version emitted by Encode.
const Version11 = "https://jsonfeed.org/version/1.1"

const versionPrefix = "https://jsonfeed.org/version/"

type wireFeed struct {
	Version     string       `json:"version"`
	Title       string       `json:"title"`
	HomePageURL string       `json:"home_page_url,omitempty"`
	FeedURL     string       `json:"feed_url,omitempty"`
	Description string       `json:"description,omitempty"`
	Language    string       `json:"language,omitempty"`
	Authors     []wireAuthor `json:"authors,omitempty"`
	// Author is the JSON Feed 1.0 single-author field; read only.
	Author *wireAuthor `json:"author,omitempty"`
	Items  []wireItem  `json:"items"`
}

type wireAuthor struct {
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type wireItem struct {
	ID            string           `json:"id"`
	URL           string           `json:"url,omitempty"`
	ExternalURL   string           `json:"external_url,omitempty"`
	Title         string           `json:"title,omitempty"`
	ContentHTML   string           `json:"content_html,omitempty"`
	ContentText   string           `json:"content_text,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	Image         string           `json:"image,omitempty"`
	BannerImage   string           `json:"banner_image,omitempty"`
	DatePublished time.Time        `json:"date_published,omitzero"`
	DateModified  time.Time        `json:"date_modified,omitzero"`
	Authors       []wireAuthor     `json:"authors,omitempty"`
	Author        *wireAuthor      `json:"author,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Attachments   []wireAttachment `json:"attachments,omitempty"`
}

type wireAttachment struct {
	URL               string `json:"url"`
	MimeType          string `json:"mime_type"`
	Title             string `json:"title,omitempty"`
	SizeInBytes       int64  `json:"size_in_bytes,omitempty"`
	DurationInSeconds int64  `json:"duration_in_seconds,omitempty"`
}

// Decode parses a JSON Feed (1.0 or 1.1) into an AST. Item content is
// resolved immediately.
func Decode(r io.Reader) (*ast.Feed, error) {
	var w wireFeed
	dec := json.NewDecoder(r)
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode json feed: %w", err)
	}
	if !strings.HasPrefix(w.Version, versionPrefix) {
		return nil, fmt.Errorf("decode json feed: unsupported version %q", w.Version)
	}

	f := &ast.Feed{
		Version:     w.Version,
		Title:       w.Title,
		HomePageURL: w.HomePageURL,
		FeedURL:     w.FeedURL,
		Description: w.Description,
		Language:    w.Language,
		Authors:     authorsFromWire(w.Authors, w.Author),
		Items:       make([]*ast.Item, 0, len(w.Items)),
	}
	for _, wi := range w.Items {
		f.Items = append(f.Items, itemFromWire(wi))
	}
	return f, nil
}

func itemFromWire(wi wireItem) *ast.Item {
	it := &ast.Item{
		ID:      wi.ID,
		URL:     wi.URL,
		Title:   wi.Title,
		Summary: wi.Summary,
		Authors: authorsFromWire(wi.Authors, wi.Author),
		Content: ast.Resolved(ast.Content{Text: wi.ContentText, HTML: wi.ContentHTML}),
		Images:  ast.Images{Banner: wi.BannerImage, Index: wi.Image},
		Dates:   ast.Dates{Published: wi.DatePublished, Modified: wi.DateModified},
	}
	if wi.ExternalURL != "" {
		it.Links.ExternalURLs = []string{wi.ExternalURL}
	}
	if len(wi.Tags) > 0 {
		it.Links.Tags = append([]string(nil), wi.Tags...)
	}
	for _, a := range wi.Attachments {
		it.Attachments = append(it.Attachments, ast.Attachment{
			URL:               a.URL,
			Title:             a.Title,
			MimeType:          a.MimeType,
			SizeInBytes:       a.SizeInBytes,
			DurationInSeconds: a.DurationInSeconds,
		})
	}
	return it
}

func authorsFromWire(list []wireAuthor, single *wireAuthor) []ast.Author {
	if len(list) == 0 && single != nil {
		list = []wireAuthor{*single}
	}
	if len(list) == 0 {
		return nil
	}
	out := make([]ast.Author, len(list))
	for i, a := range list {
		out[i] = ast.Author{Name: a.Name, URL: a.URL, ImageURI: a.Avatar}
	}
	return out
}

func authorsToWire(list []ast.Author) []wireAuthor {
	if len(list) == 0 {
		return nil
	}
	out := make([]wireAuthor, len(list))
	for i, a := range list {
		out[i] = wireAuthor{Name: a.Name, URL: a.URL, Avatar: a.ImageURI}
	}
	return out
}

// toWire converts an AST to its JSON Feed 1.1 form. Content slots must
// already be resolved or resolvable without a context.
func toWire(f *ast.Feed) (wireFeed, error) {
	w := wireFeed{
		Version:     Version11,
		Title:       f.Title,
		HomePageURL: f.HomePageURL,
		FeedURL:     f.FeedURL,
		Description: f.Description,
		Language:    f.Language,
		Authors:     authorsToWire(f.Authors),
		Items:       make([]wireItem, 0, len(f.Items)),
	}
	for i, it := range f.Items {
		if it == nil {
			continue
		}
		c, err := it.Content.Resolve(context.Background())
		if err != nil {
			return wireFeed{}, fmt.Errorf("items[%d].content: %w", i, err)
		}

		wi := wireItem{
			ID:            it.ID,
			URL:           it.URL,
			Title:         it.Title,
			ContentHTML:   c.HTML,
			ContentText:   c.Text,
			Summary:       it.Summary,
			Image:         it.Images.Index,
			BannerImage:   it.Images.Banner,
			DatePublished: it.Dates.Published,
			DateModified:  it.Dates.Modified,
			Authors:       authorsToWire(it.Authors),
			Tags:          it.Links.Tags,
		}
		if wi.ID == "" {
			wi.ID = it.URL
		}
		if len(it.Links.ExternalURLs) > 0 {
			wi.ExternalURL = it.Links.ExternalURLs[0]
		}
		for _, a := range it.Attachments {
			wi.Attachments = append(wi.Attachments, wireAttachment{
				URL:               a.URL,
				MimeType:          a.MimeType,
				Title:             a.Title,
				SizeInBytes:       a.SizeInBytes,
				DurationInSeconds: a.DurationInSeconds,
			})
		}
		w.Items = append(w.Items, wi)
	}
	return w, nil
}

// Encode writes f as indented JSON Feed 1.1. A non-nil reflect is emitted
// alongside the feed fields under "_reflect".
func Encode(w io.Writer, f *ast.Feed, reflect any) error {
	if f == nil {
		return fmt.Errorf("encode json feed: nil feed")
	}
	wf, err := toWire(f)
	if err != nil {
		return fmt.Errorf("encode json feed: %w", err)
	}

	var doc any = wf
	if reflect != nil {
		// Splice _reflect in beside the feed fields.
		raw, err := marshalNoEscape(wf)
		if err != nil {
			return fmt.Errorf("encode json feed: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("encode json feed: %w", err)
		}
		rawReflect, err := marshalNoEscape(reflect)
		if err != nil {
			return fmt.Errorf("encode json feed: _reflect: %w", err)
		}
		fields["_reflect"] = rawReflect
		doc = fields
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json feed: %w", err)
	}
	return nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
