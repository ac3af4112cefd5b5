package ast

import "time"

// Feed is the root of the AST.
type Feed struct {
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	HomePageURL string   `json:"homePageUrl,omitempty"`
	FeedURL     string   `json:"feedUrl,omitempty"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Authors     []Author `json:"authors,omitempty"`
	Items       []*Item  `json:"items"`
}

// Item is one feed entry. Enhancements mutate items in place.
type Item struct {
	ID          string               `json:"id"`
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	Summary     string               `json:"summary,omitempty"`
	Authors     []Author             `json:"authors"`
	Content     *Computable[Content] `json:"content"`
	Images      Images               `json:"images"`
	Links       Links                `json:"links"`
	Attachments []Attachment         `json:"attachments"`
	Dates       Dates                `json:"dates"`
}

// Author identifies a person credited on a feed or item.
type Author struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	ImageURI string `json:"imageUri,omitempty"`
}

// Content is the item body. Text is plain text; HTML is the markup, if any.
type Content struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Images holds image references for an item.
type Images struct {
	Banner string `json:"bannerImage,omitempty"`
	Index  string `json:"indexImage,omitempty"`
}

// Links holds link metadata for an item.
type Links struct {
	Category     string            `json:"category,omitempty"`
	NextPost     string            `json:"nextPost,omitempty"`
	PrevPost     string            `json:"prevPost,omitempty"`
	ExternalURLs []string          `json:"externalURLs,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	RelLinks     map[string]string `json:"relLinks,omitempty"`
}

// Dates holds item timestamps. Zero means unknown.
type Dates struct {
	Published time.Time `json:"published"`
	Modified  time.Time `json:"modified"`
}

// Attachment is a related resource, e.g. a generated audio file.
type Attachment struct {
	URL               string `json:"url"`
	Title             string `json:"title"`
	MimeType          string `json:"mimeType"`
	SizeInBytes       int64  `json:"sizeInBytes"`
	DurationInSeconds int64  `json:"durationInSeconds"`
}

// Complete reports whether all five attachment fields are populated.
// Content-generating enhancements must only emit complete attachments.
func (a Attachment) Complete() bool {
	return a.URL != "" &&
		a.Title != "" &&
		a.MimeType != "" &&
		a.SizeInBytes > 0 &&
		a.DurationInSeconds > 0
}

// HasAttachment reports whether the item already carries an attachment
// with the given URL.
func (it *Item) HasAttachment(url string) bool {
	for _, a := range it.Attachments {
		if a.URL == url {
			return true
		}
	}
	return false
}
