package bluesky

import "encoding/json"

// PostRef points at one record on the destination.
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// IsZero reports whether the ref has been set.
func (r PostRef) IsZero() bool {
	return r.URI == "" && r.CID == ""
}

// ReplyRef keeps a relayed thread linked: Root is the first destination
// post of the thread and never changes, Parent advances with every post.
type ReplyRef struct {
	Root   PostRef `json:"root"`
	Parent PostRef `json:"parent"`
}

// Session is the atproto session state returned by createSession and
// refreshSession. Stored opaquely per account and replayed on resume.
type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
	Active     bool   `json:"active"`
}

// SessionEvent names what happened to a session, mirroring the atproto
// persist-session callback events.
type SessionEvent string

const (
	SessionCreated      SessionEvent = "create"
	SessionCreateFailed SessionEvent = "create-failed"
	SessionUpdated      SessionEvent = "update"
	SessionExpired      SessionEvent = "expired"
)

// PersistSessionFunc receives session rotation events. sess is nil for
// expired and create-failed events.
type PersistSessionFunc func(evt SessionEvent, sess *Session)

// ByteSlice is a byte range into the post text.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is a single rich-text feature (link or hashtag).
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// Facet annotates a byte range of the post text with features.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// EmbedImage is one image of an images embed.
type EmbedImage struct {
	Image       json.RawMessage `json:"image"` // blob ref as returned by uploadBlob
	Alt         string          `json:"alt"`
	AspectRatio *AspectRatio    `json:"aspectRatio,omitempty"`
}

// AspectRatio is the display ratio of an embedded image.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Embed is an app.bsky.embed.images embed. Only images survive the relay;
// video, audio and polls become a link back to the source post.
type Embed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}

// Record is an app.bsky.feed.post record.
type Record struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	Facets    []Facet   `json:"facets,omitempty"`
	Langs     []string  `json:"langs,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
	CreatedAt string    `json:"createdAt"`
}

// NewRecord returns a post record with type and creation time filled in.
func NewRecord(text, createdAt string, langs []string) *Record {
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &Record{
		Type:      "app.bsky.feed.post",
		Text:      text,
		Langs:     langs,
		CreatedAt: createdAt,
	}
}
