package mastodon

import "time"

// Visibility levels as reported by the Mastodon API.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// StatusAccount is the author subset of a status payload.
type StatusAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

// Mention is an @-mention inside a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

// AttachmentDims holds pixel dimensions for one media rendition.
type AttachmentDims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AttachmentMeta holds media dimension metadata.
type AttachmentMeta struct {
	Original *AttachmentDims `json:"original"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
}

// Attachment is one media attachment of a status.
type Attachment struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"` // image, video, gifv, audio, unknown
	URL         string          `json:"url"`
	Description string          `json:"description"`
	Meta        *AttachmentMeta `json:"meta"`
}

// Poll marks a status as carrying a poll; polls cannot be relayed.
type Poll struct {
	ID string `json:"id"`
}

// Status is a Mastodon status as fetched from the account timeline.
// Content is HTML; the segmenter normalizes it to plain text.
type Status struct {
	ID                 string        `json:"id"`
	CreatedAt          time.Time     `json:"created_at"`
	URL                string        `json:"url"`
	Visibility         string        `json:"visibility"`
	Sensitive          bool          `json:"sensitive"`
	SpoilerText        string        `json:"spoiler_text"`
	Content            string        `json:"content"`
	Language           string        `json:"language"`
	InReplyToID        *string       `json:"in_reply_to_id"`
	InReplyToAccountID *string       `json:"in_reply_to_account_id"`
	Account            StatusAccount `json:"account"`
	Mentions           []Mention     `json:"mentions"`
	MediaAttachments   []Attachment  `json:"media_attachments"`
	Favourited         bool          `json:"favourited"`
	Poll               *Poll         `json:"poll"`
}

// IsReply reports whether the status replies to another status.
func (s *Status) IsReply() bool {
	return s.InReplyToID != nil && *s.InReplyToID != ""
}

// RepliesToOther reports whether the status replies to an account other
// than the given one.
func (s *Status) RepliesToOther(accountID string) bool {
	return s.InReplyToAccountID != nil && *s.InReplyToAccountID != "" &&
		*s.InReplyToAccountID != accountID
}

// Dimensions returns the best-known width and height of an attachment,
// falling back to a square default when the instance reports none.
func (a *Attachment) Dimensions() (int, int) {
	width, height := 1200, 1200
	if a.Meta != nil {
		if a.Meta.Original != nil {
			if a.Meta.Original.Width > 0 {
				width = a.Meta.Original.Width
			}
			if a.Meta.Original.Height > 0 {
				height = a.Meta.Original.Height
			}
		} else {
			if a.Meta.Width > 0 {
				width = a.Meta.Width
			}
			if a.Meta.Height > 0 {
				height = a.Meta.Height
			}
		}
	}
	return width, height
}
