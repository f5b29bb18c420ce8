package models

type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeGIF      MediaType = "gif"
	MediaTypeDocument MediaType = "document"
)

func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeImage, MediaTypeVideo, MediaTypeGIF, MediaTypeDocument:
		return true
	}
	return false
}

type MediaItem struct {
	URL     string    `json:"url"`
	Type    MediaType `json:"type"`
	AltText string    `json:"alt_text,omitempty"`
}

// PlatformOptions carries the per-call platform identifiers and the access
// token. It is never persisted as-is; tokens live encrypted in social_accounts.
type PlatformOptions struct {
	Platform    string            `json:"platform"`
	AccountID   string            `json:"account_id,omitempty"`
	AccessToken string            `json:"-"`
	Settings    map[string]string `json:"settings"`
}

func (o PlatformOptions) Setting(key string) string {
	if o.Settings == nil {
		return ""
	}
	return o.Settings[key]
}

type PreviewResult struct {
	IsValid            bool           `json:"is_valid"`
	SanitizedContent   string         `json:"sanitized_content"`
	Warnings           []string       `json:"warnings"`
	Errors             []string       `json:"errors"`
	CharacterCount     int            `json:"character_count"`
	ConstraintsApplied map[string]int `json:"constraints_applied"`
}
