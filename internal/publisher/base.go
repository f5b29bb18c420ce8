package publisher

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

var (
	hashtagPattern   = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	blankLinePattern = regexp.MustCompile(`\n{3,}`)
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	invisibles       = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\r\n", "\n", "\r", "\n")
)

type constraints struct {
	maxTextLength int
	maxMediaItems int
	maxHashtags   int
	allowedMedia  []models.MediaType
	requiresMedia bool
}

type base struct {
	platform    string
	displayName string
	limits      constraints
	client      *client.Client
}

func (b *base) Platform() string { return b.platform }

// preview runs the checks every platform shares. Variants append their own
// heuristics and then call finish.
func (b *base) preview(content string, media []models.MediaItem) *models.PreviewResult {
	sanitized := sanitize(content)
	count := utf8.RuneCountInString(sanitized)

	result := &models.PreviewResult{
		SanitizedContent: sanitized,
		CharacterCount:   count,
		Warnings:         []string{},
		Errors:           []string{},
		ConstraintsApplied: map[string]int{
			"max_text_length": b.limits.maxTextLength,
			"max_media_items": b.limits.maxMediaItems,
			"max_hashtags":    b.limits.maxHashtags,
		},
	}

	if sanitized == "" && len(media) == 0 {
		result.Errors = append(result.Errors, "content cannot be empty")
	}
	// The hard limit applies to the text as submitted, not the sanitized copy.
	if raw := utf8.RuneCountInString(content); raw > b.limits.maxTextLength {
		result.Errors = append(result.Errors,
			fmt.Sprintf("content exceeds %s's %d character limit (%d characters)", b.displayName, b.limits.maxTextLength, raw))
	}

	if len(media) > b.limits.maxMediaItems {
		result.Errors = append(result.Errors,
			fmt.Sprintf("too many media items for %s: %d (maximum %d)", b.displayName, len(media), b.limits.maxMediaItems))
	}
	if b.limits.requiresMedia && len(media) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s requires at least one media item", b.displayName))
	}
	for i, m := range media {
		if msg := b.checkMedia(m); msg != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("media item %d: %s", i+1, msg))
		}
	}

	if b.limits.maxHashtags > 0 {
		if n := countHashtags(sanitized); n > b.limits.maxHashtags {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d hashtags used; %s recommends at most %d", n, b.displayName, b.limits.maxHashtags))
		}
	}
	return result
}

func (b *base) checkMedia(m models.MediaItem) string {
	u, err := url.Parse(m.URL)
	if m.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "a public http(s) URL is required"
	}
	if !m.Type.Valid() {
		return fmt.Sprintf("unknown media type %q", m.Type)
	}
	for _, allowed := range b.limits.allowedMedia {
		if allowed == m.Type {
			return ""
		}
	}
	return fmt.Sprintf("%s media is not supported on %s", m.Type, b.displayName)
}

func finish(result *models.PreviewResult) *models.PreviewResult {
	result.IsValid = len(result.Errors) == 0
	return result
}

// prepare is the gate in front of every publish: the preview must be valid,
// the required settings present and a token supplied.
func (b *base) prepare(result *models.PreviewResult, opts models.PlatformOptions, required ...string) error {
	if !result.IsValid {
		return &ValidationError{Platform: b.platform, Errors: result.Errors}
	}
	if err := b.requireSettings(opts, required...); err != nil {
		return err
	}
	return b.requireToken(opts)
}

func (b *base) requireSettings(opts models.PlatformOptions, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(opts.Setting(k)) == "" {
			missing = append(missing, fmt.Sprintf("missing required setting %q", k))
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Platform: b.platform, Errors: missing}
	}
	return nil
}

func (b *base) requireToken(opts models.PlatformOptions) error {
	if opts.AccessToken == "" {
		return &AuthenticationError{Platform: b.platform, Message: "no access token for account"}
	}
	return nil
}

// ignoreSchedule logs that the platform cannot schedule natively and the
// content goes out now.
func (b *base) ignoreSchedule(scheduleAt *time.Time) bool {
	if scheduleAt == nil {
		return false
	}
	slog.Info("scheduling not supported, publishing immediately",
		"platform", b.platform, "requested_schedule_at", scheduleAt.UTC().Format(time.RFC3339))
	return true
}

func (b *base) published(externalID, link string, data models.PlatformData) *models.ExternalReference {
	now := time.Now().UTC()
	return &models.ExternalReference{
		Platform:     b.platform,
		ExternalID:   externalID,
		URL:          link,
		Status:       models.ReferenceStatusPublished,
		PlatformData: data,
		PublishedAt:  &now,
	}
}

func (b *base) removed(externalID string) *models.ExternalReference {
	return &models.ExternalReference{
		Platform:     b.platform,
		ExternalID:   externalID,
		Status:       models.ReferenceStatusFailed,
		ErrorMessage: fmt.Sprintf("content no longer exists on %s", b.displayName),
		PlatformData: models.PlatformData{"removed": true},
	}
}

func (b *base) publishingError(op string, err error) error {
	return &PublishingError{Platform: b.platform, Op: op, Err: err}
}

// contentCounts seeds the platform data every successful publish carries.
func contentCounts(text string, media []models.MediaItem) models.PlatformData {
	return models.PlatformData{
		"media_count":   len(media),
		"hashtag_count": countHashtags(text),
	}
}

func sanitize(content string) string {
	s := invisibles.Replace(content)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankLinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func countHashtags(s string) int {
	return len(hashtagPattern.FindAllString(s, -1))
}

func countEmoji(s string) int {
	n := 0
	for _, r := range s {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	}
	return false
}

func mediaCount(media []models.MediaItem, t models.MediaType) int {
	n := 0
	for _, m := range media {
		if m.Type == t {
			n++
		}
	}
	return n
}
