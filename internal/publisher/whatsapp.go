package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

var whatsAppConstraints = constraints{
	maxTextLength: 4096,
	maxMediaItems: 1,
	maxHashtags:   0,
	allowedMedia:  []models.MediaType{models.MediaTypeImage, models.MediaTypeVideo, models.MediaTypeDocument},
}

const whatsAppMaxEmoji = 10

// WhatsAppPublisher sends a message to a single recipient through the
// WhatsApp Cloud API. Delivery state arrives by webhook, so GetStatus does
// not call out and sent messages cannot be deleted.
//
// Settings read: phone_number, phone_number_id.
// Platform data written: recipient, message_type, phone_number_id,
// media_count, hashtag_count, emoji_count, schedule_ignored, status_source.
type WhatsAppPublisher struct {
	base
}

func NewWhatsAppPublisher(f *client.Factory) Publisher {
	return &WhatsAppPublisher{base: base{
		platform:    PlatformWhatsApp,
		displayName: "WhatsApp",
		limits:      whatsAppConstraints,
		client:      f.Client(client.GroupWhatsApp, graphAPIBaseURL),
	}}
}

func (p *WhatsAppPublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)
	text := result.SanitizedContent
	if countHashtags(text) > 0 {
		result.Warnings = append(result.Warnings, "hashtags are not clickable in WhatsApp messages")
	}
	if n := countEmoji(text); n > whatsAppMaxEmoji {
		result.Warnings = append(result.Warnings, fmt.Sprintf("message contains %d emoji; consider using fewer", n))
	}
	return finish(result)
}

func (p *WhatsAppPublisher) phoneNumberID(opts models.PlatformOptions) string {
	if id := opts.Setting("phone_number_id"); id != "" {
		return id
	}
	return opts.AccountID
}

func (p *WhatsAppPublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	required := []string{"phone_number"}
	if p.phoneNumberID(opts) == "" {
		required = append(required, "phone_number_id")
	}
	if err := p.prepare(preview, opts, required...); err != nil {
		return nil, err
	}
	pnid := p.phoneNumberID(opts)

	recipient := strings.TrimPrefix(opts.Setting("phone_number"), "+")
	data := contentCounts(preview.SanitizedContent, media)
	data["recipient"] = recipient
	data["phone_number_id"] = pnid
	data["emoji_count"] = countEmoji(preview.SanitizedContent)
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                recipient,
	}
	if len(media) == 0 {
		body["type"] = "text"
		body["text"] = map[string]any{"body": preview.SanitizedContent, "preview_url": urlPattern.MatchString(preview.SanitizedContent)}
	} else {
		m := media[0]
		kind := string(m.Type)
		payload := map[string]string{"link": m.URL}
		if preview.SanitizedContent != "" {
			payload["caption"] = preview.SanitizedContent
		}
		body["type"] = kind
		body[kind] = payload
	}
	data["message_type"] = body["type"]

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := p.client.Post(ctx, "/"+pnid+"/messages", body, opts.AccessToken, &out); err != nil {
		return nil, classify(p.platform, err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return nil, p.publishingError("send message", errors.New("WhatsApp returned no message id"))
	}
	return p.published(out.Messages[0].ID, "", data), nil
}

func (p *WhatsAppPublisher) GetStatus(_ context.Context, externalID string, _ models.PlatformOptions) (*models.ExternalReference, error) {
	ref := p.published(externalID, "", models.PlatformData{"status_source": "webhook"})
	ref.PublishedAt = nil
	return ref, nil
}

// Delete always reports false: sent messages cannot be recalled.
func (p *WhatsAppPublisher) Delete(_ context.Context, _ string, _ models.PlatformOptions) (bool, error) {
	return false, nil
}
