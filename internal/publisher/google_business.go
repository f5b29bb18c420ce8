package publisher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

const googleBusinessBaseURL = "https://mybusiness.googleapis.com/v4"

var googleBusinessConstraints = constraints{
	maxTextLength: 1500,
	maxMediaItems: 1,
	maxHashtags:   0,
	allowedMedia:  []models.MediaType{models.MediaTypeImage, models.MediaTypeVideo},
}

var (
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)

	googleCallToActions = map[string]bool{
		"BOOK": true, "ORDER": true, "SHOP": true, "LEARN_MORE": true, "SIGN_UP": true, "CALL": true,
	}
)

// GoogleBusinessProfilePublisher creates local posts on a business
// location.
//
// Settings read: account_id, location_id, cta_type, cta_url, language_code.
// Platform data written: state, search_url, media_count, hashtag_count,
// topic_type, schedule_ignored.
type GoogleBusinessProfilePublisher struct {
	base
}

func NewGoogleBusinessProfilePublisher(f *client.Factory) Publisher {
	return &GoogleBusinessProfilePublisher{base: base{
		platform:    PlatformGoogleBusinessProfile,
		displayName: "Google Business Profile",
		limits:      googleBusinessConstraints,
		client:      f.Client(client.GroupGoogleBusinessProfile, googleBusinessBaseURL, client.WithErrorDecoder(client.GoogleErrorMessage)),
	}}
}

func (p *GoogleBusinessProfilePublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)
	text := result.SanitizedContent

	if countHashtags(text) > 0 {
		result.Warnings = append(result.Warnings, "hashtags have no effect on Google Business Profile posts")
	}
	if phonePattern.MatchString(text) {
		result.Warnings = append(result.Warnings, "Google may reject posts that contain phone numbers; use a CALL button instead")
	}
	if cta := opts.Setting("cta_type"); cta != "" {
		if !googleCallToActions[cta] {
			result.Errors = append(result.Errors, fmt.Sprintf("unsupported call to action %q", cta))
		} else if cta != "CALL" && opts.Setting("cta_url") == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("call to action %s requires cta_url", cta))
		}
	}
	return finish(result)
}

type localPost struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	SearchURL  string `json:"searchUrl"`
	TopicType  string `json:"topicType"`
	CreateTime string `json:"createTime"`
}

func (p *GoogleBusinessProfilePublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	if err := p.prepare(preview, opts, "account_id", "location_id"); err != nil {
		return nil, err
	}

	data := contentCounts(preview.SanitizedContent, media)
	data["topic_type"] = "STANDARD"
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	lang := opts.Setting("language_code")
	if lang == "" {
		lang = "en-US"
	}
	body := map[string]any{
		"languageCode": lang,
		"summary":      preview.SanitizedContent,
		"topicType":    "STANDARD",
	}
	if len(media) > 0 {
		format := "PHOTO"
		if media[0].Type == models.MediaTypeVideo {
			format = "VIDEO"
		}
		body["media"] = []map[string]string{{"mediaFormat": format, "sourceUrl": media[0].URL}}
	}
	if cta := opts.Setting("cta_type"); cta != "" {
		action := map[string]string{"actionType": cta}
		if cta != "CALL" {
			action["url"] = opts.Setting("cta_url")
		}
		body["callToAction"] = action
	}

	endpoint := fmt.Sprintf("/accounts/%s/locations/%s/localPosts", opts.Setting("account_id"), opts.Setting("location_id"))
	var out localPost
	if err := p.client.Post(ctx, endpoint, body, opts.AccessToken, &out); err != nil {
		return nil, classify(p.platform, err)
	}
	if out.Name == "" {
		return nil, p.publishingError("create local post", errors.New("Google returned no post name"))
	}
	return p.fromLocalPost(out, data), nil
}

func (p *GoogleBusinessProfilePublisher) fromLocalPost(post localPost, data models.PlatformData) *models.ExternalReference {
	data["state"] = post.State
	if post.SearchURL != "" {
		data["search_url"] = post.SearchURL
	}
	if post.State == "REJECTED" {
		return &models.ExternalReference{
			Platform:     p.platform,
			ExternalID:   post.Name,
			Status:       models.ReferenceStatusFailed,
			ErrorMessage: "Google rejected the post",
			PlatformData: data,
		}
	}
	ref := p.published(post.Name, post.SearchURL, data)
	if t, err := time.Parse(time.RFC3339, post.CreateTime); err == nil {
		t = t.UTC()
		ref.PublishedAt = &t
	}
	return ref
}

func (p *GoogleBusinessProfilePublisher) GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error) {
	if err := p.requireToken(opts); err != nil {
		return nil, err
	}
	var out localPost
	err := p.client.Get(ctx, "/"+externalID, nil, opts.AccessToken, &out)
	if isNotFound(err) {
		return p.removed(externalID), nil
	}
	if err != nil {
		return nil, classify(p.platform, err)
	}
	if out.Name == "" {
		out.Name = externalID
	}
	return p.fromLocalPost(out, models.PlatformData{}), nil
}

func (p *GoogleBusinessProfilePublisher) Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error) {
	if err := p.requireToken(opts); err != nil {
		return false, err
	}
	err := p.client.Delete(ctx, "/"+externalID, nil, opts.AccessToken, nil)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, classify(p.platform, err)
	}
	return true, nil
}
