package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

const graphAPIBaseURL = "https://graph.facebook.com/v21.0"

// Facebook accepts scheduled_publish_time between 10 minutes and 75 days out.
const (
	facebookMinScheduleLead = 10 * time.Minute
	facebookMaxScheduleLead = 75 * 24 * time.Hour
)

var metaConstraints = constraints{
	maxTextLength: 2200,
	maxMediaItems: 10,
	maxHashtags:   30,
	allowedMedia:  []models.MediaType{models.MediaTypeImage, models.MediaTypeVideo, models.MediaTypeGIF},
}

// MetaPublisher publishes to a Facebook page or an Instagram professional
// account through the Graph API. Both targets share the Meta quota.
//
// Settings read: page_id (facebook), instagram_account_id (instagram).
// Platform data written: target, post_type, media_ids, media_count,
// hashtag_count, scheduled_publish_time, container_id, children, permalink,
// media_type, schedule_ignored.
type MetaPublisher struct {
	base
	target string
}

func NewFacebookPublisher(f *client.Factory) Publisher {
	return newMetaPublisher(f, PlatformFacebook, "Facebook")
}

func NewInstagramPublisher(f *client.Factory) Publisher {
	return newMetaPublisher(f, PlatformInstagram, "Instagram")
}

func newMetaPublisher(f *client.Factory, target, name string) *MetaPublisher {
	limits := metaConstraints
	limits.requiresMedia = target == PlatformInstagram
	return &MetaPublisher{
		base: base{
			platform:    target,
			displayName: name,
			limits:      limits,
			client:      f.Client(client.GroupMeta, graphAPIBaseURL),
		},
		target: target,
	}
}

func (p *MetaPublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)

	if videos := mediaCount(media, models.MediaTypeVideo); videos > 0 && len(media) > 1 && p.target == PlatformFacebook {
		result.Errors = append(result.Errors, "Facebook posts cannot combine a video with other media")
	}
	if p.target == PlatformInstagram && urlPattern.MatchString(result.SanitizedContent) {
		result.Warnings = append(result.Warnings, "links in Instagram captions are not clickable")
	}
	if p.target == PlatformFacebook && countHashtags(result.SanitizedContent) > 5 {
		result.Warnings = append(result.Warnings, "Facebook posts with many hashtags tend to get less reach")
	}
	return finish(result)
}

func (p *MetaPublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	if p.target == PlatformInstagram {
		if err := p.prepare(preview, opts, "instagram_account_id"); err != nil {
			return nil, err
		}
		return p.publishInstagram(ctx, preview, media, opts, scheduleAt)
	}

	if err := p.prepare(preview, opts, "page_id"); err != nil {
		return nil, err
	}
	if scheduleAt != nil && time.Until(*scheduleAt) > facebookMaxScheduleLead {
		return nil, &ValidationError{Platform: p.platform, Errors: []string{"Facebook can only schedule posts up to 75 days ahead"}}
	}
	return p.publishFacebook(ctx, preview, media, opts, scheduleAt)
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (p *MetaPublisher) publishFacebook(ctx context.Context, preview *models.PreviewResult, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	pageID := opts.Setting("page_id")
	token := opts.AccessToken

	scheduled := scheduleAt != nil && time.Until(*scheduleAt) >= facebookMinScheduleLead
	if scheduleAt != nil && !scheduled {
		slog.Info("schedule time too close, publishing immediately", "platform", p.platform, "page_id", pageID)
	}

	data := models.PlatformData{
		"target":        p.target,
		"media_count":   len(media),
		"hashtag_count": countHashtags(preview.SanitizedContent),
	}

	body := map[string]any{}
	if scheduled {
		body["published"] = false
		body["scheduled_publish_time"] = scheduleAt.Unix()
		data["scheduled_publish_time"] = scheduleAt.UTC().Format(time.RFC3339)
	}

	var endpoint string
	switch {
	case mediaCount(media, models.MediaTypeVideo) == 1:
		endpoint = fmt.Sprintf("/%s/videos", pageID)
		body["file_url"] = media[0].URL
		body["description"] = preview.SanitizedContent
		data["post_type"] = "video"
	case len(media) > 0:
		ids, err := p.uploadPhotos(ctx, pageID, media, token, scheduled)
		if err != nil {
			return nil, err
		}
		attached := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			attached = append(attached, map[string]string{"media_fbid": id})
		}
		endpoint = fmt.Sprintf("/%s/feed", pageID)
		body["message"] = preview.SanitizedContent
		body["attached_media"] = attached
		data["media_ids"] = ids
		data["post_type"] = "photo"
		if len(ids) > 1 {
			data["post_type"] = "album"
		}
	default:
		endpoint = fmt.Sprintf("/%s/feed", pageID)
		body["message"] = preview.SanitizedContent
		data["post_type"] = "text"
	}

	var out graphID
	if err := p.client.Post(ctx, endpoint, body, token, &out); err != nil {
		return nil, classify(p.platform, err)
	}
	id := out.PostID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return nil, p.publishingError("create post", errors.New("graph API returned no post id"))
	}

	ref := p.published(id, "https://www.facebook.com/"+id, data)
	if scheduled {
		ref.Status = models.ReferenceStatusScheduled
		ref.PublishedAt = nil
	}
	return ref, nil
}

// uploadPhotos stages every image as an unpublished photo. Any failure
// aborts the post.
func (p *MetaPublisher) uploadPhotos(ctx context.Context, pageID string, media []models.MediaItem, token string, scheduled bool) ([]string, error) {
	ids := make([]string, 0, len(media))
	for i, m := range media {
		body := map[string]any{
			"url":       m.URL,
			"published": false,
		}
		if scheduled {
			body["temporary"] = true
		}
		if m.AltText != "" {
			body["alt_text_custom"] = m.AltText
		}
		var out graphID
		if err := p.client.Post(ctx, fmt.Sprintf("/%s/photos", pageID), body, token, &out); err != nil {
			return nil, p.publishingError(fmt.Sprintf("upload media item %d", i+1), err)
		}
		if out.ID == "" {
			return nil, p.publishingError(fmt.Sprintf("upload media item %d", i+1), errors.New("graph API returned no photo id"))
		}
		ids = append(ids, out.ID)
	}
	return ids, nil
}

func (p *MetaPublisher) publishInstagram(ctx context.Context, preview *models.PreviewResult, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	igID := opts.Setting("instagram_account_id")
	token := opts.AccessToken
	endpoint := fmt.Sprintf("/%s/media", igID)

	data := models.PlatformData{
		"target":        p.target,
		"media_count":   len(media),
		"hashtag_count": countHashtags(preview.SanitizedContent),
	}
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	var containerID string
	if len(media) == 1 {
		body := instagramMediaBody(media[0])
		body["caption"] = preview.SanitizedContent
		var out graphID
		if err := p.client.Post(ctx, endpoint, body, token, &out); err != nil {
			return nil, p.publishingError("create media container", err)
		}
		if err := p.checkContainer(ctx, out.ID, media[0], token); err != nil {
			return nil, err
		}
		containerID = out.ID
		data["post_type"] = string(media[0].Type)
	} else {
		children := make([]string, 0, len(media))
		for i, m := range media {
			body := instagramMediaBody(m)
			body["is_carousel_item"] = true
			var out graphID
			if err := p.client.Post(ctx, endpoint, body, token, &out); err != nil {
				return nil, p.publishingError(fmt.Sprintf("upload media item %d", i+1), err)
			}
			if err := p.checkContainer(ctx, out.ID, m, token); err != nil {
				return nil, err
			}
			children = append(children, out.ID)
		}
		var out graphID
		carousel := map[string]any{
			"media_type": "CAROUSEL",
			"caption":    preview.SanitizedContent,
			"children":   strings.Join(children, ","),
		}
		if err := p.client.Post(ctx, endpoint, carousel, token, &out); err != nil {
			return nil, p.publishingError("create carousel container", err)
		}
		containerID = out.ID
		data["children"] = children
		data["post_type"] = "carousel"
	}
	if containerID == "" {
		return nil, p.publishingError("create media container", errors.New("graph API returned no container id"))
	}
	data["container_id"] = containerID

	var published graphID
	if err := p.client.Post(ctx, fmt.Sprintf("/%s/media_publish", igID), map[string]string{"creation_id": containerID}, token, &published); err != nil {
		return nil, classify(p.platform, err)
	}
	if published.ID == "" {
		return nil, p.publishingError("publish media", errors.New("graph API returned no media id"))
	}

	link := ""
	var meta struct {
		Permalink string `json:"permalink"`
	}
	if err := p.client.Get(ctx, "/"+published.ID, url.Values{"fields": {"permalink"}}, token, &meta); err == nil {
		link = meta.Permalink
		data["permalink"] = meta.Permalink
	}
	return p.published(published.ID, link, data), nil
}

// checkContainer makes sure a video container finished processing before
// it is published. Image containers are ready immediately.
func (p *MetaPublisher) checkContainer(ctx context.Context, containerID string, m models.MediaItem, token string) error {
	if containerID == "" {
		return p.publishingError("create media container", errors.New("graph API returned no container id"))
	}
	if m.Type != models.MediaTypeVideo {
		return nil
	}
	var status struct {
		StatusCode string `json:"status_code"`
	}
	if err := p.client.Get(ctx, "/"+containerID, url.Values{"fields": {"status_code"}}, token, &status); err != nil {
		return p.publishingError("check media container", err)
	}
	if status.StatusCode != "FINISHED" {
		return p.publishingError("check media container", fmt.Errorf("container %s is %s", containerID, strings.ToLower(status.StatusCode)))
	}
	return nil
}

func instagramMediaBody(m models.MediaItem) map[string]any {
	if m.Type == models.MediaTypeVideo {
		return map[string]any{"media_type": "REELS", "video_url": m.URL}
	}
	body := map[string]any{"image_url": m.URL}
	if m.AltText != "" {
		body["alt_text"] = m.AltText
	}
	return body
}

func (p *MetaPublisher) GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error) {
	if err := p.requireToken(opts); err != nil {
		return nil, err
	}
	if p.target == PlatformInstagram {
		var out struct {
			ID        string `json:"id"`
			Permalink string `json:"permalink"`
			Timestamp string `json:"timestamp"`
			MediaType string `json:"media_type"`
		}
		err := p.client.Get(ctx, "/"+externalID, url.Values{"fields": {"id,permalink,timestamp,media_type"}}, opts.AccessToken, &out)
		if isNotFound(err) {
			return p.removed(externalID), nil
		}
		if err != nil {
			return nil, classify(p.platform, err)
		}
		ref := p.published(externalID, out.Permalink, models.PlatformData{"permalink": out.Permalink, "media_type": out.MediaType})
		if ts, err := time.Parse("2006-01-02T15:04:05-0700", out.Timestamp); err == nil {
			ts = ts.UTC()
			ref.PublishedAt = &ts
		}
		return ref, nil
	}

	var out struct {
		ID                   string `json:"id"`
		PermalinkURL         string `json:"permalink_url"`
		IsPublished          *bool  `json:"is_published"`
		ScheduledPublishTime int64  `json:"scheduled_publish_time"`
	}
	err := p.client.Get(ctx, "/"+externalID, url.Values{"fields": {"id,permalink_url,is_published,scheduled_publish_time"}}, opts.AccessToken, &out)
	if isNotFound(err) {
		return p.removed(externalID), nil
	}
	if err != nil {
		return nil, classify(p.platform, err)
	}

	data := models.PlatformData{"target": p.target}
	if out.IsPublished != nil && !*out.IsPublished && out.ScheduledPublishTime > 0 {
		data["scheduled_publish_time"] = time.Unix(out.ScheduledPublishTime, 0).UTC().Format(time.RFC3339)
		return &models.ExternalReference{
			Platform:     p.platform,
			ExternalID:   externalID,
			URL:          out.PermalinkURL,
			Status:       models.ReferenceStatusScheduled,
			PlatformData: data,
		}, nil
	}
	ref := p.published(externalID, out.PermalinkURL, data)
	ref.PublishedAt = nil
	return ref, nil
}

func (p *MetaPublisher) Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error) {
	if p.target == PlatformInstagram {
		slog.Info("instagram does not support deleting media through the API", "external_id", externalID)
		return false, nil
	}
	if err := p.requireToken(opts); err != nil {
		return false, err
	}
	var out struct {
		Success bool `json:"success"`
	}
	err := p.client.Delete(ctx, "/"+externalID, nil, opts.AccessToken, &out)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, classify(p.platform, err)
	}
	if !out.Success {
		return false, p.publishingError("delete post", fmt.Errorf("graph API refused to delete %s", strconv.Quote(externalID)))
	}
	return true, nil
}
