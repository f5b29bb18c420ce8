package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

const linkedInBaseURL = "https://api.linkedin.com/v2"

var linkedInConstraints = constraints{
	maxTextLength: 3000,
	maxMediaItems: 9,
	maxHashtags:   5,
	allowedMedia:  []models.MediaType{models.MediaTypeImage},
}

var informalPattern = regexp.MustCompile(`(?i)\b(lol|lmao|rofl|omg|wtf|omfg|ya'll|gonna|wanna)\b|!{3,}`)

// LinkedInPublisher shares posts through the UGC API. LinkedIn has no
// native scheduling, so a requested schedule is ignored.
//
// Settings read: person_urn or organization_urn.
// Platform data written: author, asset_urns, media_count, hashtag_count,
// lifecycle_state, schedule_ignored.
type LinkedInPublisher struct {
	base
}

func NewLinkedInPublisher(f *client.Factory) Publisher {
	return &LinkedInPublisher{base: base{
		platform:    PlatformLinkedIn,
		displayName: "LinkedIn",
		limits:      linkedInConstraints,
		client:      f.Client(client.GroupLinkedIn, linkedInBaseURL),
	}}
}

func (p *LinkedInPublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)
	text := result.SanitizedContent

	if informalPattern.MatchString(text) {
		result.Warnings = append(result.Warnings, "content contains informal language that may read as unprofessional on LinkedIn")
	}
	if countEmoji(text) > 3 {
		result.Warnings = append(result.Warnings, "heavy emoji use may read as unprofessional on LinkedIn")
	}
	if shouting(text) {
		result.Warnings = append(result.Warnings, "content is mostly upper case; LinkedIn audiences read this as shouting")
	}
	return finish(result)
}

func (p *LinkedInPublisher) author(opts models.PlatformOptions) string {
	if urn := strings.TrimSpace(opts.Setting("person_urn")); urn != "" {
		return urn
	}
	return strings.TrimSpace(opts.Setting("organization_urn"))
}

func (p *LinkedInPublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	var required []string
	if p.author(opts) == "" {
		required = append(required, "person_urn")
	}
	if err := p.prepare(preview, opts, required...); err != nil {
		return nil, err
	}
	author := p.author(opts)

	data := models.PlatformData{
		"author":        author,
		"media_count":   len(media),
		"hashtag_count": countHashtags(preview.SanitizedContent),
	}
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	assets := make([]string, 0, len(media))
	for i, m := range media {
		asset, err := p.uploadImage(ctx, author, m, opts.AccessToken)
		if err != nil {
			return nil, p.publishingError(fmt.Sprintf("upload media item %d", i+1), err)
		}
		assets = append(assets, asset)
	}
	if len(assets) > 0 {
		data["asset_urns"] = assets
	}

	resp, err := p.client.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Endpoint:    "/ugcPosts",
		Body:        ugcPostBody(author, preview.SanitizedContent, media, assets),
		Headers:     map[string]string{"X-Restli-Protocol-Version": "2.0.0"},
		AccessToken: opts.AccessToken,
	})
	if err != nil {
		return nil, classify(p.platform, err)
	}
	var out struct {
		ID string `json:"id"`
	}
	_ = resp.Decode(&out)
	id := out.ID
	if id == "" {
		id = resp.Header.Get("X-RestLi-Id")
	}
	if id == "" {
		return nil, p.publishingError("create post", errors.New("LinkedIn returned no post id"))
	}

	data["lifecycle_state"] = "PUBLISHED"
	return p.published(id, "https://www.linkedin.com/feed/update/"+id, data), nil
}

func (p *LinkedInPublisher) uploadImage(ctx context.Context, author string, m models.MediaItem, token string) (string, error) {
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}
	var reg struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	err := p.client.DoJSON(ctx, client.Request{
		Method:      http.MethodPost,
		Endpoint:    "/assets",
		Params:      url.Values{"action": {"registerUpload"}},
		Body:        register,
		AccessToken: token,
	}, &reg)
	if err != nil {
		return "", err
	}
	uploadURL := reg.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", errors.New("LinkedIn did not return an upload url")
	}

	image, contentType, err := p.client.Fetch(ctx, m.URL)
	if err != nil {
		return "", err
	}
	_, err = p.client.Do(ctx, client.Request{
		Method:      http.MethodPut,
		Endpoint:    uploadURL,
		RawBody:     image,
		ContentType: contentType,
		AccessToken: token,
	})
	if err != nil {
		return "", err
	}
	return reg.Value.Asset, nil
}

func ugcPostBody(author, text string, media []models.MediaItem, assets []string) map[string]any {
	share := map[string]any{
		"shareCommentary":    map[string]string{"text": text},
		"shareMediaCategory": "NONE",
	}
	if len(assets) > 0 {
		items := make([]map[string]any, 0, len(assets))
		for i, asset := range assets {
			item := map[string]any{"status": "READY", "media": asset}
			if media[i].AltText != "" {
				item["description"] = map[string]string{"text": media[i].AltText}
			}
			items = append(items, item)
		}
		share["shareMediaCategory"] = "IMAGE"
		share["media"] = items
	}
	return map[string]any{
		"author":          author,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
}

func (p *LinkedInPublisher) GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error) {
	if err := p.requireToken(opts); err != nil {
		return nil, err
	}
	var out struct {
		ID             string `json:"id"`
		LifecycleState string `json:"lifecycleState"`
		Created        struct {
			Time int64 `json:"time"`
		} `json:"created"`
	}
	err := p.client.Get(ctx, "/ugcPosts/"+url.PathEscape(externalID), nil, opts.AccessToken, &out)
	if isNotFound(err) {
		return p.removed(externalID), nil
	}
	if err != nil {
		return nil, classify(p.platform, err)
	}

	data := models.PlatformData{"lifecycle_state": out.LifecycleState}
	switch out.LifecycleState {
	case "PROCESSING_FAILED", "DELETED":
		ref := p.removed(externalID)
		ref.ErrorMessage = "LinkedIn reports post as " + strings.ToLower(out.LifecycleState)
		ref.PlatformData = data
		return ref, nil
	}
	ref := p.published(externalID, "https://www.linkedin.com/feed/update/"+externalID, data)
	ref.PublishedAt = nil
	if out.Created.Time > 0 {
		t := time.UnixMilli(out.Created.Time).UTC()
		ref.PublishedAt = &t
	}
	return ref, nil
}

func (p *LinkedInPublisher) Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error) {
	if err := p.requireToken(opts); err != nil {
		return false, err
	}
	err := p.client.Delete(ctx, "/ugcPosts/"+url.PathEscape(externalID), nil, opts.AccessToken, nil)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, classify(p.platform, err)
	}
	return true, nil
}

// shouting reports text that is mostly capital letters.
func shouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 20 && upper*2 > letters
}
