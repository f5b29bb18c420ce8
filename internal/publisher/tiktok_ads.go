package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

const tiktokAdsBaseURL = "https://business-api.tiktok.com/open_api/v1.3"

var tiktokAdsConstraints = constraints{
	maxTextLength: 100,
	maxMediaItems: 1,
	maxHashtags:   0,
	allowedMedia:  []models.MediaType{models.MediaTypeVideo},
	requiresMedia: true,
}

const tiktokRecommendedHashtags = 3

// TikTok returns HTTP 200 for most failures and reports them in the body.
type tiktokEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func tiktokAuthCode(code int) bool {
	return code == 40001 || (code >= 40100 && code <= 40105)
}

// TikTokAdsPublisher uploads a video to the advertiser's library and creates
// an ad from it inside an existing ad group.
//
// Settings read: advertiser_id, adgroup_id, display_name, call_to_action,
// landing_page_url, identity_id, identity_type.
// Platform data written: advertiser_id, adgroup_id, video_id, ad_id,
// ad_status, secondary_status, media_count, hashtag_count, schedule_ignored.
type TikTokAdsPublisher struct {
	base
}

func NewTikTokAdsPublisher(f *client.Factory) Publisher {
	return &TikTokAdsPublisher{base: base{
		platform:    PlatformTikTokAds,
		displayName: "TikTok Ads",
		limits:      tiktokAdsConstraints,
		client: f.Client(client.GroupTikTokAds, tiktokAdsBaseURL, client.WithAuthorizer(func(req *http.Request, token string) {
			req.Header.Set("Access-Token", token)
		})),
	}}
}

func (p *TikTokAdsPublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)
	if n := countHashtags(result.SanitizedContent); n > tiktokRecommendedHashtags {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d hashtags found; TikTok ads perform best with %d or fewer", n, tiktokRecommendedHashtags))
	}
	if opts.Setting("call_to_action") == "" {
		result.Warnings = append(result.Warnings, "no call_to_action set; TikTok will use its default")
	}
	return finish(result)
}

// call sends one request and unwraps the response envelope into out.
func (p *TikTokAdsPublisher) call(ctx context.Context, op, method, endpoint string, params url.Values, body any, token string, out any) error {
	var env tiktokEnvelope
	err := p.client.DoJSON(ctx, client.Request{
		Method:      method,
		Endpoint:    endpoint,
		Params:      params,
		Body:        body,
		AccessToken: token,
	}, &env)
	if err != nil {
		return classify(p.platform, err)
	}
	if env.Code != 0 {
		if tiktokAuthCode(env.Code) {
			return &AuthenticationError{Platform: p.platform, Message: env.Message}
		}
		return p.publishingError(op, fmt.Errorf("code %d: %s", env.Code, env.Message))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return p.publishingError(op, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

func (p *TikTokAdsPublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	if err := p.prepare(preview, opts, "advertiser_id", "adgroup_id"); err != nil {
		return nil, err
	}

	advertiserID := opts.Setting("advertiser_id")
	data := contentCounts(preview.SanitizedContent, media)
	data["advertiser_id"] = advertiserID
	data["adgroup_id"] = opts.Setting("adgroup_id")
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	videoID, err := p.uploadVideo(ctx, advertiserID, media[0], opts.AccessToken)
	if err != nil {
		return nil, err
	}
	data["video_id"] = videoID

	creative := map[string]any{
		"ad_name":   fmt.Sprintf("vantage-%d", time.Now().Unix()),
		"ad_text":   preview.SanitizedContent,
		"ad_format": "SINGLE_VIDEO",
		"video_id":  videoID,
	}
	for setting, field := range map[string]string{
		"display_name":     "display_name",
		"call_to_action":   "call_to_action",
		"landing_page_url": "landing_page_url",
		"identity_id":      "identity_id",
		"identity_type":    "identity_type",
	} {
		if v := opts.Setting(setting); v != "" {
			creative[field] = v
		}
	}

	var created struct {
		AdIDs []string `json:"ad_ids"`
	}
	err = p.call(ctx, "create ad", http.MethodPost, "/ad/create/", nil, map[string]any{
		"advertiser_id": advertiserID,
		"adgroup_id":    opts.Setting("adgroup_id"),
		"creatives":     []map[string]any{creative},
	}, opts.AccessToken, &created)
	if err != nil {
		return nil, err
	}
	if len(created.AdIDs) == 0 {
		return nil, p.publishingError("create ad", errors.New("TikTok returned no ad id"))
	}

	data["ad_id"] = created.AdIDs[0]
	data["ad_status"] = "ENABLE"
	return p.published(created.AdIDs[0], "", data), nil
}

type tiktokVideo struct {
	VideoID string `json:"video_id"`
}

func (p *TikTokAdsPublisher) uploadVideo(ctx context.Context, advertiserID string, m models.MediaItem, token string) (string, error) {
	var raw json.RawMessage
	err := p.call(ctx, "upload video", http.MethodPost, "/file/video/ad/upload/", nil, map[string]string{
		"advertiser_id": advertiserID,
		"upload_type":   "UPLOAD_BY_URL",
		"video_url":     m.URL,
	}, token, &raw)
	if err != nil {
		var ae *AuthenticationError
		if errors.As(err, &ae) {
			return "", err
		}
		var pe *PublishingError
		if errors.As(err, &pe) {
			return "", err
		}
		return "", p.publishingError("upload video", err)
	}

	// The upload endpoint answers with either a single object or a list.
	var one tiktokVideo
	if err := json.Unmarshal(raw, &one); err == nil && one.VideoID != "" {
		return one.VideoID, nil
	}
	var many []tiktokVideo
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].VideoID != "" {
		return many[0].VideoID, nil
	}
	return "", p.publishingError("upload video", errors.New("TikTok returned no video id"))
}

func (p *TikTokAdsPublisher) GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error) {
	if err := p.requireToken(opts); err != nil {
		return nil, err
	}
	if err := p.requireSettings(opts, "advertiser_id"); err != nil {
		return nil, err
	}

	filtering, _ := json.Marshal(map[string][]string{"ad_ids": {externalID}})
	params := url.Values{}
	params.Set("advertiser_id", opts.Setting("advertiser_id"))
	params.Set("filtering", string(filtering))

	var out struct {
		List []struct {
			AdID            string `json:"ad_id"`
			OperationStatus string `json:"operation_status"`
			SecondaryStatus string `json:"secondary_status"`
			CreateTime      string `json:"create_time"`
		} `json:"list"`
	}
	if err := p.call(ctx, "get ad", http.MethodGet, "/ad/get/", params, nil, opts.AccessToken, &out); err != nil {
		return nil, err
	}
	if len(out.List) == 0 {
		return p.removed(externalID), nil
	}

	ad := out.List[0]
	data := models.PlatformData{
		"ad_status":        ad.OperationStatus,
		"secondary_status": ad.SecondaryStatus,
		"advertiser_id":    opts.Setting("advertiser_id"),
	}
	switch {
	case ad.OperationStatus == "DELETE" || ad.SecondaryStatus == "AD_STATUS_DELETE":
		ref := p.removed(externalID)
		ref.PlatformData = data
		return ref, nil
	case ad.SecondaryStatus == "AD_STATUS_REJECT":
		ref := p.removed(externalID)
		ref.ErrorMessage = "ad was rejected by TikTok review"
		ref.PlatformData = data
		return ref, nil
	}
	ref := p.published(externalID, "", data)
	if t, err := time.Parse(time.DateTime, ad.CreateTime); err == nil {
		ref.PublishedAt = &t
	} else {
		ref.PublishedAt = nil
	}
	return ref, nil
}

func (p *TikTokAdsPublisher) Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error) {
	if err := p.requireToken(opts); err != nil {
		return false, err
	}
	if err := p.requireSettings(opts, "advertiser_id"); err != nil {
		return false, err
	}
	err := p.call(ctx, "delete ad", http.MethodPost, "/ad/status/update/", nil, map[string]any{
		"advertiser_id":    opts.Setting("advertiser_id"),
		"ad_ids":           []string{externalID},
		"operation_status": "DELETE",
	}, opts.AccessToken, nil)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
