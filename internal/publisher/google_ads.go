package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/vantage/internal/client"
	"github.com/maheshrc27/vantage/internal/models"
)

const googleAdsBaseURL = "https://googleads.googleapis.com/v17"

// The content of a Google Ads publish is the ad headline.
var googleAdsConstraints = constraints{
	maxTextLength: 90,
	maxMediaItems: 0,
	maxHashtags:   0,
}

const googleAdsMaxDescription = 90

var callToActionPattern = regexp.MustCompile(`(?i)\b(buy|shop|order|book|call|contact|visit|learn more|sign up|subscribe|register|download|get|try|start|join|save|apply|discover|request)\b`)

// GoogleAdsPublisher creates responsive search ads inside an existing ad
// group. Scheduling is a campaign setting, so a requested schedule is
// ignored.
//
// Settings read: customer_id, ad_group_id, final_url, developer_token,
// description, login_customer_id.
// Platform data written: resource_name, ad_status, approval_status,
// final_url, media_count, hashtag_count, schedule_ignored.
type GoogleAdsPublisher struct {
	base
}

func NewGoogleAdsPublisher(f *client.Factory) Publisher {
	return &GoogleAdsPublisher{base: base{
		platform:    PlatformGoogleAds,
		displayName: "Google Ads",
		limits:      googleAdsConstraints,
		client:      f.Client(client.GroupGoogleAds, googleAdsBaseURL, client.WithErrorDecoder(client.GoogleErrorMessage)),
	}}
}

func (p *GoogleAdsPublisher) Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult {
	result := p.preview(content, media)
	text := result.SanitizedContent

	if !callToActionPattern.MatchString(text) && !callToActionPattern.MatchString(opts.Setting("description")) {
		result.Warnings = append(result.Warnings, "no call to action found; ads with a clear call to action usually perform better")
	}
	if countHashtags(text) > 0 {
		result.Warnings = append(result.Warnings, "hashtags are discouraged in Google Ads copy")
	}
	if strings.Contains(text, "!") {
		result.Warnings = append(result.Warnings, "Google Ads does not allow exclamation marks in headlines")
	}
	if desc := opts.Setting("description"); utf8.RuneCountInString(desc) > googleAdsMaxDescription {
		result.Errors = append(result.Errors, fmt.Sprintf("description exceeds Google Ads's %d character limit (%d characters)", googleAdsMaxDescription, utf8.RuneCountInString(desc)))
	}
	return finish(result)
}

func (p *GoogleAdsPublisher) headers(opts models.PlatformOptions) map[string]string {
	h := map[string]string{"developer-token": opts.Setting("developer_token")}
	if login := opts.Setting("login_customer_id"); login != "" {
		h["login-customer-id"] = login
	}
	return h
}

func (p *GoogleAdsPublisher) Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error) {
	preview := p.Preview(content, media, opts)
	if err := p.prepare(preview, opts, "customer_id", "ad_group_id", "final_url", "developer_token"); err != nil {
		return nil, err
	}

	customerID := opts.Setting("customer_id")
	data := contentCounts(preview.SanitizedContent, media)
	data["final_url"] = opts.Setting("final_url")
	if p.ignoreSchedule(scheduleAt) {
		data["schedule_ignored"] = true
	}

	rsa := map[string]any{
		"headlines": []map[string]string{{"text": preview.SanitizedContent}},
	}
	if desc := opts.Setting("description"); desc != "" {
		rsa["descriptions"] = []map[string]string{{"text": desc}}
	}
	ad := map[string]any{
		"finalUrls":          []string{opts.Setting("final_url")},
		"responsiveSearchAd": rsa,
	}
	body := map[string]any{
		"operations": []map[string]any{{
			"create": map[string]any{
				"adGroup": fmt.Sprintf("customers/%s/adGroups/%s", customerID, opts.Setting("ad_group_id")),
				"status":  "ENABLED",
				"ad":      ad,
			},
		}},
	}

	var out struct {
		Results []struct {
			ResourceName string `json:"resourceName"`
		} `json:"results"`
	}
	err := p.client.DoJSON(ctx, client.Request{
		Method:      http.MethodPost,
		Endpoint:    fmt.Sprintf("/customers/%s/adGroupAds:mutate", customerID),
		Body:        body,
		Headers:     p.headers(opts),
		AccessToken: opts.AccessToken,
	}, &out)
	if err != nil {
		return nil, classify(p.platform, err)
	}
	if len(out.Results) == 0 || out.Results[0].ResourceName == "" {
		return nil, p.publishingError("create ad", errors.New("Google Ads returned no resource name"))
	}

	name := out.Results[0].ResourceName
	data["resource_name"] = name
	data["ad_status"] = "ENABLED"
	return p.published(name, "", data), nil
}

func (p *GoogleAdsPublisher) GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error) {
	if err := p.requireToken(opts); err != nil {
		return nil, err
	}
	if err := p.requireSettings(opts, "customer_id", "developer_token"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT ad_group_ad.resource_name, ad_group_ad.status, ad_group_ad.policy_summary.approval_status "+
		"FROM ad_group_ad WHERE ad_group_ad.resource_name = '%s'", strings.ReplaceAll(externalID, "'", ""))
	var out struct {
		Results []struct {
			AdGroupAd struct {
				ResourceName  string `json:"resourceName"`
				Status        string `json:"status"`
				PolicySummary struct {
					ApprovalStatus string `json:"approvalStatus"`
				} `json:"policySummary"`
			} `json:"adGroupAd"`
		} `json:"results"`
	}
	err := p.client.DoJSON(ctx, client.Request{
		Method:      http.MethodPost,
		Endpoint:    fmt.Sprintf("/customers/%s/googleAds:search", opts.Setting("customer_id")),
		Body:        map[string]string{"query": query},
		Headers:     p.headers(opts),
		AccessToken: opts.AccessToken,
	}, &out)
	if err != nil {
		return nil, classify(p.platform, err)
	}
	if len(out.Results) == 0 {
		return p.removed(externalID), nil
	}

	ad := out.Results[0].AdGroupAd
	data := models.PlatformData{
		"resource_name":   externalID,
		"ad_status":       ad.Status,
		"approval_status": ad.PolicySummary.ApprovalStatus,
	}
	switch {
	case ad.Status == "REMOVED":
		ref := p.removed(externalID)
		ref.PlatformData = data
		return ref, nil
	case ad.PolicySummary.ApprovalStatus == "DISAPPROVED":
		ref := p.removed(externalID)
		ref.ErrorMessage = "ad was disapproved by Google Ads policy review"
		ref.PlatformData = data
		return ref, nil
	}
	ref := p.published(externalID, "", data)
	ref.PublishedAt = nil
	return ref, nil
}

func (p *GoogleAdsPublisher) Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error) {
	if err := p.requireToken(opts); err != nil {
		return false, err
	}
	if err := p.requireSettings(opts, "customer_id", "developer_token"); err != nil {
		return false, err
	}
	err := p.client.DoJSON(ctx, client.Request{
		Method:      http.MethodPost,
		Endpoint:    fmt.Sprintf("/customers/%s/adGroupAds:mutate", opts.Setting("customer_id")),
		Body:        map[string]any{"operations": []map[string]string{{"remove": externalID}}},
		Headers:     p.headers(opts),
		AccessToken: opts.AccessToken,
	}, nil)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, classify(p.platform, err)
	}
	return true, nil
}
