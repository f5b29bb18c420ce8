package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// signatureHeaders lists where each platform puts its HMAC, in lookup
// order.
var signatureHeaders = map[string][]string{
	publisher.PlatformFacebook:              {"X-Hub-Signature-256"},
	publisher.PlatformInstagram:             {"X-Hub-Signature-256"},
	publisher.PlatformLinkedIn:              {"X-LinkedIn-Signature"},
	publisher.PlatformGoogleBusinessProfile: {"X-Google-Signature"},
	publisher.PlatformGoogleAds:             {"X-Google-Signature"},
	publisher.PlatformTikTokAds:             {"X-TikTok-Signature"},
	publisher.PlatformWhatsApp:              {"X-WhatsApp-Signature", "X-Hub-Signature-256"},
}

// Observation is one platform-reported fact about a piece of content.
// An empty Status means the reference keeps its current status.
type Observation struct {
	Platform     string
	ExternalID   string
	Status       models.ReferenceStatus
	ErrorMessage string
	Data         models.PlatformData
}

type InboundService interface {
	Verify(platform string, body []byte, headers http.Header) bool
	Handle(ctx context.Context, platform string, body []byte, headers http.Header) (int, error)
	VerifyChallenge(mode, token, challenge string) (string, bool)
}

type inboundService struct {
	secrets     map[string]string
	verifyToken string
	rr          repository.ExternalReferenceRepository
	events      Emitter
	store       ObjectStore
}

func NewInboundService(secrets map[string]string, verifyToken string, rr repository.ExternalReferenceRepository, events Emitter, store ObjectStore) InboundService {
	return &inboundService{
		secrets:     secrets,
		verifyToken: verifyToken,
		rr:          rr,
		events:      events,
		store:       store,
	}
}

func (s *inboundService) Verify(platform string, body []byte, headers http.Header) bool {
	secret := s.secrets[platform]
	for _, h := range signatureHeaders[platform] {
		if sig := headers.Get(h); sig != "" {
			return utils.VerifySignature(body, sig, secret)
		}
	}
	return false
}

// VerifyChallenge answers the Meta subscription handshake.
func (s *inboundService) VerifyChallenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || s.verifyToken == "" || token != s.verifyToken {
		return "", false
	}
	return challenge, true
}

// Handle verifies the body, then parses it and applies every observation
// to the matching references. It returns the number of references
// updated. Nothing is parsed before the signature checks out.
func (s *inboundService) Handle(ctx context.Context, platform string, body []byte, headers http.Header) (int, error) {
	if _, ok := signatureHeaders[platform]; !ok {
		return 0, fmt.Errorf("%w: %s", publisher.ErrUnsupportedPlatform, platform)
	}
	if !s.Verify(platform, body, headers) {
		slog.Warn("rejected inbound webhook", "platform", platform, "reason", "signature mismatch")
		return 0, ErrInvalidSignature
	}

	s.archive(ctx, platform, body)

	observations, err := parseInbound(platform, body)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("malformed %s webhook: %v", platform, err))
	}

	applied := 0
	for _, o := range observations {
		n, err := s.apply(ctx, o)
		if err != nil {
			return applied, err
		}
		applied += n
	}
	return applied, nil
}

func (s *inboundService) archive(ctx context.Context, platform string, body []byte) {
	if s.store == nil || !s.store.Enabled() {
		return
	}
	id, err := gonanoid.New()
	if err != nil {
		return
	}
	key := fmt.Sprintf("inbound/%s/%s/%s.json", platform, time.Now().UTC().Format("2006/01/02"), id)
	if _, err := s.store.Put(ctx, key, body, "application/json"); err != nil {
		slog.Warn("failed to archive inbound webhook", "platform", platform, "error", err)
	}
}

func (s *inboundService) apply(ctx context.Context, o Observation) (int, error) {
	refs, err := s.rr.ListByExternalID(ctx, o.Platform, o.ExternalID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, ref := range refs {
		if ref.Status.Terminal() {
			continue
		}
		previous := ref.Status
		observed := &models.ExternalReference{
			Platform:     o.Platform,
			ExternalID:   o.ExternalID,
			Status:       o.Status,
			ErrorMessage: o.ErrorMessage,
			PlatformData: o.Data,
		}
		if observed.Status == "" {
			observed.Status = ref.Status
		}
		if observed.Status == models.ReferenceStatusPublished && ref.PublishedAt == nil {
			now := time.Now().UTC()
			observed.PublishedAt = &now
		}
		if err := ref.Apply(observed); err != nil {
			slog.Info("ignoring inbound status", "reference_id", ref.ID, "current", previous, "observed", o.Status, "error", err)
			continue
		}
		written, err := s.rr.Update(ctx, ref)
		if err != nil {
			return applied, err
		}
		if !written {
			continue
		}
		applied++

		if ref.Status != previous {
			s.events.Emit(ctx, ref.OrganizationID, models.EventPostStatusChanged, ReferenceEvent{Reference: ref, PreviousStatus: previous})
			switch ref.Status {
			case models.ReferenceStatusPublished:
				s.events.Emit(ctx, ref.OrganizationID, models.EventPostPublished, ReferenceEvent{Reference: ref, PreviousStatus: previous})
			case models.ReferenceStatusFailed:
				s.events.Emit(ctx, ref.OrganizationID, models.EventPostFailed, ReferenceEvent{Reference: ref, PreviousStatus: previous})
			}
		} else {
			s.events.Emit(ctx, ref.OrganizationID, models.EventMetricsUpdated, ReferenceEvent{Reference: ref})
		}
	}
	return applied, nil
}

func parseInbound(platform string, body []byte) ([]Observation, error) {
	switch platform {
	case publisher.PlatformFacebook, publisher.PlatformInstagram:
		return parseMeta(platform, body)
	case publisher.PlatformWhatsApp:
		return parseWhatsApp(body)
	case publisher.PlatformLinkedIn:
		return parseLinkedIn(body)
	case publisher.PlatformGoogleBusinessProfile, publisher.PlatformGoogleAds:
		return parseGoogle(platform, body)
	case publisher.PlatformTikTokAds:
		return parseTikTok(body)
	}
	return nil, publisher.ErrUnsupportedPlatform
}

type metaEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string          `json:"field"`
			Value json.RawMessage `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func parseMeta(platform string, body []byte) ([]Observation, error) {
	var env metaEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var out []Observation
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			var v struct {
				PostID  string `json:"post_id"`
				MediaID string `json:"media_id"`
				Verb    string `json:"verb"`
				Item    string `json:"item"`
				Media   struct {
					ID string `json:"id"`
				} `json:"media"`
			}
			if err := json.Unmarshal(change.Value, &v); err != nil {
				return nil, err
			}
			id := firstNonEmpty(v.PostID, v.MediaID, v.Media.ID)
			if id == "" {
				continue
			}
			o := Observation{
				Platform:   platform,
				ExternalID: id,
				Data:       models.PlatformData{"last_webhook_field": change.Field},
			}
			switch v.Verb {
			case "remove":
				if v.Item == "" || v.Item == "post" || v.Item == "status" || v.Item == "photo" || v.Item == "video" {
					o.Status = models.ReferenceStatusFailed
					o.ErrorMessage = "content was removed on " + platform
				}
			case "add":
				if v.Item == "" || v.Item == "post" || v.Item == "status" || v.Item == "photo" || v.Item == "video" {
					o.Status = models.ReferenceStatusPublished
				}
			}
			if v.Verb != "" {
				o.Data["last_webhook_verb"] = v.Verb
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func parseWhatsApp(body []byte) ([]Observation, error) {
	var env metaEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var out []Observation
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			var v struct {
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
					Errors      []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			}
			if err := json.Unmarshal(change.Value, &v); err != nil {
				return nil, err
			}
			for _, st := range v.Statuses {
				o := Observation{
					Platform:   publisher.PlatformWhatsApp,
					ExternalID: st.ID,
					Data:       models.PlatformData{"delivery_status": st.Status},
				}
				if st.Status == "failed" {
					o.Status = models.ReferenceStatusFailed
					o.ErrorMessage = "message delivery failed"
					if len(st.Errors) > 0 {
						o.ErrorMessage = fmt.Sprintf("message delivery failed: %s (%d)", st.Errors[0].Title, st.Errors[0].Code)
					}
				}
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func parseLinkedIn(body []byte) ([]Observation, error) {
	var env struct {
		Notifications []struct {
			Action     string `json:"action"`
			SourcePost string `json:"sourcePost"`
			Entity     string `json:"entity"`
		} `json:"notifications"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var out []Observation
	for _, n := range env.Notifications {
		id := firstNonEmpty(n.SourcePost, n.Entity)
		if id == "" {
			continue
		}
		o := Observation{
			Platform:   publisher.PlatformLinkedIn,
			ExternalID: id,
			Data:       models.PlatformData{"last_action": n.Action},
		}
		if n.Action == "SHARE_DELETED" || n.Action == "DELETE" {
			o.Status = models.ReferenceStatusFailed
			o.ErrorMessage = "post was deleted on LinkedIn"
		}
		out = append(out, o)
	}
	return out, nil
}

func parseGoogle(platform string, body []byte) ([]Observation, error) {
	var v struct {
		Name           string `json:"name"`
		ResourceName   string `json:"resourceName"`
		State          string `json:"state"`
		Status         string `json:"status"`
		ApprovalStatus string `json:"approvalStatus"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	id := firstNonEmpty(v.ResourceName, v.Name)
	if id == "" {
		return nil, nil
	}

	o := Observation{Platform: platform, ExternalID: id, Data: models.PlatformData{}}
	for k, val := range map[string]string{"state": v.State, "ad_status": v.Status, "approval_status": v.ApprovalStatus} {
		if val != "" {
			o.Data[k] = val
		}
	}
	switch {
	case v.State == "REJECTED":
		o.Status = models.ReferenceStatusFailed
		o.ErrorMessage = "Google rejected the post"
	case v.Status == "REMOVED":
		o.Status = models.ReferenceStatusFailed
		o.ErrorMessage = "ad was removed"
	case v.ApprovalStatus == "DISAPPROVED":
		o.Status = models.ReferenceStatusFailed
		o.ErrorMessage = "ad was disapproved by Google Ads policy review"
	}
	return []Observation{o}, nil
}

func parseTikTok(body []byte) ([]Observation, error) {
	var v struct {
		Event   string `json:"event"`
		Content struct {
			AdID            string `json:"ad_id"`
			OperationStatus string `json:"operation_status"`
			SecondaryStatus string `json:"secondary_status"`
			RejectReason    string `json:"reject_reason"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	if v.Content.AdID == "" {
		return nil, nil
	}

	o := Observation{
		Platform:   publisher.PlatformTikTokAds,
		ExternalID: v.Content.AdID,
		Data:       models.PlatformData{"last_event": v.Event},
	}
	if v.Content.SecondaryStatus != "" {
		o.Data["secondary_status"] = v.Content.SecondaryStatus
	}
	switch {
	case v.Content.OperationStatus == "DELETE" || v.Content.SecondaryStatus == "AD_STATUS_DELETE":
		o.Status = models.ReferenceStatusFailed
		o.ErrorMessage = "ad was deleted on TikTok"
	case v.Content.SecondaryStatus == "AD_STATUS_REJECT":
		o.Status = models.ReferenceStatusFailed
		o.ErrorMessage = strings.TrimSpace("ad was rejected by TikTok review " + v.Content.RejectReason)
	}
	return []Observation{o}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
