package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/pkg/utils"
)

var inboundSecrets = map[string]string{
	publisher.PlatformFacebook:  "meta-secret",
	publisher.PlatformInstagram: "meta-secret",
	publisher.PlatformWhatsApp:  "meta-secret",
	publisher.PlatformLinkedIn:  "li-secret",
	publisher.PlatformTikTokAds: "tt-secret",
	publisher.PlatformGoogleAds: "g-secret",
}

func signed(header, body, secret string) http.Header {
	h := http.Header{}
	h.Set(header, utils.SignPayload([]byte(body), secret))
	return h
}

func newInbound(refs ...models.ExternalReference) (InboundService, *fakeReferenceRepo, *fakeEmitter, *fakeStore) {
	rr := newFakeReferenceRepo(refs...)
	events := &fakeEmitter{}
	store := &fakeStore{enabled: true}
	return NewInboundService(inboundSecrets, "verify-me", rr, events, store), rr, events, store
}

const metaRemoved = `{"object":"page","entry":[{"id":"p1","changes":[{"field":"feed","value":{"post_id":"p1_42","verb":"remove","item":"status"}}]}]}`

func TestInboundRejectsTamperedBody(t *testing.T) {
	svc, rr, events, store := newInbound(models.ExternalReference{
		ID: 1, OrganizationID: 7, Platform: publisher.PlatformFacebook, ExternalID: "p1_42", Status: models.ReferenceStatusPublished,
	})
	headers := signed("X-Hub-Signature-256", metaRemoved, "meta-secret")
	tampered := []byte(metaRemoved[:len(metaRemoved)-3] + "}}]")

	n, err := svc.Handle(context.Background(), publisher.PlatformFacebook, tampered, headers)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, n)
	assert.Zero(t, rr.lookups)
	assert.Zero(t, rr.updates)
	assert.Empty(t, events.names())
	assert.Empty(t, store.objects)
	assert.Equal(t, models.ReferenceStatusPublished, rr.get(1).Status)
}

func TestInboundRejectsMissingOrWrongSecret(t *testing.T) {
	svc, _, _, _ := newInbound()
	body := []byte(metaRemoved)

	_, err := svc.Handle(context.Background(), publisher.PlatformFacebook, body, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.Handle(context.Background(), publisher.PlatformFacebook, body, signed("X-Hub-Signature-256", metaRemoved, "other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// No secret configured for Google Business Profile.
	_, err = svc.Handle(context.Background(), publisher.PlatformGoogleBusinessProfile, body, signed("X-Google-Signature", metaRemoved, ""))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.Handle(context.Background(), "myspace", body, http.Header{})
	assert.ErrorIs(t, err, publisher.ErrUnsupportedPlatform)
}

func TestInboundMetaRemovalFailsReference(t *testing.T) {
	svc, rr, events, store := newInbound(models.ExternalReference{
		ID: 1, OrganizationID: 7, Platform: publisher.PlatformFacebook, ExternalID: "p1_42", Status: models.ReferenceStatusPublished,
	})
	n, err := svc.Handle(context.Background(), publisher.PlatformFacebook, []byte(metaRemoved),
		signed("X-Hub-Signature-256", metaRemoved, "meta-secret"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ref := rr.get(1)
	assert.Equal(t, models.ReferenceStatusFailed, ref.Status)
	assert.Contains(t, ref.ErrorMessage, "removed")
	assert.Equal(t, "remove", ref.PlatformData["last_webhook_verb"])
	assert.Equal(t, []string{models.EventPostStatusChanged, models.EventPostFailed}, events.names())
	assert.Len(t, store.objects, 1)
}

func TestInboundLeavesTerminalReferencesAlone(t *testing.T) {
	svc, rr, events, _ := newInbound(models.ExternalReference{
		ID: 1, OrganizationID: 7, Platform: publisher.PlatformFacebook, ExternalID: "p1_42", Status: models.ReferenceStatusCancelled,
	})
	n, err := svc.Handle(context.Background(), publisher.PlatformFacebook, []byte(metaRemoved),
		signed("X-Hub-Signature-256", metaRemoved, "meta-secret"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.ReferenceStatusCancelled, rr.get(1).Status)
	assert.Empty(t, events.names())
}

func TestInboundWhatsAppStatuses(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"id":"w","changes":[{"field":"messages","value":{"statuses":[` +
		`{"id":"wamid.1","status":"read","recipient_id":"1555"},` +
		`{"id":"wamid.2","status":"failed","errors":[{"code":131026,"title":"Message undeliverable"}]}]}}]}]}`
	svc, rr, events, _ := newInbound(
		models.ExternalReference{ID: 1, OrganizationID: 7, Platform: publisher.PlatformWhatsApp, ExternalID: "wamid.1", Status: models.ReferenceStatusPublished},
		models.ExternalReference{ID: 2, OrganizationID: 7, Platform: publisher.PlatformWhatsApp, ExternalID: "wamid.2", Status: models.ReferenceStatusPublished},
	)
	n, err := svc.Handle(context.Background(), publisher.PlatformWhatsApp, []byte(body),
		signed("X-Hub-Signature-256", body, "meta-secret"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	read := rr.get(1)
	assert.Equal(t, models.ReferenceStatusPublished, read.Status)
	assert.Equal(t, "read", read.PlatformData["delivery_status"])

	failed := rr.get(2)
	assert.Equal(t, models.ReferenceStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "131026")

	assert.ElementsMatch(t, []string{models.EventMetricsUpdated, models.EventPostStatusChanged, models.EventPostFailed}, events.names())
}

func TestInboundTikTokRejection(t *testing.T) {
	body := `{"event":"ad.status_change","content":{"ad_id":"ad-9","secondary_status":"AD_STATUS_REJECT","reject_reason":"misleading"}}`
	svc, rr, _, _ := newInbound(models.ExternalReference{
		ID: 1, OrganizationID: 7, Platform: publisher.PlatformTikTokAds, ExternalID: "ad-9", Status: models.ReferenceStatusPublished,
	})
	_, err := svc.Handle(context.Background(), publisher.PlatformTikTokAds, []byte(body), signed("X-TikTok-Signature", body, "tt-secret"))
	require.NoError(t, err)

	ref := rr.get(1)
	assert.Equal(t, models.ReferenceStatusFailed, ref.Status)
	assert.Contains(t, ref.ErrorMessage, "misleading")
}

func TestInboundScheduledPostGoesLive(t *testing.T) {
	body := `{"object":"page","entry":[{"id":"p1","changes":[{"field":"feed","value":{"post_id":"p1_50","verb":"add","item":"status"}}]}]}`
	svc, rr, events, _ := newInbound(models.ExternalReference{
		ID: 1, OrganizationID: 7, Platform: publisher.PlatformFacebook, ExternalID: "p1_50", Status: models.ReferenceStatusScheduled,
	})
	_, err := svc.Handle(context.Background(), publisher.PlatformFacebook, []byte(body), signed("X-Hub-Signature-256", body, "meta-secret"))
	require.NoError(t, err)

	ref := rr.get(1)
	assert.Equal(t, models.ReferenceStatusPublished, ref.Status)
	assert.NotNil(t, ref.PublishedAt)
	assert.Equal(t, []string{models.EventPostStatusChanged, models.EventPostPublished}, events.names())
}

func TestInboundMalformedBody(t *testing.T) {
	svc, _, _, _ := newInbound()
	body := `{"notifications": "nope"}`
	_, err := svc.Handle(context.Background(), publisher.PlatformLinkedIn, []byte(body), signed("X-LinkedIn-Signature", body, "li-secret"))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestVerifyChallenge(t *testing.T) {
	svc, _, _, _ := newInbound()

	challenge, ok := svc.VerifyChallenge("subscribe", "verify-me", "12345")
	assert.True(t, ok)
	assert.Equal(t, "12345", challenge)

	_, ok = svc.VerifyChallenge("subscribe", "wrong", "12345")
	assert.False(t, ok)
	_, ok = svc.VerifyChallenge("unsubscribe", "verify-me", "12345")
	assert.False(t, ok)
}
