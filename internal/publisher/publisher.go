// Package publisher holds the per-platform publishing drivers. Every driver
// validates content through Preview before it touches the network and talks
// to its platform only through a rate limited client.Client.
package publisher

import (
	"context"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
)

const (
	PlatformFacebook              = "facebook"
	PlatformInstagram             = "instagram"
	PlatformLinkedIn              = "linkedin"
	PlatformGoogleBusinessProfile = "google_business_profile"
	PlatformGoogleAds             = "google_ads"
	PlatformTikTokAds             = "tiktok_ads"
	PlatformWhatsApp              = "whatsapp"
)

type Publisher interface {
	Platform() string
	// Preview validates and sanitizes content. It never calls the platform.
	Preview(content string, media []models.MediaItem, opts models.PlatformOptions) *models.PreviewResult
	Publish(ctx context.Context, content string, media []models.MediaItem, opts models.PlatformOptions, scheduleAt *time.Time) (*models.ExternalReference, error)
	GetStatus(ctx context.Context, externalID string, opts models.PlatformOptions) (*models.ExternalReference, error)
	// Delete reports false when the platform has no way to remove content.
	Delete(ctx context.Context, externalID string, opts models.PlatformOptions) (bool, error)
}
