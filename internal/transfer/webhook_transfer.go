package transfer

import "github.com/maheshrc27/vantage/internal/models"

type WebhookRequest struct {
	TargetURL      string            `json:"target_url"`
	Name           string            `json:"name"`
	Events         []string          `json:"events"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// WebhookUpdate changes only the fields that are present.
type WebhookUpdate struct {
	TargetURL      *string           `json:"target_url,omitempty"`
	Name           *string           `json:"name,omitempty"`
	Events         []string          `json:"events,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// WebhookWithSecret is returned on creation and secret regeneration, the
// only two places the secret is shown.
type WebhookWithSecret struct {
	*models.Webhook
	Secret string `json:"secret"`
}
