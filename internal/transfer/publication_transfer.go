package transfer

import (
	"time"

	"github.com/maheshrc27/vantage/internal/models"
)

type PreviewRequest struct {
	Platform  string             `json:"platform"`
	AccountID int64              `json:"account_id,omitempty"`
	Content   string             `json:"content"`
	Media     []models.MediaItem `json:"media"`
	Settings  map[string]string  `json:"settings"`
}

type PublicationRequest struct {
	AccountID  int64              `json:"account_id"`
	Content    string             `json:"content"`
	Media      []models.MediaItem `json:"media"`
	Settings   map[string]string  `json:"settings"`
	ScheduleAt *time.Time         `json:"schedule_at,omitempty"`
}

type DeleteResult struct {
	Deleted   bool                      `json:"deleted"`
	Reference *models.ExternalReference `json:"reference"`
	Message   string                    `json:"message,omitempty"`
}

type PlatformInfo struct {
	Platforms []string `json:"platforms"`
}
