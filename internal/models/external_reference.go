package models

import (
	"errors"
	"fmt"
	"time"
)

type ReferenceStatus string

const (
	ReferenceStatusPending    ReferenceStatus = "pending"
	ReferenceStatusPublishing ReferenceStatus = "publishing"
	ReferenceStatusPublished  ReferenceStatus = "published"
	ReferenceStatusScheduled  ReferenceStatus = "scheduled"
	ReferenceStatusFailed     ReferenceStatus = "failed"
	ReferenceStatusCancelled  ReferenceStatus = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid reference status transition")
	ErrTerminalReference = errors.New("reference is in a terminal state")
)

// referenceTransitions lists the forward edges of the reference lifecycle.
// Same-state writes are handled separately as refreshes.
var referenceTransitions = map[ReferenceStatus][]ReferenceStatus{
	ReferenceStatusPending:    {ReferenceStatusPublishing, ReferenceStatusFailed, ReferenceStatusCancelled},
	ReferenceStatusPublishing: {ReferenceStatusPublished, ReferenceStatusScheduled, ReferenceStatusFailed, ReferenceStatusCancelled},
	ReferenceStatusScheduled:  {ReferenceStatusPublished, ReferenceStatusFailed, ReferenceStatusCancelled},
	ReferenceStatusPublished:  {ReferenceStatusFailed, ReferenceStatusCancelled},
}

func (s ReferenceStatus) Valid() bool {
	switch s {
	case ReferenceStatusPending, ReferenceStatusPublishing, ReferenceStatusPublished,
		ReferenceStatusScheduled, ReferenceStatusFailed, ReferenceStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further writes are allowed.
func (s ReferenceStatus) Terminal() bool {
	return s == ReferenceStatusFailed || s == ReferenceStatusCancelled
}

func (s ReferenceStatus) CanTransition(to ReferenceStatus) bool {
	if s.Terminal() {
		return false
	}
	if s == to {
		return true
	}
	for _, next := range referenceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type ExternalReference struct {
	ID              int64           `db:"id" json:"id"`
	OrganizationID  int64           `db:"organization_id" json:"organization_id"`
	SocialAccountID int64           `db:"social_account_id" json:"social_account_id"`
	Platform        string          `db:"platform" json:"platform"`
	ExternalID      string          `db:"external_id" json:"external_id"`
	URL             string          `db:"url" json:"url,omitempty"`
	Status          ReferenceStatus `db:"status" json:"status"`
	ErrorMessage    string          `db:"error_message" json:"error_message,omitempty"`
	PlatformData    PlatformData    `db:"platform_data" json:"platform_data"`
	Content         string          `db:"content" json:"content,omitempty"`
	ScheduledAt     *time.Time      `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time      `db:"published_at" json:"published_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Transition moves the reference to status. It refuses to touch terminal
// references and to move backwards.
func (r *ExternalReference) Transition(to ReferenceStatus) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalReference, r.Status)
	}
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// Apply copies the observed platform state onto r. The identity
// (platform, external id) of an existing reference is never replaced.
func (r *ExternalReference) Apply(observed *ExternalReference) error {
	if err := r.Transition(observed.Status); err != nil {
		return err
	}
	if r.ExternalID == "" {
		r.ExternalID = observed.ExternalID
	}
	if observed.URL != "" {
		r.URL = observed.URL
	}
	if observed.ErrorMessage != "" {
		r.ErrorMessage = observed.ErrorMessage
	}
	if observed.PublishedAt != nil {
		r.PublishedAt = observed.PublishedAt
	}
	r.PlatformData = r.PlatformData.Merge(observed.PlatformData)
	return nil
}
