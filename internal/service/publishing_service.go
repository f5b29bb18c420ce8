package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/publisher"
	"github.com/maheshrc27/vantage/internal/repository"
	"github.com/maheshrc27/vantage/internal/transfer"
)

const (
	pollBatchSize   = 100
	pollConcurrency = 5
)

// ReferenceEvent is the data of every post.* event.
type ReferenceEvent struct {
	Reference      *models.ExternalReference `json:"reference"`
	PreviousStatus models.ReferenceStatus    `json:"previous_status,omitempty"`
}

type PublishingService interface {
	Platforms() []string
	Preview(ctx context.Context, orgID int64, req *transfer.PreviewRequest) (*models.PreviewResult, error)
	CreatePublication(ctx context.Context, orgID int64, req *transfer.PublicationRequest) (*models.ExternalReference, error)
	ExecutePublication(ctx context.Context, task PublicationTask, finalAttempt bool) error
	Get(ctx context.Context, orgID, id int64) (*models.ExternalReference, error)
	RefreshStatus(ctx context.Context, orgID, id int64) (*models.ExternalReference, error)
	DeletePublication(ctx context.Context, orgID, id int64) (*transfer.DeleteResult, error)
	PollScheduled(ctx context.Context) (int, error)
}

type publishingService struct {
	registry  *publisher.Registry
	rr        repository.ExternalReferenceRepository
	accounts  AccountService
	scheduler TaskScheduler
	events    Emitter
}

func NewPublishingService(
	registry *publisher.Registry,
	rr repository.ExternalReferenceRepository,
	accounts AccountService,
	scheduler TaskScheduler,
	events Emitter) PublishingService {
	return &publishingService{
		registry:  registry,
		rr:        rr,
		accounts:  accounts,
		scheduler: scheduler,
		events:    events,
	}
}

func (s *publishingService) Platforms() []string {
	return s.registry.SupportedPlatforms()
}

// Preview validates content for a platform. When an account is given its
// settings are merged in so the checks see what a publish would see.
func (s *publishingService) Preview(ctx context.Context, orgID int64, req *transfer.PreviewRequest) (*models.PreviewResult, error) {
	if req == nil {
		return nil, badRequest("request body is required")
	}
	opts := models.PlatformOptions{Platform: req.Platform, Settings: req.Settings}
	platform := req.Platform
	if req.AccountID != 0 {
		sa, resolved, err := s.accounts.Options(ctx, orgID, req.AccountID, req.Settings)
		if sa == nil {
			return nil, err
		}
		platform, opts = sa.Platform, resolved
	}

	p, err := s.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	return p.Preview(req.Content, req.Media, opts), nil
}

func (s *publishingService) CreatePublication(ctx context.Context, orgID int64, req *transfer.PublicationRequest) (*models.ExternalReference, error) {
	if req == nil || req.AccountID == 0 {
		return nil, badRequest("account_id is required")
	}
	sa, opts, err := s.accounts.Options(ctx, orgID, req.AccountID, req.Settings)
	if err != nil {
		return nil, err
	}
	p, err := s.registry.Get(sa.Platform)
	if err != nil {
		return nil, err
	}

	preview := p.Preview(req.Content, req.Media, opts)
	if !preview.IsValid {
		return nil, &publisher.ValidationError{Platform: sa.Platform, Errors: preview.Errors}
	}

	ref := &models.ExternalReference{
		OrganizationID:  orgID,
		SocialAccountID: sa.ID,
		Platform:        sa.Platform,
		Status:          models.ReferenceStatusPending,
		Content:         req.Content,
		ScheduledAt:     req.ScheduleAt,
		PlatformData:    models.PlatformData{},
	}
	if _, err := s.rr.Create(ctx, nil, ref); err != nil {
		return nil, fmt.Errorf("storing reference: %w", err)
	}

	task := PublicationTask{
		ReferenceID: ref.ID,
		Media:       req.Media,
		Settings:    req.Settings,
		ScheduleAt:  req.ScheduleAt,
	}
	if err := s.scheduler.SchedulePublication(ctx, task); err != nil {
		s.fail(ctx, ref, fmt.Errorf("queueing publication: %w", err))
		return nil, fmt.Errorf("queueing publication: %w", err)
	}
	slog.Info("publication queued", "organization_id", orgID, "reference_id", ref.ID, "platform", ref.Platform)
	return ref, nil
}

// ExecutePublication is the queued half of a publish. It is safe to run
// more than once for the same reference.
func (s *publishingService) ExecutePublication(ctx context.Context, task PublicationTask, finalAttempt bool) error {
	ref, err := s.rr.GetByID(ctx, task.ReferenceID)
	if err != nil {
		return fmt.Errorf("loading reference %d: %w", task.ReferenceID, err)
	}
	if ref == nil {
		return fmt.Errorf("reference %d: %w", task.ReferenceID, ErrNotFound)
	}

	switch ref.Status {
	case models.ReferenceStatusPending:
		if err := ref.Transition(models.ReferenceStatusPublishing); err != nil {
			return err
		}
		if written, err := s.rr.Update(ctx, ref); err != nil {
			return err
		} else if !written {
			slog.Info("reference closed before publishing", "reference_id", ref.ID)
			return nil
		}
	case models.ReferenceStatusPublishing:
		// a previous attempt did not finish
	default:
		slog.Info("publication already settled, skipping", "reference_id", ref.ID, "status", ref.Status)
		return nil
	}

	_, opts, err := s.accounts.Options(ctx, ref.OrganizationID, ref.SocialAccountID, task.Settings)
	if err != nil {
		if errors.Is(err, ErrNotFound) || publisher.IsTerminal(err) || finalAttempt {
			s.fail(ctx, ref, err)
		}
		return err
	}
	p, err := s.registry.Get(ref.Platform)
	if err != nil {
		s.fail(ctx, ref, err)
		return err
	}

	result, err := p.Publish(ctx, ref.Content, task.Media, opts, task.ScheduleAt)
	if err != nil {
		if publisher.IsTerminal(err) || finalAttempt {
			s.fail(ctx, ref, err)
		} else {
			slog.Warn("publish attempt failed, will retry", "reference_id", ref.ID, "platform", ref.Platform, "error", err)
		}
		return err
	}

	previous := ref.Status
	if err := ref.Apply(result); err != nil {
		return fmt.Errorf("applying publish result: %w", err)
	}
	written, err := s.rr.Update(ctx, ref)
	if err != nil {
		return fmt.Errorf("storing publish result: %w", err)
	}
	if !written {
		slog.Info("reference closed while publishing, result dropped", "reference_id", ref.ID)
		return nil
	}

	var event string
	switch ref.Status {
	case models.ReferenceStatusScheduled:
		event = models.EventPostScheduled
	case models.ReferenceStatusFailed:
		event = models.EventPostFailed
	case models.ReferenceStatusCancelled:
		event = models.EventPostDeleted
	default:
		event = models.EventPostPublished
	}
	slog.Info("publication completed", "reference_id", ref.ID, "platform", ref.Platform,
		"external_id", ref.ExternalID, "status", ref.Status)
	s.events.Emit(ctx, ref.OrganizationID, event, ReferenceEvent{Reference: ref, PreviousStatus: previous})
	return nil
}

func (s *publishingService) fail(ctx context.Context, ref *models.ExternalReference, cause error) {
	previous := ref.Status
	if err := ref.Transition(models.ReferenceStatusFailed); err != nil {
		slog.Warn("cannot mark reference failed", "reference_id", ref.ID, "error", err)
		return
	}
	ref.ErrorMessage = cause.Error()
	written, err := s.rr.Update(ctx, ref)
	if err != nil {
		slog.Error("failed to store failed reference", "reference_id", ref.ID, "error", err)
		return
	}
	if !written {
		return
	}
	slog.Warn("publication failed", "reference_id", ref.ID, "platform", ref.Platform, "error", cause)
	s.events.Emit(ctx, ref.OrganizationID, models.EventPostFailed, ReferenceEvent{Reference: ref, PreviousStatus: previous})
}

func (s *publishingService) Get(ctx context.Context, orgID, id int64) (*models.ExternalReference, error) {
	ref, err := s.rr.GetByOrganization(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("reference %d: %w", id, ErrNotFound)
	}
	return ref, nil
}

func (s *publishingService) RefreshStatus(ctx context.Context, orgID, id int64) (*models.ExternalReference, error) {
	ref, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// refresh asks the platform for the current state and applies it. Terminal
// and not yet published references are left alone.
func (s *publishingService) refresh(ctx context.Context, ref *models.ExternalReference) error {
	if ref.Status.Terminal() || ref.ExternalID == "" {
		return nil
	}
	_, opts, err := s.accounts.Options(ctx, ref.OrganizationID, ref.SocialAccountID, nil)
	if err != nil {
		return err
	}
	p, err := s.registry.Get(ref.Platform)
	if err != nil {
		return err
	}

	observed, err := p.GetStatus(ctx, ref.ExternalID, opts)
	if err != nil {
		return err
	}

	previous := ref.Status
	if err := ref.Apply(observed); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			slog.Info("ignoring status that would move reference backwards",
				"reference_id", ref.ID, "current", previous, "observed", observed.Status)
			return nil
		}
		return err
	}
	written, err := s.rr.Update(ctx, ref)
	if err != nil {
		return err
	}
	if written && ref.Status != previous {
		slog.Info("reference status changed", "reference_id", ref.ID, "from", previous, "to", ref.Status)
		s.events.Emit(ctx, ref.OrganizationID, models.EventPostStatusChanged, ReferenceEvent{Reference: ref, PreviousStatus: previous})
		switch ref.Status {
		case models.ReferenceStatusPublished:
			s.events.Emit(ctx, ref.OrganizationID, models.EventPostPublished, ReferenceEvent{Reference: ref, PreviousStatus: previous})
		case models.ReferenceStatusFailed:
			s.events.Emit(ctx, ref.OrganizationID, models.EventPostFailed, ReferenceEvent{Reference: ref, PreviousStatus: previous})
		}
	}
	return nil
}

func (s *publishingService) DeletePublication(ctx context.Context, orgID, id int64) (*transfer.DeleteResult, error) {
	ref, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if ref.Status == models.ReferenceStatusCancelled {
		return &transfer.DeleteResult{Deleted: true, Reference: ref}, nil
	}
	if ref.Status.Terminal() {
		return nil, fmt.Errorf("reference %d: %w", id, models.ErrTerminalReference)
	}

	if ref.ExternalID != "" {
		_, opts, err := s.accounts.Options(ctx, ref.OrganizationID, ref.SocialAccountID, nil)
		if err != nil {
			return nil, err
		}
		p, err := s.registry.Get(ref.Platform)
		if err != nil {
			return nil, err
		}
		deleted, err := p.Delete(ctx, ref.ExternalID, opts)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return &transfer.DeleteResult{
				Deleted:   false,
				Reference: ref,
				Message:   fmt.Sprintf("%s does not support deleting published content", ref.Platform),
			}, nil
		}
	}

	previous := ref.Status
	if err := ref.Transition(models.ReferenceStatusCancelled); err != nil {
		return nil, err
	}
	if _, err := s.rr.Update(ctx, ref); err != nil {
		return nil, err
	}
	slog.Info("publication deleted", "reference_id", ref.ID, "platform", ref.Platform)
	s.events.Emit(ctx, ref.OrganizationID, models.EventPostDeleted, ReferenceEvent{Reference: ref, PreviousStatus: previous})
	return &transfer.DeleteResult{Deleted: true, Reference: ref}, nil
}

// PollScheduled refreshes natively scheduled posts so they move to
// published once the platform has run them.
func (s *publishingService) PollScheduled(ctx context.Context) (int, error) {
	refs, err := s.rr.ListByStatus(ctx, models.ReferenceStatusScheduled, pollBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing scheduled references: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	refreshed := 0
	semaphore := make(chan struct{}, pollConcurrency)

	for _, ref := range refs {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(ref *models.ExternalReference) {
			defer wg.Done()
			defer func() { <-semaphore }()
			if err := s.refresh(ctx, ref); err != nil {
				slog.Error("status poll failed", "reference_id", ref.ID, "platform", ref.Platform, "error", err)
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(ref)
	}
	wg.Wait()
	return refreshed, nil
}
