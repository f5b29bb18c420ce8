package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/vantage/internal/models"
	"github.com/maheshrc27/vantage/internal/transfer"
)

type fakeWebhookRepo struct {
	mu        sync.Mutex
	hooks     map[string]models.Webhook
	triggered map[string]time.Time
	listErr   error
}

func newFakeWebhookRepo(hooks ...models.Webhook) *fakeWebhookRepo {
	r := &fakeWebhookRepo{hooks: map[string]models.Webhook{}, triggered: map[string]time.Time{}}
	for _, w := range hooks {
		r.hooks[w.ID] = w
	}
	return r
}

func (r *fakeWebhookRepo) Create(_ context.Context, w *models.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[w.ID] = *w
	return nil
}

func (r *fakeWebhookRepo) GetByID(_ context.Context, orgID int64, id string) (*models.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.OrganizationID != orgID {
		return nil, nil
	}
	return &w, nil
}

func (r *fakeWebhookRepo) ListByOrganization(_ context.Context, orgID int64) ([]*models.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Webhook
	for _, w := range r.hooks {
		if w.OrganizationID == orgID {
			w := w
			out = append(out, &w)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) ListActiveByEvent(_ context.Context, orgID int64, event string) ([]*models.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Webhook
	for _, w := range r.hooks {
		if w.OrganizationID == orgID && w.IsActive && w.Subscribed(event) {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, w *models.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[w.ID] = *w
	return nil
}

func (r *fakeWebhookRepo) UpdateSecret(_ context.Context, _ int64, id, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.hooks[id]
	w.Secret = secret
	r.hooks[id] = w
	return nil
}

func (r *fakeWebhookRepo) TouchLastTriggered(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered[id] = at
	return nil
}

func (r *fakeWebhookRepo) Remove(_ context.Context, orgID int64, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.OrganizationID != orgID {
		return false, nil
	}
	delete(r.hooks, id)
	return true, nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]models.WebhookDelivery
	leases     map[string]time.Time
	order      []string
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: map[string]models.WebhookDelivery{}, leases: map[string]time.Time{}}
}

func (r *fakeDeliveryRepo) Claim(_ context.Context, id string, attemptCount int, now, leaseUntil time.Time) (*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.AttemptCount != attemptCount || d.Status.Terminal() {
		return nil, nil
	}
	if lease, held := r.leases[id]; held && lease.After(now) {
		return nil, nil
	}
	d.AttemptCount++
	r.deliveries[id] = d
	r.leases[id] = leaseUntil
	return &d, nil
}

func (r *fakeDeliveryRepo) Create(_ context.Context, d *models.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[d.ID] = *d
	r.order = append(r.order, d.ID)
	return nil
}

func (r *fakeDeliveryRepo) GetByID(_ context.Context, id string) (*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *fakeDeliveryRepo) Update(_ context.Context, d *models.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[d.ID] = *d
	delete(r.leases, d.ID)
	return nil
}

func (r *fakeDeliveryRepo) ListByWebhook(_ context.Context, webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, id := range r.order {
		if d := r.deliveries[id]; d.WebhookID == webhookID && len(out) < limit {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ListDueRetries(_ context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, id := range r.order {
		d := r.deliveries[id]
		if d.Status == models.DeliveryStatusRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) && len(out) < limit {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) all() []models.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WebhookDelivery, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.deliveries[id])
	}
	return out
}

type scheduledDelivery struct {
	ID string
	At time.Time
}

type fakeScheduler struct {
	mu           sync.Mutex
	publications []PublicationTask
	deliveries   []scheduledDelivery
	err          error
}

func (s *fakeScheduler) SchedulePublication(_ context.Context, task PublicationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.publications = append(s.publications, task)
	return nil
}

func (s *fakeScheduler) ScheduleDelivery(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deliveries = append(s.deliveries, scheduledDelivery{ID: id, At: at})
	return nil
}

type emitted struct {
	OrgID int64
	Event string
	Data  any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *fakeEmitter) Emit(_ context.Context, orgID int64, event string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{OrgID: orgID, Event: event, Data: data})
}

func (e *fakeEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Event)
	}
	return out
}

type fakeReferenceRepo struct {
	mu      sync.Mutex
	refs    map[int64]models.ExternalReference
	nextID  int64
	lookups int
	updates int
}

func newFakeReferenceRepo(refs ...models.ExternalReference) *fakeReferenceRepo {
	r := &fakeReferenceRepo{refs: map[int64]models.ExternalReference{}, nextID: 100}
	for _, ref := range refs {
		r.refs[ref.ID] = ref
	}
	return r
}

func (r *fakeReferenceRepo) Create(_ context.Context, _ *sql.Tx, ref *models.ExternalReference) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ref.ID = r.nextID
	r.refs[ref.ID] = *ref
	return ref.ID, nil
}

func (r *fakeReferenceRepo) GetByID(_ context.Context, id int64) (*models.ExternalReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (r *fakeReferenceRepo) GetByOrganization(ctx context.Context, orgID, id int64) (*models.ExternalReference, error) {
	ref, err := r.GetByID(ctx, id)
	if ref == nil || ref.OrganizationID != orgID {
		return nil, err
	}
	return ref, nil
}

func (r *fakeReferenceRepo) ListByExternalID(_ context.Context, platform, externalID string) ([]*models.ExternalReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	var out []*models.ExternalReference
	for _, ref := range r.refs {
		if ref.Platform == platform && ref.ExternalID == externalID {
			ref := ref
			out = append(out, &ref)
		}
	}
	return out, nil
}

func (r *fakeReferenceRepo) ListByStatus(_ context.Context, status models.ReferenceStatus, limit int) ([]*models.ExternalReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ExternalReference
	for _, ref := range r.refs {
		if ref.Status == status && len(out) < limit {
			ref := ref
			out = append(out, &ref)
		}
	}
	return out, nil
}

func (r *fakeReferenceRepo) Update(_ context.Context, ref *models.ExternalReference) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.refs[ref.ID]
	if !ok || stored.Status.Terminal() {
		return false, nil
	}
	r.updates++
	r.refs[ref.ID] = *ref
	return true, nil
}

func (r *fakeReferenceRepo) get(id int64) models.ExternalReference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[id]
}

// fakeAccounts resolves every account id to one fixed platform account.
type fakeAccounts struct {
	account models.SocialAccount
	token   string
	err     error
}

func (a *fakeAccounts) Connect(context.Context, int64, *transfer.AccountRequest) (*models.SocialAccount, error) {
	return nil, errors.New("not implemented")
}

func (a *fakeAccounts) List(context.Context, int64) ([]*models.SocialAccount, error) {
	return []*models.SocialAccount{&a.account}, nil
}

func (a *fakeAccounts) Remove(context.Context, int64, int64) error { return nil }

func (a *fakeAccounts) Options(_ context.Context, orgID, accountID int64, overrides map[string]string) (*models.SocialAccount, models.PlatformOptions, error) {
	if accountID != a.account.ID || orgID != a.account.OrganizationID {
		return nil, models.PlatformOptions{}, ErrNotFound
	}
	settings := map[string]string{}
	for k, v := range a.account.Settings {
		settings[k] = v
	}
	for k, v := range overrides {
		settings[k] = v
	}
	sa := a.account
	return &sa, models.PlatformOptions{
		Platform:    sa.Platform,
		AccountID:   sa.AccountID,
		AccessToken: a.token,
		Settings:    settings,
	}, a.err
}

type fakeStore struct {
	mu      sync.Mutex
	enabled bool
	objects map[string][]byte
}

func (s *fakeStore) Enabled() bool { return s.enabled }

func (s *fakeStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = body
	return "https://media.example.com/" + key, nil
}
