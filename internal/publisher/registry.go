package publisher

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/maheshrc27/vantage/internal/client"
)

var ErrRegistrySealed = errors.New("publisher registry is sealed")

// Constructor builds a publisher on top of the shared client factory.
type Constructor func(f *client.Factory) Publisher

// Registry maps platform identifiers to publishers. It is filled once at
// startup and sealed; lookups after that are read-only.
type Registry struct {
	mu         sync.RWMutex
	factory    *client.Factory
	publishers map[string]Publisher
	sealed     bool
}

func NewRegistry(f *client.Factory) *Registry {
	return &Registry{
		factory:    f,
		publishers: make(map[string]Publisher),
	}
}

// NewDefaultRegistry registers every supported platform and seals the
// result.
func NewDefaultRegistry(f *client.Factory) *Registry {
	r := NewRegistry(f)
	for platform, ctor := range map[string]Constructor{
		PlatformFacebook:              NewFacebookPublisher,
		PlatformInstagram:             NewInstagramPublisher,
		PlatformLinkedIn:              NewLinkedInPublisher,
		PlatformGoogleBusinessProfile: NewGoogleBusinessProfilePublisher,
		PlatformGoogleAds:             NewGoogleAdsPublisher,
		PlatformTikTokAds:             NewTikTokAdsPublisher,
		PlatformWhatsApp:              NewWhatsAppPublisher,
	} {
		// registration only fails once sealed
		_ = r.Register(platform, ctor)
	}
	r.Seal()
	return r
}

func (r *Registry) Register(platform string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registering %s: %w", platform, ErrRegistrySealed)
	}
	r.publishers[platform] = ctor(r.factory)
	return nil
}

func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Get(platform string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return p, nil
}

func (r *Registry) SupportedPlatforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for p := range r.publishers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) IsSupported(platform string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.publishers[platform]
	return ok
}
