package client

import (
	"net/http"
	"sync"
	"time"
)

// Rate groups. Facebook and Instagram share the Graph API quota.
const (
	GroupMeta                  = "meta"
	GroupLinkedIn              = "linkedin"
	GroupGoogleBusinessProfile = "google_business_profile"
	GroupGoogleAds             = "google_ads"
	GroupTikTokAds             = "tiktok_ads"
	GroupWhatsApp              = "whatsapp"
)

var DefaultLimits = map[string]Limit{
	GroupMeta:                  {Requests: 200, Window: time.Hour},
	GroupLinkedIn:              {Requests: 100, Window: time.Hour},
	GroupGoogleBusinessProfile: {Requests: 300, Window: time.Minute},
	GroupGoogleAds:             {Requests: 1000, Window: time.Hour},
	GroupTikTokAds:             {Requests: 600, Window: time.Minute},
	GroupWhatsApp:              {Requests: 1000, Window: time.Minute},
}

type FactoryConfig struct {
	Limits     map[string]Limit
	BaseURLs   map[string]string
	HTTPClient *http.Client
	MaxWait    time.Duration
}

// Factory hands out clients that share one Limiter per rate group.
type Factory struct {
	cfg FactoryConfig

	mu       sync.Mutex
	limiters map[string]*Limiter
}

func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Factory{cfg: cfg, limiters: make(map[string]*Limiter)}
}

func (f *Factory) Limiter(group string) *Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[group]; ok {
		return l
	}
	limit, ok := f.cfg.Limits[group]
	if !ok {
		limit = DefaultLimits[group]
	}
	l := NewLimiter(limit)
	f.limiters[group] = l
	return l
}

// Client builds a client for group. A configured base URL override for the
// group takes precedence over defaultBaseURL.
func (f *Factory) Client(group, defaultBaseURL string, opts ...Option) *Client {
	base := defaultBaseURL
	if override, ok := f.cfg.BaseURLs[group]; ok && override != "" {
		base = override
	}
	cfg := Config{
		Platform:   group,
		BaseURL:    base,
		HTTPClient: f.cfg.HTTPClient,
		Limiter:    f.Limiter(group),
		MaxWait:    f.cfg.MaxWait,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

type Option func(*Config)

func WithAuthorizer(a Authorizer) Option {
	return func(c *Config) { c.Authorizer = a }
}

func WithErrorDecoder(d ErrorDecoder) Option {
	return func(c *Config) { c.ErrorDecoder = d }
}
