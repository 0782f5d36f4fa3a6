package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/clinical-encounter-server/internal/domain"
)

// Config holds settings for the profile directory client.
type Config struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // requests per second
	CacheSize int           `json:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl"`
}

// Client resolves user profiles from the identity service over HTTP.
// Lookups go through a circuit breaker and an LRU cache: profile data
// changes rarely, and a directory outage must not take document reads
// down with it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      *lru.Cache[string, cachedProfile]
	cacheTTL   time.Duration
	log        *logrus.Logger
}

type cachedProfile struct {
	profile  *domain.Profile
	cachedAt time.Time
}

// profileResponse is the wire shape returned by the directory service.
type profileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// NewClient creates a directory client.
func NewClient(config Config, logger *logrus.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}
	if config.CacheSize == 0 {
		config.CacheSize = 1024
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}

	cache, err := lru.New[string, cachedProfile](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating profile cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ProfileDirectory",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   breaker,
		cache:     cache,
		cacheTTL:  config.CacheTTL,
		log:       logger,
	}, nil
}

// FindProfileByID resolves a user profile, serving from cache when fresh.
func (c *Client) FindProfileByID(ctx context.Context, id string) (*domain.Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("profile ID cannot be empty")
	}

	if cached, ok := c.cache.Get(id); ok {
		if time.Since(cached.cachedAt) < c.cacheTTL {
			return cached.profile, nil
		}
		c.cache.Remove(id)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchProfile(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	profile := result.(*domain.Profile)
	c.cache.Add(id, cachedProfile{profile: profile, cachedAt: time.Now()})
	return profile, nil
}

// CacheLen reports how many profiles are cached.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

func (c *Client) fetchProfile(ctx context.Context, id string) (*domain.Profile, error) {
	url := fmt.Sprintf("%s/profiles/%s", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory service returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var pr profileResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	role := domain.Role(pr.Role)
	if !role.IsValid() {
		return nil, fmt.Errorf("profile %s has unknown role %q", id, pr.Role)
	}

	return &domain.Profile{
		ID:          pr.ID,
		DisplayName: pr.DisplayName,
		Role:        role,
	}, nil
}
