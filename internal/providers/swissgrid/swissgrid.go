package swissgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gridexchange/internal/model"
	"gridexchange/internal/providers"
)

const (
	defaultBaseURL         = "https://www.swissgrid.ch/"
	defaultWidgetPath      = "bin/services/apicache"
	defaultWidgetContent   = "/content/swissgrid/fr/home/operation/grid-data/current-data/jcr:content/parsys/livedatawidget_copy"
	defaultRateLimitPerSec = 2
	defaultRateLimitBurst  = 1
	defaultTimeoutSeconds  = 20
	defaultMaxRetries      = 2
	defaultUserAgent       = "gridexchange/0.1"
)

var ErrNoReadings = errors.New("swissgrid: no markers in payload")

type Config struct {
	BaseURL         string
	WidgetPath      string
	WidgetContent   string
	RateLimitPerSec int
	RateLimitBurst  int
	Timeout         time.Duration
	MaxRetries      int
	UserAgent       string
}

type Provider struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("swissgrid base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.WidgetPath) == "" {
		cfg.WidgetPath = defaultWidgetPath
	}
	if strings.TrimSpace(cfg.WidgetContent) == "" {
		cfg.WidgetContent = defaultWidgetContent
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Provider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:       getenv("SWISSGRID_BASE_URL", defaultBaseURL),
		WidgetPath:    getenv("SWISSGRID_WIDGET_PATH", defaultWidgetPath),
		WidgetContent: getenv("SWISSGRID_WIDGET_CONTENT", defaultWidgetContent),
		UserAgent:     getenv("SWISSGRID_USER_AGENT", defaultUserAgent),
	}

	cfg.RateLimitPerSec = getenvInt("SWISSGRID_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec)
	cfg.RateLimitBurst = getenvInt("SWISSGRID_RATE_LIMIT_BURST", defaultRateLimitBurst)
	cfg.MaxRetries = getenvInt("SWISSGRID_MAX_RETRIES", defaultMaxRetries)
	cfg.Timeout = time.Duration(getenvInt("SWISSGRID_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second

	return cfg, nil
}

func (p *Provider) Name() string {
	return "swissgrid"
}

func (p *Provider) FetchReadings(ctx context.Context) ([]model.RawReading, error) {
	body, err := p.doRequest(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeReadings(bytes.NewReader(body))
}

type widgetResponse struct {
	Data struct {
		Marker []widgetMarker `json:"marker"`
	} `json:"data"`
}

type widgetMarker struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text2     string `json:"text2"`
}

// DecodeReadings extracts the border markers from a live-data widget payload.
func DecodeReadings(r io.Reader) ([]model.RawReading, error) {
	var payload widgetResponse
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("swissgrid: decode payload: %w", err)
	}
	if len(payload.Data.Marker) == 0 {
		return nil, ErrNoReadings
	}

	readings := make([]model.RawReading, 0, len(payload.Data.Marker))
	for _, marker := range payload.Data.Marker {
		if strings.TrimSpace(marker.ID) == "" {
			continue
		}
		readings = append(readings, model.RawReading{
			NeighborID:     strings.TrimSpace(marker.ID),
			ArrowDirection: strings.TrimSpace(marker.Direction),
			MagnitudeText:  strings.TrimSpace(marker.Text2),
		})
	}
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	return readings, nil
}

func (p *Provider) doRequest(ctx context.Context) ([]byte, error) {
	attempts := p.config.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		body, status, retryAfter, err := p.doOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status != http.StatusTooManyRequests || attempt == attempts-1 {
			return nil, err
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		if err := sleepWithContext(ctx, retryAfter); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *Provider) doOnce(ctx context.Context) ([]byte, int, time.Duration, error) {
	endpoint, err := p.buildURL()
	if err != nil {
		return nil, 0, 0, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, parseRetryAfter(resp),
			fmt.Errorf("swissgrid: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, 0, nil
}

func (p *Provider) buildURL() (string, error) {
	base, err := url.Parse(p.config.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimLeft(p.config.WidgetPath, "/"))
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(ref)
	query := resolved.Query()
	query.Set("path", p.config.WidgetContent)
	resolved.RawQuery = query.Encode()
	return resolved.String(), nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.ReadingSource = (*Provider)(nil)
