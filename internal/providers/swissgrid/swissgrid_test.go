package swissgrid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridexchange/internal/model"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewWithConfig(Config{
		BaseURL:         server.URL,
		RateLimitPerSec: 100,
		RateLimitBurst:  10,
		MaxRetries:      1,
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestDecodeReadingsFixture(t *testing.T) {
	file, err := os.Open("testdata/CH.json")
	require.NoError(t, err)
	defer file.Close()

	readings, err := DecodeReadings(file)
	require.NoError(t, err)
	require.Len(t, readings, 4)
	assert.Equal(t, model.RawReading{NeighborID: "fr", ArrowDirection: "right", MagnitudeText: "2234 MW"}, readings[1])
	assert.Equal(t, model.RawReading{NeighborID: "it", ArrowDirection: "down", MagnitudeText: "1304 MW"}, readings[3])
}

func TestDecodeReadingsEmpty(t *testing.T) {
	_, err := DecodeReadings(strings.NewReader(`{"data":{"marker":[]}}`))
	assert.ErrorIs(t, err, ErrNoReadings)

	_, err = DecodeReadings(strings.NewReader(`{"data":{"marker":[{"id":"","text2":"1 MW"}]}}`))
	assert.ErrorIs(t, err, ErrNoReadings)

	_, err = DecodeReadings(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestFetchReadings(t *testing.T) {
	fixture, err := os.ReadFile("testdata/CH.json")
	require.NoError(t, err)

	var gotPath, gotQuery, gotAgent string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("path")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	})

	readings, err := p.FetchReadings(context.Background())
	require.NoError(t, err)
	assert.Len(t, readings, 4)
	assert.Equal(t, "/bin/services/apicache", gotPath)
	assert.Equal(t, defaultWidgetContent, gotQuery)
	assert.Equal(t, defaultUserAgent, gotAgent)
}

func TestFetchReadingsServerError(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := p.FetchReadings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only 429 is retried")
}

func TestFetchReadingsRetriesTooManyRequests(t *testing.T) {
	fixture, err := os.ReadFile("testdata/CH.json")
	require.NoError(t, err)

	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(fixture)
	})

	readings, err := p.FetchReadings(context.Background())
	require.NoError(t, err)
	assert.Len(t, readings, 4)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchReadingsCanceled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.FetchReadings(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), parseRetryAfter(resp))
}

func TestNewWithConfigDefaults(t *testing.T) {
	_, err := NewWithConfig(Config{})
	assert.Error(t, err)

	p, err := NewWithConfig(Config{BaseURL: "https://example.test"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/", p.config.BaseURL)
	assert.Equal(t, defaultWidgetPath, p.config.WidgetPath)
	assert.Equal(t, defaultTimeoutSeconds*time.Second, p.config.Timeout)
	assert.Equal(t, "swissgrid", p.Name())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SWISSGRID_BASE_URL", "http://localhost:9999")
	t.Setenv("SWISSGRID_MAX_RETRIES", "5")
	t.Setenv("SWISSGRID_TIMEOUT_SECONDS", "oops")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, defaultTimeoutSeconds*time.Second, cfg.Timeout)
}
