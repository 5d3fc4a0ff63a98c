// Package template implements the template fetcher: local disk cache ->
// Redis secondary cache -> remote content-addressed gateway, in that order
// (spec.md §4.7, DOMAIN STACK "secondary (fast-path) template cache").
// Cache invalidation is manual; there is no TTL.
package template

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// DefaultSystemTemplateName is the system prompt template `generate
// contract`/`workflow run` fetch when no --type-specific template is
// requested.
const DefaultSystemTemplateName = "system/default"

// Fetcher retrieves named templates, writing every remote hit back into
// both the disk cache and Redis so subsequent lookups are local.
type Fetcher struct {
	CacheDir   string
	GatewayURL string
	Redis      *redis.Client
	HTTPClient *http.Client
}

// NewFetcher builds a Fetcher. redisClient may be nil to disable the
// secondary cache.
func NewFetcher(cacheDir, gatewayURL string, redisClient *redis.Client, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{CacheDir: cacheDir, GatewayURL: gatewayURL, Redis: redisClient, HTTPClient: httpClient}
}

// Get resolves name via the lookup order of spec.md §4.7, or fails with a
// SourceUnavailable-shaped error (templates reuse the same taxonomy as
// contract sources; both are "content the pipeline couldn't retrieve").
func (f *Fetcher) Get(ctx context.Context, name string) (string, error) {
	if content, ok := f.readDiskCache(name); ok {
		return content, nil
	}

	if f.Redis != nil {
		if content, ok := f.readRedisCache(ctx, name); ok {
			_ = f.writeDiskCache(name, content)
			return content, nil
		}
	}

	content, err := f.fetchRemote(ctx, name)
	if err != nil {
		return "", model.NewError(model.KindSourceUnavailable, fmt.Sprintf("template %q unavailable", name), err)
	}

	_ = f.writeDiskCache(name, content)
	if f.Redis != nil {
		f.writeRedisCache(ctx, name, content)
	}
	return content, nil
}

func (f *Fetcher) cachePath(name string) string {
	return filepath.Join(f.CacheDir, name+".tmpl")
}

func (f *Fetcher) readDiskCache(name string) (string, bool) {
	data, err := os.ReadFile(f.cachePath(name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// writeDiskCache writes via a temp file plus os.Rename so a concurrent
// reader never observes a partially written template (spec.md §5).
func (f *Fetcher) writeDiskCache(name, content string) error {
	dir := filepath.Dir(f.cachePath(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.cachePath(name))+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.cachePath(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

func redisKey(name string) string { return "contractforge:template:" + name }

func (f *Fetcher) readRedisCache(ctx context.Context, name string) (string, bool) {
	val, err := f.Redis.Get(ctx, redisKey(name)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (f *Fetcher) writeRedisCache(ctx context.Context, name, content string) {
	// Best-effort: the disk cache is authoritative, Redis is a fast path.
	f.Redis.Set(ctx, redisKey(name), content, 0)
}

func (f *Fetcher) fetchRemote(ctx context.Context, name string) (string, error) {
	reqURL, err := url.JoinPath(f.GatewayURL, "/templates", name)
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}
