package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "calview/internal/log"
)

// ErrNotModifiedNoCache means the server answered 304 but nothing was cached.
var ErrNotModifiedNoCache = errors.New("source: 304 Not Modified but no cached body")

// cacheEntry holds HTTP cache metadata for one source's URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fetcher performs conditional GETs (ETag / Last-Modified) and keeps the
// last good body on disk so a remote outage still renders the previous
// collection.
type fetcher struct {
	client   *http.Client
	cacheDir string
}

func newFetcher(client *http.Client, cacheDir string) *fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cacheDir == "" {
		cacheDir = "./cache/sources"
	}
	return &fetcher{client: client, cacheDir: cacheDir}
}

// get returns the body for req, reporting whether it came from cache.
// cacheURL names the cached document; it may differ from req's URL when
// the request carries a moving query window.
func (f *fetcher) get(ctx context.Context, sourceID, cacheURL string, req *http.Request) ([]byte, bool, error) {
	target := req.URL.String()
	cachePath := f.cachePath(sourceID, cacheURL, req.Header.Get("X-API-Key"))
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, false, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body"))

	req = req.WithContext(ctx)
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("source fetch start", "id", sourceID, "url", redactURL(target))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 && ctx.Err() == nil {
			appLog.Error("source fetch network error, using cached body", err, "id", sourceID, "url", redactURL(target))
			return cachedBody, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, false, readErr
		}
		newMeta := cacheEntry{
			URL:          target,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			appLog.Error("source cache save failed", err, "id", sourceID, "url", redactURL(target))
		}
		appLog.Debug("source fetch success", "id", sourceID, "status", resp.StatusCode, "bytes", len(body))
		return body, false, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, false, ErrNotModifiedNoCache
		}
		appLog.Debug("source not modified; using cache", "id", sourceID)
		return cachedBody, true, nil

	default:
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		// Auth failures must surface, never be masked by stale data.
		if len(cachedBody) > 0 && resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			appLog.Error("source fetch non-OK, using cached body", statusErr, "id", sourceID, "url", redactURL(target))
			return cachedBody, true, nil
		}
		return nil, false, statusErr
	}
}

// StatusError is a non-2xx/304 answer from a remote source.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "source: unexpected status " + e.Status
}

// cachePath keys the cache on source ID, URL and credential. Sources that
// share a URL but not an account must never see each other's bodies.
func (f *fetcher) cachePath(sourceID, target, credential string) string {
	h := sha256.New()
	for _, part := range []string{sourceID, target, credential} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return filepath.Join(f.cacheDir, hex.EncodeToString(h.Sum(nil)[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only, since query strings, paths and
// userinfo of calendar feeds often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "source://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
