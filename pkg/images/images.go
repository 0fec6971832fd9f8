// Package images is the size-bounded, content-addressed store for downloaded
// product images and their derived thumbnails.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/whttp"
)

const (
	// MaxImageBytes is the hard per-image download ceiling.
	MaxImageBytes = 10 << 20

	defaultMaxCacheBytes = 200 << 20
	indexFileName        = "cache_index.json"
)

// ValidationError reports a downloaded payload that is not a usable image.
// The image is dropped and enrichment proceeds without it.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid image from %s: %s", e.URL, e.Reason)
}

// CachedImageInfo describes one cached blob. cached_at round-trips through
// the index as epoch seconds.
type CachedImageInfo struct {
	Key       string    `json:"key"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CachedAt  time.Time `json:"-"`
	ThumbPath string    `json:"thumbnail_path,omitempty"`
}

type indexRecord struct {
	Key       string `json:"key"`
	Path      string `json:"path"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	CachedAt  int64  `json:"cached_at"`
	ThumbPath string `json:"thumbnail_path,omitempty"`
}

// Cache stores one file per key as <key>.<ext> plus <key>_thumb.png in a
// directory fixed at construction, evicting oldest-cached-first under size
// pressure.
type Cache struct {
	dir      string
	maxBytes int64
	client   *retryablehttp.Client

	mu      sync.RWMutex
	entries map[string]*CachedImageInfo

	// thumbWG lets tests wait for the async thumbnail pass.
	thumbWG sync.WaitGroup
}

// New opens (or creates) an image cache in dir. maxBytes <= 0 uses the
// default budget. client may be nil, in which case a fresh one is built.
func New(dir string, maxBytes int64, client *retryablehttp.Client) (*Cache, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxCacheBytes
	}
	if client == nil {
		client = whttp.NewClient("")
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		client:   client,
		entries:  make(map[string]*CachedImageInfo),
	}
	if err := c.loadIndex(); err != nil {
		utils.Log.Warnf("failed to load image cache index, starting empty: %v", err)
	}
	return c, nil
}

// CacheKey derives the content-addressed key for a URL.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// FetchAndCache downloads url under its content-addressed key.
func (c *Cache) FetchAndCache(ctx context.Context, url string) (string, error) {
	return c.FetchAndCacheAs(ctx, CacheKey(url), url)
}

// FetchAndCacheAs downloads url under a caller-supplied key, used when a
// logical image slot must be stably overwritten. If the key is already
// cached and its file still exists, the cached path is returned without a
// download.
func (c *Cache) FetchAndCacheAs(ctx context.Context, key, url string) (string, error) {
	if key == "" || url == "" {
		return "", errors.New("image cache: empty key or url")
	}

	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		if _, err := os.Stat(e.Path); err == nil {
			c.mu.RUnlock()
			return e.Path, nil
		}
	}
	c.mu.RUnlock()

	data, ext, err := c.download(ctx, url)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureCacheSpaceLocked(int64(len(data))); err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, key+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	// Replacing a key under a different extension leaves no stale blob behind.
	if old, ok := c.entries[key]; ok && old.Path != path {
		os.Remove(old.Path)
	}

	entry := &CachedImageInfo{
		Key:      key,
		Path:     path,
		URL:      url,
		Size:     int64(len(data)),
		CachedAt: time.Now().UTC(),
	}
	c.entries[key] = entry
	c.persistIndexLocked()

	c.thumbWG.Add(1)
	go func() {
		defer c.thumbWG.Done()
		c.makeThumbnail(key, path)
	}()

	return path, nil
}

// download fetches and validates the image bytes, returning the payload and
// the sniffed extension.
func (c *Cache) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &ValidationError{URL: url, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if resp.ContentLength > MaxImageBytes {
		return nil, "", &ValidationError{URL: url, Reason: fmt.Sprintf("declared size %d exceeds ceiling", resp.ContentLength)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, "", &ValidationError{URL: url, Reason: "payload exceeds size ceiling"}
	}

	ext, ok := SniffFormat(data)
	if !ok {
		return nil, "", &ValidationError{URL: url, Reason: "not a recognized image format"}
	}
	return data, ext, nil
}

// SniffFormat identifies PNG/JPEG/GIF/WebP payloads by magic bytes.
func SniffFormat(data []byte) (string, bool) {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png", true
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "jpg", true
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif", true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", true
	}
	return "", false
}

// ensureCacheSpaceLocked evicts oldest-cached-first until needed bytes fit
// inside the budget. Caller holds the write lock.
func (c *Cache) ensureCacheSpaceLocked(needed int64) error {
	if needed > c.maxBytes {
		return &ValidationError{Reason: fmt.Sprintf("image of %d bytes cannot fit cache budget %d", needed, c.maxBytes)}
	}

	total := c.totalSizeLocked()
	if total+needed <= c.maxBytes {
		return nil
	}

	byAge := make([]*CachedImageInfo, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].CachedAt.Before(byAge[j].CachedAt)
	})

	for _, e := range byAge {
		if total+needed <= c.maxBytes {
			break
		}
		c.removeEntryLocked(e)
		total -= e.Size
		utils.Log.Debugf("evicted image %s (%d bytes) for space", e.Key, e.Size)
	}
	c.persistIndexLocked()
	return nil
}

// CleanupOlderThan removes every entry cached longer ago than maxAge and
// returns the count removed. Independent of the size-pressure eviction path.
func (c *Cache) CleanupOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, e := range c.entries {
		if e.CachedAt.Before(cutoff) {
			c.removeEntryLocked(e)
			removed++
		}
	}
	if removed > 0 {
		c.persistIndexLocked()
	}
	return removed
}

// Stats reports the entry count and the total cached bytes.
func (c *Cache) Stats() (int, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), c.totalSizeLocked()
}

// Get returns the cached info for key.
func (c *Cache) Get(key string) (*CachedImageInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// WaitForThumbnails blocks until in-flight thumbnail derivations finish.
func (c *Cache) WaitForThumbnails() {
	c.thumbWG.Wait()
}

func (c *Cache) totalSizeLocked() int64 {
	var total int64
	for _, e := range c.entries {
		total += e.Size
	}
	return total
}

// removeEntryLocked deletes the blob, its thumbnail and the index entry.
func (c *Cache) removeEntryLocked(e *CachedImageInfo) {
	os.Remove(e.Path)
	if e.ThumbPath != "" {
		os.Remove(e.ThumbPath)
	} else {
		os.Remove(thumbPathFor(e.Path))
	}
	delete(c.entries, e.Key)
}

func thumbPathFor(path string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return stem + "_thumb.png"
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, indexFileName)
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var records []indexRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	for _, r := range records {
		c.entries[r.Key] = &CachedImageInfo{
			Key:       r.Key,
			Path:      r.Path,
			URL:       r.URL,
			Size:      r.Size,
			CachedAt:  time.Unix(r.CachedAt, 0).UTC(),
			ThumbPath: r.ThumbPath,
		}
	}
	return nil
}

// persistIndexLocked writes the index atomically. Failures are logged; the
// in-memory index stays authoritative.
func (c *Cache) persistIndexLocked() {
	records := make([]indexRecord, 0, len(c.entries))
	for _, e := range c.entries {
		records = append(records, indexRecord{
			Key:       e.Key,
			Path:      e.Path,
			URL:       e.URL,
			Size:      e.Size,
			CachedAt:  e.CachedAt.Unix(),
			ThumbPath: e.ThumbPath,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		utils.Log.Warnf("failed to encode image cache index: %v", err)
		return
	}

	tmp, err := os.CreateTemp(c.dir, ".cache_index-*.json")
	if err != nil {
		utils.Log.Warnf("failed to persist image cache index: %v", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err == nil {
		err = tmp.Close()
		if err == nil {
			err = os.Rename(tmpName, c.indexPath())
		}
	} else {
		tmp.Close()
	}
	if err != nil {
		os.Remove(tmpName)
		utils.Log.Warnf("failed to persist image cache index: %v", err)
	}
}
