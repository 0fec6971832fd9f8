package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pngPayload returns a valid PNG padded to exactly size bytes. Padding lives
// after IEND, which decoders ignore but the size accounting sees.
func pngPayload(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if buf.Len() > size {
		t.Fatalf("base png is %d bytes, larger than requested %d", buf.Len(), size)
	}
	return append(buf.Bytes(), make([]byte, size-buf.Len())...)
}

func serveBytes(t *testing.T, payload []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		ext  string
		ok   bool
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "png", true},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "jpg", true},
		{"gif87", []byte("GIF87a...."), "gif", true},
		{"gif89", []byte("GIF89a...."), "gif", true},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBP"), 0x00), "webp", true},
		{"html", []byte("<!DOCTYPE html>"), "", false},
		{"short", []byte{0x89}, "", false},
		{"riff-not-webp", []byte("RIFF\x00\x00\x00\x00WAVE"), "", false},
	}
	for _, tc := range cases {
		ext, ok := SniffFormat(tc.data)
		if ext != tc.ext || ok != tc.ok {
			t.Errorf("%s: SniffFormat = (%q, %v), want (%q, %v)", tc.name, ext, ok, tc.ext, tc.ok)
		}
	}
}

func TestFetchAndCacheStoresAndReuses(t *testing.T) {
	payload := pngPayload(t, 400)
	srv, hits := serveBytes(t, payload)

	c, err := New(t.TempDir(), 10_000, nil)
	if err != nil {
		t.Fatal(err)
	}

	path1, err := c.FetchAndCache(context.Background(), srv.URL+"/cpu.png")
	if err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path1); err != nil || fi.Size() != 400 {
		t.Fatalf("cached blob wrong: %v", err)
	}

	path2, err := c.FetchAndCache(context.Background(), srv.URL+"/cpu.png")
	if err != nil {
		t.Fatal(err)
	}
	if path1 != path2 {
		t.Fatalf("same URL cached twice: %s vs %s", path1, path2)
	}
	if *hits != 1 {
		t.Fatalf("expected 1 download, got %d", *hits)
	}

	c.WaitForThumbnails()
	info, _ := c.Get(CacheKey(srv.URL + "/cpu.png"))
	if info.ThumbPath == "" {
		t.Fatal("thumbnail not derived")
	}
	if _, err := os.Stat(info.ThumbPath); err != nil {
		t.Fatalf("thumbnail file missing: %v", err)
	}
}

func TestFetchAndCacheRejectsNonImage(t *testing.T) {
	srv, _ := serveBytes(t, []byte("<!DOCTYPE html><html>not an image</html>"))

	c, err := New(t.TempDir(), 10_000, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.FetchAndCache(context.Background(), srv.URL+"/fake.png")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if count, _ := c.Stats(); count != 0 {
		t.Fatalf("rejected payload was cached, count = %d", count)
	}
}

func TestEvictionOldestFirst(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Seed two 400-byte entries cached at t1 < t2, filling 800 of 1000.
	base := time.Now().Add(-time.Hour)
	for i, key := range []string{"img1", "img2"} {
		path := filepath.Join(dir, key+".png")
		if err := os.WriteFile(path, pngPayload(t, 400), 0o644); err != nil {
			t.Fatal(err)
		}
		c.entries[key] = &CachedImageInfo{
			Key:      key,
			Path:     path,
			URL:      "https://example.com/" + key,
			Size:     400,
			CachedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}

	// A third 400-byte image does not fit: exactly the oldest entry goes.
	srv, _ := serveBytes(t, pngPayload(t, 400))
	if _, err := c.FetchAndCacheAs(context.Background(), "img3", srv.URL+"/img3.png"); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("img1"); ok {
		t.Fatal("oldest entry survived eviction")
	}
	if _, err := os.Stat(filepath.Join(dir, "img1.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("evicted blob still on disk")
	}
	for _, key := range []string{"img2", "img3"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("entry %s should have survived", key)
		}
	}
	count, total := c.Stats()
	if count != 2 {
		t.Fatalf("expected exactly one eviction, %d entries remain", count)
	}
	if total > 1000 {
		t.Fatalf("total %d exceeds budget", total)
	}
}

func TestFetchRejectsImageLargerThanBudget(t *testing.T) {
	srv, _ := serveBytes(t, pngPayload(t, 400))

	c, err := New(t.TempDir(), 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchAndCache(context.Background(), srv.URL+"/big.png"); err == nil {
		t.Fatal("image larger than the whole budget must be rejected")
	}
}

func TestCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 10_000, nil)
	if err != nil {
		t.Fatal(err)
	}

	for key, age := range map[string]time.Duration{
		"ancient": 48 * time.Hour,
		"recent":  time.Hour,
	} {
		path := filepath.Join(dir, key+".png")
		if err := os.WriteFile(path, pngPayload(t, 200), 0o644); err != nil {
			t.Fatal(err)
		}
		c.entries[key] = &CachedImageInfo{
			Key:      key,
			Path:     path,
			Size:     200,
			CachedAt: time.Now().Add(-age),
		}
	}

	if removed := c.CleanupOlderThan(24 * time.Hour); removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, ok := c.Get("ancient"); ok {
		t.Fatal("old entry survived cleanup")
	}
	if _, ok := c.Get("recent"); !ok {
		t.Fatal("recent entry swept")
	}
}

func TestIndexRoundTripsEpochSeconds(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 10_000, nil)
	if err != nil {
		t.Fatal(err)
	}

	cachedAt := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	path := filepath.Join(dir, "img.png")
	if err := os.WriteFile(path, pngPayload(t, 200), 0o644); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.entries["img"] = &CachedImageInfo{Key: "img", Path: path, Size: 200, CachedAt: cachedAt}
	c.persistIndexLocked()
	c.mu.Unlock()

	reopened, err := New(dir, 10_000, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reopened.Get("img")
	if !ok {
		t.Fatal("entry lost across restart")
	}
	if !got.CachedAt.Equal(cachedAt) {
		t.Fatalf("cached_at mangled: %v vs %v", got.CachedAt, cachedAt)
	}
}
