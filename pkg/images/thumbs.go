package images

import (
	"image"
	"image/png"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hwlore/hwlore/internal/utils"
)

// thumbSize is the fixed square edge of derived thumbnails.
const thumbSize = 128

// makeThumbnail derives the square thumbnail for a cached blob and records
// its path in the index. Runs off the caller's goroutine; a failure leaves
// the primary image usable.
func (c *Cache) makeThumbnail(key, srcPath string) {
	thumb, err := renderThumbnail(srcPath)
	if err != nil {
		utils.Log.Debugf("thumbnail for %s skipped: %v", key, err)
		return
	}

	dstPath := thumbPathFor(srcPath)
	f, err := os.Create(dstPath)
	if err != nil {
		utils.Log.Debugf("thumbnail for %s skipped: %v", key, err)
		return
	}
	if err := png.Encode(f, thumb); err != nil {
		f.Close()
		os.Remove(dstPath)
		utils.Log.Debugf("thumbnail for %s skipped: %v", key, err)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(dstPath)
		utils.Log.Debugf("thumbnail for %s skipped: %v", key, err)
		return
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.Path == srcPath {
		e.ThumbPath = dstPath
		c.persistIndexLocked()
	}
	c.mu.Unlock()
}

// renderThumbnail decodes srcPath and scales it to fit the thumbnail square,
// preserving aspect ratio.
func renderThumbnail(srcPath string) (image.Image, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, image.ErrFormat
	}

	var tw, th int
	if w >= h {
		tw = thumbSize
		th = h * thumbSize / w
	} else {
		th = thumbSize
		tw = w * thumbSize / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst, nil
}
