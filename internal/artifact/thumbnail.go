package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	thumbSuffix   = "_thumb.jpg"
	thumbLongEdge = 1920
	thumbQuality  = 85
)

// ThumbName maps an artifact filename to its thumbnail filename.
func ThumbName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + thumbSuffix
}

// EnsureThumbnail generates the preview JPEG for a stored image, resized so
// the long edge is at most 1920px. An existing thumbnail at least as new as
// the original is left alone.
func (s *Store) EnsureThumbnail(name string) (string, error) {
	name, err := sanitize(name)
	if err != nil {
		return "", err
	}
	src := filepath.Join(s.hdRoot, name)
	dst := filepath.Join(s.hdRoot, ThumbName(name))

	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to stat original %s: %w", name, err)
	}
	if dstInfo, err := os.Stat(dst); err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return ThumbName(name), nil
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", name, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > thumbLongEdge || bounds.Dy() > thumbLongEdge {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, thumbLongEdge, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, thumbLongEdge, imaging.Lanczos)
		}
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(thumbQuality)); err != nil {
		return "", fmt.Errorf("failed to save thumbnail for %s: %w", name, err)
	}
	return ThumbName(name), nil
}

// HasFreshThumbnail reports whether a usable thumbnail already exists.
func (s *Store) HasFreshThumbnail(name string) bool {
	name, err := sanitize(name)
	if err != nil {
		return false
	}
	srcInfo, err := os.Stat(filepath.Join(s.hdRoot, name))
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(filepath.Join(s.hdRoot, ThumbName(name)))
	return err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime())
}
