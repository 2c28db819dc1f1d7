// Package artifact is the filesystem-backed binary store for effect and
// final images. Filenames are unique by construction so concurrent writers
// never collide.
package artifact

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photoprint-backend/internal/models"
)

// Store keeps HD (effect) images and final print-ready images under two
// root directories and maps filenames to public serving paths.
type Store struct {
	hdRoot    string
	finalRoot string
}

func NewStore(hdRoot, finalRoot string) (*Store, error) {
	for _, dir := range []string{hdRoot, finalRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact root %s: %w", dir, err)
		}
	}
	return &Store{hdRoot: hdRoot, finalRoot: finalRoot}, nil
}

func (s *Store) HDRoot() string    { return s.hdRoot }
func (s *Store) FinalRoot() string { return s.finalRoot }

// sanitize rejects path traversal in caller-supplied filenames.
func sanitize(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", models.Validationf("invalid artifact filename %q", name)
	}
	return name, nil
}

// Put writes bytes under the HD root, failing if the name escapes it.
func (s *Store) Put(name string, r io.Reader) (string, error) {
	name, err := sanitize(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.hdRoot, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact %s: %w", name, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return path, nil
}

func (s *Store) Get(name string) (io.ReadCloser, error) {
	name, err := sanitize(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.hdRoot, name))
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	return f, err
}

func (s *Store) Exists(name string) bool {
	name, err := sanitize(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(s.hdRoot, name))
	return err == nil
}

// Path returns the on-disk location without checking existence.
func (s *Store) Path(name string) (string, error) {
	name, err := sanitize(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.hdRoot, name), nil
}

// URLFor maps a stored filename to its public serving path.
func (s *Store) URLFor(name string) string {
	return "/public/hd/" + url.PathEscape(name)
}

func (s *Store) Delete(name string) error {
	name, err := sanitize(name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.hdRoot, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// EffectFilename builds the deterministic name for a generated effect
// image: <order>_effect_<YYYYMMDD_HHMMSS>_<seq>_<original>.<ext>.
func EffectFilename(orderNumber string, at time.Time, seq int, original string) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(filepath.Base(original), ext)
	if base == "" {
		base = "image"
	}
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s_effect_%s_%d_%s%s",
		orderNumber, at.Format("20060102_150405"), seq, base, ext)
}

// GlobEffect lists stored effect images for an order, newest last.
func (s *Store) GlobEffect(orderNumber string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.hdRoot, orderNumber+"_effect_*"))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.HasSuffix(base, thumbSuffix) {
			continue
		}
		names = append(names, base)
	}
	return names, nil
}
