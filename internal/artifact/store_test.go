package artifact_test

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photoprint-backend/internal/artifact"
)

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.NewStore(filepath.Join(dir, "hd"), filepath.Join(dir, "final"))
	require.NoError(t, err)
	return store
}

func TestStore_PutGetExistsDelete(t *testing.T) {
	store := newStore(t)

	_, err := store.Put("photo.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.True(t, store.Exists("photo.jpg"))

	rc, err := store.Get("photo.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, store.Delete("photo.jpg"))
	assert.False(t, store.Exists("photo.jpg"))

	// Deleting an absent file is not an error.
	assert.NoError(t, store.Delete("photo.jpg"))
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	store := newStore(t)
	for _, name := range []string{"../escape.jpg", "a/b.jpg", "..", ""} {
		_, err := store.Put(name, strings.NewReader("x"))
		assert.Error(t, err, "name %q", name)
	}
}

func TestStore_URLFor(t *testing.T) {
	store := newStore(t)
	assert.Equal(t, "/public/hd/a.jpg", store.URLFor("a.jpg"))
	assert.Equal(t, "/public/hd/PP1_effect_%3F.jpg", store.URLFor("PP1_effect_?.jpg"))
}

func TestEffectFilename(t *testing.T) {
	at := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)

	name := artifact.EffectFilename("PP20260828150000-0001", at, 3, "portrait.png")
	assert.Equal(t, "PP20260828150000-0001_effect_20260828_150405_3_portrait.png", name)

	// Missing extension and base fall back to sane defaults.
	assert.Equal(t, "PP1_effect_20260828_150405_1_portrait.jpg",
		artifact.EffectFilename("PP1", at, 1, "portrait"))
	assert.Equal(t, "PP1_effect_20260828_150405_1_image.jpg",
		artifact.EffectFilename("PP1", at, 1, ""))
}

func TestThumbName(t *testing.T) {
	assert.Equal(t, "a_thumb.jpg", artifact.ThumbName("a.png"))
	assert.Equal(t, "PP1_effect_20260828_150405_1_x_thumb.jpg", artifact.ThumbName("PP1_effect_20260828_150405_1_x.jpg"))
}

func TestGlobEffect_SkipsThumbnailsAndOtherOrders(t *testing.T) {
	store := newStore(t)
	at := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)

	effect := artifact.EffectFilename("PP1", at, 1, "a.jpg")
	_, err := store.Put(effect, strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.Put(artifact.ThumbName(effect), strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.Put(artifact.EffectFilename("PP2", at, 1, "b.jpg"), strings.NewReader("x"))
	require.NoError(t, err)

	names, err := store.GlobEffect("PP1")
	require.NoError(t, err)
	assert.Equal(t, []string{effect}, names)
}
