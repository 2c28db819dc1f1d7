package handlers_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/handlers"
)

func filesRouter(t *testing.T) (*gin.Engine, *artifact.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store, err := artifact.NewStore(filepath.Join(dir, "hd"), filepath.Join(dir, "final"))
	require.NoError(t, err)

	router := gin.New()
	router.GET("/public/hd/:filename", handlers.NewFilesHandler(store).ServeHD)
	return router, store
}

func putJPEG(t *testing.T, store *artifact.Store, name string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	_, err := store.Put(name, &buf)
	require.NoError(t, err)
}

func TestServeHD_Original(t *testing.T) {
	router, store := filesRouter(t)
	putJPEG(t, store, "photo.jpg")

	req, _ := http.NewRequest("GET", "/public/hd/photo.jpg", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.Exists(artifact.ThumbName("photo.jpg")))
}

func TestServeHD_PreviewGeneratesThumbnail(t *testing.T) {
	router, store := filesRouter(t)
	putJPEG(t, store, "photo.jpg")

	req, _ := http.NewRequest("GET", "/public/hd/photo.jpg?preview=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, store.Exists(artifact.ThumbName("photo.jpg")))
}

func TestServeHD_PreviewFalseServesOriginal(t *testing.T) {
	router, store := filesRouter(t)
	putJPEG(t, store, "photo.jpg")

	// ?preview=0 is not a preview request and must not touch the thumbnail.
	req, _ := http.NewRequest("GET", "/public/hd/photo.jpg?preview=0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.Exists(artifact.ThumbName("photo.jpg")))
}

func TestServeHD_Missing(t *testing.T) {
	router, _ := filesRouter(t)

	req, _ := http.NewRequest("GET", "/public/hd/nope.jpg", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
