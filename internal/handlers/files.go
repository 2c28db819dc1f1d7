package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/models"
)

type FilesHandler struct {
	store *artifact.Store
}

func NewFilesHandler(store *artifact.Store) *FilesHandler {
	return &FilesHandler{store: store}
}

// ServeHD godoc
// @Summary     Serve a stored image
// @Description Serves an artifact by filename. With ?preview=1 the 1920px thumbnail is served instead, generated on demand when stale or missing.
// @Tags        files
// @Produce     image/jpeg
// @Param       filename path string true "URL-encoded artifact filename"
// @Param       preview query bool false "Serve the thumbnail"
// @Success     200
// @Failure     404 {object} models.ErrorResponse
// @Router      /public/hd/{filename} [get]
func (h *FilesHandler) ServeHD(c *gin.Context) {
	name, err := url.PathUnescape(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid filename"})
		return
	}

	if preview, _ := strconv.ParseBool(c.Query("preview")); preview {
		thumb, err := h.store.EnsureThumbnail(name)
		if err == nil {
			path, perr := h.store.Path(thumb)
			if perr == nil {
				c.File(path)
				return
			}
		}
		// Thumbnail failed; fall through to the original.
	}

	if !h.store.Exists(name) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		return
	}
	path, err := h.store.Path(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.File(path)
}
