package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
)

// EffectImagesHandler covers the operator path where retouched results are
// uploaded by hand instead of produced by an AI provider.
type EffectImagesHandler struct {
	db     *database.Client
	store  *artifact.Store
	orders *orders.Service
}

func NewEffectImagesHandler(db *database.Client, store *artifact.Store, ord *orders.Service) *EffectImagesHandler {
	return &EffectImagesHandler{db: db, store: store, orders: ord}
}

// Upload godoc
// @Summary     Upload finished effect images for an order
// @Description Stores each uploaded image as a completed AI task result. When the order is in ai_processing and every task has settled, it advances to pending_selection.
// @Tags        effect-images
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Param       images formData file true "Effect images"
// @Success     200 {object} models.TaskListResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /orders/{id}/effect-images [post]
func (h *EffectImagesHandler) Upload(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.db.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid multipart form", Message: err.Error()})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "at least one image is required"})
		return
	}

	now := time.Now()
	resp := models.TaskListResponse{OrderNumber: order.OrderNumber}
	for i, file := range files {
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable upload", Message: err.Error()})
			return
		}
		name := artifact.EffectFilename(order.OrderNumber, now, i+1, file.Filename)
		_, err = h.store.Put(name, src)
		src.Close()
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := h.store.EnsureThumbnail(name); err != nil {
			// Preview only; the full image still serves.
			log.Printf("effect-images: order %s: thumbnail generation for %s failed: %v", order.OrderNumber, name, err)
		}

		task := &models.AITask{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			ProviderKind:    models.KindWorkflow,
			OutputImagePath: sql.NullString{String: name, Valid: true},
			Status:          models.TaskCompleted,
		}
		if err := h.db.CreateCompletedTask(c.Request.Context(), task); err != nil {
			writeError(c, err)
			return
		}
		resp.Tasks = append(resp.Tasks, models.TaskSummary{
			ID:              task.ID,
			ProviderKind:    string(task.ProviderKind),
			Status:          string(task.Status),
			OutputImagePath: name,
			CreatedAt:       now,
		})
	}

	// The first effect image becomes the print candidate until the
	// operator picks another.
	if !order.HDImage.Valid && len(resp.Tasks) > 0 {
		if err := h.db.SetOrderHDImage(c.Request.Context(), order.ID, resp.Tasks[0].OutputImagePath); err != nil {
			writeError(c, err)
			return
		}
	}

	if order.Status == models.StatusAIProcessing {
		if _, err := h.orders.Advance(c.Request.Context(), order.ID, models.StatusPendingSelection, callerActor(c)); err != nil {
			// Other tasks may still be running; the upload itself stands.
			var validation *models.ValidationError
			var conflict *models.StateConflictError
			if !errors.As(err, &validation) && !errors.As(err, &conflict) {
				writeError(c, err)
				return
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Delete godoc
// @Summary     Delete an effect image
// @Description Removes the AI task row (by id) or the stored file (by name), together with its thumbnail. Clears the order's HD image when it pointed at the removed file.
// @Tags        effect-images
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Param       ref path string true "Task ID or filename"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{id}/effect-images/{ref} [delete]
func (h *EffectImagesHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	ref := c.Param("ref")

	filename := ref
	if taskID, err := strconv.ParseInt(ref, 10, 64); err == nil {
		task, err := h.db.GetTask(c.Request.Context(), taskID)
		if err != nil {
			writeError(c, err)
			return
		}
		if task.OrderID != id {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
			return
		}
		filename = task.OutputImagePath.String
		if err := h.db.DeleteTask(c.Request.Context(), taskID); err != nil {
			writeError(c, err)
			return
		}
	}

	if filename != "" {
		if err := h.store.Delete(filename); err != nil {
			writeError(c, err)
			return
		}
		_ = h.store.Delete(artifact.ThumbName(filename))
		if err := h.db.ClearHDImageIfMatches(c.Request.Context(), id, filename); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}
