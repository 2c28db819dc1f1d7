package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/tasks"
)

type TasksHandler struct {
	db      *database.Client
	manager *tasks.Manager
}

func NewTasksHandler(db *database.Client, m *tasks.Manager) *TasksHandler {
	return &TasksHandler{db: db, manager: m}
}

// Submit godoc
// @Summary     Submit an AI task for an order
// @Description Records a pending AI task for the chosen style and enqueues it. Re-submitting while an identical task is still running returns the existing task id.
// @Tags        tasks
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Order ID"
// @Success     202 {object} map[string]int64
// @Failure     400 {object} models.ErrorResponse
// @Router      /orders/{id}/tasks [post]
func (h *TasksHandler) Submit(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid order id"})
		return
	}
	var req struct {
		StyleImageID int64    `json:"style_image_id" binding:"required"`
		InputImages  []string `json:"input_images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	inputs := req.InputImages
	if len(inputs) == 0 {
		// Default to the order's stored input photos.
		images, err := h.db.ListOrderImages(c.Request.Context(), orderID)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, img := range images {
			inputs = append(inputs, img.Path)
		}
	}

	taskID, err := h.manager.Submit(c.Request.Context(), orderID, req.StyleImageID, inputs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// Cancel godoc
// @Summary     Cancel an AI task
// @Description Terminalises a non-finished task. When a provider handle exists, a best-effort provider cancel is attempted first.
// @Tags        tasks
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Task ID"
// @Success     200 {object} models.HealthResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /tasks/{id}/cancel [post]
func (h *TasksHandler) Cancel(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}
	if err := h.manager.Cancel(c.Request.Context(), taskID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "cancelled"})
}

// Poll godoc
// @Summary     Poll an AI task
// @Description Forces a provider status query for a task with an external handle.
// @Tags        tasks
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Task ID"
// @Success     202 {object} models.HealthResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /tasks/{id}/poll [post]
func (h *TasksHandler) Poll(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}
	if err := h.manager.Poll(c.Request.Context(), taskID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.HealthResponse{Status: "polled"})
}
