package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"photoprint-backend/internal/models"
	"photoprint-backend/internal/tasks"
)

type MeituHandler struct {
	manager *tasks.Manager
}

func NewMeituHandler(m *tasks.Manager) *MeituHandler {
	return &MeituHandler{manager: m}
}

// Recheck godoc
// @Summary     Re-query an async beautification task
// @Description Forces a result query for a meitu-async task whose callback never arrived. On success the artifact is downloaded and the task completes.
// @Tags        meitu
// @Produce     json
// @Security    Bearer
// @Param       id path int true "Task ID"
// @Success     202 {object} models.HealthResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /meitu/tasks/{id}/recheck [post]
func (h *MeituHandler) Recheck(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}
	if err := h.manager.QueryMeitu(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.HealthResponse{Status: "rechecked"})
}

// Callback godoc
// @Summary     Beautification provider result callback
// @Description Receives the pushed result for an async beautification submission, matched by msg_id. Unauthenticated: the msg_id is the shared secret.
// @Tags        meitu
// @Accept      json
// @Produce     json
// @Param       payload body models.MeituCallback true "Provider callback"
// @Success     200 {object} models.HealthResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /meitu/callback [post]
func (h *MeituHandler) Callback(c *gin.Context) {
	var cb models.MeituCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid callback body", Message: err.Error()})
		return
	}
	if err := h.manager.HandleCallback(c.Request.Context(), cb); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}
