package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

type HealthHandler struct {
	queue  queue.Queue
	logger logger.Logger
}

func NewHealthHandler(q queue.Queue, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		queue:  q,
		logger: log,
	}
}

// HealthCheck reports liveness and the dispatch queue depth.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.logger.Warn("Queue stats unavailable", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"queue":  stats,
	})
}
