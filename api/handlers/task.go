package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/internal/agent"
	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/service/task"
	"github.com/feichai0017/pdf-task-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

type TaskHandler struct {
	service task.TaskProcessor
	logger  logger.Logger
}

func NewTaskHandler(service task.TaskProcessor, log logger.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  log,
	}
}

// ExtractText 提取文本
func (h *TaskHandler) ExtractText(c *gin.Context) {
	var req validator.ExtractTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.submit(c, models.TaskTypeExtractText, req.FileIDs, models.TaskParams{}, "Failed to start text extraction")
}

// Merge 合并 PDF
func (h *TaskHandler) Merge(c *gin.Context) {
	var req validator.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	params := models.TaskParams{OutputFilename: agent.MergeFilename(req.OutputFilename)}
	h.submit(c, models.TaskTypeMerge, req.FileIDs, params, "Failed to start PDF merging")
}

// ConvertToImages 按页拆分
func (h *TaskHandler) ConvertToImages(c *gin.Context) {
	var req validator.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Format == "" {
		req.Format = validator.DefaultImageFormat
	}
	params := models.TaskParams{Format: req.Format}
	h.submit(c, models.TaskTypeConvertToImage, []int64{*req.FileID}, params, "Failed to start PDF to image conversion")
}

// GetTask returns the current snapshot of a task.
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid task ID", nil)
		return
	}

	t, err := h.service.Get(c.Request.Context(), id)
	if errors.Is(err, models.ErrTaskNotFound) {
		handleError(c, h.logger, http.StatusNotFound, "Task not found", nil)
		return
	}
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to get task status", err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) submit(c *gin.Context, taskType models.TaskType, ids []int64, params models.TaskParams, failed string) {
	t, err := h.service.Submit(c.Request.Context(), taskType, ids, params)
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, failed, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (h *TaskHandler) badRequest(c *gin.Context, err error) {
	verr := validator.RequestError(err)
	handleError(c, h.logger, http.StatusBadRequest, verr.Message, verr)
}
