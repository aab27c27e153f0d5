package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/internal/service/file"
	"github.com/feichai0017/pdf-task-processor/internal/service/task"
	"github.com/feichai0017/pdf-task-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/queue"
)

type Handlers struct {
	File   *FileHandler
	Task   *TaskHandler
	Health *HealthHandler
}

func NewHandlers(
	fileService file.FileStore,
	taskService task.TaskProcessor,
	uploads *validator.UploadValidator,
	q queue.Queue,
	maxUploadBytes int64,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		File:   NewFileHandler(fileService, uploads, maxUploadBytes, log),
		Task:   NewTaskHandler(taskService, log),
		Health: NewHealthHandler(q, log),
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse acknowledges a request that returns no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	log = logger.NewContextLogger(log).FromContext(c.Request.Context())
	if status >= 500 {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.AbortWithStatusJSON(status, response)
}

// parseID reads an integer path parameter. Unknown ids are left to the
// lookup, so only non-numeric values fail here.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
