package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/api/handlers"
	"github.com/feichai0017/pdf-task-processor/api/middleware"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// Options 路由配置
type Options struct {
	BasePath     string
	AllowOrigins []string
	Logger       logger.Logger
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	// 全局中间件
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowOrigins))

	r.GET("/health", h.Health.HealthCheck)

	base := opts.BasePath
	if base == "" {
		base = "/api"
	}
	api := r.Group(base)

	// 文件路由
	{
		api.GET("/files", h.File.ListFiles)
		api.POST("/upload", h.File.Upload)
		api.DELETE("/files/:id", h.File.DeleteFile)
		api.GET("/files/:id/view", h.File.ViewFile)
		api.GET("/files/:id/download", h.File.DownloadFile)
	}

	// 任务路由
	{
		api.POST("/extract-text", h.Task.ExtractText)
		api.POST("/merge", h.Task.Merge)
		api.POST("/convert-to-images", h.Task.ConvertToImages)
		api.GET("/tasks/:id", h.Task.GetTask)
		api.GET("/results/:id", h.File.DownloadResult)
	}
}
