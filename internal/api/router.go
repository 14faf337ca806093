// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/motionx/DubDirector/internal/config"
	"github.com/motionx/DubDirector/internal/di"
	"github.com/motionx/DubDirector/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// ✅ 只从容器获取服务，不再创建新实例
	directorService, ok := container.Get("director").(*services.DirectorService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	voiceService, ok := container.Get("voice").(*services.VoiceService)
	if !ok {
		return nil, fmt.Errorf("声音目录服务未正确初始化")
	}

	uploadService, ok := container.Get("upload").(*services.UploadService)
	if !ok {
		return nil, fmt.Errorf("上传服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	// ✅ 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		directorService,
		voiceService,
		uploadService,
		exportService,
	)

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// WebSocket 支持
	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// ===============================
		// 声音目录
		// ===============================
		api.GET("/voices", handler.GetVoices)

		// ===============================
		// 会话相关路由
		// ===============================
		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.POST("/upload", handler.UploadSession)
			sessionsGroup.GET("/:id", handler.GetSession)
			sessionsGroup.DELETE("/:id", handler.CloseSession)

			// 视图与选择
			sessionsGroup.PUT("/:id/view-range", handler.SetViewRange)
			sessionsGroup.POST("/:id/lines/:line_id/selection", handler.ToggleSelection)
			sessionsGroup.POST("/:id/selection/toggle-all", handler.ToggleSelectAllInView)

			// 配音指派
			sessionsGroup.PUT("/:id/lines/:line_id/voice", handler.SetVoice)
			sessionsGroup.POST("/:id/cast", handler.CastVoice)

			// 情绪分类与语音合成
			sessionsGroup.POST("/:id/emotions", handler.RequestEmotionTags)
			sessionsGroup.POST("/:id/audio", handler.RequestAudio)

			// 播放与音频
			sessionsGroup.POST("/:id/playback/toggle", handler.TogglePlayback)
			sessionsGroup.POST("/:id/playback/ended", handler.PlaybackEnded)
			sessionsGroup.GET("/:id/audio/:line_id", handler.GetLineAudio)

			// 导出
			sessionsGroup.GET("/:id/export", handler.ExportAudio)
		}

		// WebSocket 管理路由
		wsGroup := api.Group("/ws")
		{
			wsGroup.GET("/status", handler.GetWebSocketStatus)
		}
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
