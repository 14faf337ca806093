// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motionx/DubDirector/internal/api"
	"github.com/motionx/DubDirector/internal/config"
	"github.com/motionx/DubDirector/internal/di"
	"github.com/motionx/DubDirector/internal/services"
	"github.com/motionx/DubDirector/internal/utils"
)

// App 应用实例，持有 HTTP 服务器和后台清理协程
type App struct {
	Router *gin.Engine
	Server *http.Server

	stopChan    chan struct{}
	janitorOnce sync.Once
}

var instance *App

// 空闲会话回收参数
const (
	sessionMaxIdle     = 30 * time.Minute
	janitorSweepPeriod = 5 * time.Minute
)

// GetApp 获取应用单例
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan struct{}),
		}
	}
	return instance
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	// 初始化日志
	logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("server_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 初始化日志文件失败，仅输出到控制台: %v", err)
	}

	container := di.GetContainer()

	// 远端服务客户端
	storeService := services.NewScriptStoreService(cfg.ScriptAPIBase)
	container.Register("scriptstore", storeService)

	emotionService := services.NewEmotionService(cfg.EmotionAPIBase)
	container.Register("emotion", emotionService)

	ttsService := services.NewTTSService(cfg.TTSAPIBase, cfg.TTSAPIKey)
	container.Register("tts", ttsService)

	voiceService := services.NewVoiceService(cfg.VoiceAPIBase)
	container.Register("voice", voiceService)

	uploadService := services.NewUploadService(cfg.UploadAPIBase)
	container.Register("upload", uploadService)

	// 本地服务
	exportService := services.NewExportService()
	container.Register("export", exportService)

	directorService := services.NewDirectorService(storeService, emotionService, ttsService)
	// 会话事件通过 WebSocket 房间推送给订阅端
	directorService.Notifier = services.NotifierFunc(api.BroadcastSessionEvent)
	container.Register("director", directorService)

	// 启动空闲会话回收
	GetApp().startSessionJanitor(directorService)

	utils.GetLogger().Info("所有服务初始化完成", nil)
	return nil
}

// startSessionJanitor 周期性回收长时间无人访问的会话
func (a *App) startSessionJanitor(director *services.DirectorService) {
	a.janitorOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(janitorSweepPeriod)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if removed := director.CleanupIdleSessions(sessionMaxIdle); removed > 0 {
						utils.GetLogger().Infof("已回收 %d 个空闲会话", removed)
					}
				case <-a.stopChan:
					return
				}
			}
		}()
	})
}

// Run 启动HTTP服务器（阻塞直到服务器退出）
func (a *App) Run(port string) error {
	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}

	a.Router = router
	a.Server = &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	return a.Server.ListenAndServe()
}

// Shutdown 优雅关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	close(a.stopChan)

	if a.Server != nil {
		return a.Server.Shutdown(ctx)
	}
	return nil
}

// CreateDirectories 创建应用所需的目录结构
func CreateDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}
