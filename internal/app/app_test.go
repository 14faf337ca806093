// internal/app/app_test.go
package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/motionx/DubDirector/internal/config"
	"github.com/motionx/DubDirector/internal/di"
	"github.com/motionx/DubDirector/internal/services"
)

// 测试前的设置工作
func setupTest(t *testing.T) string {
	// 重置全局应用实例
	instance = nil

	// 创建临时测试目录
	tempDir, err := os.MkdirTemp("", "app_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}

	os.MkdirAll(filepath.Join(tempDir, "logs"), 0755)

	os.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	os.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))

	return tempDir
}

// 测试后的清理工作
func cleanupTest(tempDir string) {
	os.RemoveAll(tempDir)
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("LOG_DIR")
	instance = nil
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	// 重置全局实例
	instance = nil

	// 获取应用实例
	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}

	// 再次调用，应该返回相同的实例（单例模式）
	app2 := GetApp()
	if app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}

	// 验证stopChan已初始化
	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}
}

// TestInitServices 测试服务初始化与注册
func TestInitServices(t *testing.T) {
	tempDir := setupTest(t)
	defer cleanupTest(tempDir)

	// 重置容器
	di.GetContainer().Clear()

	// 初始化配置系统
	if err := config.InitConfig(filepath.Join(tempDir, "data")); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	if err := InitServices(); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}

	container := di.GetContainer()

	// 验证所有关键服务都已注册
	for _, name := range []string{"scriptstore", "emotion", "tts", "voice", "upload", "export", "director"} {
		if container.Get(name) == nil {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}

	// 会话服务应该已接上事件通知
	director, ok := container.Get("director").(*services.DirectorService)
	if !ok {
		t.Fatal("director 服务类型不正确")
	}
	if director.Notifier == nil {
		t.Error("会话服务的事件通知应该已被注入")
	}

	// 配置文件已创建
	configFilePath := filepath.Join(tempDir, "data", "config.json")
	if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
		t.Error("配置文件应该已被创建")
	}
}

// TestCreateDirectories 测试目录创建
func TestCreateDirectories(t *testing.T) {
	tempDir := setupTest(t)
	defer cleanupTest(tempDir)

	cfg := &config.Config{
		DataDir: filepath.Join(tempDir, "newdata"),
		LogDir:  filepath.Join(tempDir, "newlogs"),
	}

	if err := CreateDirectories(cfg); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("目录 %s 应该已被创建", dir)
		}
	}
}
