// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 协作服务端点
	ScriptAPIBase  string `json:"script_api_base"`  // 远端剧本存储
	EmotionAPIBase string `json:"emotion_api_base"` // 情绪分类服务
	TTSAPIBase     string `json:"tts_api_base"`     // 语音合成服务
	UploadAPIBase  string `json:"upload_api_base"`  // 表格上传解析服务
	VoiceAPIBase   string `json:"voice_api_base"`   // 配音演员目录服务

	TTSAPIKey string `json:"tts_api_key,omitempty"`
}

// Config 存储应用基础配置
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool

	ScriptAPIBase  string
	EmotionAPIBase string
	TTSAPIBase     string
	UploadAPIBase  string
	VoiceAPIBase   string
	TTSAPIKey      string
}

// 原型后端的默认地址，所有协作服务未配置时都指向它
const defaultAPIBase = "http://127.0.0.1:8000"

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "8080"),
		DataDir:   getEnvPath("DATA_DIR", "data"),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		ScriptAPIBase:  getEnv("SCRIPT_API_BASE", defaultAPIBase),
		EmotionAPIBase: getEnv("EMOTION_API_BASE", defaultAPIBase),
		TTSAPIBase:     getEnv("TTS_API_BASE", defaultAPIBase),
		UploadAPIBase:  getEnv("UPLOAD_API_BASE", defaultAPIBase),
		VoiceAPIBase:   getEnv("VOICE_API_BASE", defaultAPIBase),
		TTSAPIKey:      getEnv("TTS_API_KEY", ""),
	}

	if config.TTSAPIKey == "" {
		// 只记录警告，不返回错误；部分合成后端不做鉴权
		log.Println("警告: 未设置TTS API密钥，若合成服务要求鉴权则合成请求会失败")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	// 加载基础配置
	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:           baseConfig.Port,
		DataDir:        baseConfig.DataDir,
		LogDir:         baseConfig.LogDir,
		DebugMode:      baseConfig.DebugMode,
		ScriptAPIBase:  baseConfig.ScriptAPIBase,
		EmotionAPIBase: baseConfig.EmotionAPIBase,
		TTSAPIBase:     baseConfig.TTSAPIBase,
		UploadAPIBase:  baseConfig.UploadAPIBase,
		VoiceAPIBase:   baseConfig.VoiceAPIBase,
		TTSAPIKey:      baseConfig.TTSAPIKey,
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的服务端点设置，但使用最新的基础配置
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 如果文件中没有API密钥，使用环境变量的密钥
				if savedConfig.TTSAPIKey == "" {
					savedConfig.TTSAPIKey = baseConfig.TTSAPIKey
				}

				currentConfig = &savedConfig
			}
		}
	}

	// 保存初始配置到文件
	return SaveConfig()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:           baseConfig.Port,
			DataDir:        baseConfig.DataDir,
			LogDir:         baseConfig.LogDir,
			DebugMode:      baseConfig.DebugMode,
			ScriptAPIBase:  baseConfig.ScriptAPIBase,
			EmotionAPIBase: baseConfig.EmotionAPIBase,
			TTSAPIBase:     baseConfig.TTSAPIBase,
			UploadAPIBase:  baseConfig.UploadAPIBase,
			VoiceAPIBase:   baseConfig.VoiceAPIBase,
			TTSAPIKey:      baseConfig.TTSAPIKey,
		}
	}

	// 返回配置的副本
	configCopy := *currentConfig
	return &configCopy
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
