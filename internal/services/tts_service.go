// internal/services/tts_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
)

// TTSService 是外部语音合成服务的客户端
type TTSService struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewTTSService 创建语音合成客户端
func NewTTSService(baseURL, apiKey string) *TTSService {
	return &TTSService{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// SpeechText 由情绪标签和台词构造送合成的文本
// 标签去掉方括号后作为前缀，如 "[Angry]" + "Stop!" → "Angry Stop!"
func SpeechText(tag, dialogue string) string {
	stripped := strings.NewReplacer("[", "", "]", "").Replace(tag)
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return dialogue
	}
	return stripped + " " + dialogue
}

// Synthesize 为一行合成音频，响应体即二进制音频载荷
// 前置条件（非空 voice_id、非空有效情绪标签）由会话控制器保证，这里不重复校验
// 失败由调用方负责重试（用户手动触发"重新生成"）
func (s *TTSService) Synthesize(ctx context.Context, lineID, text, voiceID string) (*models.AudioArtifact, error) {
	payload := map[string]string{
		"text":     text,
		"voice_id": voiceID,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewSynthesisError("序列化合成请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/generate_audio", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperrors.NewSynthesisError("构建合成请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewSynthesisError("语音合成请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewSynthesisError(
			fmt.Sprintf("语音合成失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewSynthesisError("读取音频数据失败", err)
	}
	if len(audioData) == 0 {
		return nil, apperrors.NewSynthesisError("合成服务返回了空音频", nil)
	}

	return &models.AudioArtifact{
		LineID:      lineID,
		Data:        audioData,
		Format:      formatFromContentType(resp.Header.Get("Content-Type")),
		GeneratedAt: time.Now(),
	}, nil
}

// formatFromContentType 从响应的Content-Type推导文件扩展名，默认mp3
func formatFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "mp3"
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return "mp3"
	}
}
