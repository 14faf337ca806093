// internal/services/emotion_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
)

// EmotionService 是外部情绪分类服务的客户端
type EmotionService struct {
	BaseURL string
	client  *http.Client
}

// NewEmotionService 创建情绪分类客户端
func NewEmotionService(baseURL string) *EmotionService {
	return &EmotionService{
		BaseURL: baseURL,
		// 批量分类可能较慢，超时设置得比普通请求宽
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// emotionLine 为分类请求裁剪的行载荷，只发送必要字段以节省token
type emotionLine struct {
	ID          string   `json:"id"`
	PanelNumber int      `json:"panel_number"`
	Dialogue    string   `json:"dialogue"`
	Action      string   `json:"action"`
	SFX         string   `json:"sfx"`
	Characters  []string `json:"characters"`
}

// ClassifyBatch 把一批行提交给分类服务，返回 行ID→情绪标签 的映射
// 批大小由调用方决定，本客户端不做内部分块
// 调用失败时整批都没有结果（传输层面 all-or-nothing）
// 成功响应里缺某行的映射是允许的，合并由调用方按返回的键逐个进行
func (s *EmotionService) ClassifyBatch(ctx context.Context, lines []models.ScriptLine) (map[string]string, error) {
	payload := struct {
		Lines []emotionLine `json:"lines"`
	}{
		Lines: make([]emotionLine, 0, len(lines)),
	}
	for _, line := range lines {
		payload.Lines = append(payload.Lines, emotionLine{
			ID:          line.ID,
			PanelNumber: line.PanelNumber,
			Dialogue:    line.Dialogue,
			Action:      line.Action,
			SFX:         line.SFX,
			Characters:  line.Characters,
		})
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewClassificationError("序列化分类请求失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/analyze_emotions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperrors.NewClassificationError("构建分类请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewClassificationError("情绪分类请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewClassificationError(
			fmt.Sprintf("情绪分类失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	// 响应形如 { "1_0": "[Angry]", "1_1": "[Sad]" }
	var tags map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, apperrors.NewClassificationError("解析分类响应失败", err)
	}

	return tags, nil
}
