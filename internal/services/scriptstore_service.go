// internal/services/scriptstore_service.go
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

// ScriptStoreService 是远端剧本存储的客户端
// 远端存储是剧本数据的系统记录，会话中的内存副本只是可能过期的缓存
type ScriptStoreService struct {
	BaseURL string
	client  *http.Client
}

// NewScriptStoreService 创建剧本存储客户端
func NewScriptStoreService(baseURL string) *ScriptStoreService {
	return &ScriptStoreService{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ScriptStoreService) scriptURL(seriesID, episodeID string) string {
	return fmt.Sprintf("%s/series/%s/episodes/%s/script", s.BaseURL, seriesID, episodeID)
}

// LoadScript 拉取某一集已保存的剧本
// 该集尚未保存过剧本时返回 not_found，调用方应视为"还没有数据"而非致命错误
func (s *ScriptStoreService) LoadScript(ctx context.Context, seriesID, episodeID string) ([]models.ScriptLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.scriptURL(seriesID, episodeID), nil)
	if err != nil {
		return nil, apperrors.NewTransportError("构建剧本加载请求失败", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("剧本加载请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("该集尚未保存剧本", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("剧本加载失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	var response struct {
		Script []models.ScriptLine `json:"script"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewTransportError("解析剧本响应失败", err)
	}

	return response.Script, nil
}

// SaveScript 批量创建/覆盖该集的持久化剧本
// 只在表格上传后立即调用一次
func (s *ScriptStoreService) SaveScript(ctx context.Context, seriesID, episodeID string, lines []models.ScriptLine) error {
	payload := map[string]interface{}{"data": lines}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewPersistenceError("序列化剧本失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.scriptURL(seriesID, episodeID), bytes.NewBuffer(jsonData))
	if err != nil {
		return apperrors.NewPersistenceError("构建剧本保存请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewPersistenceError("剧本保存请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.NewPersistenceError(
			fmt.Sprintf("剧本保存失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	return nil
}

// PatchLine 持久化某一行的部分字段更新（voice_id 和/或 suggested_emotion）
// 调用方不因失败回滚本地乐观更新，只记录并通知
func (s *ScriptStoreService) PatchLine(ctx context.Context, seriesID, episodeID, lineID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(fields)
	if err != nil {
		return apperrors.NewPersistenceError("序列化行更新失败", err)
	}

	url := fmt.Sprintf("%s/%s", s.scriptURL(seriesID, episodeID), lineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return apperrors.NewPersistenceError("构建行更新请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewPersistenceError("行更新请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.NewPersistenceError(
			fmt.Sprintf("行更新失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	return nil
}
