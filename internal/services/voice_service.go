// internal/services/voice_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
)

// VoiceService 提供配音演员目录
// 目录由协作服务完整提供，本服务只读并做内存缓存
type VoiceService struct {
	BaseURL string
	client  *http.Client

	mutex       sync.RWMutex
	cached      []models.Voice
	cachedAt    time.Time
	cacheExpiry time.Duration
}

// NewVoiceService 创建配音目录客户端
func NewVoiceService(baseURL string) *VoiceService {
	return &VoiceService{
		BaseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		cacheExpiry: 10 * time.Minute,
	}
}

// ListVoices 返回配音演员列表，命中缓存时不发请求
func (s *VoiceService) ListVoices(ctx context.Context) ([]models.Voice, error) {
	s.mutex.RLock()
	if s.cached != nil && time.Since(s.cachedAt) < s.cacheExpiry {
		voices := s.cached
		s.mutex.RUnlock()
		return voices, nil
	}
	s.mutex.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/voices", nil)
	if err != nil {
		return nil, apperrors.NewTransportError("构建目录请求失败", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("配音目录请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("配音目录获取失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	var response struct {
		Voices []models.Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewTransportError("解析配音目录失败", err)
	}

	s.mutex.Lock()
	s.cached = response.Voices
	s.cachedAt = time.Now()
	s.mutex.Unlock()

	return response.Voices, nil
}
