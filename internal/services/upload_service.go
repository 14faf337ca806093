// internal/services/upload_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
)

// UploadService 把剧本表格转发给外部上传解析服务
// 表格解析本身发生在协作服务里，这里只拿回结构化的原始行
type UploadService struct {
	BaseURL string
	client  *http.Client
}

// NewUploadService 创建上传转发客户端
func NewUploadService(baseURL string) *UploadService {
	return &UploadService{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Upload 转发表格文件，返回解析出的原始行
func (s *UploadService) Upload(ctx context.Context, filename string, file io.Reader) ([]models.RawRow, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, apperrors.NewTransportError("构建上传表单失败", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, apperrors.NewTransportError("读取上传文件失败", err)
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.NewTransportError("关闭上传表单失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/upload", &buf)
	if err != nil {
		return nil, apperrors.NewTransportError("构建上传请求失败", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("上传请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewTransportError(
			fmt.Sprintf("表格上传失败(%d): %s", resp.StatusCode, string(body)), nil)
	}

	var response struct {
		Data []models.RawRow `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewTransportError("解析上传响应失败", err)
	}

	return response.Data, nil
}
