// internal/services/export_service.go
package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
	"github.com/motionx/DubDirector/internal/utils"
)

// ExportService 把已合成的逐行音频打包为一个可下载的归档
type ExportService struct{}

// NewExportService 创建导出服务
func NewExportService() *ExportService {
	return &ExportService{}
}

// ArchiveFilename 返回归档级文件名，如 Episode_7_Audio_Export.zip
func ArchiveFilename(episodeLabel string) string {
	return fmt.Sprintf("Episode_%s_Audio_Export.zip", episodeLabel)
}

// EntryFilename 返回单条音频的确定性文件名
// 由行ID的两个组成部分（panel 序号、面板内台词序号）和集标签派生
func EntryFilename(episodeLabel, lineID, format string) (string, error) {
	panel, index, err := models.LineIDParts(lineID)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = "mp3"
	}
	return fmt.Sprintf("ep_%s_p_%s_d_%s.%s", episodeLabel, panel, index, format), nil
}

// BuildArchive 打包所有已合成行的音频制品
// 只包含 artifacts 里有条目的行，从未合成过的行被静默排除（不是错误）；
// 没有任何行可导出时返回 export_error，且必须在触碰制品数据之前就检查
func (s *ExportService) BuildArchive(lines []models.ScriptLine, artifacts map[string]*models.AudioArtifact, episodeLabel string) (*models.ExportResult, error) {
	qualified := make([]models.ScriptLine, 0, len(lines))
	for _, line := range lines {
		if _, exists := artifacts[line.ID]; exists {
			qualified = append(qualified, line)
		}
	}

	if len(qualified) == 0 {
		return nil, apperrors.NewExportError("没有可导出的音频，请先为至少一行生成音频", nil)
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	entries := make([]string, 0, len(qualified))
	for _, line := range qualified {
		artifact := artifacts[line.ID]

		name, err := EntryFilename(episodeLabel, line.ID, artifact.Format)
		if err != nil {
			// 行ID不符合 "{panel}_{index}" 约定时跳过该条，不让整包失败
			utils.GetLogger().Warnf("导出时跳过无效行ID: %s: %v", line.ID, err)
			continue
		}

		writer, err := zipWriter.Create(name)
		if err != nil {
			zipWriter.Close()
			return nil, apperrors.NewExportError("创建归档条目失败", err)
		}
		if _, err := writer.Write(artifact.Data); err != nil {
			zipWriter.Close()
			return nil, apperrors.NewExportError("写入归档条目失败", err)
		}
		entries = append(entries, name)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, apperrors.NewExportError("关闭归档失败", err)
	}

	if len(entries) == 0 {
		return nil, apperrors.NewExportError("没有可导出的音频，请先为至少一行生成音频", nil)
	}

	result := &models.ExportResult{
		EpisodeLabel: episodeLabel,
		Filename:     ArchiveFilename(episodeLabel),
		EntryCount:   len(entries),
		Entries:      entries,
		Archive:      buf.Bytes(),
		FileSize:     int64(buf.Len()),
		GeneratedAt:  time.Now(),
	}

	utils.GetLogger().Infof("音频导出完成: %s (条目=%d 大小=%d字节)",
		result.Filename, result.EntryCount, result.FileSize)
	return result, nil
}
