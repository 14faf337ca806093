// internal/models/export.go
package models

import (
	"time"
)

// ExportResult 音频打包导出结果
type ExportResult struct {
	SessionID    string    `json:"session_id"`
	EpisodeLabel string    `json:"episode_label"`
	Filename     string    `json:"filename"` // 如 Episode_7_Audio_Export.zip
	EntryCount   int       `json:"entry_count"`
	Entries      []string  `json:"entries"` // 归档内的条目文件名
	Archive      []byte    `json:"-"`
	FileSize     int64     `json:"file_size"`
	GeneratedAt  time.Time `json:"generated_at"`
}
