// internal/services/export_service_test.go
package services

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
)

// TestBuildArchiveEmpty 没有任何可导出音频时返回导出错误
func TestBuildArchiveEmpty(t *testing.T) {
	exporter := NewExportService()

	_, err := exporter.BuildArchive(testLines(), map[string]*models.AudioArtifact{}, "7")
	if !apperrors.IsExportError(err) {
		t.Fatalf("零制品导出应该是 export_error, 实际 %v", err)
	}
}

// TestBuildArchiveNaming 归档与条目的确定性命名
func TestBuildArchiveNaming(t *testing.T) {
	exporter := NewExportService()
	lines := testLines()

	artifacts := map[string]*models.AudioArtifact{
		"1_0": {LineID: "1_0", Data: []byte("take-a"), Format: "mp3"},
		"2_0": {LineID: "2_0", Data: []byte("take-b"), Format: "wav"},
	}

	result, err := exporter.BuildArchive(lines, artifacts, "7")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if result.Filename != "Episode_7_Audio_Export.zip" {
		t.Errorf("归档文件名 = %q, 期望 Episode_7_Audio_Export.zip", result.Filename)
	}
	if result.EntryCount != 2 {
		t.Fatalf("条目数 = %d, 期望 2（没有音频的行被静默排除）", result.EntryCount)
	}

	wantEntries := []string{"ep_7_p_1_d_0.mp3", "ep_7_p_2_d_0.wav"}
	for i, want := range wantEntries {
		if result.Entries[i] != want {
			t.Errorf("条目 %d = %q, 期望 %q", i, result.Entries[i], want)
		}
	}

	// 归档内容可读且与制品数据一致
	reader, err := zip.NewReader(bytes.NewReader(result.Archive), int64(len(result.Archive)))
	if err != nil {
		t.Fatalf("打开归档失败: %v", err)
	}

	contents := make(map[string]string)
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("打开条目 %s 失败: %v", file.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[file.Name] = string(data)
	}

	if contents["ep_7_p_1_d_0.mp3"] != "take-a" {
		t.Errorf("条目内容不匹配: %q", contents["ep_7_p_1_d_0.mp3"])
	}
	if contents["ep_7_p_2_d_0.wav"] != "take-b" {
		t.Errorf("条目内容不匹配: %q", contents["ep_7_p_2_d_0.wav"])
	}
}

// TestEntryFilename 单条音频文件名派生
func TestEntryFilename(t *testing.T) {
	name, err := EntryFilename("12", "3_1", "mp3")
	if err != nil {
		t.Fatalf("派生文件名失败: %v", err)
	}
	if name != "ep_12_p_3_d_1.mp3" {
		t.Errorf("文件名 = %q, 期望 ep_12_p_3_d_1.mp3", name)
	}

	// 缺省格式回落到 mp3
	name, _ = EntryFilename("1", "2_0", "")
	if name != "ep_1_p_2_d_0.mp3" {
		t.Errorf("缺省格式文件名 = %q, 期望 ep_1_p_2_d_0.mp3", name)
	}

	if _, err := EntryFilename("1", "noformat", "mp3"); err == nil {
		t.Error("非法行ID应该派生失败")
	}
}
