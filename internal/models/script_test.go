// internal/models/script_test.go
package models

import (
	"encoding/json"
	"testing"
)

// TestLooseValueUnmarshal 测试 panel_number 的宽松解析
func TestLooseValueUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantInt int
		wantOK  bool
	}{
		{"数字", `3`, 3, true},
		{"数字字符串", `"2"`, 2, true},
		{"小数形式的整数", `"2.0"`, 2, true},
		{"浮点数", `2.0`, 2, true},
		{"非数字字符串", `"abc"`, 0, false},
		{"空字符串", `""`, 0, false},
		{"空白字符串", `"  "`, 0, false},
		{"null", `null`, 0, false},
		{"真小数", `"2.5"`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v LooseValue
			if err := json.Unmarshal([]byte(tt.input), &v); err != nil {
				t.Fatalf("解析 %s 不应该失败: %v", tt.input, err)
			}

			n, ok := v.Int()
			if ok != tt.wantOK {
				t.Fatalf("Int() 可转换标志 = %v, 期望 %v (输入 %s)", ok, tt.wantOK, tt.input)
			}
			if ok && n != tt.wantInt {
				t.Errorf("Int() = %d, 期望 %d (输入 %s)", n, tt.wantInt, tt.input)
			}
		})
	}
}

// TestNormalizeRows 测试原始行归一化
func TestNormalizeRows(t *testing.T) {
	rows := []RawRow{
		{ID: "1_0", PanelNumber: NewLooseValue("1"), Characters: []string{"ユキ"}, Dialogue: "おはよう"},
		{ID: "2_0", PanelNumber: NewLooseValue("2"), Dialogue: "..."},
		{ID: "bad_0", PanelNumber: NewLooseValue("abc"), Dialogue: "不应出现"},
		{ID: "3_0", PanelNumber: NewLooseValue(""), Dialogue: "也不应出现"},
		{ID: "4_0", PanelNumber: NewLooseValue("4.0"), Dialogue: "保留"},
	}

	lines := NormalizeRows(rows)

	if len(lines) != 3 {
		t.Fatalf("归一化后应该剩 3 行, 实际 %d 行", len(lines))
	}

	// 无法转换 panel_number 的行被整行丢弃，顺序保持输入顺序
	wantIDs := []string{"1_0", "2_0", "4_0"}
	for i, want := range wantIDs {
		if lines[i].ID != want {
			t.Errorf("第 %d 行ID = %s, 期望 %s", i, lines[i].ID, want)
		}
	}

	if lines[2].PanelNumber != 4 {
		t.Errorf(`"4.0" 应该转换为 4, 实际 %d`, lines[2].PanelNumber)
	}

	// nil 的角色列表归一化为空切片
	if lines[1].Characters == nil {
		t.Error("缺失的角色列表应该归一化为空切片而不是 nil")
	}

	// 未分配配音显示为空字符串
	if lines[0].VoiceID != "" {
		t.Errorf("未分配配音应该是空字符串, 实际 %q", lines[0].VoiceID)
	}
}

// TestSpeakingCharacter 测试说话角色取值
func TestSpeakingCharacter(t *testing.T) {
	tests := []struct {
		name       string
		characters []string
		want       string
	}{
		{"单角色", []string{"ユキ"}, "ユキ"},
		{"多角色取首位", []string{"タロウ", "ハナ"}, "タロウ"},
		{"空列表", []string{}, "Unknown"},
		{"nil列表", nil, "Unknown"},
		{"首位为空", []string{""}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := ScriptLine{Characters: tt.characters}
			if got := line.SpeakingCharacter(); got != tt.want {
				t.Errorf("SpeakingCharacter() = %q, 期望 %q", got, tt.want)
			}
		})
	}
}

// TestLineIDParts 测试行ID拆分
func TestLineIDParts(t *testing.T) {
	panel, index, err := LineIDParts("12_3")
	if err != nil {
		t.Fatalf("拆分合法行ID不应该失败: %v", err)
	}
	if panel != "12" || index != "3" {
		t.Errorf("拆分结果 = (%s, %s), 期望 (12, 3)", panel, index)
	}

	// 第二段可以再包含下划线（只按第一个下划线拆分）
	panel, index, err = LineIDParts("5_2_x")
	if err != nil {
		t.Fatalf("拆分不应该失败: %v", err)
	}
	if panel != "5" || index != "2_x" {
		t.Errorf("拆分结果 = (%s, %s), 期望 (5, 2_x)", panel, index)
	}

	for _, bad := range []string{"", "nounderscore", "_3", "12_"} {
		if _, _, err := LineIDParts(bad); err == nil {
			t.Errorf("拆分 %q 应该失败", bad)
		}
	}
}

// TestViewRangeContains 测试可见窗口判断
func TestViewRangeContains(t *testing.T) {
	r := ViewRange{Start: 3, End: 7}

	for _, panel := range []int{3, 5, 7} {
		if !r.Contains(panel) {
			t.Errorf("panel %d 应该在 [3,7] 窗口内", panel)
		}
	}
	for _, panel := range []int{2, 8, 0, -1} {
		if r.Contains(panel) {
			t.Errorf("panel %d 不应该在 [3,7] 窗口内", panel)
		}
	}

	// start > end 表示空窗口，任何 panel 都不在其中
	empty := ViewRange{Start: 7, End: 3}
	for _, panel := range []int{3, 5, 7} {
		if empty.Contains(panel) {
			t.Errorf("空窗口不应该包含 panel %d", panel)
		}
	}
}
