// internal/models/script.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScriptLine 表示剧本中的一条台词/动作单元
// ID 在单集内唯一，约定格式为 "{panel}_{index}"
type ScriptLine struct {
	ID               string   `json:"id"`
	PanelNumber      int      `json:"panel_number"`
	Characters       []string `json:"characters"`
	Dialogue         string   `json:"dialogue"`
	Action           string   `json:"action"`
	SFX              string   `json:"sfx"`
	VoiceID          string   `json:"voice_id"`                    // 空字符串表示未分配
	SuggestedEmotion string   `json:"suggested_emotion,omitempty"` // 如 "[Angry]"，空表示显示为 Neutral
}

// SpeakingCharacter 返回该行的说话角色（角色列表的首位）
func (l *ScriptLine) SpeakingCharacter() string {
	if len(l.Characters) > 0 && l.Characters[0] != "" {
		return l.Characters[0]
	}
	return "Unknown"
}

// RawRow 表示上传服务返回的原始行
// panel_number 可能是数字、数字字符串或空白，需要在归一化时强制转换
type RawRow struct {
	ID               string     `json:"id"`
	PanelNumber      LooseValue `json:"panel_number"`
	Characters       []string   `json:"characters"`
	Dialogue         string     `json:"dialogue"`
	Action           string     `json:"action"`
	SFX              string     `json:"sfx"`
	VoiceID          string     `json:"voice_id"`
	SuggestedEmotion string     `json:"suggested_emotion"`
}

// LooseValue 容忍数字或字符串形式的 JSON 值
type LooseValue struct {
	raw string
}

// NewLooseValue 从字符串构造宽松值（测试和上传归一化使用）
func NewLooseValue(raw string) LooseValue {
	return LooseValue{raw: raw}
}

// UnmarshalJSON 实现宽松解析，保留原始文本待归一化时转换
func (v *LooseValue) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		v.raw = asString
		return nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		v.raw = asNumber.String()
		return nil
	}

	// null 或其它类型一律视为不可转换
	v.raw = ""
	return nil
}

// MarshalJSON 按原始文本输出
func (v LooseValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// Int 尝试把值转换为整数
func (v LooseValue) Int() (int, bool) {
	s := strings.TrimSpace(v.raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// 兼容 "2.0" 这类数字字符串
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		n = int(f)
	}
	return n, true
}

// NormalizeRows 把原始行归一化为 ScriptLine 集合
// panel_number 无法转换的行被整行丢弃（与前端观察到的行为一致，不报错）
// 输出顺序等于输入顺序，panel 号只用于过滤，不用于排序
func NormalizeRows(rows []RawRow) []ScriptLine {
	lines := make([]ScriptLine, 0, len(rows))
	for _, row := range rows {
		panel, ok := row.PanelNumber.Int()
		if !ok {
			continue
		}

		characters := row.Characters
		if characters == nil {
			characters = []string{}
		}

		lines = append(lines, ScriptLine{
			ID:               row.ID,
			PanelNumber:      panel,
			Characters:       characters,
			Dialogue:         row.Dialogue,
			Action:           row.Action,
			SFX:              row.SFX,
			VoiceID:          row.VoiceID, // 缺省即空字符串 = 未分配
			SuggestedEmotion: row.SuggestedEmotion,
		})
	}
	return lines
}

// LineIDParts 拆分行ID的两个组成部分（panel 序号与面板内台词序号）
func LineIDParts(lineID string) (panel string, index string, err error) {
	parts := strings.SplitN(lineID, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("行ID格式无效: %q", lineID)
	}
	return parts[0], parts[1], nil
}

// ViewRange 表示当前显示的 panel 号闭区间窗口
// 允许 start > end，此时可见集合为空，不视为错误
type ViewRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains 判断 panel 号是否落在窗口内
func (r ViewRange) Contains(panel int) bool {
	return panel >= r.Start && panel <= r.End
}

// Voice 表示一个配音演员身份（外部只读数据，本服务不创建不修改）
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// AudioArtifact 表示某一行已合成完毕的音频制品
type AudioArtifact struct {
	LineID      string    `json:"line_id"`
	Data        []byte    `json:"-"`
	Format      string    `json:"format"` // 文件扩展名，不含点，如 "mp3"
	URL         string    `json:"url"`    // 可播放地址（由本服务派生）
	GeneratedAt time.Time `json:"generated_at"`
}
