// internal/services/director_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/motionx/DubDirector/internal/errors"
	"github.com/motionx/DubDirector/internal/models"
	"github.com/motionx/DubDirector/internal/utils"
)

// OpKind 表示一行上的异步操作种类
type OpKind string

const (
	OpEmotion OpKind = "emotion" // 情绪分类
	OpAudio   OpKind = "audio"   // 语音合成
)

// Session 是一集剧本的编辑会话
// lines、selected、viewRange、artifacts、pending 都只在持有 mu 时变更：
// 用户操作和异步回调在锁下交错执行，等价于原型的单控制线程
type Session struct {
	ID           string
	SeriesID     string
	EpisodeID    string
	EpisodeLabel string

	mu         sync.Mutex
	lines      []models.ScriptLine
	index      map[string]int // 行ID → lines 中的位置
	selected   map[string]struct{}
	viewRange  models.ViewRange
	artifacts  map[string]*models.AudioArtifact
	pending    map[string]map[OpKind]struct{}
	playingID  string // 全局唯一的"正在播放"指针，空表示没有播放
	createdAt  time.Time
	lastAccess time.Time
}

// LineView 是行的快照视图，附带派生状态
type LineView struct {
	models.ScriptLine
	Selected   bool     `json:"selected"`
	InView     bool     `json:"in_view"`
	Stage      string   `json:"stage"`
	HasAudio   bool     `json:"has_audio"`
	AudioURL   string   `json:"audio_url,omitempty"`
	PendingOps []string `json:"pending_ops,omitempty"`
}

// 行的派生阶段（不是存储字段，从会话状态推导）
const (
	StageUnprocessed    = "unprocessed"
	StageEmotionPending = "emotion_pending"
	StageTagged         = "tagged"
	StageAudioPending   = "audio_pending"
	StageVoiced         = "voiced"
)

// SessionSnapshot 是会话状态的完整只读快照
type SessionSnapshot struct {
	ID            string           `json:"id"`
	SeriesID      string           `json:"series_id"`
	EpisodeID     string           `json:"episode_id"`
	EpisodeLabel  string           `json:"episode_label"`
	Lines         []LineView       `json:"lines"`
	ViewRange     models.ViewRange `json:"view_range"`
	TotalLines    int              `json:"total_lines"`
	MinPanel      int              `json:"min_panel"`
	MaxPanel      int              `json:"max_panel"`
	SelectedCount int              `json:"selected_count"`
	PlayingID     string           `json:"playing_id,omitempty"`
}

// DirectorService 是剧本会话控制器
// 持有每个会话的内存工作副本，编排分类/合成调用并把结果合并回来，
// 字段变更作为副作用异步持久化到远端剧本存储
type DirectorService struct {
	Store    *ScriptStoreService
	Emotion  *EmotionService
	TTS      *TTSService
	Notifier SessionNotifier

	sessions map[string]*Session
	mutex    sync.RWMutex
}

// NewDirectorService 创建会话控制器
func NewDirectorService(store *ScriptStoreService, emotion *EmotionService, tts *TTSService) *DirectorService {
	return &DirectorService{
		Store:    store,
		Emotion:  emotion,
		TTS:      tts,
		sessions: make(map[string]*Session),
	}
}

func (s *DirectorService) notify(sessionID string, event map[string]interface{}) {
	if s.Notifier != nil {
		s.Notifier.Notify(sessionID, event)
	}
}

// ------------------------------------------------
// 会话生命周期

// OpenSession 为一集打开编辑会话，从远端存储加载剧本
// 该集还没有剧本时（not_found）按空会话处理，不算错误
func (s *DirectorService) OpenSession(ctx context.Context, seriesID, episodeID, episodeLabel string) (*SessionSnapshot, error) {
	lines, err := s.Store.LoadScript(ctx, seriesID, episodeID)
	if err != nil {
		if !apperrors.IsNotFoundError(err) {
			return nil, err
		}
		lines = nil
	}

	session := s.seedSession(seriesID, episodeID, episodeLabel, lines)
	utils.GetLogger().Infof("会话已打开: %s (series=%s episode=%s 行数=%d)",
		session.ID, seriesID, episodeID, len(lines))
	return s.Snapshot(session.ID)
}

// OpenSessionFromUpload 用新上传解析出的原始行创建会话
// 归一化后整体保存到远端存储（上传后唯一一次 SaveScript）
// 保存失败不回滚本地会话，只通知——本地状态领先于远端是已接受的不一致
func (s *DirectorService) OpenSessionFromUpload(ctx context.Context, seriesID, episodeID, episodeLabel string, rows []models.RawRow) (*SessionSnapshot, error) {
	lines := models.NormalizeRows(rows)
	session := s.seedSession(seriesID, episodeID, episodeLabel, lines)

	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Store.SaveScript(saveCtx, seriesID, episodeID, lines); err != nil {
			utils.GetLogger().Errorf("剧本批量保存失败 (session=%s): %v", session.ID, err)
			s.notify(session.ID, map[string]interface{}{
				"type":  EventPersistFailed,
				"error": err.Error(),
			})
		}
	}()

	utils.GetLogger().Infof("会话已从上传创建: %s (原始行=%d 有效行=%d)",
		session.ID, len(rows), len(lines))
	return s.Snapshot(session.ID)
}

// seedSession 构建会话并注册，视图窗口默认取 panel 号的 [min, max]
func (s *DirectorService) seedSession(seriesID, episodeID, episodeLabel string, lines []models.ScriptLine) *Session {
	if episodeLabel == "" {
		episodeLabel = episodeID
	}

	session := &Session{
		ID:           uuid.NewString(),
		SeriesID:     seriesID,
		EpisodeID:    episodeID,
		EpisodeLabel: episodeLabel,
		index:        make(map[string]int),
		selected:     make(map[string]struct{}),
		artifacts:    make(map[string]*models.AudioArtifact),
		pending:      make(map[string]map[OpKind]struct{}),
		createdAt:    time.Now(),
		lastAccess:   time.Now(),
	}

	for _, line := range lines {
		if _, exists := session.index[line.ID]; exists {
			// 行ID在单集内必须唯一，重复的后来者被丢弃
			utils.GetLogger().Warnf("丢弃重复行ID: %s (session=%s)", line.ID, session.ID)
			continue
		}
		session.index[line.ID] = len(session.lines)
		session.lines = append(session.lines, line)
	}

	session.viewRange = defaultViewRange(session.lines)

	s.mutex.Lock()
	s.sessions[session.ID] = session
	s.mutex.Unlock()

	return session
}

func defaultViewRange(lines []models.ScriptLine) models.ViewRange {
	if len(lines) == 0 {
		return models.ViewRange{Start: 1, End: 1}
	}
	min, max := lines[0].PanelNumber, lines[0].PanelNumber
	for _, line := range lines[1:] {
		if line.PanelNumber < min {
			min = line.PanelNumber
		}
		if line.PanelNumber > max {
			max = line.PanelNumber
		}
	}
	return models.ViewRange{Start: min, End: max}
}

// CloseSession 丢弃会话（用户离开该集编辑页）
func (s *DirectorService) CloseSession(sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return apperrors.NewNotFoundError("会话不存在", nil)
	}
	delete(s.sessions, sessionID)
	return nil
}

// CleanupIdleSessions 清理长时间未访问的会话
func (s *DirectorService) CleanupIdleSessions(maxIdle time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, session := range s.sessions {
		session.mu.Lock()
		idle := now.Sub(session.lastAccess)
		session.mu.Unlock()

		if idle > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// getSession 查找会话并刷新访问时间
func (s *DirectorService) getSession(sessionID string) (*Session, error) {
	s.mutex.RLock()
	session, exists := s.sessions[sessionID]
	s.mutex.RUnlock()

	if !exists {
		return nil, apperrors.NewNotFoundError("会话不存在", nil)
	}

	session.mu.Lock()
	session.lastAccess = time.Now()
	session.mu.Unlock()

	return session, nil
}

// ------------------------------------------------
// 纯状态操作：视图窗口与选择

// SetViewRange 设置 panel 号显示窗口
// 任意整数都接受，start > end 时可见集合为空，不做钳制
func (s *DirectorService) SetViewRange(sessionID string, start, end int) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.viewRange = models.ViewRange{Start: start, End: end}
	session.mu.Unlock()
	return nil
}

// ToggleSelection 切换单行选中状态
// 对不存在的行ID是空操作而非错误
func (s *DirectorService) ToggleSelection(sessionID, lineID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if _, exists := session.index[lineID]; !exists {
		return nil
	}
	if _, selected := session.selected[lineID]; selected {
		delete(session.selected, lineID)
	} else {
		session.selected[lineID] = struct{}{}
	}
	return nil
}

// ToggleSelectAllInView 切换当前窗口内所有行的选中状态
// "全部已选"只对通过窗口过滤的行计算：已全选则取消这部分，否则补选剩余的，
// 窗口外的选择永远不被触碰
func (s *DirectorService) ToggleSelectAllInView(sessionID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	inView := make([]string, 0)
	allSelected := true
	for _, line := range session.lines {
		if !session.viewRange.Contains(line.PanelNumber) {
			continue
		}
		inView = append(inView, line.ID)
		if _, selected := session.selected[line.ID]; !selected {
			allSelected = false
		}
	}

	if len(inView) == 0 {
		return nil
	}

	for _, id := range inView {
		if allSelected {
			delete(session.selected, id)
		} else {
			session.selected[id] = struct{}{}
		}
	}
	return nil
}

// ------------------------------------------------
// 配音分配：本地乐观更新 + 异步持久化

// SetVoice 给一行分配配音演员
// 本地更新同步完成，持久化是独立的异步任务，失败只通知不回滚
func (s *DirectorService) SetVoice(sessionID, lineID, voiceID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	pos, exists := session.index[lineID]
	if !exists {
		session.mu.Unlock()
		return apperrors.NewValidationError(fmt.Sprintf("行不存在: %s", lineID), nil)
	}
	session.lines[pos].VoiceID = voiceID
	session.mu.Unlock()

	s.persistLineFields(session, lineID, map[string]string{"voice_id": voiceID})
	return nil
}

// AssignVoiceToCharacter 把一个配音演员批量分配给某角色的所有台词行
// 返回受影响的行数，每行各自触发一次持久化
func (s *DirectorService) AssignVoiceToCharacter(sessionID, character, voiceID string) (int, error) {
	if character == "" {
		return 0, apperrors.NewValidationError("角色名不能为空", nil)
	}

	session, err := s.getSession(sessionID)
	if err != nil {
		return 0, err
	}

	session.mu.Lock()
	affected := make([]string, 0)
	for i := range session.lines {
		if session.lines[i].SpeakingCharacter() == character {
			session.lines[i].VoiceID = voiceID
			affected = append(affected, session.lines[i].ID)
		}
	}
	session.mu.Unlock()

	for _, lineID := range affected {
		s.persistLineFields(session, lineID, map[string]string{"voice_id": voiceID})
	}
	return len(affected), nil
}

// persistLineFields 异步把行的部分字段写回远端存储
// 持久化失败只会以旁路通知的形式被观察到，从不回滚本地状态
func (s *DirectorService) persistLineFields(session *Session, lineID string, fields map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.Store.PatchLine(ctx, session.SeriesID, session.EpisodeID, lineID, fields); err != nil {
			utils.GetLogger().Errorf("行持久化失败 (session=%s line=%s): %v", session.ID, lineID, err)
			s.notify(session.ID, map[string]interface{}{
				"type":    EventPersistFailed,
				"line_id": lineID,
				"error":   err.Error(),
			})
		}
	}()
}

// ------------------------------------------------
// 情绪分类

// RequestEmotionTags 为一批行请求AI情绪标签
// 校验通过后立即返回，分类调用异步进行；提交的行被标记为 emotion 进行中，
// 完成（无论成败）时全部清除。成功时按返回映射里出现的键逐行合并并持久化，
// 失败时所有行的标签保持不变，只发全局通知
func (s *DirectorService) RequestEmotionTags(sessionID string, lineIDs []string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()

	if len(lineIDs) == 0 {
		session.mu.Unlock()
		return apperrors.NewValidationError("没有选中任何行", nil)
	}

	// 提交集里未知的行或已在分类中的行都算无效，整批拒绝
	invalid := 0
	batch := make([]models.ScriptLine, 0, len(lineIDs))
	for _, id := range lineIDs {
		pos, exists := session.index[id]
		if !exists || session.hasPendingLocked(id, OpEmotion) {
			invalid++
			continue
		}
		batch = append(batch, session.lines[pos])
	}
	if invalid > 0 {
		session.mu.Unlock()
		return apperrors.NewValidationError(
			fmt.Sprintf("有 %d 行无法提交分类（不存在或已在处理中）", invalid), nil)
	}

	submitted := make([]string, 0, len(batch))
	for _, line := range batch {
		session.markPendingLocked(line.ID, OpEmotion)
		submitted = append(submitted, line.ID)
	}
	session.mu.Unlock()

	s.notify(session.ID, map[string]interface{}{
		"type":     EventOpStarted,
		"op":       string(OpEmotion),
		"line_ids": submitted,
	})

	go s.runClassification(session, batch, submitted)
	return nil
}

// runClassification 执行分类调用并合并结果
func (s *DirectorService) runClassification(session *Session, batch []models.ScriptLine, submitted []string) {
	tags, err := s.Emotion.ClassifyBatch(context.Background(), batch)

	session.mu.Lock()
	for _, id := range submitted {
		session.clearPendingLocked(id, OpEmotion)
	}

	if err != nil {
		session.mu.Unlock()
		utils.GetLogger().Errorf("情绪分类失败 (session=%s 行数=%d): %v", session.ID, len(batch), err)
		s.notify(session.ID, map[string]interface{}{
			"type":     EventOpFailed,
			"op":       string(OpEmotion),
			"line_ids": submitted,
			"error":    err.Error(),
		})
		return
	}

	// 合并是按返回映射逐键进行的：映射里没有的行保持原样
	updated := make(map[string]string)
	for id, tag := range tags {
		pos, exists := session.index[id]
		if !exists {
			continue
		}
		session.lines[pos].SuggestedEmotion = tag
		updated[id] = tag
	}
	session.mu.Unlock()

	for id, tag := range updated {
		s.notify(session.ID, map[string]interface{}{
			"type":    EventEmotionTagged,
			"line_id": id,
			"tag":     tag,
		})
		s.persistLineFields(session, id, map[string]string{"suggested_emotion": tag})
	}
}

// ------------------------------------------------
// 语音合成

// RequestAudio 为一批行请求语音合成
// 前置校验：任何一行缺配音或缺情绪标签（或行不存在/已在合成中）都会让
// 整个调用被拒绝，并在错误里说明无效行数——不会只提交有效子集。
// 校验通过后每行独立发起一次合成，单行失败不影响其它行；
// 成功的行把音频制品存入会话，重新生成会整体替换旧制品
func (s *DirectorService) RequestAudio(sessionID string, lineIDs []string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()

	if len(lineIDs) == 0 {
		session.mu.Unlock()
		return apperrors.NewValidationError("没有选中任何行", nil)
	}

	invalid := 0
	batch := make([]models.ScriptLine, 0, len(lineIDs))
	for _, id := range lineIDs {
		pos, exists := session.index[id]
		if !exists || session.hasPendingLocked(id, OpAudio) {
			invalid++
			continue
		}
		line := session.lines[pos]
		if line.VoiceID == "" || line.SuggestedEmotion == "" {
			invalid++
			continue
		}
		batch = append(batch, line)
	}

	if invalid > 0 {
		session.mu.Unlock()
		return apperrors.NewValidationError(
			fmt.Sprintf("有 %d 行不满足合成条件（缺少配音或情绪标签）", invalid), nil)
	}

	submitted := make([]string, 0, len(batch))
	for _, line := range batch {
		session.markPendingLocked(line.ID, OpAudio)
		submitted = append(submitted, line.ID)
	}
	session.mu.Unlock()

	s.notify(session.ID, map[string]interface{}{
		"type":     EventOpStarted,
		"op":       string(OpAudio),
		"line_ids": submitted,
	})

	// 每行一个独立请求，完成顺序不保证，按行ID幂等合并
	for _, line := range batch {
		go s.runSynthesis(session, line)
	}
	return nil
}

// runSynthesis 执行单行合成并合并结果
func (s *DirectorService) runSynthesis(session *Session, line models.ScriptLine) {
	text := SpeechText(line.SuggestedEmotion, line.Dialogue)
	artifact, err := s.TTS.Synthesize(context.Background(), line.ID, text, line.VoiceID)

	session.mu.Lock()
	session.clearPendingLocked(line.ID, OpAudio)

	if err != nil {
		session.mu.Unlock()
		utils.GetLogger().Errorf("语音合成失败 (session=%s line=%s): %v", session.ID, line.ID, err)
		s.notify(session.ID, map[string]interface{}{
			"type":    EventOpFailed,
			"op":      string(OpAudio),
			"line_id": line.ID,
			"error":   err.Error(),
		})
		return
	}

	artifact.URL = fmt.Sprintf("/api/sessions/%s/audio/%s", session.ID, line.ID)
	// 覆盖而非累加：重新生成会替换旧制品
	session.artifacts[line.ID] = artifact
	session.mu.Unlock()

	s.notify(session.ID, map[string]interface{}{
		"type":    EventAudioReady,
		"line_id": line.ID,
		"url":     artifact.URL,
	})
}

// ------------------------------------------------
// 播放协调：全会话同一时刻最多一个在播

// TogglePlayback 切换某一行的播放状态，返回切换后的"正在播放"行ID
// 播放B时A在播则先停A；再点在播的行则停止；没有音频制品的行不能播放
func (s *DirectorService) TogglePlayback(sessionID, lineID string) (string, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return "", err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if _, exists := session.artifacts[lineID]; !exists {
		return session.playingID, apperrors.NewValidationError(
			fmt.Sprintf("该行还没有音频: %s", lineID), nil)
	}

	if session.playingID == lineID {
		session.playingID = ""
	} else {
		session.playingID = lineID
	}

	s.notify(session.ID, map[string]interface{}{
		"type":       EventPlaybackChanged,
		"playing_id": session.playingID,
	})
	return session.playingID, nil
}

// PlaybackEnded 处理自然播完：只有还指向该行时才清除指针
func (s *DirectorService) PlaybackEnded(sessionID, lineID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.playingID == lineID {
		session.playingID = ""
		s.notify(session.ID, map[string]interface{}{
			"type":       EventPlaybackChanged,
			"playing_id": "",
		})
	}
	return nil
}

// ------------------------------------------------
// 快照与制品访问

// Snapshot 返回会话状态的只读快照
func (s *DirectorService) Snapshot(sessionID string) (*SessionSnapshot, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	snapshot := &SessionSnapshot{
		ID:           session.ID,
		SeriesID:     session.SeriesID,
		EpisodeID:    session.EpisodeID,
		EpisodeLabel: session.EpisodeLabel,
		ViewRange:    session.viewRange,
		TotalLines:   len(session.lines),
		PlayingID:    session.playingID,
		Lines:        make([]LineView, 0, len(session.lines)),
	}

	for i, line := range session.lines {
		if i == 0 || line.PanelNumber < snapshot.MinPanel {
			snapshot.MinPanel = line.PanelNumber
		}
		if i == 0 || line.PanelNumber > snapshot.MaxPanel {
			snapshot.MaxPanel = line.PanelNumber
		}

		_, selected := session.selected[line.ID]
		if selected {
			snapshot.SelectedCount++
		}

		artifact, hasAudio := session.artifacts[line.ID]
		view := LineView{
			ScriptLine: line,
			Selected:   selected,
			InView:     session.viewRange.Contains(line.PanelNumber),
			Stage:      session.stageLocked(line.ID),
			HasAudio:   hasAudio,
		}
		if hasAudio {
			view.AudioURL = artifact.URL
		}
		for op := range session.pending[line.ID] {
			view.PendingOps = append(view.PendingOps, string(op))
		}
		snapshot.Lines = append(snapshot.Lines, view)
	}

	return snapshot, nil
}

// Artifact 返回某一行的音频制品
func (s *DirectorService) Artifact(sessionID, lineID string) (*models.AudioArtifact, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	artifact, exists := session.artifacts[lineID]
	if !exists {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("该行没有音频制品: %s", lineID), nil)
	}
	return artifact, nil
}

// ExportView 返回导出打包所需的会话数据副本
func (s *DirectorService) ExportView(sessionID string) ([]models.ScriptLine, map[string]*models.AudioArtifact, string, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, nil, "", err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	lines := make([]models.ScriptLine, len(session.lines))
	copy(lines, session.lines)

	artifacts := make(map[string]*models.AudioArtifact, len(session.artifacts))
	for id, artifact := range session.artifacts {
		artifacts[id] = artifact
	}

	return lines, artifacts, session.EpisodeLabel, nil
}

// ------------------------------------------------
// 会话内部辅助（都要求已持有 session.mu）

func (session *Session) hasPendingLocked(lineID string, op OpKind) bool {
	ops, exists := session.pending[lineID]
	if !exists {
		return false
	}
	_, pending := ops[op]
	return pending
}

func (session *Session) markPendingLocked(lineID string, op OpKind) {
	if session.pending[lineID] == nil {
		session.pending[lineID] = make(map[OpKind]struct{})
	}
	session.pending[lineID][op] = struct{}{}
}

func (session *Session) clearPendingLocked(lineID string, op OpKind) {
	if ops, exists := session.pending[lineID]; exists {
		delete(ops, op)
		if len(ops) == 0 {
			delete(session.pending, lineID)
		}
	}
}

// stageLocked 推导行的概念阶段
// 阶段不是存储字段：合成中优先于已配音，分类中优先于已标注
func (session *Session) stageLocked(lineID string) string {
	if session.hasPendingLocked(lineID, OpAudio) {
		return StageAudioPending
	}
	if _, hasAudio := session.artifacts[lineID]; hasAudio {
		return StageVoiced
	}
	if session.hasPendingLocked(lineID, OpEmotion) {
		return StageEmotionPending
	}
	pos, exists := session.index[lineID]
	if exists && session.lines[pos].SuggestedEmotion != "" {
		return StageTagged
	}
	return StageUnprocessed
}
