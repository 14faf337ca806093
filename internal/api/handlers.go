// internal/api/handlers.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motionx/DubDirector/internal/services"
)

// Handler 处理API请求
type Handler struct {
	// 核心服务
	DirectorService  *services.DirectorService // 剧本会话服务
	VoiceService     *services.VoiceService    // 声音目录服务
	UploadService    *services.UploadService   // 剧本上传服务
	ExportService    *services.ExportService   // 音频导出服务
	WebSocketHandler *WebSocketHandler         // WebSocket 处理器
	Response         *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	directorService *services.DirectorService,
	voiceService *services.VoiceService,
	uploadService *services.UploadService,
	exportService *services.ExportService) *Handler {

	return &Handler{
		DirectorService:  directorService,
		VoiceService:     voiceService,
		UploadService:    uploadService,
		ExportService:    exportService,
		WebSocketHandler: NewWebSocketHandler(),
		Response:         NewResponseHelper(),
	}
}

// CreateSessionRequest 创建会话的请求结构
type CreateSessionRequest struct {
	SeriesID     string `json:"series_id"`     // 作品ID
	EpisodeID    string `json:"episode_id"`    // 集ID
	EpisodeLabel string `json:"episode_label"` // 集标签，用于导出文件名
}

// ViewRangeRequest 更新可见范围的请求结构
type ViewRangeRequest struct {
	Start int `json:"start"` // 起始 panel 号
	End   int `json:"end"`   // 结束 panel 号
}

// SetVoiceRequest 指定单行配音的请求结构
type SetVoiceRequest struct {
	VoiceID string `json:"voice_id"` // 声音ID
}

// CastVoiceRequest 按角色批量指派配音的请求结构
type CastVoiceRequest struct {
	Character string `json:"character"` // 说话角色名
	VoiceID   string `json:"voice_id"`  // 声音ID
}

// LineBatchRequest 批量行操作的请求结构
type LineBatchRequest struct {
	LineIDs []string `json:"line_ids"` // 行ID列表
}

// PlaybackRequest 播放控制的请求结构
type PlaybackRequest struct {
	LineID string `json:"line_id"` // 行ID
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ------------------------------------------------
// SessionWebSocket 处理会话 WebSocket 连接
func (h *Handler) SessionWebSocket(c *gin.Context) {
	h.WebSocketHandler.SessionWebSocket(c)
}

// GetWebSocketStatus 获取 WebSocket 连接状态
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, wsManager.GetStatus())
}

// ------------------------------------------------
// 会话生命周期
// ------------------------------------------------

// CreateSession 从远端剧本存储加载剧本并创建会话
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if req.SeriesID == "" || req.EpisodeID == "" {
		h.Response.BadRequest(c, "series_id 和 episode_id 不能为空")
		return
	}

	if req.EpisodeLabel == "" {
		req.EpisodeLabel = req.EpisodeID
	}

	snapshot, err := h.DirectorService.OpenSession(c.Request.Context(), req.SeriesID, req.EpisodeID, req.EpisodeLabel)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Created(c, snapshot, "会话创建成功")
}

// UploadSession 上传剧本文件并创建会话
func (h *Handler) UploadSession(c *gin.Context) {
	seriesID := c.PostForm("series_id")
	episodeID := c.PostForm("episode_id")
	episodeLabel := c.DefaultPostForm("episode_label", episodeID)

	if seriesID == "" || episodeID == "" {
		h.Response.BadRequest(c, "series_id 和 episode_id 不能为空")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.Response.BadRequest(c, "缺少上传文件", err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "无法读取上传文件", err.Error())
		return
	}
	defer file.Close()

	rows, err := h.UploadService.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	snapshot, err := h.DirectorService.OpenSessionFromUpload(c.Request.Context(), seriesID, episodeID, episodeLabel, rows)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Created(c, snapshot, "会话创建成功")
}

// GetSession 获取会话完整视图
func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	snapshot, err := h.DirectorService.Snapshot(sessionID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, snapshot)
}

// CloseSession 关闭并丢弃会话
func (h *Handler) CloseSession(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.DirectorService.CloseSession(sessionID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"session_id": sessionID}, "会话已关闭")
}

// ------------------------------------------------
// 视图与选择
// ------------------------------------------------

// SetViewRange 更新会话的可见 panel 范围
func (h *Handler) SetViewRange(c *gin.Context) {
	sessionID := c.Param("id")

	var req ViewRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.DirectorService.SetViewRange(sessionID, req.Start, req.End); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"start": req.Start, "end": req.End}, "可见范围已更新")
}

// ToggleSelection 切换单行选中状态
func (h *Handler) ToggleSelection(c *gin.Context) {
	sessionID := c.Param("id")
	lineID := c.Param("line_id")

	if err := h.DirectorService.ToggleSelection(sessionID, lineID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"line_id": lineID})
}

// ToggleSelectAllInView 全选/全不选当前可见范围内的行
func (h *Handler) ToggleSelectAllInView(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.DirectorService.ToggleSelectAllInView(sessionID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, nil, "可见范围选择状态已切换")
}

// ------------------------------------------------
// 配音指派
// ------------------------------------------------

// SetVoice 为单行指定配音
func (h *Handler) SetVoice(c *gin.Context) {
	sessionID := c.Param("id")
	lineID := c.Param("line_id")

	var req SetVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.DirectorService.SetVoice(sessionID, lineID, req.VoiceID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"line_id": lineID, "voice_id": req.VoiceID}, "配音已指定")
}

// CastVoice 按说话角色批量指派配音
func (h *Handler) CastVoice(c *gin.Context) {
	sessionID := c.Param("id")

	var req CastVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if req.Character == "" {
		h.Response.BadRequest(c, "character 不能为空")
		return
	}

	count, err := h.DirectorService.AssignVoiceToCharacter(sessionID, req.Character, req.VoiceID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"character":     req.Character,
		"voice_id":      req.VoiceID,
		"applied_count": count,
	}, "角色配音已批量指派")
}

// GetVoices 获取可用声音目录
func (h *Handler) GetVoices(c *gin.Context) {
	voices, err := h.VoiceService.ListVoices(c.Request.Context())
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"voices": voices})
}

// ------------------------------------------------
// 情绪分类与语音合成
// ------------------------------------------------

// RequestEmotionTags 为选中行批量请求情绪分类
func (h *Handler) RequestEmotionTags(c *gin.Context) {
	sessionID := c.Param("id")

	var req LineBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.DirectorService.RequestEmotionTags(sessionID, req.LineIDs); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	// 分类在后台进行，结果通过 WebSocket 推送
	c.JSON(http.StatusAccepted, &APIResponse{
		Success:   true,
		Data:      gin.H{"submitted_count": len(req.LineIDs)},
		Message:   "情绪分类已提交",
		Timestamp: time.Now(),
	})
}

// RequestAudio 为选中行批量请求语音合成
func (h *Handler) RequestAudio(c *gin.Context) {
	sessionID := c.Param("id")

	var req LineBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.DirectorService.RequestAudio(sessionID, req.LineIDs); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	// 合成在后台逐行进行，结果通过 WebSocket 推送
	c.JSON(http.StatusAccepted, &APIResponse{
		Success:   true,
		Data:      gin.H{"submitted_count": len(req.LineIDs)},
		Message:   "语音合成已提交",
		Timestamp: time.Now(),
	})
}

// ------------------------------------------------
// 播放与音频
// ------------------------------------------------

// TogglePlayback 切换播放指针
func (h *Handler) TogglePlayback(c *gin.Context) {
	sessionID := c.Param("id")

	var req PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	playingID, err := h.DirectorService.TogglePlayback(sessionID, req.LineID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"playing_id": playingID})
}

// PlaybackEnded 播放器自然播完后清除播放指针
func (h *Handler) PlaybackEnded(c *gin.Context) {
	sessionID := c.Param("id")

	var req PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.DirectorService.PlaybackEnded(sessionID, req.LineID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"playing_id": ""})
}

// GetLineAudio 获取单行已合成的音频内容
func (h *Handler) GetLineAudio(c *gin.Context) {
	sessionID := c.Param("id")
	lineID := c.Param("line_id")

	artifact, err := h.DirectorService.Artifact(sessionID, lineID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Response.BinaryResponse(c, artifact.Data, audioContentType(artifact.Format))
}

// ExportAudio 导出全部已合成音频为ZIP归档
func (h *Handler) ExportAudio(c *gin.Context) {
	sessionID := c.Param("id")

	lines, artifacts, episodeLabel, err := h.DirectorService.ExportView(sessionID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	result, err := h.ExportService.BuildArchive(lines, artifacts, episodeLabel)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	result.SessionID = sessionID

	// format=json 时返回归档元数据而非文件内容
	if strings.EqualFold(c.DefaultQuery("format", "zip"), "json") {
		h.Response.Success(c, result, "导出成功")
		return
	}

	h.Response.DownloadResponse(c, result.Archive, result.Filename, "application/zip")
}

// audioContentType 把音频格式映射为 MIME 类型
func audioContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
