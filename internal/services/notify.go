// internal/services/notify.go
package services

// SessionNotifier 把会话内的异步事件推送给该会话的订阅者
// 实际实现由 API 层的 WebSocket 管理器提供，在 app.InitServices 里注入
type SessionNotifier interface {
	Notify(sessionID string, event map[string]interface{})
}

// NotifierFunc 允许用函数直接实现 SessionNotifier
type NotifierFunc func(sessionID string, event map[string]interface{})

// Notify 实现 SessionNotifier 接口
func (f NotifierFunc) Notify(sessionID string, event map[string]interface{}) {
	f(sessionID, event)
}

// 事件类型常量
const (
	EventOpStarted       = "op_started"
	EventEmotionTagged   = "emotion_tagged"
	EventAudioReady      = "audio_ready"
	EventOpFailed        = "op_failed"
	EventPersistFailed   = "persist_failed"
	EventPlaybackChanged = "playback_changed"
)
