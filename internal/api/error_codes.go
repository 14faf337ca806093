// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// 会话相关错误
	ErrorSessionNotFound     = "SESSION_NOT_FOUND"
	ErrorSessionCreateFailed = "SESSION_CREATE_FAILED"

	// 剧本行相关错误
	ErrorLineNotFound = "LINE_NOT_FOUND"
	ErrorLineInvalid  = "LINE_INVALID"

	// 远端服务相关错误
	ErrorScriptStoreUnavailable = "SCRIPT_STORE_UNAVAILABLE"
	ErrorClassificationFailed   = "CLASSIFICATION_FAILED"
	ErrorSynthesisFailed        = "SYNTHESIS_FAILED"
	ErrorPersistenceFailed      = "PERSISTENCE_FAILED"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"

	// 导出相关错误
	ErrorExportFailed    = "EXPORT_FAILED"
	ErrorExportDataEmpty = "EXPORT_DATA_EMPTY"

	// 音频相关错误
	ErrorAudioNotFound = "AUDIO_NOT_FOUND"
)
