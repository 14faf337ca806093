// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeTransport  ErrorType = "transport_error"

	// 会话域错误类型
	ErrorTypeClassification ErrorType = "classification_error" // 情绪批量分类失败
	ErrorTypeSynthesis      ErrorType = "synthesis_error"      // 单行语音合成失败
	ErrorTypePersistence    ErrorType = "persistence_error"    // 远端剧本存储写入失败
	ErrorTypeExport         ErrorType = "export_error"         // 导出打包失败
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误（前置条件不满足，操作未派发）
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewTransportError 创建传输错误
func NewTransportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransport, message, originalError)
}

// NewClassificationError 创建分类错误
func NewClassificationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeClassification, message, originalError)
}

// NewSynthesisError 创建合成错误
func NewSynthesisError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSynthesis, message, originalError)
}

// NewPersistenceError 创建持久化错误
func NewPersistenceError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePersistence, message, originalError)
}

// NewExportError 创建导出错误
func NewExportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExport, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsTransportError 检查是否为传输错误
func IsTransportError(err error) bool {
	return isType(err, ErrorTypeTransport)
}

// IsClassificationError 检查是否为分类错误
func IsClassificationError(err error) bool {
	return isType(err, ErrorTypeClassification)
}

// IsSynthesisError 检查是否为合成错误
func IsSynthesisError(err error) bool {
	return isType(err, ErrorTypeSynthesis)
}

// IsPersistenceError 检查是否为持久化错误
func IsPersistenceError(err error) bool {
	return isType(err, ErrorTypePersistence)
}

// IsExportError 检查是否为导出错误
func IsExportError(err error) bool {
	return isType(err, ErrorTypeExport)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeTransport:
		return "TRANSPORT_ERROR"
	case ErrorTypeClassification:
		return "CLASSIFICATION_ERROR"
	case ErrorTypeSynthesis:
		return "SYNTHESIS_ERROR"
	case ErrorTypePersistence:
		return "PERSISTENCE_ERROR"
	case ErrorTypeExport:
		return "EXPORT_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
