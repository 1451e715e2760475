// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeAlreadyExists 資源已存在
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeTimeout 超時錯誤
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// 預定義錯誤
var (
	// ErrTweetNotFound 貼文未找到
	ErrTweetNotFound = New(ErrCodeNotFound, "tweet not found")

	// ErrCounterSourceNotFound 計數器回填時來源實體不存在
	ErrCounterSourceNotFound = New(ErrCodeNotFound, "counter source entity not found")

	// ErrAlreadyFollowing 已經追蹤該用戶
	ErrAlreadyFollowing = New(ErrCodeAlreadyExists, "already following this user")

	// ErrFeedEntryExists 動態項目已存在（冪等建立時的重複）
	ErrFeedEntryExists = New(ErrCodeAlreadyExists, "feed entry already exists")

	// ErrInvalidContent 無效的貼文內容
	ErrInvalidContent = New(ErrCodeInvalidInput, "invalid tweet content")

	// ErrInvalidCursor 無效的分頁游標
	ErrInvalidCursor = New(ErrCodeInvalidInput, "invalid pagination cursor")

	// ErrSelfFollow 不能追蹤自己
	ErrSelfFollow = New(ErrCodeInvalidInput, "cannot follow yourself")

	// ErrStoreUnavailable 持久層不可用
	ErrStoreUnavailable = New(ErrCodeUnavailable, "durable store unavailable")
)

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsAlreadyExists 檢查是否為已存在錯誤
func IsAlreadyExists(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeAlreadyExists
	}
	return false
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeInvalidInput
	}
	return false
}
