package errs

import (
	"net/http"

	"github.com/pkg/errors"
)

// 业务错误码
const (
	ValidationCode        = 40001 // 参数/身份信息不合法
	MalformedHandleCode   = 40002 // client handle 解码失败
	TokenExpiredCode      = 40101 // token 过期或非法
	DuplicateJoinCode     = 40901 // 同一 (content, user, device) 重复排队
	PublishFailedCode     = 50001 // 组队事件发布失败（仅记录，不回滚）
	StoreUnavailableCode  = 50301 // 队列存储不可用，可重试
	TransientConflictCode = 50302 // CAS 竞争重试耗尽，可重试
)

var (
	ErrValidation        = NewCodeError(ValidationCode, "invalid request")
	ErrMalformedHandle   = NewCodeError(MalformedHandleCode, "malformed client handle")
	ErrTokenExpired      = NewCodeError(TokenExpiredCode, "token expired or invalid")
	ErrDuplicateJoin     = NewCodeError(DuplicateJoinCode, "already waiting for this content on this device")
	ErrPublishFailed     = NewCodeError(PublishFailedCode, "party event publish failed")
	ErrStoreUnavailable  = NewCodeError(StoreUnavailableCode, "queue store unavailable")
	ErrTransientConflict = NewCodeError(TransientConflictCode, "queue busy, retry later")
)

// HTTPStatus 业务码到 HTTP 状态码
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return http.StatusInternalServerError
	}
	switch codeErr.Code {
	case ValidationCode, MalformedHandleCode:
		return http.StatusBadRequest
	case TokenExpiredCode:
		return http.StatusUnauthorized
	case DuplicateJoinCode:
		return http.StatusConflict
	case StoreUnavailableCode, TransientConflictCode:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsCodeError 提取包装链中的 CodeError
func AsCodeError(err error) (*CodeError, bool) {
	var codeErr *CodeError
	ok := errors.As(err, &codeErr)
	return codeErr, ok
}
