package entity

import "errors"

// 错误分级：
// AUTH_REJECTED / OVERFLOW 对单条连接致命；FORBIDDEN 丢弃动作并上报调用方；
// DUPLICATE 视为成功；TRANSIENT_SEND_FAILURE 静默丢弃，靠历史同步补齐
var (
	ErrAuthRejected     = errors.New("auth rejected")
	ErrForbidden        = errors.New("not an active member of conversation")
	ErrDuplicateMessage = errors.New("duplicate client message id")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrMessageNotFound  = errors.New("message not found")
)

// 对外错误码，随 error 帧下发给客户端
const (
	CodeAuthRejected     = "AUTH_REJECTED"
	CodeForbidden        = "FORBIDDEN"
	CodeDuplicate        = "DUPLICATE"
	CodeOverflow         = "OVERFLOW"
	CodeTransientFailure = "TRANSIENT_SEND_FAILURE"
	CodeInternal         = "INTERNAL"
)

// CodeOf 将内部错误映射为对外错误码
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return CodeAuthRejected
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrDuplicateMessage):
		return CodeDuplicate
	case errors.Is(err, ErrSendBufferFull):
		return CodeOverflow
	default:
		return CodeInternal
	}
}
