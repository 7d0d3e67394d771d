package errs

import (
	"errors"
	"fmt"
)

// 业务错误分类
// 这些都是面向调用方的可恢复错误：回滚事务并映射为用户可见的响应
// 只有 KindUnavailable（数据库不可达、锁等待超时）属于可重试的基础设施故障
var (
	KindValidation       = errors.New("validation")
	KindConflict         = errors.New("conflict")
	KindForbidden        = errors.New("forbidden")
	KindNotFound         = errors.New("not found")
	KindRateLimited      = errors.New("rate limited")
	KindQuotaExceeded    = errors.New("quota exceeded")
	KindCapacityExceeded = errors.New("capacity exceeded")
	KindInvalidState     = errors.New("invalid state")
	KindUnavailable      = errors.New("unavailable")
)

// Error 带分类的业务错误
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Is 让 errors.Is(err, errs.KindXxx) 可以匹配分类
func (e *Error) Is(target error) bool {
	return target == e.kind
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Validation(msg string) error       { return newError(KindValidation, msg) }
func Conflict(msg string) error         { return newError(KindConflict, msg) }
func Forbidden(msg string) error        { return newError(KindForbidden, msg) }
func NotFound(msg string) error         { return newError(KindNotFound, msg) }
func RateLimited(msg string) error      { return newError(KindRateLimited, msg) }
func QuotaExceeded(msg string) error    { return newError(KindQuotaExceeded, msg) }
func CapacityExceeded(msg string) error { return newError(KindCapacityExceeded, msg) }
func InvalidState(msg string) error     { return newError(KindInvalidState, msg) }

// Unavailable 包装基础设施故障，保留原始错误便于日志排查
func Unavailable(err error) error {
	return &Error{kind: KindUnavailable, msg: fmt.Sprintf("store unavailable: %v", err)}
}

// IsBusiness 判断是否为业务错误（非基础设施故障）
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e) && !errors.Is(err, KindUnavailable)
}
