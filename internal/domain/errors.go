package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 是业务错误的分类标签，边界层据此映射到稳定的错误码。
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindAccessDenied        ErrorKind = "access_denied"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindInsufficientCredits ErrorKind = "insufficient_credits"
	KindExtraction          ErrorKind = "extraction"
	KindGeneration          ErrorKind = "generation"
	KindRender              ErrorKind = "render"
	KindPersistence         ErrorKind = "persistence"
	KindTimeout             ErrorKind = "timeout"
	KindGone                ErrorKind = "gone"
	KindInternal            ErrorKind = "internal"
)

// Error 是流程中唯一向调用方传播的错误类型。
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Credit  ResourceKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 允许 errors.Is(err, &Error{Kind: ...}) 按分类匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf 返回错误链中第一个 Error 的分类，没有时返回 KindInternal。
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind 判断错误链中是否存在指定分类的 Error。
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func AccessDenied(resource string) *Error {
	return &Error{Kind: KindAccessDenied, Message: "access to " + resource + " denied"}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InsufficientCredits(kind ResourceKind) *Error {
	return &Error{Kind: KindInsufficientCredits, Credit: kind, Message: fmt.Sprintf("no %s credits left", kind)}
}

func Gone(format string, args ...any) *Error {
	return &Error{Kind: KindGone, Message: fmt.Sprintf(format, args...)}
}

// StageError 为某个阶段的失败打上标签。
// 已经是 Error 的保留原分类，超时统一归为 KindTimeout。
func StageError(stage Stage, kind ErrorKind, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		if de.Stage == "" {
			cp := *de
			cp.Stage = stage
			return &cp
		}
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
