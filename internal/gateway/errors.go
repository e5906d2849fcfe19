package gateway

import (
	"errors"
	"fmt"
)

// Kind 标识网关调用失败的类别
type Kind int

const (
	// KindTransport 请求本身失败（网络错误、非 2xx 状态码）
	KindTransport Kind = iota
	// KindRejected 后端明确拒绝（success=false，附带可读消息）
	KindRejected
	// KindMalformed 响应无法解析
	KindMalformed
)

// String 返回类别的可读名称
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error 网关调用错误
//
// Message 对 KindRejected 是后端返回的原文，必须原样展示给用户；
// 网关本身不做重试，重试策略由调用方决定
type Error struct {
	Kind    Kind
	Command string // 出错的命令，如 "login"、"claim-token"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Command, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Command, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRejected 判断错误是否为后端拒绝
func IsRejected(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindRejected
}

// RejectedMessage 提取后端拒绝消息，非拒绝错误返回空串
func RejectedMessage(err error) string {
	var ge *Error
	if errors.As(err, &ge) && ge.Kind == KindRejected {
		return ge.Message
	}
	return ""
}

func transportError(command string, err error) *Error {
	return &Error{Kind: KindTransport, Command: command, Message: "请求失败", Err: err}
}

func statusError(command string, status string, body string) *Error {
	msg := fmt.Sprintf("HTTP %s", status)
	if body != "" {
		msg += " - " + body
	}
	return &Error{Kind: KindTransport, Command: command, Message: msg}
}

func rejectedError(command, message string) *Error {
	if message == "" {
		message = "操作失败"
	}
	return &Error{Kind: KindRejected, Command: command, Message: message}
}

func malformedError(command string, err error) *Error {
	return &Error{Kind: KindMalformed, Command: command, Message: "解析响应失败", Err: err}
}
