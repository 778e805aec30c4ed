package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown      ErrorCode = 1000
	ErrInvalidParam ErrorCode = 1001
	ErrNotFound     ErrorCode = 1002
	ErrConflict     ErrorCode = 1003
	ErrTimeout      ErrorCode = 1005
	ErrCanceled     ErrorCode = 1006

	// 会话错误 (2000-2099)
	ErrSessionNotFound    ErrorCode = 2000
	ErrSessionFull        ErrorCode = 2001
	ErrSessionNotWaiting  ErrorCode = 2002
	ErrPlayerNotInSession ErrorCode = 2003
	ErrSessionNotReady    ErrorCode = 2004
	ErrSelfJoin           ErrorCode = 2005

	// 对战错误 (2100-2199)
	ErrBattleNotFound       ErrorCode = 2100
	ErrBattleAlreadyStarted ErrorCode = 2101
	ErrBattleFinished       ErrorCode = 2102
	ErrNotYourTurn          ErrorCode = 2103
	ErrNotEnoughMana        ErrorCode = 2104
	ErrInvalidHandIndex     ErrorCode = 2105
	ErrInvalidAttackerIndex ErrorCode = 2106
	ErrCardAlreadyUsed      ErrorCode = 2107
	ErrDeckNotFound         ErrorCode = 2108
	ErrInvalidDeck          ErrorCode = 2109

	// 通信错误 (4000-4999)
	ErrMessageFormat ErrorCode = 4007
	ErrUnknownAction ErrorCode = 4008
	ErrNotJoined     ErrorCode = 4009

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect  ErrorCode = 5000
	ErrDatabaseQuery    ErrorCode = 5001
	ErrDatabaseInsert   ErrorCode = 5002
	ErrDatabaseUpdate   ErrorCode = 5003
	ErrDatabaseDelete   ErrorCode = 5004
	ErrTransaction      ErrorCode = 5005
	ErrCacheUnavailable ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigValidate ErrorCode = 6002

	// 安全错误 (7000-7999)
	ErrAuthentication  ErrorCode = 7000
	ErrAuthorization   ErrorCode = 7001
	ErrTokenExpired    ErrorCode = 7002
	ErrTokenInvalid    ErrorCode = 7003
	ErrInvalidPassword ErrorCode = 7004
	ErrUserExists      ErrorCode = 7005
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:      "Unknown error",
	ErrInvalidParam: "Invalid parameter",
	ErrNotFound:     "Resource not found",
	ErrConflict:     "Resource conflict",
	ErrTimeout:      "Operation timed out",
	ErrCanceled:     "Operation canceled",

	// 会话错误
	ErrSessionNotFound:    "Session not found",
	ErrSessionFull:        "Session is already full",
	ErrSessionNotWaiting:  "Session is not waiting for players",
	ErrPlayerNotInSession: "Player not in this session",
	ErrSessionNotReady:    "Session is not ready",
	ErrSelfJoin:           "Cannot join your own session",

	// 对战错误
	ErrBattleNotFound:       "Battle not found",
	ErrBattleAlreadyStarted: "Battle already started",
	ErrBattleFinished:       "Battle is finished",
	ErrNotYourTurn:          "Not your turn",
	ErrNotEnoughMana:        "Not enough mana",
	ErrInvalidHandIndex:     "Invalid hand index",
	ErrInvalidAttackerIndex: "Invalid attacker index",
	ErrCardAlreadyUsed:      "Card already attacked this turn",
	ErrDeckNotFound:         "Deck not found",
	ErrInvalidDeck:          "Invalid deck",

	// 通信错误
	ErrMessageFormat: "Malformed message",
	ErrUnknownAction: "Unknown action",
	ErrNotJoined:     "Join a session first",

	// 数据库错误
	ErrDatabaseConnect:  "Database connect failed",
	ErrDatabaseQuery:    "Database query failed",
	ErrDatabaseInsert:   "Database insert failed",
	ErrDatabaseUpdate:   "Database update failed",
	ErrDatabaseDelete:   "Database delete failed",
	ErrTransaction:      "Transaction failed",
	ErrCacheUnavailable: "Cache unavailable",

	// 配置错误
	ErrConfigValidate: "Config validation failed",

	// 安全错误
	ErrAuthentication:  "Authentication failed",
	ErrAuthorization:   "Authorization failed",
	ErrTokenExpired:    "Token expired",
	ErrTokenInvalid:    "Invalid token",
	ErrInvalidPassword: "Invalid username or password",
	ErrUserExists:      "User already exists",
}

// Kind 错误分类，决定调用方是返回错误信封还是断开连接
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindRuleViolation   Kind = "rule_violation"
	KindProtocol        Kind = "protocol_error"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind 返回错误分类
func (e *AppError) Kind() Kind {
	return kindOfCode(e.Code)
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	var appErr *AppError
	if errors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// FromContext 操作因上下文结束而失败时换成超时或取消错误，其余原样返回
func FromContext(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return Wrap(ctx.Err(), ErrTimeout)
	case context.Canceled:
		return Wrap(ctx.Err(), ErrCanceled)
	}
	return err
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// KindOf 获取错误分类，非AppError一律视为内部错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return kindOfCode(GetCode(err))
}

func kindOfCode(code ErrorCode) Kind {
	switch code {
	case ErrNotFound, ErrSessionNotFound, ErrBattleNotFound, ErrDeckNotFound:
		return KindNotFound
	case ErrConflict, ErrSessionFull, ErrSessionNotWaiting, ErrSelfJoin,
		ErrBattleAlreadyStarted, ErrUserExists:
		return KindConflict
	case ErrInvalidParam, ErrInvalidHandIndex, ErrInvalidAttackerIndex,
		ErrPlayerNotInSession, ErrInvalidDeck:
		return KindInvalidArgument
	case ErrNotYourTurn, ErrNotEnoughMana, ErrCardAlreadyUsed, ErrBattleFinished,
		ErrSessionNotReady:
		return KindRuleViolation
	case ErrMessageFormat, ErrUnknownAction, ErrNotJoined:
		return KindProtocol
	case ErrAuthentication, ErrAuthorization, ErrTokenExpired, ErrTokenInvalid,
		ErrInvalidPassword:
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// ClientMessage 返回可以直接发送给客户端的错误文本
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	if appErr.Details != "" && appErr.Kind() != KindInternal {
		return appErr.Details
	}
	return appErr.Message
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/card-battle/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// StackOf 非AppError返回空串
func StackOf(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ""
	}
	return appErr.GetStack()
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Kind() {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindInvalidArgument, KindProtocol:
		return 400
	case KindRuleViolation:
		return 422
	case KindUnauthorized:
		return 401
	}

	switch {
	case e.Code == ErrTimeout || e.Code == ErrCanceled:
		return 408
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// HTTPStatusOf 任意错误对应的HTTP状态码，非AppError为500
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return 500
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrTimeout,
		ErrDatabaseConnect,
		ErrTransaction,
		ErrCacheUnavailable:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     ClientMessage(err),
		Code:      int(GetCode(err)),
		Kind:      KindOf(err),
		Timestamp: time.Now().Unix(),
	}
}
