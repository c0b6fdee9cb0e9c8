package client

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration 缺少账户、app key、证书或证书密码
	KindConfiguration
	// KindNetwork 传输失败或 401/403 以外的非 2xx
	KindNetwork
	// KindSessionExpired 会话过期，可通过 re-login 重试一次
	KindSessionExpired
	// KindApplication 格式正确的 RPC 错误
	KindApplication
	// KindParse 响应体无法解析
	KindParse
	// KindReloginFailed re-login 本身失败，终止
	KindReloginFailed
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindSessionExpired:
		return "session_expired"
	case KindApplication:
		return "application"
	case KindParse:
		return "parse"
	case KindReloginFailed:
		return "relogin_failed"
	default:
		return "unknown"
	}
}

// Codes carried by Error.Code.
const (
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeAppKeyMissing       = "APPKEY_MISSING_OR_MASKED"
	CodeCertificateMissing  = "CERTIFICATE_MISSING"
	CodeCertificatePassword = "CERTIFICATE_PASSWORD_MISSING"
	CodeCertificateInvalid  = "CERTIFICATE_INVALID"
	CodeAccountStore        = "ACCOUNT_STORE_UNAVAILABLE"
	CodeHTTPStatus          = "HTTP_STATUS"
	CodeTransport           = "TRANSPORT"
	CodeEmptyResult         = "EMPTY_RESULT"
	CodeRequestEncode       = "REQUEST_ENCODE_FAILED"
	CodeUnparseable         = "JSON_PARSE_FAILED"
	CodeReloginFailed       = "RELOGIN_FAILED"
	CodeSessionExpired      = "SESSION_EXPIRED"
)

// unparseableMessage is what callers see for a ParseError; the body goes to the diagnostics log.
const unparseableMessage = "unparseable response, try again later"

// maxBodySnippet 错误信息中保留的响应体长度
const maxBodySnippet = 500

// Error 网关与客户端层的统一错误
type Error struct {
	Kind    Kind
	Code    string
	Status  int    // HTTP 状态码，传输失败时为 0
	Message string // 面向调用方的描述
	Body    string // 截断后的响应体
	cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindReloginFailed:
		return CodeReloginFailed + ": " + e.Message
	case KindParse:
		return e.Message
	case KindNetwork:
		if e.Status == 0 {
			return fmt.Sprintf("NETWORK_ERROR: %s", e.Message)
		}
		if e.Body != "" {
			return fmt.Sprintf("NETWORK_ERROR: HTTP %d %s", e.Status, e.Body)
		}
		return fmt.Sprintf("NETWORK_ERROR: HTTP %d", e.Status)
	case KindSessionExpired, KindApplication:
		return e.Message
	default:
		if e.Message == "" {
			return e.Code
		}
		return e.Code + ": " + e.Message
	}
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf 返回错误分类，非 *Error 返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable 只有会话过期可以重试（且只重试一次）
func IsRetryable(err error) bool {
	return KindOf(err) == KindSessionExpired
}

func newConfigurationError(code, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: message}
}

func newNetworkError(status int, body string, cause error) *Error {
	e := &Error{Kind: KindNetwork, Status: status, Body: truncate(body), cause: cause}
	if status == 0 {
		e.Code = CodeTransport
		if cause != nil {
			e.Message = cause.Error()
		}
	} else {
		e.Code = CodeHTTPStatus
	}
	return e
}

func newSessionExpiredError(status int, message, body string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s: HTTP %d", CodeSessionExpired, status)
	}
	return &Error{Kind: KindSessionExpired, Code: CodeSessionExpired, Status: status, Message: message, Body: truncate(body)}
}

func newApplicationError(code, message, body string) *Error {
	return &Error{Kind: KindApplication, Code: code, Message: message, Body: truncate(body)}
}

func newParseError(status int, cause error) *Error {
	return &Error{Kind: KindParse, Code: CodeUnparseable, Status: status, Message: unparseableMessage, cause: cause}
}

func newReloginFailedError(cause error) *Error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return &Error{Kind: KindReloginFailed, Code: CodeReloginFailed, Message: reason, cause: cause}
}

// LoginError 登录/re-login 失败
type LoginError struct {
	Code   string
	Detail string
}

// Login error codes.
const (
	LoginAccountNotFound    = CodeAccountNotFound
	LoginAppKeyMissing      = CodeAppKeyMissing
	LoginCredentialsMissing = "CREDENTIALS_MISSING"
	LoginHTMLResponse       = "HTML_RESPONSE"
	LoginUnexpected         = "UNEXPECTED_RESPONSE"
	LoginFailed             = "LOGIN_FAILED"
	LoginClientUnavailable  = "CLIENT_UNAVAILABLE"
	LoginNetwork            = "NETWORK_ERROR"
	LoginSessionStore       = "SESSION_STORE_FAILED"
)

func (e *LoginError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// truncate 截断到 maxBodySnippet 个字符并把换行替换为空格
func truncate(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) <= maxBodySnippet {
		return s
	}
	r := []rune(s)
	return string(r[:maxBodySnippet]) + "..."
}
