package types

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// JSONRPCVersion 请求信封协议版本
const JSONRPCVersion = "2.0"

// RPCRequest JSON-RPC 请求信封
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// NewRPCRequest 创建请求信封
func NewRPCRequest(method string, params interface{}) RPCRequest {
	return RPCRequest{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      1,
	}
}

// RPCResponse JSON-RPC 响应信封，result 和 error 二选一
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// HasResult result 字段存在且不为 null
func (r *RPCResponse) HasResult() bool {
	trimmed := bytes.TrimSpace(r.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// RPCError 应用层错误
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DataErrorCode 从 data 中提取交易所错误码。
// 形如 {"APINGException":{"errorCode":"INVALID_SESSION_INFORMATION"},"exceptionname":"APINGException"}
// 或直接 {"errorCode":"..."}；没有时返回空字符串。
func (e *RPCError) DataErrorCode() string {
	if e == nil || len(bytes.TrimSpace(e.Data)) == 0 {
		return ""
	}

	var flat struct {
		ErrorCode     string `json:"errorCode"`
		ExceptionName string `json:"exceptionname"`
	}
	if err := json.Unmarshal(e.Data, &flat); err != nil {
		return ""
	}
	if flat.ErrorCode != "" {
		return flat.ErrorCode
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &nested); err != nil {
		return ""
	}

	pick := func(raw json.RawMessage) string {
		var inner struct {
			ErrorCode string `json:"errorCode"`
		}
		if json.Unmarshal(raw, &inner) != nil {
			return ""
		}
		return inner.ErrorCode
	}

	if flat.ExceptionName != "" {
		if code := pick(nested[flat.ExceptionName]); code != "" {
			return code
		}
	}
	keys := make([]string, 0, len(nested))
	for k := range nested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if code := pick(nested[k]); code != "" {
			return code
		}
	}
	return ""
}

// Composite 组合错误文本：RPC_ERROR: <code> <message> [<data errorCode>]
func (e *RPCError) Composite() string {
	var sb strings.Builder
	sb.WriteString("RPC_ERROR: ")
	sb.WriteString(strconv.Itoa(e.Code))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		sb.WriteString(" ")
		sb.WriteString(msg)
	}
	if code := e.DataErrorCode(); code != "" {
		sb.WriteString(" [")
		sb.WriteString(code)
		sb.WriteString("]")
	}
	return sb.String()
}
