package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/betbot/replicator/betfair/types"
)

// ParseLoginResponse classifies an identity endpoint response body. The order
// is fixed:
//
//  1. HTML document marker: HTML_RESPONSE (gateway or WAF page)
//  2. query-string text, e.g. "status=SUCCESS&token=..."
//  3. loose key=value scan anywhere in the text
//  4. JSON {status, token, error}, then {loginStatus, sessionToken}
//  5. UNEXPECTED_RESPONSE
//
// A parsed FAIL status is a result, not an error.
func ParseLoginResponse(status int, contentType string, body []byte) (types.LoginResult, error) {
	text := string(body)

	if isHTML(text) {
		return types.LoginResult{}, &LoginError{Code: LoginHTMLResponse, Detail: describe(status, contentType, text)}
	}

	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "\ufeff"))
	norm := normalizeLoginBody(clean)

	if r, ok := parseQueryLogin(norm); ok {
		return r, nil
	}
	if r, ok := scanKeyValueLogin(norm); ok {
		return r, nil
	}
	if r, ok := parseJSONLogin(clean); ok {
		return r, nil
	}

	return types.LoginResult{}, &LoginError{Code: LoginUnexpected, Detail: describe(status, contentType, text)}
}

func isHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html")
}

func normalizeLoginBody(text string) string {
	return strings.NewReplacer(";", "&", "\r\n", "&", "\r", "&", "\n", "&").Replace(text)
}

// assign 对三个已知 key 赋值（不区分大小写），返回是否命中
func assign(r *types.LoginResult, key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "status":
		r.Status = value
	case "token":
		r.Token = value
	case "error":
		r.Error = value
	default:
		return false
	}
	return true
}

// parseQueryLogin 只做百分号解码，不把 '+' 当空格：token 是 base64 文本
func parseQueryLogin(norm string) (types.LoginResult, bool) {
	var r types.LoginResult
	found := false
	for _, pair := range strings.Split(norm, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if dec, err := url.PathUnescape(v); err == nil {
			v = dec
		}
		if assign(&r, k, v) {
			found = true
		}
	}
	return r, found
}

var loginKeyValueRe = regexp.MustCompile(`(?i)\b(status|token|error)\s*=\s*([^&\s"',;}]+)`)

func scanKeyValueLogin(norm string) (types.LoginResult, bool) {
	var r types.LoginResult
	found := false
	for _, m := range loginKeyValueRe.FindAllStringSubmatch(norm, -1) {
		if assign(&r, m[1], m[2]) {
			found = true
		}
	}
	return r, found
}

func parseJSONLogin(clean string) (types.LoginResult, bool) {
	raw := []byte(clean)
	if !json.Valid(raw) {
		return types.LoginResult{}, false
	}

	var direct types.LoginResponse
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct.Status != "" || direct.Token != "" || direct.Error != "" {
			return types.LoginResult{Status: direct.Status, Token: direct.Token, Error: direct.Error}, true
		}
	}

	var alt types.CertLoginResponse
	if err := json.Unmarshal(raw, &alt); err == nil && (alt.LoginStatus != "" || alt.SessionToken != "") {
		if strings.EqualFold(alt.LoginStatus, types.LoginStatusSuccess) {
			return types.LoginResult{Status: types.LoginStatusSuccess, Token: alt.SessionToken}, true
		}
		return types.LoginResult{Status: "FAIL", Error: alt.LoginStatus}, true
	}
	return types.LoginResult{}, false
}

func describe(status int, contentType, body string) string {
	return fmt.Sprintf("HTTP %d CT=%s BODY='%s'", status, contentType, truncate(body))
}
