package types

import "strings"

// LoginStatusSuccess 登录成功状态
const LoginStatusSuccess = "SUCCESS"

// LoginResult 身份端点返回的规范化结果
type LoginResult struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK 状态为 SUCCESS（不区分大小写）且 token 非空
func (r LoginResult) OK() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), LoginStatusSuccess) && strings.TrimSpace(r.Token) != ""
}

// LoginResponse 身份端点 JSON 形态一：{status, token, error}
type LoginResponse struct {
	Status        string `json:"status"`
	Token         string `json:"token"`
	Error         string `json:"error"`
	Product       string `json:"product,omitempty"`
	LastLoginDate string `json:"lastLoginDate,omitempty"`
}

// CertLoginResponse 身份端点 JSON 形态二：{loginStatus, sessionToken}
type CertLoginResponse struct {
	LoginStatus  string `json:"loginStatus"`
	SessionToken string `json:"sessionToken"`
}
