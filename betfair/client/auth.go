package client

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/replicator/betfair/types"
	"github.com/betbot/replicator/internal/metrics"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/logger"
	"github.com/betbot/replicator/pkg/ratelimit"
)

// 身份端点限制：每分钟最多 100 次登录请求
const (
	loginRateLimit  = 100
	loginRateWindow = time.Minute
)

// maskMarkers 出现在 UI 脱敏后的 app key 中
var maskMarkers = []string{"*", "•", "…"}

// Authenticator performs certificate logins against the identity endpoint.
type Authenticator struct {
	accounts    AccountSource
	sessions    TokenStore
	clients     ClientProvider
	identityURL string
	limiter     ratelimit.RateLimiter
}

// NewAuthenticator wires the vaults and client pool. An empty identityURL
// selects the default endpoint.
func NewAuthenticator(accounts AccountSource, sessions TokenStore, clients ClientProvider, identityURL string) *Authenticator {
	if strings.TrimSpace(identityURL) == "" {
		identityURL = config.DefaultIdentityURL
	}
	return &Authenticator{
		accounts:    accounts,
		sessions:    sessions,
		clients:     clients,
		identityURL: identityURL,
		limiter:     ratelimit.NewSlidingWindow(loginRateLimit, loginRateWindow),
	}
}

// IdentityURL returns the endpoint in use.
func (a *Authenticator) IdentityURL() string { return a.identityURL }

// Login posts the credentials and classifies the response. The token is
// returned to the caller and never persisted here.
func (a *Authenticator) Login(ctx context.Context, displayName, username, password string) (types.LoginResult, error) {
	rec, err := a.accounts.Get(ctx, displayName)
	if err != nil {
		return types.LoginResult{}, &LoginError{Code: LoginAccountNotFound, Detail: err.Error()}
	}
	if rec == nil {
		return types.LoginResult{}, &LoginError{Code: LoginAccountNotFound, Detail: displayName}
	}
	if isMaskedAppKey(rec.AppKey) {
		return types.LoginResult{}, &LoginError{Code: LoginAppKeyMissing, Detail: displayName}
	}

	client, err := a.clients.Get(ctx, displayName)
	if err != nil {
		return types.LoginResult{}, &LoginError{Code: LoginClientUnavailable, Detail: err.Error()}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return types.LoginResult{}, &LoginError{Code: LoginNetwork, Detail: err.Error()}
	}

	metrics.Logins.Add(1)
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-Application", rec.AppKey).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		Post(a.identityURL)
	if err != nil {
		metrics.LoginFailures.Add(1)
		logger.Warnf("[auth] login transport error for %s: %v", displayName, err)
		return types.LoginResult{}, &LoginError{Code: LoginNetwork, Detail: err.Error()}
	}

	result, err := ParseLoginResponse(resp.StatusCode(), resp.Header().Get("Content-Type"), resp.Body())
	if err != nil {
		metrics.LoginFailures.Add(1)
		logger.Warnf("[auth] login response for %s not understood: %v", displayName, err)
		return types.LoginResult{}, err
	}
	if !result.OK() {
		metrics.LoginFailures.Add(1)
	}
	logger.WithFields(logrus.Fields{
		"account": displayName,
		"status":  result.Status,
		"token":   logger.Redact(result.Token),
	}).Info("[auth] login completed")
	return result, nil
}

// ReLogin logs in again with the stored credentials and persists the new token.
func (a *Authenticator) ReLogin(ctx context.Context, displayName string) (string, error) {
	rec, err := a.accounts.Get(ctx, displayName)
	if err != nil {
		return "", &LoginError{Code: LoginAccountNotFound, Detail: err.Error()}
	}
	if rec == nil {
		return "", &LoginError{Code: LoginAccountNotFound, Detail: displayName}
	}
	sec := a.accounts.UnprotectSecrets(rec)
	if strings.TrimSpace(sec.Username) == "" || sec.Password == "" {
		return "", &LoginError{Code: LoginCredentialsMissing, Detail: displayName}
	}

	token, err := a.loginAndStore(ctx, displayName, sec.Username, sec.Password)
	if err != nil {
		return "", err
	}
	logger.Infof("[auth] re-login succeeded for %s (token=%s)", displayName, logger.Redact(token))
	return token, nil
}

// Connect is the interactive login: on success the token is stored.
func (a *Authenticator) Connect(ctx context.Context, displayName, username, password string) (string, error) {
	return a.loginAndStore(ctx, displayName, username, password)
}

// Disconnect forgets the account's session token.
func (a *Authenticator) Disconnect(ctx context.Context, displayName string) error {
	if err := a.sessions.RemoveToken(ctx, displayName); err != nil {
		return &LoginError{Code: LoginSessionStore, Detail: err.Error()}
	}
	logger.Infof("[auth] disconnected %s", displayName)
	return nil
}

func (a *Authenticator) loginAndStore(ctx context.Context, displayName, username, password string) (string, error) {
	result, err := a.Login(ctx, displayName, username, password)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		detail := result.Error
		if detail == "" {
			detail = "status=" + result.Status
		}
		return "", &LoginError{Code: LoginFailed, Detail: detail}
	}
	token := strings.TrimSpace(result.Token)
	if err := a.sessions.SetToken(ctx, displayName, token); err != nil {
		return "", &LoginError{Code: LoginSessionStore, Detail: err.Error()}
	}
	return token, nil
}

func isMaskedAppKey(appKey string) bool {
	appKey = strings.TrimSpace(appKey)
	if appKey == "" {
		return true
	}
	for _, m := range maskMarkers {
		if strings.Contains(appKey, m) {
			return true
		}
	}
	return false
}
