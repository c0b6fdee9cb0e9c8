package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/betbot/replicator/betfair/types"
	"github.com/betbot/replicator/internal/metrics"
	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/logger"
	"github.com/betbot/replicator/pkg/ratelimit"
)

// accountMethodPrefix 账户接口的方法前缀，其余方法走 betting 端点
const accountMethodPrefix = "AccountAPING/"

// Default paging bounds for cleared orders.
const (
	DefaultClearedPageSize = 1000
	DefaultClearedMaxPages = 50
)

// GatewayOptions configures a Gateway. Zero values select defaults.
type GatewayOptions struct {
	BettingURL string
	AccountURL string
	// Markers are the session-expired markers; empty selects the v1 list.
	Markers []string
	// Coalesce shares one in-flight re-login result between waiters.
	Coalesce bool
	// RatePerSecond throttles calls per account; 0 disables throttling.
	RatePerSecond   float64
	ClearedPageSize int
	ClearedMaxPages int
}

// GatewayOptionsFromConfig maps the exchange section of the config.
func GatewayOptionsFromConfig(c config.ExchangeConfig) GatewayOptions {
	return GatewayOptions{
		BettingURL:      c.BettingURL,
		AccountURL:      c.AccountURL,
		Markers:         c.SessionExpiredMarkers,
		Coalesce:        c.CoalesceRelogin,
		RatePerSecond:   c.RPCRatePerSecond,
		ClearedPageSize: c.ClearedPageSize,
		ClearedMaxPages: c.ClearedMaxPages,
	}
}

// Session identifies the account a call runs as. DoSession replaces Token
// after a successful re-login so later calls reuse it.
type Session struct {
	DisplayName string
	AppKey      string
	Token       string
}

// Gateway sends JSON-RPC calls, re-authenticating once when the session
// has expired.
type Gateway struct {
	clients    ClientProvider
	relogger   Relogger
	opts       GatewayOptions
	classifier *ExpiryClassifier
	guards     *keyedMutex
	flight     singleflight.Group
	limits     *ratelimit.Manager
}

// NewGateway creates a gateway over the client pool and authenticator.
func NewGateway(clients ClientProvider, relogger Relogger, opts GatewayOptions) *Gateway {
	if strings.TrimSpace(opts.BettingURL) == "" {
		opts.BettingURL = config.DefaultBettingURL
	}
	if strings.TrimSpace(opts.AccountURL) == "" {
		opts.AccountURL = config.DefaultAccountURL
	}
	if opts.ClearedPageSize <= 0 || opts.ClearedPageSize > DefaultClearedPageSize {
		opts.ClearedPageSize = DefaultClearedPageSize
	}
	if opts.ClearedMaxPages <= 0 {
		opts.ClearedMaxPages = DefaultClearedMaxPages
	}
	return &Gateway{
		clients:    clients,
		relogger:   relogger,
		opts:       opts,
		classifier: NewExpiryClassifier(opts.Markers),
		guards:     newKeyedMutex(),
		limits:     ratelimit.PerSecond(opts.RatePerSecond),
	}
}

// Options returns the effective options.
func (g *Gateway) Options() GatewayOptions { return g.opts }

// Classifier returns the session-expiry classifier in use.
func (g *Gateway) Classifier() *ExpiryClassifier { return g.classifier }

// Do performs one logical call and returns the raw result.
func (g *Gateway) Do(ctx context.Context, displayName, appKey, token, method string, params interface{}) (json.RawMessage, error) {
	return g.DoSession(ctx, &Session{DisplayName: displayName, AppKey: appKey, Token: token}, method, params)
}

// DoSession is Do with a session that receives the refreshed token.
//
// Only a session-expired failure triggers a re-login, and the call is then
// repeated exactly once; the outcome of that second attempt is final.
func (g *Gateway) DoSession(ctx context.Context, s *Session, method string, params interface{}) (json.RawMessage, error) {
	entry := logger.WithFields(logrus.Fields{
		"call_id": uuid.NewString(),
		"account": s.DisplayName,
		"method":  method,
	})
	metrics.RPCCalls.Add(1)

	raw, err := g.callOnce(ctx, entry, s, method, params)
	if err == nil {
		return raw, nil
	}
	if !IsRetryable(err) {
		metrics.RPCErrors.Add(1)
		entry.Debugf("call failed: %v", err)
		return nil, err
	}

	entry.Warnf("session expired, re-login: %v", err)
	token, rerr := g.relogin(ctx, s.DisplayName)
	if rerr != nil {
		metrics.ReloginFailures.Add(1)
		metrics.RPCErrors.Add(1)
		entry.Errorf("re-login failed: %v", rerr)
		return nil, newReloginFailedError(rerr)
	}
	metrics.Relogins.Add(1)
	s.Token = token

	raw, err = g.callOnce(ctx, entry, s, method, params)
	if err != nil {
		metrics.RPCErrors.Add(1)
		entry.Warnf("retry after re-login failed: %v", err)
		return nil, err
	}
	return raw, nil
}

// relogin 持有账户锁期间执行 re-login；启用合并时等待者共享同一结果
func (g *Gateway) relogin(ctx context.Context, displayName string) (string, error) {
	key := vault.Key(displayName)
	run := func() (string, error) {
		unlock, err := g.guards.Lock(ctx, key)
		if err != nil {
			return "", err
		}
		defer unlock()
		return g.relogger.ReLogin(ctx, displayName)
	}
	if !g.opts.Coalesce {
		return run()
	}
	v, err, _ := g.flight.Do(key, func() (interface{}, error) {
		return run()
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Gateway) endpointFor(method string) string {
	if strings.HasPrefix(method, accountMethodPrefix) {
		return g.opts.AccountURL
	}
	return g.opts.BettingURL
}

func (g *Gateway) callOnce(ctx context.Context, entry *logrus.Entry, s *Session, method string, params interface{}) (json.RawMessage, error) {
	client, err := g.clients.Get(ctx, s.DisplayName)
	if err != nil {
		return nil, err
	}
	if err := g.limits.Wait(ctx, vault.Key(s.DisplayName)); err != nil {
		return nil, newNetworkError(0, "", err)
	}

	payload, err := json.Marshal(types.NewRPCRequest(method, params))
	if err != nil {
		return nil, &Error{Kind: KindApplication, Code: CodeRequestEncode, Message: CodeRequestEncode + ": " + err.Error(), cause: err}
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-Application", s.AppKey).
		SetHeader("X-Authentication", s.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(payload).
		Post(g.endpointFor(method))
	if err != nil {
		return nil, newNetworkError(0, "", err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, newSessionExpiredError(status, "", string(body))
	case status < 200 || status > 299:
		return nil, newNetworkError(status, string(body), nil)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		metrics.RPCParseErrors.Add(1)
		entry.Warnf("unparseable response (HTTP %d, %d bytes)", status, len(body))
		logger.Diagnosef("%s account=%s HTTP %d\n%v\n%s", method, s.DisplayName, status, err, body)
		return nil, newParseError(status, err)
	}

	if env.Error != nil {
		composite := env.Error.Composite()
		if g.classifier.IsSessionExpired(composite, string(body)) {
			return nil, newSessionExpiredError(status, composite, string(body))
		}
		code := env.Error.DataErrorCode()
		if code == "" {
			code = strconv.Itoa(env.Error.Code)
		}
		return nil, newApplicationError(code, composite, string(body))
	}
	if !env.HasResult() {
		return nil, newApplicationError(CodeEmptyResult, CodeEmptyResult, string(body))
	}
	return env.Result, nil
}

// decodeEnvelope 先按单个信封解析，失败后按数组解析并取第一个；null 不算信封
func decodeEnvelope(body []byte) (*types.RPCResponse, error) {
	var single *types.RPCResponse
	singleErr := json.Unmarshal(body, &single)
	if singleErr == nil {
		if single == nil {
			return nil, errors.New("decode envelope: null body")
		}
		return single, nil
	}

	var batch []*types.RPCResponse
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, errors.Wrap(singleErr, "decode envelope")
	}
	if len(batch) == 0 {
		return nil, errors.New("decode envelope: empty batch")
	}
	if batch[0] == nil {
		return nil, errors.New("decode envelope: null batch element")
	}
	return batch[0], nil
}

// Call performs a gateway call and decodes the result into T.
func Call[T any](ctx context.Context, gw *Gateway, displayName, appKey, token, method string, params interface{}) (T, error) {
	return CallSession[T](ctx, gw, &Session{DisplayName: displayName, AppKey: appKey, Token: token}, method, params)
}

// CallSession is Call with a session that receives the refreshed token.
func CallSession[T any](ctx context.Context, gw *Gateway, s *Session, method string, params interface{}) (T, error) {
	var out T
	raw, err := gw.DoSession(ctx, s, method, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.RPCParseErrors.Add(1)
		logger.Diagnosef("%s account=%s result decode failed\n%v\n%s", method, s.DisplayName, err, raw)
		return out, newParseError(http.StatusOK, err)
	}
	return out, nil
}
