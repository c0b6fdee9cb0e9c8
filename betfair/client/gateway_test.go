package client

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/replicator/betfair/types"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/logger"
)

const (
	eventTypesResult = `{"jsonrpc":"2.0","result":[{"eventType":{"id":"1","name":"Soccer"},"marketCount":3}],"id":1}`
	expiredEnvelope  = `{"jsonrpc":"2.0","error":{"code":-32099,"message":"ANGX-0003","data":{"APINGException":{"errorCode":"INVALID_SESSION_INFORMATION"},"exceptionname":"APINGException"}},"id":1}`
	fundsEnvelope    = `{"jsonrpc":"2.0","error":{"code":-32099,"message":"ANGX-0002","data":{"APINGException":{"errorCode":"INSUFFICIENT_FUNDS"},"exceptionname":"APINGException"}},"id":1}`
)

func newTestGateway(relogger Relogger, opts GatewayOptions) (*Gateway, *httpmock.MockTransport) {
	clients, mt := newMockClients()
	return NewGateway(clients, relogger, opts), mt
}

func callEventTypes(gw *Gateway, token string) ([]types.EventTypeResult, error) {
	return Call[[]types.EventTypeResult](context.Background(), gw, "acc", "APPKEY", token,
		MethodListEventTypes, types.ListEventTypesParams{})
}

// tokenGate answers 401 unless the request carries the accepted token.
func tokenGate(accepted, body string) httpmock.Responder {
	return func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("X-Authentication") != accepted {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "unauthorized"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, body), nil
	}
}

func TestGateway_SingleEnvelope(t *testing.T) {
	gw, mt := newTestGateway(&fakeRelogger{}, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "APPKEY", r.Header.Get("X-Application"))
		assert.Equal(t, "TOKEN1", r.Header.Get("X-Authentication"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		return httpmock.NewStringResponse(http.StatusOK, eventTypesResult), nil
	})

	got, err := callEventTypes(gw, "TOKEN1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Soccer", got[0].EventType.Name)
}

func TestGateway_ArrayEnvelope(t *testing.T) {
	gw, mt := newTestGateway(&fakeRelogger{}, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusOK, "["+eventTypesResult+"]"))

	got, err := callEventTypes(gw, "T")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].MarketCount)
}

func TestGateway_AccountMethodsUseAccountEndpoint(t *testing.T) {
	gw, mt := newTestGateway(&fakeRelogger{}, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultAccountURL,
		httpmock.NewStringResponder(http.StatusOK, `{"jsonrpc":"2.0","result":{"availableToBetBalance":12.5,"exposure":-3.2},"id":1}`))

	funds, err := gw.GetAccountFunds(context.Background(), &Session{DisplayName: "acc", AppKey: "A", Token: "T"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(funds.AvailableToBetBalance))
	assert.True(t, decimal.RequireFromString("-3.2").Equal(funds.Exposure))
	assert.Equal(t, 0, mt.GetCallCountInfo()["POST "+config.DefaultBettingURL])
}

func TestGateway_ReloginThenRetrySucceeds(t *testing.T) {
	relogger := &fakeRelogger{token: "FRESH"}
	gw, mt := newTestGateway(relogger, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, tokenGate("FRESH", eventTypesResult))

	s := &Session{DisplayName: "acc", AppKey: "APPKEY", Token: "STALE"}
	got, err := CallSession[[]types.EventTypeResult](context.Background(), gw, s, MethodListEventTypes, types.ListEventTypesParams{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "FRESH", s.Token)
	assert.Equal(t, int32(1), relogger.calls.Load())
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestGateway_RetriesExactlyOnce(t *testing.T) {
	relogger := &fakeRelogger{token: "STILL-BAD"}
	gw, mt := newTestGateway(relogger, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusOK, expiredEnvelope))

	_, err := callEventTypes(gw, "T")
	require.Error(t, err)
	assert.Equal(t, KindSessionExpired, KindOf(err))
	assert.Contains(t, err.Error(), "INVALID_SESSION_INFORMATION")
	assert.Equal(t, int32(1), relogger.calls.Load())
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestGateway_ReloginFailureIsTerminal(t *testing.T) {
	relogger := &fakeRelogger{err: &LoginError{Code: LoginCredentialsMissing, Detail: "acc"}}
	gw, mt := newTestGateway(relogger, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusForbidden, "forbidden"))

	_, err := callEventTypes(gw, "T")
	require.Error(t, err)
	assert.Equal(t, KindReloginFailed, KindOf(err))
	assert.Equal(t, "RELOGIN_FAILED: CREDENTIALS_MISSING: acc", err.Error())
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestGateway_ApplicationErrorIsNotRetried(t *testing.T) {
	relogger := &fakeRelogger{token: "X"}
	gw, mt := newTestGateway(relogger, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusOK, fundsEnvelope))

	_, err := callEventTypes(gw, "T")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindApplication, e.Kind)
	assert.Equal(t, "INSUFFICIENT_FUNDS", e.Code)
	assert.Equal(t, "RPC_ERROR: -32099 ANGX-0002 [INSUFFICIENT_FUNDS]", e.Error())
	assert.Equal(t, int32(0), relogger.calls.Load())
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestGateway_EmptyResult(t *testing.T) {
	for _, body := range []string{`{"jsonrpc":"2.0","id":1}`, `{"jsonrpc":"2.0","result":null,"id":1}`} {
		gw, mt := newTestGateway(&fakeRelogger{}, GatewayOptions{})
		mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, httpmock.NewStringResponder(http.StatusOK, body))

		_, err := callEventTypes(gw, "T")
		var e *Error
		require.True(t, errors.As(err, &e), body)
		assert.Equal(t, KindApplication, e.Kind)
		assert.Equal(t, CodeEmptyResult, e.Code)
	}
}

func TestGateway_ParseErrorGoesToDiagnostics(t *testing.T) {
	var diag bytes.Buffer
	logger.SetDiagnosticsOutput(&diag)
	t.Cleanup(func() { logger.SetDiagnosticsOutput(nil) })

	relogger := &fakeRelogger{token: "X"}
	gw, mt := newTestGateway(relogger, GatewayOptions{})
	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusOK, "<html>maintenance page</html>"))

	_, err := callEventTypes(gw, "T")
	require.Error(t, err)
	assert.Equal(t, KindParse, KindOf(err))
	assert.Equal(t, unparseableMessage, err.Error())
	assert.NotContains(t, err.Error(), "maintenance")
	assert.Contains(t, diag.String(), "maintenance page")
	assert.Equal(t, int32(0), relogger.calls.Load())
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestGateway_NullBodyIsParseError(t *testing.T) {
	for _, body := range []string{"null", " null\n", "[null]", "[]"} {
		var diag bytes.Buffer
		logger.SetDiagnosticsOutput(&diag)

		gw, mt := newTestGateway(&fakeRelogger{token: "X"}, GatewayOptions{})
		mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, httpmock.NewStringResponder(http.StatusOK, body))

		_, err := callEventTypes(gw, "T")
		require.Error(t, err, body)
		assert.Equal(t, KindParse, KindOf(err), body)
		assert.NotEmpty(t, diag.String(), body)
		assert.Equal(t, 1, mt.GetTotalCallCount(), body)
	}
	logger.SetDiagnosticsOutput(nil)
}

func TestGateway_NetworkErrors(t *testing.T) {
	relogger := &fakeRelogger{token: "X"}
	gw, mt := newTestGateway(relogger, GatewayOptions{})

	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "try later"))
	_, err := callEventTypes(gw, "T")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
	assert.Equal(t, "try later", e.Body)

	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL,
		httpmock.NewErrorResponder(errors.New("dial tcp: connection refused")))
	_, err = callEventTypes(gw, "T")
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Equal(t, 0, e.Status)

	assert.Equal(t, int32(0), relogger.calls.Load())
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestGateway_ClientUnavailable(t *testing.T) {
	clients := &staticClients{err: newConfigurationError(CodeCertificateMissing, "acc")}
	gw := NewGateway(clients, &fakeRelogger{}, GatewayOptions{})

	_, err := callEventTypes(gw, "T")
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestGateway_ReloginNeverOverlapsPerAccount(t *testing.T) {
	for _, coalesce := range []bool{false, true} {
		relogger := &fakeRelogger{token: "FRESH", delay: 20 * time.Millisecond}
		gw, mt := newTestGateway(relogger, GatewayOptions{Coalesce: coalesce})
		mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, tokenGate("FRESH", eventTypesResult))

		const callers = 8
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = callEventTypes(gw, "STALE")
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), relogger.maxSeen.Load(), "coalesce=%v", coalesce)
		if coalesce {
			assert.LessOrEqual(t, relogger.calls.Load(), int32(callers))
		} else {
			assert.Equal(t, int32(callers), relogger.calls.Load())
		}
	}
}

func TestNewGateway_ClampsPaging(t *testing.T) {
	gw := NewGateway(&staticClients{}, &fakeRelogger{}, GatewayOptions{ClearedPageSize: 5000})
	assert.Equal(t, DefaultClearedPageSize, gw.Options().ClearedPageSize)
	assert.Equal(t, DefaultClearedMaxPages, gw.Options().ClearedMaxPages)
	assert.Equal(t, config.DefaultBettingURL, gw.Options().BettingURL)
}
