package services

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/protect"
)

type mockClients struct{ c *resty.Client }

func (m mockClients) Get(context.Context, string) (*resty.Client, error) { return m.c, nil }

func testConfig(dir string) *config.Config {
	return &config.Config{
		DataDir: dir,
		Exchange: config.ExchangeConfig{
			IdentityURL:           config.DefaultIdentityURL,
			BettingURL:            config.DefaultBettingURL,
			AccountURL:            config.DefaultAccountURL,
			HTTPTimeoutSeconds:    30,
			SessionExpiredMarkers: config.DefaultSessionExpiredMarkers,
			ClearedPageSize:       1000,
			ClearedMaxPages:       5,
		},
		Accounts: []config.AccountSeed{{DisplayName: "Main", AppKey: "APPKEY"}},
	}
}

func newTestService(t *testing.T) (*BetfairService, *httpmock.MockTransport) {
	t.Helper()
	provider, err := protect.NewProvider(bytes.Repeat([]byte{7}, protect.KeySize))
	require.NoError(t, err)
	mt := httpmock.NewMockTransport()
	svc, err := NewBetfairService(context.Background(), testConfig(t.TempDir()),
		WithProtectionProvider(provider),
		WithClientProvider(mockClients{c: resty.New().SetTransport(mt)}))
	require.NoError(t, err)
	return svc, mt
}

func TestNewBetfairService_SeedsAccounts(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.Accounts.Get(context.Background(), "main")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "APPKEY", rec.AppKey)
}

func TestNewBetfairService_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Exchange.ClearedPageSize = 5000
	_, err := NewBetfairService(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBetfairService_Session(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Session(ctx, "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.Session(ctx, "Main")
	assert.ErrorIs(t, err, ErrNotConnected)

	user, pass := "u", "p"
	require.NoError(t, svc.Accounts.Upsert(ctx, vault.AccountInput{DisplayName: "Main", AppKey: "APPKEY", Username: &user, Password: &pass}))
	sess, err := svc.Session(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "", sess.Token)

	require.NoError(t, svc.Sessions.SetToken(ctx, "Main", "TOKEN"))
	sess, err = svc.Session(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "Main", sess.DisplayName)
	assert.Equal(t, "TOKEN", sess.Token)
}

func TestBetfairService_FirstConnected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	name, err := svc.FirstConnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", name)

	require.NoError(t, svc.Sessions.SetToken(ctx, "Aaa-orphan", "X"))
	require.NoError(t, svc.Sessions.SetToken(ctx, "Main", "T"))
	name, err = svc.FirstConnected(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Main", name)
}

func TestBetfairService_FundsAll(t *testing.T) {
	svc, mt := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Accounts.Upsert(ctx, vault.AccountInput{DisplayName: "Second", AppKey: "APP2"}))
	require.NoError(t, svc.Sessions.SetToken(ctx, "Main", "T1"))
	require.NoError(t, svc.Sessions.SetToken(ctx, "Second", "T2"))

	mt.RegisterResponder(http.MethodPost, config.DefaultAccountURL, func(r *http.Request) (*http.Response, error) {
		balance := "10"
		if r.Header.Get("X-Application") == "APP2" {
			balance = "20"
		}
		return httpmock.NewStringResponse(http.StatusOK,
			`{"jsonrpc":"2.0","result":{"availableToBetBalance":`+balance+`,"exposure":0},"id":1}`), nil
	})

	results, err := svc.FundsAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Main", results[0].DisplayName)
	require.NoError(t, results[0].Err)
	assert.True(t, decimal.NewFromInt(10).Equal(results[0].Funds.AvailableToBetBalance))
	assert.Equal(t, "Second", results[1].DisplayName)
	assert.True(t, decimal.NewFromInt(20).Equal(results[1].Funds.AvailableToBetBalance))
}

func TestBetfairService_Statistics(t *testing.T) {
	svc, mt := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Sessions.SetToken(ctx, "Main", "T"))

	mt.RegisterResponder(http.MethodPost, config.DefaultBettingURL, httpmock.NewStringResponder(http.StatusOK,
		`{"jsonrpc":"2.0","result":{"clearedOrders":[
			{"betId":"1","marketId":"1.1","side":"BACK","sizeSettled":10,"profit":5,"settledDate":"2026-03-03T10:00:00.000Z"},
			{"betId":"2","marketId":"1.1","side":"LAY","sizeSettled":10,"profit":-2,"settledDate":"2026-01-20T10:00:00.000Z"}
		],"moreAvailable":false},"id":1}`))

	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	rows, err := svc.Statistics(ctx, "Main", now, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, decimal.NewFromInt(-2).Equal(rows[0].Profit))
	assert.Equal(t, 0, rows[1].Bets)
	assert.True(t, decimal.NewFromInt(50).Equal(rows[2].RoiPct))
	assert.Equal(t, 1, mt.GetTotalCallCount())
}
