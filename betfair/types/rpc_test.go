package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCError_Composite(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "nested APING exception",
			raw:  `{"code":-32099,"message":"ANGX-0003","data":{"APINGException":{"errorCode":"INVALID_SESSION_INFORMATION"},"exceptionname":"APINGException"}}`,
			want: "RPC_ERROR: -32099 ANGX-0003 [INVALID_SESSION_INFORMATION]",
		},
		{
			name: "flat error code",
			raw:  `{"code":-32099,"message":"boom","data":{"errorCode":"INSUFFICIENT_FUNDS"}}`,
			want: "RPC_ERROR: -32099 boom [INSUFFICIENT_FUNDS]",
		},
		{
			name: "no data",
			raw:  `{"code":-32601,"message":"Method not found"}`,
			want: "RPC_ERROR: -32601 Method not found",
		},
		{
			name: "data is a string",
			raw:  `{"code":1,"message":"x","data":"opaque"}`,
			want: "RPC_ERROR: 1 x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e RPCError
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &e))
			assert.Equal(t, tt.want, e.Composite())
		})
	}
}

func TestRPCResponse_HasResult(t *testing.T) {
	var withResult, nullResult, missing RPCResponse
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":[],"id":1}`), &withResult))
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":null,"id":1}`), &nullResult))
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1}`), &missing))

	assert.True(t, withResult.HasResult())
	assert.False(t, nullResult.HasResult())
	assert.False(t, missing.HasResult())
}

func TestNewRPCRequest_Envelope(t *testing.T) {
	b, err := json.Marshal(NewRPCRequest("SportsAPING/v1.0/listEventTypes", ListEventTypesParams{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"SportsAPING/v1.0/listEventTypes","params":{"filter":{}},"id":1}`, string(b))
}

func TestLoginResult_OK(t *testing.T) {
	assert.True(t, LoginResult{Status: "success", Token: "abc"}.OK())
	assert.False(t, LoginResult{Status: "SUCCESS"}.OK())
	assert.False(t, LoginResult{Status: "FAIL", Token: "abc"}.OK())
}

func TestClearedOrderSummary_Label(t *testing.T) {
	assert.Equal(t, "1.23", ClearedOrderSummary{MarketID: "1.23"}.Label())
	assert.Equal(t, "Match Odds", ClearedOrderSummary{MarketID: "1.23", ItemDescription: &ItemDescription{MarketDesc: "Match Odds"}}.Label())
	assert.Equal(t, "A v B", ClearedOrderSummary{ItemDescription: &ItemDescription{EventDesc: "A v B", MarketDesc: "Match Odds"}}.Label())
}
