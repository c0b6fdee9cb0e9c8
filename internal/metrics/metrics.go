package metrics

import "expvar"

// 交易所客户端计数器，通过 /debug/vars 暴露
var (
	RPCCalls        = expvar.NewInt("betfair_rpc_calls")
	RPCErrors       = expvar.NewInt("betfair_rpc_errors")
	RPCParseErrors  = expvar.NewInt("betfair_rpc_parse_errors")
	Relogins        = expvar.NewInt("betfair_relogins")
	ReloginFailures = expvar.NewInt("betfair_relogin_failures")
	Logins          = expvar.NewInt("betfair_logins")
	LoginFailures   = expvar.NewInt("betfair_login_failures")
	ClearedPages    = expvar.NewInt("betfair_cleared_pages")
)
