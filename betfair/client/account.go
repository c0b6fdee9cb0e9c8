package client

import (
	"context"

	"github.com/betbot/replicator/betfair/types"
)

// MethodGetAccountFunds is served by the account endpoint.
const MethodGetAccountFunds = "AccountAPING/v1.0/getAccountFunds"

// GetAccountFunds returns the balance of the default wallet.
func (g *Gateway) GetAccountFunds(ctx context.Context, s *Session) (types.AccountFunds, error) {
	return CallSession[types.AccountFunds](ctx, g, s, MethodGetAccountFunds, types.AccountFundsParams{})
}
