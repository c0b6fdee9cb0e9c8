package client

import (
	"context"

	"github.com/betbot/replicator/betfair/types"
)

// Sports API methods.
const (
	MethodListEventTypes      = "SportsAPING/v1.0/listEventTypes"
	MethodListEvents          = "SportsAPING/v1.0/listEvents"
	MethodListMarketCatalogue = "SportsAPING/v1.0/listMarketCatalogue"
	MethodListMarketBook      = "SportsAPING/v1.0/listMarketBook"
	MethodListCurrentOrders   = "SportsAPING/v1.0/listCurrentOrders"
	MethodPlaceOrders         = "SportsAPING/v1.0/placeOrders"
	MethodCancelOrders        = "SportsAPING/v1.0/cancelOrders"
)

func (g *Gateway) ListEventTypes(ctx context.Context, s *Session, filter types.MarketFilter) ([]types.EventTypeResult, error) {
	return CallSession[[]types.EventTypeResult](ctx, g, s, MethodListEventTypes, types.ListEventTypesParams{Filter: filter})
}

func (g *Gateway) ListEvents(ctx context.Context, s *Session, filter types.MarketFilter) ([]types.EventResult, error) {
	return CallSession[[]types.EventResult](ctx, g, s, MethodListEvents, types.ListEventsParams{Filter: filter})
}

// ListMarketCatalogue defaults MaxResults to 100 when unset.
func (g *Gateway) ListMarketCatalogue(ctx context.Context, s *Session, params types.ListMarketCatalogueParams) ([]types.MarketCatalogue, error) {
	if params.MaxResults <= 0 {
		params.MaxResults = 100
	}
	return CallSession[[]types.MarketCatalogue](ctx, g, s, MethodListMarketCatalogue, params)
}

func (g *Gateway) ListMarketBook(ctx context.Context, s *Session, params types.ListMarketBookParams) ([]types.MarketBook, error) {
	return CallSession[[]types.MarketBook](ctx, g, s, MethodListMarketBook, params)
}

func (g *Gateway) ListCurrentOrders(ctx context.Context, s *Session, params types.ListCurrentOrdersParams) (types.CurrentOrderSummaryReport, error) {
	return CallSession[types.CurrentOrderSummaryReport](ctx, g, s, MethodListCurrentOrders, params)
}

// PlaceOrders fills in LIMIT as the order type when an instruction leaves it empty.
func (g *Gateway) PlaceOrders(ctx context.Context, s *Session, params types.PlaceOrdersParams) (types.PlaceExecutionReport, error) {
	for i := range params.Instructions {
		if params.Instructions[i].OrderType == "" {
			params.Instructions[i].OrderType = types.OrderTypeLimit
		}
	}
	return CallSession[types.PlaceExecutionReport](ctx, g, s, MethodPlaceOrders, params)
}

// CancelOrders cancels the given bets; an empty params value cancels every
// unmatched bet on the account.
func (g *Gateway) CancelOrders(ctx context.Context, s *Session, params types.CancelOrdersParams) (types.CancelExecutionReport, error) {
	return CallSession[types.CancelExecutionReport](ctx, g, s, MethodCancelOrders, params)
}
