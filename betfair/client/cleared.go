package client

import (
	"context"
	"time"

	"github.com/betbot/replicator/betfair/types"
	"github.com/betbot/replicator/internal/metrics"
	"github.com/betbot/replicator/pkg/logger"
)

// MethodListClearedOrders is the settled-records operation.
const MethodListClearedOrders = "SportsAPING/v1.0/listClearedOrders"

// FetchAllCleared pages through settled records in [from, to]. It stops when
// the exchange reports no more records, a page comes back empty, or maxPages
// pages have been read (maxPages <= 0 selects the gateway default).
func FetchAllCleared(ctx context.Context, gw *Gateway, displayName, appKey, token string, from, to time.Time, maxPages int) ([]types.ClearedOrderSummary, error) {
	return FetchAllClearedSession(ctx, gw, &Session{DisplayName: displayName, AppKey: appKey, Token: token}, from, to, maxPages)
}

// FetchAllClearedSession is FetchAllCleared with a session that receives a
// refreshed token, so later pages do not repeat the re-login.
func FetchAllClearedSession(ctx context.Context, gw *Gateway, s *Session, from, to time.Time, maxPages int) ([]types.ClearedOrderSummary, error) {
	if maxPages <= 0 {
		maxPages = gw.opts.ClearedMaxPages
	}
	pageSize := gw.opts.ClearedPageSize

	var all []types.ClearedOrderSummary
	offset := 0
	for page := 0; page < maxPages; page++ {
		params := types.ListClearedOrdersParams{
			BetStatus:              types.BetStatusSettled,
			SettledDateRange:       types.NewTimeRange(from, to),
			IncludeItemDescription: true,
			FromRecord:             offset,
			RecordCount:            pageSize,
		}
		report, err := CallSession[types.ClearedOrderSummaryReport](ctx, gw, s, MethodListClearedOrders, params)
		if err != nil {
			return nil, err
		}
		metrics.ClearedPages.Add(1)

		n := len(report.ClearedOrders)
		all = append(all, report.ClearedOrders...)
		offset += n
		if n == 0 || !report.MoreAvailable {
			return all, nil
		}
	}

	logger.Warnf("[cleared] %s: stopped after %d pages with more records available", s.DisplayName, maxPages)
	return all, nil
}
