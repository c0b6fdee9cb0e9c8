package types

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// 交易所请求中的金额必须是 JSON 数字
	decimal.MarshalJSONWithoutQuotes = true
}

// Side 投注方向
type Side string

const (
	SideBack Side = "BACK"
	SideLay  Side = "LAY"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit OrderType = "LIMIT"
)

// PersistenceType 未匹配部分在开赛时的处理
type PersistenceType string

const (
	PersistenceLapse         PersistenceType = "LAPSE"
	PersistencePersist       PersistenceType = "PERSIST"
	PersistenceMarketOnClose PersistenceType = "MARKET_ON_CLOSE"
)

// BetStatus listClearedOrders 的结算状态
type BetStatus string

const (
	BetStatusSettled BetStatus = "SETTLED"
	BetStatusVoided  BetStatus = "VOIDED"
	BetStatusLapsed  BetStatus = "LAPSED"
)

// TimeRange 时间区间
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// NewTimeRange 以 UTC 构造区间
func NewTimeRange(from, to time.Time) *TimeRange {
	f, t := from.UTC(), to.UTC()
	return &TimeRange{From: &f, To: &t}
}

// MarketFilter 通用市场过滤器
type MarketFilter struct {
	EventTypeIDs    []string   `json:"eventTypeIds,omitempty"`
	EventIDs        []string   `json:"eventIds,omitempty"`
	MarketIDs       []string   `json:"marketIds,omitempty"`
	MarketTypeCodes []string   `json:"marketTypeCodes,omitempty"`
	TextQuery       string     `json:"textQuery,omitempty"`
	MarketStartTime *TimeRange `json:"marketStartTime,omitempty"`
}

// ----- listEventTypes -----

type EventType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EventTypeResult struct {
	EventType   *EventType `json:"eventType,omitempty"`
	MarketCount int        `json:"marketCount"`
}

type ListEventTypesParams struct {
	Filter MarketFilter `json:"filter"`
}

// ----- listEvents -----

type Event struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	OpenDate *time.Time `json:"openDate,omitempty"`
}

type EventResult struct {
	Event       *Event `json:"event,omitempty"`
	MarketCount int    `json:"marketCount"`
}

type ListEventsParams struct {
	Filter MarketFilter `json:"filter"`
}

// ----- listMarketCatalogue -----

type RunnerCatalogue struct {
	SelectionID int64    `json:"selectionId"`
	RunnerName  string   `json:"runnerName"`
	Handicap    *float64 `json:"handicap,omitempty"`
}

type EventInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MarketCatalogue struct {
	MarketID        string            `json:"marketId"`
	MarketName      string            `json:"marketName"`
	MarketStartTime *time.Time        `json:"marketStartTime,omitempty"`
	Runners         []RunnerCatalogue `json:"runners,omitempty"`
	Event           *EventInfo        `json:"event,omitempty"`
}

type ListMarketCatalogueParams struct {
	Filter           MarketFilter `json:"filter"`
	MarketProjection []string     `json:"marketProjection,omitempty"` // RUNNER_DESCRIPTION, EVENT, MARKET_START_TIME
	Sort             string       `json:"sort,omitempty"`
	MaxResults       int          `json:"maxResults"`
}

// ----- listMarketBook -----

type PriceProjection struct {
	PriceData []string `json:"priceData"`
}

type ListMarketBookParams struct {
	MarketIDs       []string         `json:"marketIds"`
	PriceProjection *PriceProjection `json:"priceProjection,omitempty"`
}

type PriceSize struct {
	Price float64         `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type ExchangePrices struct {
	AvailableToBack []PriceSize `json:"availableToBack,omitempty"`
	AvailableToLay  []PriceSize `json:"availableToLay,omitempty"`
}

type RunnerBook struct {
	SelectionID int64           `json:"selectionId"`
	Status      string          `json:"status,omitempty"`
	Ex          *ExchangePrices `json:"ex,omitempty"`
}

type MarketBook struct {
	MarketID            string       `json:"marketId"`
	IsMarketDataDelayed bool         `json:"isMarketDataDelayed"`
	Status              string       `json:"status"`
	Inplay              bool         `json:"inplay"`
	Runners             []RunnerBook `json:"runners,omitempty"`
}

// ----- placeOrders -----

type LimitOrder struct {
	Size            decimal.Decimal `json:"size"`
	Price           float64         `json:"price"`
	PersistenceType PersistenceType `json:"persistenceType"`
}

type PlaceInstruction struct {
	SelectionID int64       `json:"selectionId"`
	Side        Side        `json:"side"`
	OrderType   OrderType   `json:"orderType"`
	LimitOrder  *LimitOrder `json:"limitOrder,omitempty"`
}

type PlaceOrdersParams struct {
	MarketID     string             `json:"marketId"`
	Instructions []PlaceInstruction `json:"instructions"`
	CustomerRef  string             `json:"customerRef,omitempty"`
}

type PlaceInstructionReport struct {
	Status              string            `json:"status"`
	ErrorCode           string            `json:"errorCode,omitempty"`
	Instruction         *PlaceInstruction `json:"instruction,omitempty"`
	BetID               string            `json:"betId,omitempty"`
	PlacedDate          *time.Time        `json:"placedDate,omitempty"`
	AveragePriceMatched *float64          `json:"averagePriceMatched,omitempty"`
	SizeMatched         *decimal.Decimal  `json:"sizeMatched,omitempty"`
	OrderStatus         string            `json:"orderStatus,omitempty"`
}

type PlaceExecutionReport struct {
	CustomerRef        string                   `json:"customerRef,omitempty"`
	Status             string                   `json:"status"` // SUCCESS / FAILURE / PROCESSED_WITH_ERRORS
	ErrorCode          string                   `json:"errorCode,omitempty"`
	MarketID           string                   `json:"marketId"`
	InstructionReports []PlaceInstructionReport `json:"instructionReports,omitempty"`
}

// ----- cancelOrders -----

type CancelInstruction struct {
	BetID         string           `json:"betId"`
	SizeReduction *decimal.Decimal `json:"sizeReduction,omitempty"`
}

type CancelOrdersParams struct {
	MarketID     string              `json:"marketId,omitempty"`
	Instructions []CancelInstruction `json:"instructions,omitempty"`
	CustomerRef  string              `json:"customerRef,omitempty"`
}

type CancelInstructionReport struct {
	Status        string             `json:"status"`
	ErrorCode     string             `json:"errorCode,omitempty"`
	Instruction   *CancelInstruction `json:"instruction,omitempty"`
	SizeCancelled *decimal.Decimal   `json:"sizeCancelled,omitempty"`
}

type CancelExecutionReport struct {
	Status             string                    `json:"status"`
	ErrorCode          string                    `json:"errorCode,omitempty"`
	MarketID           string                    `json:"marketId,omitempty"`
	InstructionReports []CancelInstructionReport `json:"instructionReports,omitempty"`
}

// ----- listCurrentOrders -----

type ListCurrentOrdersParams struct {
	BetIDs      []string `json:"betIds,omitempty"`
	MarketIDs   []string `json:"marketIds,omitempty"`
	FromRecord  int      `json:"fromRecord,omitempty"`
	RecordCount int      `json:"recordCount,omitempty"`
}

type CurrentOrderSummary struct {
	BetID               string           `json:"betId"`
	MarketID            string           `json:"marketId"`
	SelectionID         int64            `json:"selectionId"`
	Side                Side             `json:"side"`
	Status              string           `json:"status"` // EXECUTABLE / EXECUTION_COMPLETE
	PriceSize           *PriceSize       `json:"priceSize,omitempty"`
	SizeMatched         *decimal.Decimal `json:"sizeMatched,omitempty"`
	SizeRemaining       *decimal.Decimal `json:"sizeRemaining,omitempty"`
	AveragePriceMatched *float64         `json:"averagePriceMatched,omitempty"`
	PlacedDate          *time.Time       `json:"placedDate,omitempty"`
}

type CurrentOrderSummaryReport struct {
	CurrentOrders []CurrentOrderSummary `json:"currentOrders"`
	MoreAvailable bool                  `json:"moreAvailable"`
}

// ----- listClearedOrders -----

type ListClearedOrdersParams struct {
	BetStatus              BetStatus  `json:"betStatus"`
	SettledDateRange       *TimeRange `json:"settledDateRange,omitempty"`
	IncludeItemDescription bool       `json:"includeItemDescription"`
	FromRecord             int        `json:"fromRecord"`
	RecordCount            int        `json:"recordCount"`
}

type ItemDescription struct {
	EventTypeDesc string `json:"eventTypeDesc,omitempty"`
	EventDesc     string `json:"eventDesc,omitempty"`
	MarketDesc    string `json:"marketDesc,omitempty"`
	RunnerDesc    string `json:"runnerDesc,omitempty"`
}

// ClearedOrderSummary 已结算记录
type ClearedOrderSummary struct {
	BetID           string           `json:"betId"`
	MarketID        string           `json:"marketId"`
	SelectionID     int64            `json:"selectionId,omitempty"`
	Side            Side             `json:"side"`
	PriceMatched    *float64         `json:"priceMatched,omitempty"`
	SizeSettled     decimal.Decimal  `json:"sizeSettled"`
	Profit          decimal.Decimal  `json:"profit"`
	BetCount        int              `json:"betCount,omitempty"`
	PlacedDate      *time.Time       `json:"placedDate,omitempty"`
	SettledDate     *time.Time       `json:"settledDate,omitempty"`
	ItemDescription *ItemDescription `json:"itemDescription,omitempty"`
}

// Label 展示用名称：赛事 > 市场 > marketId
func (c ClearedOrderSummary) Label() string {
	if c.ItemDescription != nil {
		if c.ItemDescription.EventDesc != "" {
			return c.ItemDescription.EventDesc
		}
		if c.ItemDescription.MarketDesc != "" {
			return c.ItemDescription.MarketDesc
		}
	}
	return c.MarketID
}

type ClearedOrderSummaryReport struct {
	ClearedOrders []ClearedOrderSummary `json:"clearedOrders"`
	MoreAvailable bool                  `json:"moreAvailable"`
}
