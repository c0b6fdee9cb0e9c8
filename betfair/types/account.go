package types

import "github.com/shopspring/decimal"

// AccountFundsParams getAccountFunds 参数，Wallet 为空表示默认钱包
type AccountFundsParams struct {
	Wallet string `json:"wallet,omitempty"`
}

// AccountFunds 账户资金
type AccountFunds struct {
	AvailableToBetBalance decimal.Decimal  `json:"availableToBetBalance"`
	Exposure              decimal.Decimal  `json:"exposure"`
	RetainedCommission    decimal.Decimal  `json:"retainedCommission"`
	ExposureLimit         decimal.Decimal  `json:"exposureLimit"`
	DiscountRate          *decimal.Decimal `json:"discountRate,omitempty"`
	PointsBalance         int              `json:"pointsBalance,omitempty"`
	Wallet                string           `json:"wallet,omitempty"`
}
