package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 买卖方向。
type Side string

const (
	SideBid Side = "Bid"
	SideAsk Side = "Ask"
)

// PosDirection 开平方向。
type PosDirection string

const (
	PosDirectionOpen       PosDirection = "Open"
	PosDirectionClose      PosDirection = "Close"
	PosDirectionCloseTDay  PosDirection = "CloseTDay"
	PosDirectionBoth       PosDirection = "Both"
	PosDirectionUnreckoned PosDirection = ""
)

// SymbolType 标的类型。现货无开平概念，只有买卖。
type SymbolType string

const (
	SymbolTypeSpot       SymbolType = "Spot"
	SymbolTypeFutures    SymbolType = "Futures"
	SymbolTypePerp       SymbolType = "Perp"
	SymbolTypeCNStock    SymbolType = "CN_MainBoard"
	SymbolTypeCNFutures  SymbolType = "CN_Futures"
	SymbolTypeUnreckoned SymbolType = ""
)

// FeeMode 费用计算模式。
type FeeMode string

const (
	// FeeModeByAmount 按成交金额乘费率。
	FeeModeByAmount FeeMode = "ByAmount"
	// FeeModeByVolume 按成交数量乘单位费用。
	FeeModeByVolume FeeMode = "ByVolume"
)

// OrderRequest 进入风控网关的委托请求。
type OrderRequest struct {
	OrderID          uint64          `json:"order_id"`
	ClientOrderID    string          `json:"client_order_id"`
	AccountID        uint64          `json:"account_id"`
	TradingAccountID uint64          `json:"trading_account_id"`
	MarketCode       string          `json:"market_code"`
	SymbolType       SymbolType      `json:"symbol_type"`
	SymbolCode       string          `json:"symbol_code"`
	Side             Side            `json:"side"`
	PosDirection     PosDirection    `json:"pos_direction"`
	Price            decimal.Decimal `json:"price"`
	Size             decimal.Decimal `json:"size"`
}

// Notional 委托名义金额 price * size。
func (r *OrderRequest) Notional() decimal.Decimal {
	return r.Price.Mul(r.Size)
}

// IsOpening 是否增加敞口。现货的卖出与期货的平仓不增加敞口。
func (r *OrderRequest) IsOpening() bool {
	switch r.SymbolType {
	case SymbolTypeSpot, SymbolTypeCNStock:
		return r.Side == SideBid
	default:
		return r.PosDirection == PosDirectionOpen || r.PosDirection == PosDirectionBoth
	}
}

// ConditionFields 用于规则条件匹配的字段视图。
func (r *OrderRequest) ConditionFields() map[string]string {
	return map[string]string{
		FieldAcctID:       formatUint(r.AccountID),
		FieldTrdAcctID:    formatUint(r.TradingAccountID),
		FieldMarketCode:   r.MarketCode,
		FieldSymbolType:   string(r.SymbolType),
		FieldSymbolCode:   r.SymbolCode,
		FieldSide:         string(r.Side),
		FieldPosDirection: string(r.PosDirection),
	}
}

// CancelRequest 撤单请求，携带原委托的定位字段。
type CancelRequest struct {
	OrderID          uint64     `json:"order_id"`
	AccountID        uint64     `json:"account_id"`
	TradingAccountID uint64     `json:"trading_account_id"`
	MarketCode       string     `json:"market_code"`
	SymbolType       SymbolType `json:"symbol_type"`
	SymbolCode       string     `json:"symbol_code"`
}

// ConditionFields 撤单请求的条件匹配字段视图。
func (r *CancelRequest) ConditionFields() map[string]string {
	return map[string]string{
		FieldAcctID:     formatUint(r.AccountID),
		FieldTrdAcctID:  formatUint(r.TradingAccountID),
		FieldMarketCode: r.MarketCode,
		FieldSymbolType: string(r.SymbolType),
		FieldSymbolCode: r.SymbolCode,
	}
}

// Fill 成交回报。
type Fill struct {
	OrderID          uint64          `json:"order_id"`
	AccountID        uint64          `json:"account_id"`
	TradingAccountID uint64          `json:"trading_account_id"`
	MarketCode       string          `json:"market_code"`
	SymbolType       SymbolType      `json:"symbol_type"`
	SymbolCode       string          `json:"symbol_code"`
	Side             Side            `json:"side"`
	PosDirection     PosDirection    `json:"pos_direction"`
	Price            decimal.Decimal `json:"price"`
	Size             decimal.Decimal `json:"size"`
	FilledAt         time.Time       `json:"filled_at"`
}

// Notional 成交金额。
func (f *Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// Verdict 单次风控检查的结论。
type Verdict struct {
	StatusCode int32  `json:"status_code"`
	Family     string `json:"family,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Accepted 是否放行。
func (v Verdict) Accepted() bool {
	return v.StatusCode == StatusOK
}

// Accept 放行结论。
func Accept() Verdict {
	return Verdict{StatusCode: StatusOK}
}

// Reject 拒绝结论。
func Reject(code int32, family, detail string) Verdict {
	return Verdict{StatusCode: code, Family: family, Detail: detail}
}

// Fee 一笔成交的费用拆分。
type Fee struct {
	Commission  decimal.Decimal `json:"commission"`
	StampDuty   decimal.Decimal `json:"stamp_duty"`
	TransferFee decimal.Decimal `json:"transfer_fee"`
}

// Total 费用合计。
func (f Fee) Total() decimal.Decimal {
	return f.Commission.Add(f.StampDuty).Add(f.TransferFee)
}
