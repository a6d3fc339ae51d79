package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
)

// OrderCheckDTO 委托检查请求体。
type OrderCheckDTO struct {
	OrderID          uint64          `json:"order_id"`
	ClientOrderID    string          `json:"client_order_id"`
	AccountID        uint64          `json:"account_id" binding:"required"`
	TradingAccountID uint64          `json:"trading_account_id" binding:"required"`
	MarketCode       string          `json:"market_code" binding:"required"`
	SymbolType       string          `json:"symbol_type"`
	SymbolCode       string          `json:"symbol_code" binding:"required"`
	Side             string          `json:"side" binding:"required"`
	PosDirection     string          `json:"pos_direction"`
	Price            decimal.Decimal `json:"price"`
	Size             decimal.Decimal `json:"size"`
}

// ToDomain 转换为领域对象。
func (d *OrderCheckDTO) ToDomain() *domain.OrderRequest {
	return &domain.OrderRequest{
		OrderID:          d.OrderID,
		ClientOrderID:    d.ClientOrderID,
		AccountID:        d.AccountID,
		TradingAccountID: d.TradingAccountID,
		MarketCode:       d.MarketCode,
		SymbolType:       domain.SymbolType(d.SymbolType),
		SymbolCode:       d.SymbolCode,
		Side:             domain.Side(d.Side),
		PosDirection:     domain.PosDirection(d.PosDirection),
		Price:            d.Price,
		Size:             d.Size,
	}
}

// CancelCheckDTO 撤单检查请求体。
type CancelCheckDTO struct {
	OrderID          uint64 `json:"order_id" binding:"required"`
	AccountID        uint64 `json:"account_id" binding:"required"`
	TradingAccountID uint64 `json:"trading_account_id" binding:"required"`
	MarketCode       string `json:"market_code"`
	SymbolType       string `json:"symbol_type"`
	SymbolCode       string `json:"symbol_code"`
}

// ToDomain 转换为领域对象。
func (d *CancelCheckDTO) ToDomain() *domain.CancelRequest {
	return &domain.CancelRequest{
		OrderID:          d.OrderID,
		AccountID:        d.AccountID,
		TradingAccountID: d.TradingAccountID,
		MarketCode:       d.MarketCode,
		SymbolType:       domain.SymbolType(d.SymbolType),
		SymbolCode:       d.SymbolCode,
	}
}

// FillEventDTO 成交回报请求体。
type FillEventDTO struct {
	OrderID          uint64          `json:"order_id" binding:"required"`
	AccountID        uint64          `json:"account_id" binding:"required"`
	TradingAccountID uint64          `json:"trading_account_id"`
	MarketCode       string          `json:"market_code" binding:"required"`
	SymbolType       string          `json:"symbol_type"`
	SymbolCode       string          `json:"symbol_code" binding:"required"`
	Side             string          `json:"side" binding:"required"`
	PosDirection     string          `json:"pos_direction"`
	Price            decimal.Decimal `json:"price"`
	Size             decimal.Decimal `json:"size"`
}

// ToDomain 转换为领域对象。
func (d *FillEventDTO) ToDomain() *domain.Fill {
	return &domain.Fill{
		OrderID:          d.OrderID,
		AccountID:        d.AccountID,
		TradingAccountID: d.TradingAccountID,
		MarketCode:       d.MarketCode,
		SymbolType:       domain.SymbolType(d.SymbolType),
		SymbolCode:       d.SymbolCode,
		Side:             domain.Side(d.Side),
		PosDirection:     domain.PosDirection(d.PosDirection),
		Price:            d.Price,
		Size:             d.Size,
	}
}

// VerdictDTO 检查结论响应体。
type VerdictDTO struct {
	OrderID    uint64 `json:"order_id,omitempty"`
	StatusCode int32  `json:"status_code"`
	Message    string `json:"message"`
	Family     string `json:"family,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// NewVerdictDTO 由领域结论构造响应体。
func NewVerdictDTO(orderID uint64, v domain.Verdict) *VerdictDTO {
	return &VerdictDTO{
		OrderID:    orderID,
		StatusCode: v.StatusCode,
		Message:    domain.StatusMessage(v.StatusCode),
		Family:     v.Family,
		Detail:     v.Detail,
	}
}

// FeeDTO 费用响应体。
type FeeDTO struct {
	Commission  decimal.Decimal `json:"commission"`
	StampDuty   decimal.Decimal `json:"stamp_duty"`
	TransferFee decimal.Decimal `json:"transfer_fee"`
	Total       decimal.Decimal `json:"total"`
	RuleMatched bool            `json:"rule_matched"`
}

// NewFeeDTO 由领域费用构造响应体。
func NewFeeDTO(fee domain.Fee, matched bool) *FeeDTO {
	return &FeeDTO{
		Commission:  fee.Commission,
		StampDuty:   fee.StampDuty,
		TransferFee: fee.TransferFee,
		Total:       fee.Total(),
		RuleMatched: matched,
	}
}

// FeeRuleDTO 费率规则维护请求体。
type FeeRuleDTO struct {
	ID               uint64          `json:"id"`
	AccountID        uint64          `json:"account_id" binding:"required"`
	TradingAccountID uint64          `json:"trading_account_id" binding:"required"`
	Side             string          `json:"side" binding:"required"`
	PosDirection     string          `json:"pos_direction"`
	MarketCode       string          `json:"market_code" binding:"required"`
	SymbolType       string          `json:"symbol_type"`
	SymbolCode       string          `json:"symbol_code"`
	FeeMode          string          `json:"fee_mode" binding:"required"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	MinCommission    decimal.Decimal `json:"min_commission"`
	StampDutyRate    decimal.Decimal `json:"stamp_duty_rate"`
	MinStampDuty     decimal.Decimal `json:"min_stamp_duty"`
	TransferFeeRate  decimal.Decimal `json:"transfer_fee_rate"`
	MinTransferFee   decimal.Decimal `json:"min_transfer_fee"`
}

// FlowCtrlRuleDTO 流控规则维护请求体。LimitValue 为阈值表达式，窗口型规
// 则形如 "1/1000ms"。
type FlowCtrlRuleDTO struct {
	RuleNo     int32  `json:"rule_no" binding:"required"`
	Name       string `json:"name"`
	Target     string `json:"target" binding:"required"`
	Condition  string `json:"condition"`
	LimitValue string `json:"limit_value" binding:"required"`
}

// SelfTradeRangeDTO 自成交防护范围维护请求体。
type SelfTradeRangeDTO struct {
	ID        uint64 `json:"id"`
	Step      string `json:"step"`
	Condition string `json:"condition" binding:"required"`
	Name      string `json:"name"`
}

// PnlMonitorRangeDTO 盈亏监控范围维护请求体。
type PnlMonitorRangeDTO struct {
	ID         uint64          `json:"id"`
	Step       string          `json:"step"`
	Condition  string          `json:"condition" binding:"required"`
	PnlType    string          `json:"pnl_type" binding:"required"`
	LimitValue decimal.Decimal `json:"limit_value"`
	Name       string          `json:"name"`
}

// SymbolListEntryDTO 黑白名单维护请求体。
type SymbolListEntryDTO struct {
	ID         uint64 `json:"id"`
	Step       string `json:"step"`
	Condition  string `json:"condition"`
	MarketCode string `json:"market_code"`
	SymbolType string `json:"symbol_type"`
	SymbolCode string `json:"symbol_code"`
	ListType   string `json:"list_type" binding:"required"`
	Name       string `json:"name"`
}
