package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeRule 费率规则行。symbolCode 为空表示该市场/类型下的通配行，精确行
// 优先于通配行。
type FeeRule struct {
	ID               uint64
	AccountID        uint64
	TradingAccountID uint64
	Side             Side
	PosDirection     PosDirection
	MarketCode       string
	SymbolType       SymbolType
	SymbolCode       string
	FeeMode          FeeMode
	CommissionRate   decimal.Decimal
	MinCommission    decimal.Decimal
	StampDutyRate    decimal.Decimal
	MinStampDuty     decimal.Decimal
	TransferFeeRate  decimal.Decimal
	MinTransferFee   decimal.Decimal
	UpdatedAt        time.Time
}

type feeKey struct {
	accountID        uint64
	tradingAccountID uint64
	side             Side
	posDirection     PosDirection
	marketCode       string
	symbolType       SymbolType
	symbolCode       string
}

func (r *FeeRule) key() feeKey {
	return feeKey{
		accountID:        r.AccountID,
		tradingAccountID: r.TradingAccountID,
		side:             r.Side,
		posDirection:     r.PosDirection,
		marketCode:       r.MarketCode,
		symbolType:       r.SymbolType,
		symbolCode:       r.SymbolCode,
	}
}

// FeeCalculator 费用计算器。
type FeeCalculator struct{}

func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// Resolve 为成交定位费率行。查找顺序：精确标的行先于通配行；每级内
// CloseTDay 回落到 Close，再回落到 Both。
func (c *FeeCalculator) Resolve(snap *RuleSnapshot, fill *Fill) (*FeeRule, bool) {
	posDirs := []PosDirection{fill.PosDirection}
	if fill.PosDirection == PosDirectionCloseTDay {
		posDirs = append(posDirs, PosDirectionClose)
	}
	posDirs = append(posDirs, PosDirectionBoth)

	for _, symbol := range []string{fill.SymbolCode, ""} {
		for _, pd := range posDirs {
			key := feeKey{
				accountID:        fill.AccountID,
				tradingAccountID: fill.TradingAccountID,
				side:             fill.Side,
				posDirection:     pd,
				marketCode:       fill.MarketCode,
				symbolType:       fill.SymbolType,
				symbolCode:       symbol,
			}
			if rule, ok := snap.feeIndex[key]; ok {
				return rule, true
			}
		}
	}
	return nil, false
}

// Compute 计算一笔成交的费用。未命中费率行时按零费用计价，由调用方
// 记录告警。最低费用条款为替换语义：实算小于最低值时取最低值。
func (c *FeeCalculator) Compute(snap *RuleSnapshot, fill *Fill) (Fee, bool) {
	rule, ok := c.Resolve(snap, fill)
	if !ok {
		return Fee{
			Commission:  decimal.Zero,
			StampDuty:   decimal.Zero,
			TransferFee: decimal.Zero,
		}, false
	}

	notional := fill.Notional()

	var commission decimal.Decimal
	switch rule.FeeMode {
	case FeeModeByVolume:
		// ByVolume 下费率为每单位数量的费用
		commission = floorTo(fill.Size.Mul(rule.CommissionRate), rule.MinCommission)
	default:
		commission = floorTo(notional.Mul(rule.CommissionRate), rule.MinCommission)
	}

	// 印花税与过户费始终按金额计
	stampDuty := floorTo(notional.Mul(rule.StampDutyRate), rule.MinStampDuty)
	transferFee := floorTo(notional.Mul(rule.TransferFeeRate), rule.MinTransferFee)

	return Fee{
		Commission:  commission,
		StampDuty:   stampDuty,
		TransferFee: transferFee,
	}, true
}

func floorTo(raw, min decimal.Decimal) decimal.Decimal {
	if raw.LessThan(min) {
		return min
	}
	return raw
}
