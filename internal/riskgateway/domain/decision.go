package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionKind 决策类型。
type DecisionKind string

const (
	DecisionKindOrder  DecisionKind = "order"
	DecisionKindCancel DecisionKind = "cancel"
	DecisionKindFill   DecisionKind = "fill"
	DecisionKindReject DecisionKind = "reject"
)

// RiskDecision 一次风控决策的审计记录，同时作为对外发布的决策事件载体。
type RiskDecision struct {
	ID               uint64          `json:"id"`
	Kind             DecisionKind    `json:"kind"`
	OrderID          uint64          `json:"order_id"`
	AccountID        uint64          `json:"account_id"`
	TradingAccountID uint64          `json:"trading_account_id"`
	MarketCode       string          `json:"market_code"`
	SymbolCode       string          `json:"symbol_code"`
	StatusCode       int32           `json:"status_code"`
	Family           string          `json:"family,omitempty"`
	Detail           string          `json:"detail,omitempty"`
	Fee              decimal.Decimal `json:"fee"`
	RuleVersion      int64           `json:"rule_version"`
	DecidedAt        time.Time       `json:"decided_at"`
}
