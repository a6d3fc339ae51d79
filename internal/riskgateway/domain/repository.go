package domain

import (
	"context"
)

// FeeRuleRepository 费率规则仓储接口。
type FeeRuleRepository interface {
	Save(ctx context.Context, rule *FeeRule) error
	Delete(ctx context.Context, id uint64) error
	FindByID(ctx context.Context, id uint64) (*FeeRule, error)
	ListActive(ctx context.Context) ([]*FeeRule, error)
}

// FlowCtrlRuleRepository 流控规则仓储接口。
type FlowCtrlRuleRepository interface {
	Save(ctx context.Context, rule *FlowCtrlRule) error
	Delete(ctx context.Context, ruleNo int32) error
	FindByRuleNo(ctx context.Context, ruleNo int32) (*FlowCtrlRule, error)
	ListActive(ctx context.Context) ([]*FlowCtrlRule, error)
}

// SelfTradeRangeRepository 自成交防护范围仓储接口。
type SelfTradeRangeRepository interface {
	Save(ctx context.Context, rng *SelfTradeRange) error
	Delete(ctx context.Context, id uint64) error
	ListActive(ctx context.Context) ([]*SelfTradeRange, error)
}

// PnlMonitorRangeRepository 盈亏监控范围仓储接口。
type PnlMonitorRangeRepository interface {
	Save(ctx context.Context, rng *PnlMonitorRange) error
	Delete(ctx context.Context, id uint64) error
	ListActive(ctx context.Context) ([]*PnlMonitorRange, error)
}

// SymbolListRepository 黑白名单仓储接口。
type SymbolListRepository interface {
	Save(ctx context.Context, entry *SymbolListEntry) error
	Delete(ctx context.Context, id uint64) error
	ListActive(ctx context.Context) ([]*SymbolListEntry, error)
}

// DecisionRepository 决策审计仓储接口。
type DecisionRepository interface {
	Save(ctx context.Context, decision *RiskDecision) error
	ListByOrderID(ctx context.Context, orderID uint64) ([]*RiskDecision, error)
}
