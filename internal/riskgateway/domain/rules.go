package domain

import (
	"time"
)

// RuleSnapshot 五类规则在某一时刻的不可变快照。评估期间始终读取同一份
// 快照，规则更新通过整体换代生效。
type RuleSnapshot struct {
	Version  int64
	LoadedAt time.Time

	FeeRules          []*FeeRule
	FlowCtrlRules     []*FlowCtrlRule
	SelfTradeRanges   []*SelfTradeRange
	PnlMonitorRanges  []*PnlMonitorRange
	SymbolListEntries []*SymbolListEntry

	feeIndex map[feeKey]*FeeRule
}

// NewRuleSnapshot 组装快照并建立费率索引。同键费率行以 UpdatedAt 较新者
// 为准。
func NewRuleSnapshot(
	version int64,
	loadedAt time.Time,
	feeRules []*FeeRule,
	flowCtrlRules []*FlowCtrlRule,
	selfTradeRanges []*SelfTradeRange,
	pnlMonitorRanges []*PnlMonitorRange,
	symbolListEntries []*SymbolListEntry,
) *RuleSnapshot {
	snap := &RuleSnapshot{
		Version:           version,
		LoadedAt:          loadedAt,
		FeeRules:          feeRules,
		FlowCtrlRules:     flowCtrlRules,
		SelfTradeRanges:   selfTradeRanges,
		PnlMonitorRanges:  pnlMonitorRanges,
		SymbolListEntries: symbolListEntries,
		feeIndex:          make(map[feeKey]*FeeRule, len(feeRules)),
	}
	for _, rule := range feeRules {
		key := rule.key()
		if prev, ok := snap.feeIndex[key]; ok && prev.UpdatedAt.After(rule.UpdatedAt) {
			continue
		}
		snap.feeIndex[key] = rule
	}
	return snap
}

// EmptyRuleSnapshot 空快照，用于测试与冷启动前的占位。
func EmptyRuleSnapshot() *RuleSnapshot {
	return NewRuleSnapshot(0, time.Time{}, nil, nil, nil, nil, nil)
}
