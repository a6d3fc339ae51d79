package domain

import (
	"time"
)

// OrderEvaluator 规则族评估器的统一能力。网关按固定优先级迭代评估器，
// 第一个拒绝即短路。评估不产生副作用，对同一份快照与账本重复评估得到
// 相同结论。
type OrderEvaluator interface {
	Name() string
	EvaluateOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict
}

// OrderEvaluatorChain 按优先级组装评估器：名单、自成交、流控、盈亏。
func OrderEvaluatorChain(symbolList *SymbolListEvaluator, selfTrade *SelfTradeEvaluator, flowCtrl *FlowControlEvaluator, pnlMonitor *PnlMonitorEvaluator) []OrderEvaluator {
	return []OrderEvaluator{symbolList, selfTrade, flowCtrl, pnlMonitor}
}
