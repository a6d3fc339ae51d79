package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PnlType 盈亏监控方向。
type PnlType string

const (
	PnlTypeLoss   PnlType = "Loss"
	PnlTypeProfit PnlType = "Profit"
)

// PnlMonitorRange 盈亏监控范围。
type PnlMonitorRange struct {
	ID         uint64
	Step       string
	Condition  Condition
	PnlType    PnlType
	LimitValue decimal.Decimal
	Name       string
}

// PnlMonitorEvaluator 盈亏监控。只拦增加敞口的委托；平仓减仓永远放行。
// 快照缺失或超过时效预算按失败关闭处理，分别给出独立状态码。
type PnlMonitorEvaluator struct {
	// stalenessBudget 快照时效预算
	stalenessBudget time.Duration
}

func NewPnlMonitorEvaluator(stalenessBudget time.Duration) *PnlMonitorEvaluator {
	return &PnlMonitorEvaluator{stalenessBudget: stalenessBudget}
}

func (e *PnlMonitorEvaluator) Name() string { return FamilyPnlMonitor }

// EvaluateOrder 对新委托执行盈亏检查。
func (e *PnlMonitorEvaluator) EvaluateOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict {
	if !req.IsOpening() {
		return Accept()
	}

	fields := req.ConditionFields()
	for _, rng := range snap.PnlMonitorRanges {
		if !rng.Condition.Matches(fields) {
			continue
		}

		scope := CanonicalScope(rng.Condition.ResolvedFields(fields))
		pnlSnap, ok := ledger.Pnl(scope)
		if !ok {
			return Reject(StatusPnlIsNull, FamilyPnlMonitor,
				fmt.Sprintf("range %q: no pnl snapshot for scope %s", rng.Name, scope))
		}
		if now.Sub(pnlSnap.UpdatedAt) > e.stalenessBudget {
			return Reject(StatusPnlIsTimeout, FamilyPnlMonitor,
				fmt.Sprintf("range %q: pnl snapshot for scope %s is stale", rng.Name, scope))
		}

		switch rng.PnlType {
		case PnlTypeLoss:
			if pnlSnap.Pnl.IsNegative() && pnlSnap.Pnl.Abs().GreaterThanOrEqual(rng.LimitValue) {
				return Reject(StatusPnlExceedLimit, FamilyPnlMonitor,
					fmt.Sprintf("range %q: loss %s breaches limit %s", rng.Name, pnlSnap.Pnl, rng.LimitValue))
			}
		case PnlTypeProfit:
			if pnlSnap.Pnl.GreaterThanOrEqual(rng.LimitValue) {
				return Reject(StatusPnlExceedLimit, FamilyPnlMonitor,
					fmt.Sprintf("range %q: profit %s breaches limit %s", rng.Name, pnlSnap.Pnl, rng.LimitValue))
			}
		}
	}
	return Accept()
}
