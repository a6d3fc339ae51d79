package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func pnlSnapshotWith(ranges ...*PnlMonitorRange) *RuleSnapshot {
	return NewRuleSnapshot(1, time.Now(), nil, nil, nil, ranges, nil)
}

func pnlScopeFor(rng *PnlMonitorRange, req *OrderRequest) string {
	return CanonicalScope(rng.Condition.ResolvedFields(req.ConditionFields()))
}

func TestPnlMonitorLoss(t *testing.T) {
	rng := &PnlMonitorRange{
		Condition:  MustParseCondition("acctId=*"),
		PnlType:    PnlTypeLoss,
		LimitValue: decimal.NewFromInt(1000),
		Name:       "daily-loss",
	}
	snap := pnlSnapshotWith(rng)
	eval := NewPnlMonitorEvaluator(5 * time.Second)
	ledger := NewMemoryLedger(false)
	now := time.Now()

	req := newOrderReq(1, SideBid, 10, 1)
	scope := pnlScopeFor(rng, req)

	tests := []struct {
		name string
		pnl  int64
		want int32
	}{
		{"loss below limit passes", -999, StatusOK},
		{"loss at limit rejects", -1000, StatusPnlExceedLimit},
		{"loss beyond limit rejects", -5000, StatusPnlExceedLimit},
		{"profit never trips loss rule", 5000, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger.SetPnl(scope, decimal.NewFromInt(tt.pnl), now)
			v := eval.EvaluateOrder(req, snap, ledger, now)
			if v.StatusCode != tt.want {
				t.Errorf("pnl %d: status = %d, want %d", tt.pnl, v.StatusCode, tt.want)
			}
		})
	}
}

func TestPnlMonitorProfit(t *testing.T) {
	rng := &PnlMonitorRange{
		Condition:  MustParseCondition("acctId=*"),
		PnlType:    PnlTypeProfit,
		LimitValue: decimal.NewFromInt(1000),
	}
	snap := pnlSnapshotWith(rng)
	eval := NewPnlMonitorEvaluator(5 * time.Second)
	ledger := NewMemoryLedger(false)
	now := time.Now()

	req := newOrderReq(1, SideBid, 10, 1)
	scope := pnlScopeFor(rng, req)

	ledger.SetPnl(scope, decimal.NewFromInt(999), now)
	if v := eval.EvaluateOrder(req, snap, ledger, now); !v.Accepted() {
		t.Fatalf("profit below limit should pass, got %d", v.StatusCode)
	}
	ledger.SetPnl(scope, decimal.NewFromInt(1000), now)
	if v := eval.EvaluateOrder(req, snap, ledger, now); v.StatusCode != StatusPnlExceedLimit {
		t.Fatalf("profit at limit should reject, got %d", v.StatusCode)
	}
}

func TestPnlMonitorNullAndStale(t *testing.T) {
	rng := &PnlMonitorRange{
		Condition:  MustParseCondition("acctId=*"),
		PnlType:    PnlTypeLoss,
		LimitValue: decimal.NewFromInt(1000),
	}
	snap := pnlSnapshotWith(rng)
	eval := NewPnlMonitorEvaluator(5 * time.Second)
	ledger := NewMemoryLedger(false)
	now := time.Now()

	req := newOrderReq(1, SideBid, 10, 1)

	// 无快照：失败关闭
	if v := eval.EvaluateOrder(req, snap, ledger, now); v.StatusCode != StatusPnlIsNull {
		t.Fatalf("missing snapshot should reject with %d, got %d", StatusPnlIsNull, v.StatusCode)
	}

	// 过期快照：独立状态码
	scope := pnlScopeFor(rng, req)
	ledger.SetPnl(scope, decimal.NewFromInt(0), now.Add(-6*time.Second))
	if v := eval.EvaluateOrder(req, snap, ledger, now); v.StatusCode != StatusPnlIsTimeout {
		t.Fatalf("stale snapshot should reject with %d, got %d", StatusPnlIsTimeout, v.StatusCode)
	}

	// 新鲜快照放行
	ledger.SetPnl(scope, decimal.NewFromInt(0), now)
	if v := eval.EvaluateOrder(req, snap, ledger, now); !v.Accepted() {
		t.Fatalf("fresh snapshot within limit should pass, got %d", v.StatusCode)
	}
}

func TestPnlMonitorSkipsClosingOrders(t *testing.T) {
	rng := &PnlMonitorRange{
		Condition:  MustParseCondition("acctId=*"),
		PnlType:    PnlTypeLoss,
		LimitValue: decimal.NewFromInt(1000),
	}
	snap := pnlSnapshotWith(rng)
	eval := NewPnlMonitorEvaluator(5 * time.Second)
	ledger := NewMemoryLedger(false)
	now := time.Now()

	req := newOrderReq(1, SideBid, 10, 1)
	ledger.SetPnl(pnlScopeFor(rng, req), decimal.NewFromInt(-5000), now)

	// 开仓被拒
	if v := eval.EvaluateOrder(req, snap, ledger, now); v.StatusCode != StatusPnlExceedLimit {
		t.Fatalf("opening order with breached loss should reject, got %d", v.StatusCode)
	}

	// 同一账户的平仓单永远放行
	closing := newOrderReq(2, SideAsk, 10, 1)
	closing.PosDirection = PosDirectionClose
	if v := eval.EvaluateOrder(closing, snap, ledger, now); !v.Accepted() {
		t.Fatalf("closing order must always pass pnl monitor, got %d", v.StatusCode)
	}

	// 现货卖出不增加敞口
	spotSell := newOrderReq(3, SideAsk, 10, 1)
	spotSell.SymbolType = SymbolTypeSpot
	spotSell.PosDirection = PosDirectionUnreckoned
	if v := eval.EvaluateOrder(spotSell, snap, ledger, now); !v.Accepted() {
		t.Fatalf("spot sell must always pass pnl monitor, got %d", v.StatusCode)
	}
}

func TestPnlMonitorUnmonitoredScope(t *testing.T) {
	rng := &PnlMonitorRange{
		Condition:  MustParseCondition("acctId=20000"),
		PnlType:    PnlTypeLoss,
		LimitValue: decimal.NewFromInt(1000),
	}
	snap := pnlSnapshotWith(rng)
	eval := NewPnlMonitorEvaluator(5 * time.Second)
	ledger := NewMemoryLedger(false)

	// 不在任何监控范围内的账户不要求快照存在
	if v := eval.EvaluateOrder(newOrderReq(1, SideBid, 10, 1), snap, ledger, time.Now()); !v.Accepted() {
		t.Fatalf("unmonitored account must pass without a snapshot, got %d", v.StatusCode)
	}
}
