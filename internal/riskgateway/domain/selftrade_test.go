package domain

import (
	"testing"
	"time"
)

func selfTradeSnapshot(tolerance ...int) (*RuleSnapshot, *SelfTradeEvaluator) {
	rng := &SelfTradeRange{
		ID:        1,
		Condition: MustParseCondition("acctId=*&trdAcctId=*"),
		Name:      "per-account",
	}
	snap := NewRuleSnapshot(1, time.Now(), nil, nil, []*SelfTradeRange{rng}, nil, nil)
	tol := 0
	if len(tolerance) > 0 {
		tol = tolerance[0]
	}
	return snap, NewSelfTradeEvaluator(tol)
}

func TestSelfTradeAskCrossesRestingBid(t *testing.T) {
	snap, eval := selfTradeSnapshot()
	ledger := NewMemoryLedger(false)
	now := time.Now()

	// 在途买单 100
	ledger.TrackOrder(newOrderReq(1, SideBid, 100, 10), now)

	// 卖 99 会与自己的买单成交
	v := eval.EvaluateOrder(newOrderReq(2, SideAsk, 99, 10), snap, ledger, now)
	if v.StatusCode != StatusSelfTradeOfAsk {
		t.Fatalf("ask below own resting bid should reject with %d, got %d", StatusSelfTradeOfAsk, v.StatusCode)
	}

	// 卖 100 同样触发（价格相等即成交）
	if v := eval.EvaluateOrder(newOrderReq(3, SideAsk, 100, 10), snap, ledger, now); v.StatusCode != StatusSelfTradeOfAsk {
		t.Fatalf("ask at own resting bid price should reject, got %d", v.StatusCode)
	}

	// 卖 101 不会成交，放行
	if v := eval.EvaluateOrder(newOrderReq(4, SideAsk, 101, 10), snap, ledger, now); !v.Accepted() {
		t.Fatalf("ask above own resting bid should pass, got %d", v.StatusCode)
	}
}

func TestSelfTradeBidCrossesRestingAsk(t *testing.T) {
	snap, eval := selfTradeSnapshot()
	ledger := NewMemoryLedger(false)
	now := time.Now()

	ledger.TrackOrder(newOrderReq(1, SideAsk, 100, 10), now)

	if v := eval.EvaluateOrder(newOrderReq(2, SideBid, 100, 10), snap, ledger, now); v.StatusCode != StatusSelfTradeOfBid {
		t.Fatalf("bid at own resting ask price should reject with %d, got %d", StatusSelfTradeOfBid, v.StatusCode)
	}
	if v := eval.EvaluateOrder(newOrderReq(3, SideBid, 99, 10), snap, ledger, now); !v.Accepted() {
		t.Fatalf("bid below own resting ask should pass, got %d", v.StatusCode)
	}
}

func TestSelfTradeIgnoresOtherInstrument(t *testing.T) {
	snap, eval := selfTradeSnapshot()
	ledger := NewMemoryLedger(false)
	now := time.Now()

	resting := newOrderReq(1, SideBid, 100, 10)
	resting.SymbolCode = "IC2312"
	ledger.TrackOrder(resting, now)

	if v := eval.EvaluateOrder(newOrderReq(2, SideAsk, 99, 10), snap, ledger, now); !v.Accepted() {
		t.Fatalf("resting order on another instrument must not trigger, got %d", v.StatusCode)
	}
}

func TestSelfTradeScopeIsolation(t *testing.T) {
	snap, eval := selfTradeSnapshot()
	ledger := NewMemoryLedger(false)
	now := time.Now()

	// 其他账户的在途买单
	other := newOrderReq(1, SideBid, 100, 10)
	other.AccountID = 20000
	ledger.TrackOrder(other, now)

	if v := eval.EvaluateOrder(newOrderReq(2, SideAsk, 99, 10), snap, ledger, now); !v.Accepted() {
		t.Fatalf("crossing another account's order is not self trade, got %d", v.StatusCode)
	}
}

func TestSelfTradeEvaluationIsIdempotentByDefault(t *testing.T) {
	snap, eval := selfTradeSnapshot()
	ledger := NewMemoryLedger(false)
	now := time.Now()
	ledger.TrackOrder(newOrderReq(1, SideBid, 100, 10), now)

	// 默认容忍值为零，重复评估不改变任何状态，结论始终一致
	for i := 0; i < 5; i++ {
		if v := eval.EvaluateOrder(newOrderReq(2, SideAsk, 99, 10), snap, ledger, now); v.StatusCode != StatusSelfTradeOfAsk {
			t.Fatalf("evaluation %d changed verdict, got %d", i, v.StatusCode)
		}
	}
}

func TestSelfTradeTolerance(t *testing.T) {
	snap, eval := selfTradeSnapshot(2)
	ledger := NewMemoryLedger(false)
	now := time.Now()
	ledger.TrackOrder(newOrderReq(1, SideBid, 100, 10), now)

	// 前两次触发被容忍
	for i := 0; i < 2; i++ {
		if v := eval.EvaluateOrder(newOrderReq(uint64(2+i), SideAsk, 99, 10), snap, ledger, now); !v.Accepted() {
			t.Fatalf("trigger %d within tolerance should pass, got %d", i+1, v.StatusCode)
		}
	}
	// 第三次拒绝
	if v := eval.EvaluateOrder(newOrderReq(9, SideAsk, 99, 10), snap, ledger, now); v.StatusCode != StatusSelfTradeOfAsk {
		t.Fatalf("trigger beyond tolerance should reject, got %d", v.StatusCode)
	}
}

func TestSelfTradeRequestOutsideRange(t *testing.T) {
	rng := &SelfTradeRange{
		ID:        1,
		Condition: MustParseCondition("acctId=99999"),
	}
	snap := NewRuleSnapshot(1, time.Now(), nil, nil, []*SelfTradeRange{rng}, nil, nil)
	eval := NewSelfTradeEvaluator(0)
	ledger := NewMemoryLedger(false)
	now := time.Now()

	ledger.TrackOrder(newOrderReq(1, SideBid, 100, 10), now)
	if v := eval.EvaluateOrder(newOrderReq(2, SideAsk, 99, 10), snap, ledger, now); !v.Accepted() {
		t.Fatalf("request outside every protection range must pass, got %d", v.StatusCode)
	}
}
