package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCumulativeCounters(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()

	if !ledger.Cumulative(1, "a", false, now).IsZero() {
		t.Fatal("fresh counter should be zero")
	}
	ledger.AddCumulative(1, "a", decimal.NewFromInt(10), false, now)
	ledger.AddCumulative(1, "a", decimal.NewFromInt(5), false, now)
	if got := ledger.Cumulative(1, "a", false, now); !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("counter = %s, want 15", got)
	}

	// 不同 scope 与不同规则互不影响
	if !ledger.Cumulative(1, "b", false, now).IsZero() {
		t.Error("other scope should be isolated")
	}
	if !ledger.Cumulative(2, "a", false, now).IsZero() {
		t.Error("other rule should be isolated")
	}
	// 日计数器与普通计数器互不影响
	if !ledger.Cumulative(1, "a", true, now).IsZero() {
		t.Error("daily counter should be isolated from cumulative")
	}
}

func TestDailyCounterRollsOverAtDayBoundary(t *testing.T) {
	day1 := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	ledger := NewMemoryLedger(false)
	ledger.AddCumulative(1, "a", decimal.NewFromInt(5), true, day1)
	ledger.AddCumulative(1, "a", decimal.NewFromInt(7), false, day1)
	if got := ledger.Cumulative(1, "a", true, day1); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("same-day daily counter = %s, want 5", got)
	}

	// 跨日读取：日计数器归零，普通计数器默认保留
	if !ledger.Cumulative(1, "a", true, day2).IsZero() {
		t.Error("daily counter must reset at the day boundary")
	}
	if got := ledger.Cumulative(1, "a", false, day2); !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("cumulative counter must survive the day boundary, got %s", got)
	}

	// dailyResetAll 打开时普通计数器也随日切归零
	all := NewMemoryLedger(true)
	all.AddCumulative(1, "a", decimal.NewFromInt(7), false, day1)
	if !all.Cumulative(1, "a", false, day2).IsZero() {
		t.Error("with daily reset enabled the cumulative counter must reset too")
	}
}

func TestWindowRing(t *testing.T) {
	ledger := NewMemoryLedger(false)
	w := WindowLimit{Count: 2, WindowMs: 1000}
	base := time.Now()

	// 空环不触发
	if ledger.WindowTriggered(1, "a", w, base) {
		t.Fatal("empty window must not trigger")
	}
	ledger.CommitWindow(1, "a", w, base)
	if ledger.WindowTriggered(1, "a", w, base.Add(100*time.Millisecond)) {
		t.Fatal("one event in a 2-count window must not trigger")
	}
	ledger.CommitWindow(1, "a", w, base.Add(100*time.Millisecond))

	// 两个事件都在窗口内：第三个触发
	if !ledger.WindowTriggered(1, "a", w, base.Add(500*time.Millisecond)) {
		t.Fatal("third event within window must trigger")
	}
	// 最旧事件滑出窗口后放行
	if ledger.WindowTriggered(1, "a", w, base.Add(1100*time.Millisecond)) {
		t.Fatal("after oldest slides out the window must not trigger")
	}
}

func TestWindowRingRebuildOnCountChange(t *testing.T) {
	ledger := NewMemoryLedger(false)
	base := time.Now()

	ledger.CommitWindow(1, "a", WindowLimit{Count: 1, WindowMs: 1000}, base)
	if !ledger.WindowTriggered(1, "a", WindowLimit{Count: 1, WindowMs: 1000}, base.Add(time.Millisecond)) {
		t.Fatal("1-count window with one event must trigger")
	}
	// 容量变更重建环，历史事件作废
	if ledger.WindowTriggered(1, "a", WindowLimit{Count: 2, WindowMs: 1000}, base.Add(time.Millisecond)) {
		t.Fatal("rebuilt window must start empty")
	}
}

func TestRestingOrderLifecycle(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()

	req := newOrderReq(42, SideBid, 100, 10)
	ledger.TrackOrder(req, now)
	if ledger.RestingCount() != 1 {
		t.Fatalf("resting count = %d, want 1", ledger.RestingCount())
	}

	// 部分成交仍在簿
	ledger.FillOrder(42, decimal.NewFromInt(4))
	if ledger.RestingCount() != 1 {
		t.Fatal("partially filled order must stay resting")
	}
	// 完全成交出簿
	ledger.FillOrder(42, decimal.NewFromInt(6))
	if ledger.RestingCount() != 0 {
		t.Fatal("fully filled order must leave the book")
	}

	// 撤单出簿
	ledger.TrackOrder(newOrderReq(43, SideBid, 100, 10), now)
	ledger.RetireOrder(43)
	if ledger.RestingCount() != 0 {
		t.Fatal("retired order must leave the book")
	}

	// 未知订单的成交与撤单为空操作
	ledger.FillOrder(999, decimal.NewFromInt(1))
	ledger.RetireOrder(999)
}

func TestBookExtremes(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()
	cond := MustParseCondition("acctId=*&trdAcctId=*")

	ledger.TrackOrder(newOrderReq(1, SideBid, 98, 10), now)
	ledger.TrackOrder(newOrderReq(2, SideBid, 100, 10), now)
	ledger.TrackOrder(newOrderReq(3, SideAsk, 105, 10), now)
	ledger.TrackOrder(newOrderReq(4, SideAsk, 103, 10), now)

	incoming := newOrderReq(5, SideAsk, 99, 10)
	ext := ledger.BookExtremes(cond, incoming)
	if !ext.HasBid || !ext.MaxBid.Equal(decimal.NewFromInt(100)) {
		t.Errorf("max bid = %s (has %v), want 100", ext.MaxBid, ext.HasBid)
	}
	if !ext.HasAsk || !ext.MinAsk.Equal(decimal.NewFromInt(103)) {
		t.Errorf("min ask = %s (has %v), want 103", ext.MinAsk, ext.HasAsk)
	}
}

func TestBookExtremesExcludesSelf(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()
	cond := MustParseCondition("acctId=*")

	req := newOrderReq(7, SideBid, 100, 10)
	ledger.TrackOrder(req, now)

	// 重复评估同一订单时不能把自己当作对手方
	ext := ledger.BookExtremes(cond, req)
	if ext.HasBid || ext.HasAsk {
		t.Fatalf("order must not see itself in the book: %+v", ext)
	}
}

func TestHoldExposureAggregation(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()
	cond := MustParseCondition("acctId=*")
	fields := newOrderReq(0, SideBid, 0, 1).ConditionFields()

	ledger.ApplyPositionUpdate(PositionSnapshot{
		Fields:    map[string]string{"acctId": "10000", "symbolCode": "IF2312"},
		Qty:       decimal.NewFromInt(50),
		Amt:       decimal.NewFromInt(5000),
		UpdatedAt: now,
	})
	ledger.TrackOrder(newOrderReq(1, SideBid, 100, 20), now)

	vol, amt := ledger.HoldExposure(cond, fields)
	if !vol.Equal(decimal.NewFromInt(70)) {
		t.Errorf("vol = %s, want 70", vol)
	}
	if !amt.Equal(decimal.NewFromInt(7000)) {
		t.Errorf("amt = %s, want 7000", amt)
	}

	// 持仓清零后从敞口中剔除
	ledger.ApplyPositionUpdate(PositionSnapshot{
		Fields: map[string]string{"acctId": "10000", "symbolCode": "IF2312"},
		Qty:    decimal.Zero,
		Amt:    decimal.Zero,
	})
	vol, _ = ledger.HoldExposure(cond, fields)
	if !vol.Equal(decimal.NewFromInt(20)) {
		t.Errorf("after flat position vol = %s, want 20", vol)
	}
}

func TestPnlSnapshots(t *testing.T) {
	ledger := NewMemoryLedger(false)
	now := time.Now()

	if _, ok := ledger.Pnl("acctId=10000"); ok {
		t.Fatal("missing scope must report not found")
	}
	ledger.SetPnl("acctId=10000", decimal.NewFromInt(-500), now.Add(-2*time.Second))
	ledger.SetPnl("acctId=20000", decimal.NewFromInt(100), now)

	snap, ok := ledger.Pnl("acctId=10000")
	if !ok || !snap.Pnl.Equal(decimal.NewFromInt(-500)) {
		t.Fatalf("pnl = %+v (found %v), want -500", snap, ok)
	}

	age, ok := ledger.OldestPnlAge(now)
	if !ok || age < 2*time.Second {
		t.Errorf("oldest age = %v (found %v), want >= 2s", age, ok)
	}
}

func TestSelfTradeTriggerCounter(t *testing.T) {
	ledger := NewMemoryLedger(false)
	if got := ledger.IncSelfTradeTrigger("s"); got != 1 {
		t.Fatalf("first trigger = %d, want 1", got)
	}
	if got := ledger.IncSelfTradeTrigger("s"); got != 2 {
		t.Fatalf("second trigger = %d, want 2", got)
	}
	if got := ledger.IncSelfTradeTrigger("other"); got != 1 {
		t.Fatalf("other scope trigger = %d, want 1", got)
	}
}
