package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CounterLedger 按 scope 键维护流控计数、窗口事件、在途订单簿、持仓与
// PnL 快照。评估器只读，落账由网关在放行或收到确认后发起。
type CounterLedger interface {
	// 累计计数器。now 驱动交易日切换判定
	Cumulative(ruleNo int32, scope string, daily bool, now time.Time) decimal.Decimal
	AddCumulative(ruleNo int32, scope string, delta decimal.Decimal, daily bool, now time.Time)

	// 滑动窗口
	WindowTriggered(ruleNo int32, scope string, w WindowLimit, now time.Time) bool
	CommitWindow(ruleNo int32, scope string, w WindowLimit, now time.Time)

	// 在途订单簿
	TrackOrder(req *OrderRequest, now time.Time)
	FillOrder(orderID uint64, qty decimal.Decimal)
	RetireOrder(orderID uint64)
	RestingCount() int
	BookExtremes(cond Condition, req *OrderRequest) BookExtremes
	IncSelfTradeTrigger(scope string) int

	// 持仓敞口
	HoldExposure(cond Condition, fields map[string]string) (vol, amt decimal.Decimal)
	ApplyPositionUpdate(p PositionSnapshot)

	// PnL 快照
	Pnl(scope string) (PnlSnapshot, bool)
	SetPnl(scope string, pnl decimal.Decimal, at time.Time)
	OldestPnlAge(now time.Time) (time.Duration, bool)
}

// BookExtremes 某 scope 下某标的在途订单的价格极值。
type BookExtremes struct {
	MaxBid decimal.Decimal
	MinAsk decimal.Decimal
	HasBid bool
	HasAsk bool
}

// RestingOrder 已放行但尚未终结的委托。
type RestingOrder struct {
	OrderID    uint64
	MarketCode string
	SymbolType SymbolType
	SymbolCode string
	Side       Side
	Price      decimal.Decimal
	Remaining  decimal.Decimal
	Fields     map[string]string
	TrackedAt  time.Time
}

// PositionSnapshot 外部簿记推送的持仓快照。
type PositionSnapshot struct {
	Fields    map[string]string
	Qty       decimal.Decimal
	Amt       decimal.Decimal
	UpdatedAt time.Time
}

// PnlSnapshot 外部簿记推送的盈亏快照。
type PnlSnapshot struct {
	Pnl       decimal.Decimal
	UpdatedAt time.Time
}

type counterKey struct {
	ruleNo int32
	scope  string
}

// MemoryLedger CounterLedger 的内存实现。
type MemoryLedger struct {
	// dailyResetAll 为真时普通累计计数器也按交易日归零
	dailyResetAll bool

	mu            sync.Mutex
	day           string
	counters      map[counterKey]decimal.Decimal
	dailyCounters map[counterKey]decimal.Decimal
	windows       map[counterKey]*timeRing

	ordersMu sync.RWMutex
	orders   map[uint64]*RestingOrder

	posMu     sync.RWMutex
	positions map[string]PositionSnapshot

	pnlMu sync.RWMutex
	pnl   map[string]PnlSnapshot

	trigMu   sync.Mutex
	triggers map[string]int
}

// NewMemoryLedger 创建内存账本。dailyResetAll 控制普通累计计数器是否随
// 交易日切换归零；当日开仓量计数始终按日归零。
func NewMemoryLedger(dailyResetAll bool) *MemoryLedger {
	return &MemoryLedger{
		dailyResetAll: dailyResetAll,
		counters:      make(map[counterKey]decimal.Decimal),
		dailyCounters: make(map[counterKey]decimal.Decimal),
		windows:       make(map[counterKey]*timeRing),
		orders:        make(map[uint64]*RestingOrder),
		positions:     make(map[string]PositionSnapshot),
		pnl:           make(map[string]PnlSnapshot),
		triggers:      make(map[string]int),
	}
}

func (l *MemoryLedger) Cumulative(ruleNo int32, scope string, daily bool, now time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked(now)
	if daily {
		return l.dailyCounters[counterKey{ruleNo, scope}]
	}
	return l.counters[counterKey{ruleNo, scope}]
}

func (l *MemoryLedger) AddCumulative(ruleNo int32, scope string, delta decimal.Decimal, daily bool, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked(now)
	key := counterKey{ruleNo, scope}
	if daily {
		l.dailyCounters[key] = l.dailyCounters[key].Add(delta)
	} else {
		l.counters[key] = l.counters[key].Add(delta)
	}
}

func (l *MemoryLedger) WindowTriggered(ruleNo int32, scope string, w WindowLimit, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windowLocked(ruleNo, scope, w).triggered(now, w.WindowMs)
}

func (l *MemoryLedger) CommitWindow(ruleNo int32, scope string, w WindowLimit, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowLocked(ruleNo, scope, w).push(now)
}

func (l *MemoryLedger) windowLocked(ruleNo int32, scope string, w WindowLimit) *timeRing {
	key := counterKey{ruleNo, scope}
	ring, ok := l.windows[key]
	if !ok || ring.capacity() != w.Count {
		// 规则窗口容量变更时重建
		ring = newTimeRing(w.Count)
		l.windows[key] = ring
	}
	return ring
}

// rollDayLocked 交易日切换：当日计数器总是归零，普通累计计数器按配置归零。
func (l *MemoryLedger) rollDayLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if l.day == day {
		return
	}
	l.day = day
	l.dailyCounters = make(map[counterKey]decimal.Decimal)
	if l.dailyResetAll {
		l.counters = make(map[counterKey]decimal.Decimal)
	}
}

func (l *MemoryLedger) TrackOrder(req *OrderRequest, now time.Time) {
	l.ordersMu.Lock()
	defer l.ordersMu.Unlock()
	l.orders[req.OrderID] = &RestingOrder{
		OrderID:    req.OrderID,
		MarketCode: req.MarketCode,
		SymbolType: req.SymbolType,
		SymbolCode: req.SymbolCode,
		Side:       req.Side,
		Price:      req.Price,
		Remaining:  req.Size,
		Fields:     req.ConditionFields(),
		TrackedAt:  now,
	}
}

// FillOrder 按成交量扣减在途数量，完结后出簿。
func (l *MemoryLedger) FillOrder(orderID uint64, qty decimal.Decimal) {
	l.ordersMu.Lock()
	defer l.ordersMu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return
	}
	o.Remaining = o.Remaining.Sub(qty)
	if !o.Remaining.IsPositive() {
		delete(l.orders, orderID)
	}
}

func (l *MemoryLedger) RetireOrder(orderID uint64) {
	l.ordersMu.Lock()
	defer l.ordersMu.Unlock()
	delete(l.orders, orderID)
}

func (l *MemoryLedger) RestingCount() int {
	l.ordersMu.RLock()
	defer l.ordersMu.RUnlock()
	return len(l.orders)
}

// BookExtremes 统计与请求同 scope 同标的的在途订单价格极值。请求自身
// 尚未入簿，不会统计到。
func (l *MemoryLedger) BookExtremes(cond Condition, req *OrderRequest) BookExtremes {
	reqFields := req.ConditionFields()
	scope := cond.ScopeKey(reqFields)

	l.ordersMu.RLock()
	defer l.ordersMu.RUnlock()

	var ext BookExtremes
	for _, o := range l.orders {
		if o.OrderID == req.OrderID {
			continue
		}
		if o.MarketCode != req.MarketCode || o.SymbolType != req.SymbolType || o.SymbolCode != req.SymbolCode {
			continue
		}
		if !cond.Matches(o.Fields) || cond.ScopeKey(o.Fields) != scope {
			continue
		}
		switch o.Side {
		case SideBid:
			if !ext.HasBid || o.Price.GreaterThan(ext.MaxBid) {
				ext.MaxBid = o.Price
				ext.HasBid = true
			}
		case SideAsk:
			if !ext.HasAsk || o.Price.LessThan(ext.MinAsk) {
				ext.MinAsk = o.Price
				ext.HasAsk = true
			}
		}
	}
	return ext
}

func (l *MemoryLedger) IncSelfTradeTrigger(scope string) int {
	l.trigMu.Lock()
	defer l.trigMu.Unlock()
	l.triggers[scope]++
	return l.triggers[scope]
}

// HoldExposure 汇总落入规则范围的持仓与在途订单敞口。
func (l *MemoryLedger) HoldExposure(cond Condition, fields map[string]string) (decimal.Decimal, decimal.Decimal) {
	vol := decimal.Zero
	amt := decimal.Zero

	l.posMu.RLock()
	for _, p := range l.positions {
		if cond.MatchesScope(fields, p.Fields) {
			vol = vol.Add(p.Qty)
			amt = amt.Add(p.Amt)
		}
	}
	l.posMu.RUnlock()

	l.ordersMu.RLock()
	for _, o := range l.orders {
		if cond.MatchesScope(fields, o.Fields) {
			vol = vol.Add(o.Remaining)
			amt = amt.Add(o.Price.Mul(o.Remaining))
		}
	}
	l.ordersMu.RUnlock()

	return vol, amt
}

func (l *MemoryLedger) ApplyPositionUpdate(p PositionSnapshot) {
	l.posMu.Lock()
	defer l.posMu.Unlock()
	key := CanonicalScope(p.Fields)
	if p.Qty.IsZero() && p.Amt.IsZero() {
		delete(l.positions, key)
		return
	}
	l.positions[key] = p
}

func (l *MemoryLedger) Pnl(scope string) (PnlSnapshot, bool) {
	l.pnlMu.RLock()
	defer l.pnlMu.RUnlock()
	snap, ok := l.pnl[scope]
	return snap, ok
}

func (l *MemoryLedger) SetPnl(scope string, pnl decimal.Decimal, at time.Time) {
	l.pnlMu.Lock()
	defer l.pnlMu.Unlock()
	l.pnl[scope] = PnlSnapshot{Pnl: pnl, UpdatedAt: at}
}

func (l *MemoryLedger) OldestPnlAge(now time.Time) (time.Duration, bool) {
	l.pnlMu.RLock()
	defer l.pnlMu.RUnlock()
	var oldest time.Time
	for _, snap := range l.pnl {
		if oldest.IsZero() || snap.UpdatedAt.Before(oldest) {
			oldest = snap.UpdatedAt
		}
	}
	if oldest.IsZero() {
		return 0, false
	}
	return now.Sub(oldest), true
}

// timeRing 固定容量的事件时间环。槽位预填远古时间，最旧事件位于 head。
// 判定：当前时间与最旧槽位间隔小于窗口即触发；落账覆盖最旧槽位。
type timeRing struct {
	slots []time.Time
	head  int
}

var ancientTime = time.Unix(0, 0)

func newTimeRing(n int) *timeRing {
	slots := make([]time.Time, n)
	for i := range slots {
		slots[i] = ancientTime
	}
	return &timeRing{slots: slots}
}

func (r *timeRing) capacity() int { return len(r.slots) }

func (r *timeRing) triggered(now time.Time, windowMs int64) bool {
	return now.Sub(r.slots[r.head]) < time.Duration(windowMs)*time.Millisecond
}

func (r *timeRing) push(now time.Time) {
	r.slots[r.head] = now
	r.head = (r.head + 1) % len(r.slots)
}
