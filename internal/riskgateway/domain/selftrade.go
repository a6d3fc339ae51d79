package domain

import (
	"fmt"
	"time"
)

// SelfTradeRange 自成交防护范围。
type SelfTradeRange struct {
	ID        uint64
	Step      string
	Condition Condition
	Name      string
}

// SelfTradeEvaluator 自成交检查。仅对命中防护范围的请求生效：新买单价格
// 触及同范围同标的在途卖单的最低价即判定自成交，卖向对称。触发次数超过
// 容忍值才拒绝，容忍值默认为零。
type SelfTradeEvaluator struct {
	// tolerance 允许的自成交触发次数
	tolerance int
}

func NewSelfTradeEvaluator(tolerance int) *SelfTradeEvaluator {
	if tolerance < 0 {
		tolerance = 0
	}
	return &SelfTradeEvaluator{tolerance: tolerance}
}

func (e *SelfTradeEvaluator) Name() string { return FamilySelfTrade }

// EvaluateOrder 对新委托执行自成交检查。
func (e *SelfTradeEvaluator) EvaluateOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict {
	fields := req.ConditionFields()
	for _, rng := range snap.SelfTradeRanges {
		if !rng.Condition.Matches(fields) {
			continue
		}
		ext := ledger.BookExtremes(rng.Condition, req)
		switch req.Side {
		case SideBid:
			// 新买单价格不低于在途卖单最低价即会与自己成交
			if ext.HasAsk && req.Price.GreaterThanOrEqual(ext.MinAsk) {
				if v := e.trigger(rng, req, ledger, fields, StatusSelfTradeOfBid); !v.Accepted() {
					return v
				}
			}
		case SideAsk:
			if ext.HasBid && ext.MaxBid.GreaterThanOrEqual(req.Price) {
				if v := e.trigger(rng, req, ledger, fields, StatusSelfTradeOfAsk); !v.Accepted() {
					return v
				}
			}
		}
	}
	return Accept()
}

func (e *SelfTradeEvaluator) trigger(rng *SelfTradeRange, req *OrderRequest, ledger CounterLedger, fields map[string]string, code int32) Verdict {
	if e.tolerance > 0 {
		scope := rng.Condition.ScopeKey(fields) + "|" + req.MarketCode + "." + string(req.SymbolType) + "." + req.SymbolCode
		if ledger.IncSelfTradeTrigger(scope) <= e.tolerance {
			return Accept()
		}
	}
	return Reject(code, FamilySelfTrade,
		fmt.Sprintf("range %q: order at %s would cross own resting order", rng.Name, req.Price))
}
