package domain

import (
	"fmt"
	"time"
)

// ListType 名单类型。
type ListType string

const (
	ListTypeWhite ListType = "White"
	ListTypeBlack ListType = "Black"
)

// SymbolListEntry 黑白名单条目。symbolCode 为空匹配该市场/类型下全部标的。
type SymbolListEntry struct {
	ID         uint64
	Step       string
	Condition  Condition
	MarketCode string
	SymbolType SymbolType
	SymbolCode string
	ListType   ListType
	Name       string
}

// matchesInstrument 条目是否覆盖请求标的。
func (e *SymbolListEntry) matchesInstrument(marketCode string, symbolType SymbolType, symbolCode string) bool {
	if e.MarketCode != "" && e.MarketCode != marketCode {
		return false
	}
	if e.SymbolType != SymbolTypeUnreckoned && e.SymbolType != symbolType {
		return false
	}
	if e.SymbolCode != "" && e.SymbolCode != symbolCode {
		return false
	}
	return true
}

// SymbolListEvaluator 黑白名单检查。黑名单优先：命中即拒；该 scope 存在
// 白名单而请求标的不在其中时拒绝；无白名单则只执行黑名单。
type SymbolListEvaluator struct{}

func NewSymbolListEvaluator() *SymbolListEvaluator {
	return &SymbolListEvaluator{}
}

func (e *SymbolListEvaluator) Name() string { return FamilySymbolList }

// EvaluateOrder 对新委托执行名单检查。
func (e *SymbolListEvaluator) EvaluateOrder(req *OrderRequest, snap *RuleSnapshot, ledger CounterLedger, now time.Time) Verdict {
	fields := req.ConditionFields()

	whiteListExists := false
	whiteListHit := false

	for _, entry := range snap.SymbolListEntries {
		if !entry.Condition.Matches(fields) {
			continue
		}
		switch entry.ListType {
		case ListTypeBlack:
			if entry.matchesInstrument(req.MarketCode, req.SymbolType, req.SymbolCode) {
				return Reject(StatusInBlackList, FamilySymbolList,
					fmt.Sprintf("symbol %s.%s hit black list entry %q", req.MarketCode, req.SymbolCode, entry.Name))
			}
		case ListTypeWhite:
			// 白名单按市场/类型圈定：请求所在市场存在白名单条目才启用白名单约束
			if entry.MarketCode != "" && entry.MarketCode != req.MarketCode {
				continue
			}
			if entry.SymbolType != SymbolTypeUnreckoned && entry.SymbolType != req.SymbolType {
				continue
			}
			whiteListExists = true
			if entry.matchesInstrument(req.MarketCode, req.SymbolType, req.SymbolCode) {
				whiteListHit = true
			}
		}
	}

	if whiteListExists && !whiteListHit {
		return Reject(StatusNotInWhiteList, FamilySymbolList,
			fmt.Sprintf("symbol %s.%s not in white list", req.MarketCode, req.SymbolCode))
	}
	return Accept()
}
