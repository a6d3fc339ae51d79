package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFill(symbol string, side Side, posDir PosDirection, price, size string) *Fill {
	return &Fill{
		OrderID:          1,
		AccountID:        10000,
		TradingAccountID: 100000,
		MarketCode:       "SSE",
		SymbolType:       SymbolTypeCNStock,
		SymbolCode:       symbol,
		Side:             side,
		PosDirection:     posDir,
		Price:            dec(price),
		Size:             dec(size),
	}
}

func feeRule(symbol string, posDir PosDirection, mode FeeMode) *FeeRule {
	return &FeeRule{
		AccountID:        10000,
		TradingAccountID: 100000,
		Side:             SideBid,
		PosDirection:     posDir,
		MarketCode:       "SSE",
		SymbolType:       SymbolTypeCNStock,
		SymbolCode:       symbol,
		FeeMode:          mode,
		CommissionRate:   dec("0.0003"),
		MinCommission:    dec("5"),
		StampDutyRate:    dec("0.001"),
		MinStampDuty:     dec("0"),
		TransferFeeRate:  dec("0.00001"),
		MinTransferFee:   dec("0"),
	}
}

func feeSnapshot(rules ...*FeeRule) *RuleSnapshot {
	return NewRuleSnapshot(1, time.Now(), rules, nil, nil, nil, nil)
}

func TestFeeByAmount(t *testing.T) {
	snap := feeSnapshot(feeRule("", PosDirectionBoth, FeeModeByAmount))
	calc := NewFeeCalculator()

	// 100000 * 0.0003 = 30 佣金，100000 * 0.001 = 100 印花税，100000 * 0.00001 = 1 过户费
	fee, matched := calc.Compute(snap, newFill("600519", SideBid, PosDirectionBoth, "100", "1000"))
	if !matched {
		t.Fatal("rule should match")
	}
	if !fee.Commission.Equal(dec("30")) {
		t.Errorf("commission = %s, want 30", fee.Commission)
	}
	if !fee.StampDuty.Equal(dec("100")) {
		t.Errorf("stamp duty = %s, want 100", fee.StampDuty)
	}
	if !fee.TransferFee.Equal(dec("1")) {
		t.Errorf("transfer fee = %s, want 1", fee.TransferFee)
	}
	if !fee.Total().Equal(dec("131")) {
		t.Errorf("total = %s, want 131", fee.Total())
	}
}

func TestFeeMinimumCommission(t *testing.T) {
	snap := feeSnapshot(feeRule("", PosDirectionBoth, FeeModeByAmount))
	calc := NewFeeCalculator()

	// 1000 * 0.0003 = 0.3 < 最低 5，按 5 收取
	fee, _ := calc.Compute(snap, newFill("600519", SideBid, PosDirectionBoth, "10", "100"))
	if !fee.Commission.Equal(dec("5")) {
		t.Errorf("commission below minimum should be replaced, got %s want 5", fee.Commission)
	}
}

func TestFeeByVolume(t *testing.T) {
	rule := feeRule("", PosDirectionBoth, FeeModeByVolume)
	rule.CommissionRate = dec("2.5") // 每手 2.5
	snap := feeSnapshot(rule)
	calc := NewFeeCalculator()

	fee, _ := calc.Compute(snap, newFill("600519", SideBid, PosDirectionBoth, "100", "10"))
	// 佣金按量：10 * 2.5 = 25
	if !fee.Commission.Equal(dec("25")) {
		t.Errorf("by-volume commission = %s, want 25", fee.Commission)
	}
	// 印花税仍按金额：1000 * 0.001 = 1
	if !fee.StampDuty.Equal(dec("1")) {
		t.Errorf("stamp duty stays by-amount, got %s want 1", fee.StampDuty)
	}
}

func TestFeeSpecificRowBeatsWildcard(t *testing.T) {
	wildcard := feeRule("", PosDirectionBoth, FeeModeByAmount)
	specific := feeRule("600519", PosDirectionBoth, FeeModeByAmount)
	specific.CommissionRate = dec("0.001")
	snap := feeSnapshot(wildcard, specific)
	calc := NewFeeCalculator()

	rule, ok := calc.Resolve(snap, newFill("600519", SideBid, PosDirectionBoth, "100", "1000"))
	if !ok || rule.SymbolCode != "600519" {
		t.Fatalf("specific row should win, got %+v", rule)
	}

	rule, ok = calc.Resolve(snap, newFill("600036", SideBid, PosDirectionBoth, "100", "1000"))
	if !ok || rule.SymbolCode != "" {
		t.Fatalf("other symbol should fall back to wildcard row, got %+v", rule)
	}
}

func TestFeePosDirectionFallback(t *testing.T) {
	closeRule := feeRule("", PosDirectionClose, FeeModeByAmount)
	bothRule := feeRule("", PosDirectionBoth, FeeModeByAmount)
	bothRule.CommissionRate = dec("0.01")
	snap := feeSnapshot(closeRule, bothRule)
	calc := NewFeeCalculator()

	// CloseTDay 无专属行时回落到 Close
	rule, ok := calc.Resolve(snap, newFill("600519", SideBid, PosDirectionCloseTDay, "100", "1000"))
	if !ok || rule.PosDirection != PosDirectionClose {
		t.Fatalf("CloseTDay should fall back to Close row, got %+v", rule)
	}

	// Open 无专属行时回落到 Both
	rule, ok = calc.Resolve(snap, newFill("600519", SideBid, PosDirectionOpen, "100", "1000"))
	if !ok || rule.PosDirection != PosDirectionBoth {
		t.Fatalf("Open should fall back to Both row, got %+v", rule)
	}
}

func TestFeeNoMatchChargesZero(t *testing.T) {
	snap := feeSnapshot()
	calc := NewFeeCalculator()

	fee, matched := calc.Compute(snap, newFill("600519", SideBid, PosDirectionBoth, "100", "1000"))
	if matched {
		t.Fatal("empty snapshot must not match")
	}
	if !fee.Total().IsZero() {
		t.Errorf("unmatched fill should cost zero, got %s", fee.Total())
	}
}

func TestFeeNewestRowWinsOnDuplicateKey(t *testing.T) {
	old := feeRule("600519", PosDirectionBoth, FeeModeByAmount)
	old.UpdatedAt = time.Now().Add(-time.Hour)
	newer := feeRule("600519", PosDirectionBoth, FeeModeByAmount)
	newer.CommissionRate = dec("0.002")
	newer.UpdatedAt = time.Now()

	snap := feeSnapshot(old, newer)
	calc := NewFeeCalculator()
	rule, ok := calc.Resolve(snap, newFill("600519", SideBid, PosDirectionBoth, "100", "1000"))
	if !ok || !rule.CommissionRate.Equal(dec("0.002")) {
		t.Fatalf("newest duplicate row should win, got %+v", rule)
	}
}
