package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
)

// --- 内存仓储桩 ---

type memRepos struct {
	mu         sync.Mutex
	feeRules   []*domain.FeeRule
	flowRules  []*domain.FlowCtrlRule
	selfTrades []*domain.SelfTradeRange
	pnlRanges  []*domain.PnlMonitorRange
	lists      []*domain.SymbolListEntry
	decisions  []*domain.RiskDecision
	nextID     uint64
}

func (m *memRepos) id() uint64 { m.nextID++; return m.nextID }

type memFeeRepo struct{ r *memRepos }

func (s *memFeeRepo) Save(ctx context.Context, rule *domain.FeeRule) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if rule.ID == 0 {
		rule.ID = s.r.id()
	}
	rule.UpdatedAt = time.Now()
	s.r.feeRules = append(s.r.feeRules, rule)
	return nil
}
func (s *memFeeRepo) Delete(ctx context.Context, id uint64) error { return nil }
func (s *memFeeRepo) FindByID(ctx context.Context, id uint64) (*domain.FeeRule, error) {
	return nil, nil
}
func (s *memFeeRepo) ListActive(ctx context.Context) ([]*domain.FeeRule, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return append([]*domain.FeeRule(nil), s.r.feeRules...), nil
}

type memFlowRepo struct{ r *memRepos }

func (s *memFlowRepo) Save(ctx context.Context, rule *domain.FlowCtrlRule) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.flowRules = append(s.r.flowRules, rule)
	return nil
}
func (s *memFlowRepo) Delete(ctx context.Context, ruleNo int32) error { return nil }
func (s *memFlowRepo) FindByRuleNo(ctx context.Context, ruleNo int32) (*domain.FlowCtrlRule, error) {
	return nil, nil
}
func (s *memFlowRepo) ListActive(ctx context.Context) ([]*domain.FlowCtrlRule, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return append([]*domain.FlowCtrlRule(nil), s.r.flowRules...), nil
}

type memSelfTradeRepo struct{ r *memRepos }

func (s *memSelfTradeRepo) Save(ctx context.Context, rng *domain.SelfTradeRange) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if rng.ID == 0 {
		rng.ID = s.r.id()
	}
	s.r.selfTrades = append(s.r.selfTrades, rng)
	return nil
}
func (s *memSelfTradeRepo) Delete(ctx context.Context, id uint64) error { return nil }
func (s *memSelfTradeRepo) ListActive(ctx context.Context) ([]*domain.SelfTradeRange, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return append([]*domain.SelfTradeRange(nil), s.r.selfTrades...), nil
}

type memPnlRepo struct{ r *memRepos }

func (s *memPnlRepo) Save(ctx context.Context, rng *domain.PnlMonitorRange) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if rng.ID == 0 {
		rng.ID = s.r.id()
	}
	s.r.pnlRanges = append(s.r.pnlRanges, rng)
	return nil
}
func (s *memPnlRepo) Delete(ctx context.Context, id uint64) error { return nil }
func (s *memPnlRepo) ListActive(ctx context.Context) ([]*domain.PnlMonitorRange, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return append([]*domain.PnlMonitorRange(nil), s.r.pnlRanges...), nil
}

type memListRepo struct{ r *memRepos }

func (s *memListRepo) Save(ctx context.Context, entry *domain.SymbolListEntry) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = s.r.id()
	}
	s.r.lists = append(s.r.lists, entry)
	return nil
}
func (s *memListRepo) Delete(ctx context.Context, id uint64) error { return nil }
func (s *memListRepo) ListActive(ctx context.Context) ([]*domain.SymbolListEntry, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return append([]*domain.SymbolListEntry(nil), s.r.lists...), nil
}

type memDecisionRepo struct{ r *memRepos }

func (s *memDecisionRepo) Save(ctx context.Context, d *domain.RiskDecision) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.decisions = append(s.r.decisions, d)
	return nil
}
func (s *memDecisionRepo) ListByOrderID(ctx context.Context, orderID uint64) ([]*domain.RiskDecision, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []*domain.RiskDecision
	for _, d := range s.r.decisions {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

// --- 组装 ---

type testGateway struct {
	gateway *RiskGateway
	cache   *RuleCache
	ledger  *domain.MemoryLedger
	repos   *memRepos
}

func newTestGateway(t *testing.T, seed func(*memRepos)) *testGateway {
	t.Helper()
	repos := &memRepos{}
	if seed != nil {
		seed(repos)
	}

	cache := NewRuleCache(
		&memFeeRepo{repos}, &memFlowRepo{repos}, &memSelfTradeRepo{repos},
		&memPnlRepo{repos}, &memListRepo{repos},
		time.Minute, nil,
	)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	ledger := domain.NewMemoryLedger(false)
	flow := domain.NewFlowControlEvaluator()
	chain := domain.OrderEvaluatorChain(
		domain.NewSymbolListEvaluator(),
		domain.NewSelfTradeEvaluator(0),
		flow,
		domain.NewPnlMonitorEvaluator(5*time.Second),
	)
	gateway := NewRiskGateway(cache, ledger, chain, flow, domain.NewFeeCalculator(),
		&memDecisionRepo{repos}, true, 16, nil)

	return &testGateway{gateway: gateway, cache: cache, ledger: ledger, repos: repos}
}

func orderDTO(orderID uint64, side string, price, size int64) *domain.OrderRequest {
	return &domain.OrderRequest{
		OrderID:          orderID,
		AccountID:        10000,
		TradingAccountID: 100000,
		MarketCode:       "SHFE",
		SymbolType:       domain.SymbolTypeCNFutures,
		SymbolCode:       "IF2312",
		Side:             domain.Side(side),
		PosDirection:     domain.PosDirectionOpen,
		Price:            decimal.NewFromInt(price),
		Size:             decimal.NewFromInt(size),
	}
}

// --- 测试 ---

func TestCheckOrderAcceptAndAudit(t *testing.T) {
	tg := newTestGateway(t, nil)
	ctx := context.Background()

	orderID, verdict := tg.gateway.CheckOrder(ctx, orderDTO(0, "Bid", 100, 10))
	if !verdict.Accepted() {
		t.Fatalf("order with no rules should pass, got %d", verdict.StatusCode)
	}
	if orderID == 0 {
		t.Fatal("gateway must assign an order id")
	}
	if tg.ledger.RestingCount() != 1 {
		t.Fatalf("accepted order must be tracked, resting = %d", tg.ledger.RestingCount())
	}

	decisions, err := tg.gateway.ListDecisions(ctx, orderID)
	if err != nil || len(decisions) != 1 {
		t.Fatalf("expected one audit row, got %d err %v", len(decisions), err)
	}
	if decisions[0].Kind != domain.DecisionKindOrder {
		t.Errorf("decision kind = %q", decisions[0].Kind)
	}
}

func TestCheckOrderValidation(t *testing.T) {
	tg := newTestGateway(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.OrderRequest
	}{
		{"nil request", nil},
		{"missing symbol", &domain.OrderRequest{AccountID: 1, TradingAccountID: 1, MarketCode: "SHFE", Side: domain.SideBid, Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)}},
		{"bad side", orderDTO(1, "Buy", 100, 10)},
		{"zero size", orderDTO(1, "Bid", 100, 0)},
		{"zero price", orderDTO(1, "Bid", 0, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verdict := tg.gateway.CheckOrder(ctx, tt.req)
			if verdict.StatusCode != domain.StatusInvalidRequest {
				t.Errorf("status = %d, want %d", verdict.StatusCode, domain.StatusInvalidRequest)
			}
		})
	}
}

func TestFailClosedWithoutRules(t *testing.T) {
	repos := &memRepos{}
	cache := NewRuleCache(
		&memFeeRepo{repos}, &memFlowRepo{repos}, &memSelfTradeRepo{repos},
		&memPnlRepo{repos}, &memListRepo{repos},
		time.Minute, nil,
	)
	// 故意不 Refresh：快照缺失
	ledger := domain.NewMemoryLedger(false)
	flow := domain.NewFlowControlEvaluator()
	gateway := NewRiskGateway(cache, ledger, nil, flow, domain.NewFeeCalculator(), nil, false, 16, nil)

	_, verdict := gateway.CheckOrder(context.Background(), orderDTO(1, "Bid", 100, 10))
	if verdict.StatusCode != domain.StatusRulesUnavailable {
		t.Fatalf("missing snapshot must fail closed with %d, got %d", domain.StatusRulesUnavailable, verdict.StatusCode)
	}
	if ledger.RestingCount() != 0 {
		t.Fatal("rejected order must not be tracked")
	}
}

func TestPrecedenceListBeforeFlowCtrl(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.lists = append(r.lists, &domain.SymbolListEntry{
			ID:         1,
			Condition:  domain.MustParseCondition("acctId=*"),
			MarketCode: "SHFE",
			SymbolCode: "IF2312",
			ListType:   domain.ListTypeBlack,
		})
		// 流控规则同样会命中，但名单检查先行
		r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
			RuleNo:     12001,
			Target:     domain.TargetOrderSizeEachTime,
			Condition:  domain.MustParseCondition("acctId=*"),
			LimitValue: decimal.Zero,
		})
	})

	_, verdict := tg.gateway.CheckOrder(context.Background(), orderDTO(1, "Bid", 100, 10))
	if verdict.StatusCode != domain.StatusInBlackList {
		t.Fatalf("symbol list must run before flow ctrl, got %d", verdict.StatusCode)
	}
}

func TestCommitOnAcceptAffectsNextOrder(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
			RuleNo:     12002,
			Target:     domain.TargetOrderTimesTotal,
			Condition:  domain.MustParseCondition("acctId=*"),
			LimitValue: decimal.NewFromInt(1),
		})
	})
	ctx := context.Background()

	_, v1 := tg.gateway.CheckOrder(ctx, orderDTO(1, "Bid", 100, 10))
	if !v1.Accepted() {
		t.Fatalf("first order should pass, got %d", v1.StatusCode)
	}
	_, v2 := tg.gateway.CheckOrder(ctx, orderDTO(2, "Bid", 100, 10))
	if v2.StatusCode != 12002 {
		t.Fatalf("second order must see the first one's contribution, got %d", v2.StatusCode)
	}
}

func TestRejectedOrderLeavesNoTrace(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
			RuleNo:     12003,
			Target:     domain.TargetOrderSizeEachTime,
			Condition:  domain.MustParseCondition("acctId=*"),
			LimitValue: decimal.NewFromInt(5),
		})
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, v := tg.gateway.CheckOrder(ctx, orderDTO(uint64(i+1), "Bid", 100, 10))
		if v.StatusCode != 12003 {
			t.Fatalf("oversized order should reject, got %d", v.StatusCode)
		}
	}
	if tg.ledger.RestingCount() != 0 {
		t.Fatal("rejected orders must not enter the book")
	}
	// 被拒请求不贡献任何计数，小单照常放行
	if _, v := tg.gateway.CheckOrder(ctx, orderDTO(9, "Bid", 100, 5)); !v.Accepted() {
		t.Fatalf("small order should pass after rejections, got %d", v.StatusCode)
	}
}

func TestCheckCancelFlow(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
			RuleNo:     12004,
			Target:     domain.TargetCancelTimesTotal,
			Condition:  domain.MustParseCondition("acctId=*"),
			LimitValue: decimal.NewFromInt(1),
		})
	})
	ctx := context.Background()

	cancel := &domain.CancelRequest{OrderID: 1, AccountID: 10000, TradingAccountID: 100000, MarketCode: "SHFE", SymbolType: domain.SymbolTypeCNFutures, SymbolCode: "IF2312"}
	if v := tg.gateway.CheckCancel(ctx, cancel); !v.Accepted() {
		t.Fatalf("first cancel should pass, got %d", v.StatusCode)
	}
	if v := tg.gateway.CheckCancel(ctx, cancel); v.StatusCode != 12004 {
		t.Fatalf("second cancel should breach limit, got %d", v.StatusCode)
	}

	if v := tg.gateway.CheckCancel(ctx, &domain.CancelRequest{}); v.StatusCode != domain.StatusInvalidRequest {
		t.Fatalf("cancel without order id should reject with %d, got %d", domain.StatusInvalidRequest, v.StatusCode)
	}
	if v := tg.gateway.CheckCancel(ctx, nil); v.StatusCode != domain.StatusInvalidRequest {
		t.Fatalf("nil cancel should reject with %d, got %d", domain.StatusInvalidRequest, v.StatusCode)
	}
}

func TestGlobalFlowRuleSerializesAcrossAccounts(t *testing.T) {
	// 空条件规则的计数器由所有账户共享；并发下检查与落账必须互斥，
	// 否则多笔委托会同时通过只容得下一笔的额度
	const rounds = 8
	const workers = 16
	ctx := context.Background()

	for round := 0; round < rounds; round++ {
		tg := newTestGateway(t, func(r *memRepos) {
			r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
				RuleNo:     12006,
				Target:     domain.TargetOrderTimesTotal,
				Condition:  domain.MustParseCondition(""),
				LimitValue: decimal.NewFromInt(1),
			})
		})

		var accepted int64
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := orderDTO(uint64(i+1), "Bid", 100, 10)
				req.AccountID = uint64(20000 + i)
				req.TradingAccountID = uint64(200000 + i)
				if _, v := tg.gateway.CheckOrder(ctx, req); v.Accepted() {
					atomic.AddInt64(&accepted, 1)
				}
			}(i)
		}
		wg.Wait()

		if accepted != 1 {
			t.Fatalf("round %d: %d orders accepted against a global limit of 1", round, accepted)
		}
	}
}

func TestOnOrderFilledComputesFee(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.feeRules = append(r.feeRules, &domain.FeeRule{
			ID: 1, AccountID: 10000, TradingAccountID: 100000,
			Side: domain.SideBid, PosDirection: domain.PosDirectionBoth,
			MarketCode: "SHFE", SymbolType: domain.SymbolTypeCNFutures, SymbolCode: "",
			FeeMode:        domain.FeeModeByAmount,
			CommissionRate: decimal.NewFromFloat(0.0003),
			MinCommission:  decimal.NewFromInt(5),
		})
	})
	ctx := context.Background()

	orderID, verdict := tg.gateway.CheckOrder(ctx, orderDTO(0, "Bid", 100, 10))
	if !verdict.Accepted() {
		t.Fatalf("order should pass, got %d", verdict.StatusCode)
	}

	fill := &domain.Fill{
		OrderID: orderID, AccountID: 10000, TradingAccountID: 100000,
		MarketCode: "SHFE", SymbolType: domain.SymbolTypeCNFutures, SymbolCode: "IF2312",
		Side: domain.SideBid, PosDirection: domain.PosDirectionBoth,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(10),
	}
	fee, err := tg.gateway.OnOrderFilled(ctx, fill)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	// 1000 * 0.0003 = 0.3 < 5，最低佣金兜底
	if !fee.Commission.Equal(decimal.NewFromInt(5)) {
		t.Errorf("commission = %s, want 5", fee.Commission)
	}
	// 全量成交出簿
	if tg.ledger.RestingCount() != 0 {
		t.Fatalf("filled order must leave the book, resting = %d", tg.ledger.RestingCount())
	}
}

func TestOnOrderRejectedCommitsRejectCounters(t *testing.T) {
	tg := newTestGateway(t, func(r *memRepos) {
		r.flowRules = append(r.flowRules, &domain.FlowCtrlRule{
			RuleNo:     12005,
			Target:     domain.TargetRejectTimesTotal,
			Condition:  domain.MustParseCondition("acctId=*"),
			LimitValue: decimal.NewFromInt(1),
		})
	})
	ctx := context.Background()

	req := orderDTO(0, "Bid", 100, 10)
	orderID, verdict := tg.gateway.CheckOrder(ctx, req)
	if !verdict.Accepted() {
		t.Fatalf("order should pass, got %d", verdict.StatusCode)
	}
	req.OrderID = orderID

	tg.gateway.OnOrderRejected(ctx, req)
	tg.gateway.OnOrderRejected(ctx, req)

	// 拒单计数超限后新委托被拦
	if _, v := tg.gateway.CheckOrder(ctx, orderDTO(0, "Bid", 100, 10)); v.StatusCode != 12005 {
		t.Fatalf("order after reject breach should be blocked, got %d", v.StatusCode)
	}
}

func TestEstimateFeeWithoutSideEffects(t *testing.T) {
	tg := newTestGateway(t, nil)
	ctx := context.Background()

	fill := &domain.Fill{
		OrderID: 1, AccountID: 10000, TradingAccountID: 100000,
		MarketCode: "SHFE", SymbolType: domain.SymbolTypeCNFutures, SymbolCode: "IF2312",
		Side: domain.SideBid, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(10),
	}
	fee, matched, err := tg.gateway.EstimateFee(ctx, fill)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if matched {
		t.Fatal("no fee rules seeded, must not match")
	}
	if !fee.Total().IsZero() {
		t.Errorf("unmatched estimate should be zero, got %s", fee.Total())
	}
	if tg.ledger.RestingCount() != 0 {
		t.Fatal("estimate must not touch the book")
	}
}

func TestRuleRefreshBumpsVersion(t *testing.T) {
	tg := newTestGateway(t, nil)
	ctx := context.Background()

	snap1, err := tg.cache.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := tg.cache.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap2, _ := tg.cache.Snapshot()
	if snap2.Version <= snap1.Version {
		t.Fatalf("version must grow: %d -> %d", snap1.Version, snap2.Version)
	}
}
