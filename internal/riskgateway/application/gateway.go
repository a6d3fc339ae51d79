package application

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/pkg/logger"
	"github.com/wyfcoding/riskgateway/pkg/metrics"
)

// RiskGateway 事前风控网关。对每笔委托/撤单按固定优先级执行名单、自成交、
// 流控、盈亏检查，放行后在 scope 锁内落账，保证同 scope 请求串行、异 scope
// 请求并行。
type RiskGateway struct {
	cache   *RuleCache
	ledger  domain.CounterLedger
	chain   []domain.OrderEvaluator
	flow    *domain.FlowControlEvaluator
	feeCalc *domain.FeeCalculator

	decisionRepo domain.DecisionRepository
	auditEnabled bool

	metrics *metrics.Metrics
	locks   []sync.Mutex
}

// NewRiskGateway 组装网关。stripes 为 scope 锁分片数。
func NewRiskGateway(
	cache *RuleCache,
	ledger domain.CounterLedger,
	chain []domain.OrderEvaluator,
	flow *domain.FlowControlEvaluator,
	feeCalc *domain.FeeCalculator,
	decisionRepo domain.DecisionRepository,
	auditEnabled bool,
	stripes int,
	m *metrics.Metrics,
) *RiskGateway {
	if stripes <= 0 {
		stripes = 256
	}
	return &RiskGateway{
		cache:        cache,
		ledger:       ledger,
		chain:        chain,
		flow:         flow,
		feeCalc:      feeCalc,
		decisionRepo: decisionRepo,
		auditEnabled: auditEnabled,
		metrics:      m,
		locks:        make([]sync.Mutex, stripes),
	}
}

// CheckOrder 委托事前检查。返回分配的委托号与结论；状态码 0 表示放行。
func (g *RiskGateway) CheckOrder(ctx context.Context, req *domain.OrderRequest) (uint64, domain.Verdict) {
	start := time.Now()
	defer g.observe("order", start)

	if verdict := validateOrder(req); !verdict.Accepted() {
		return 0, verdict
	}
	if req.OrderID == 0 {
		req.OrderID = uint64(idgen.GenID())
	}

	snap, err := g.cache.Snapshot()
	if err != nil {
		logger.Error(ctx, "risk check without rule snapshot, fail closed", "order_id", req.OrderID, "error", err)
		return req.OrderID, domain.Reject(domain.StatusRulesUnavailable, domain.FamilyGateway, "rule snapshot unavailable")
	}

	unlock := g.lockFor(req.AccountID, req.TradingAccountID, g.flow.OrderScopes(req, snap))
	verdict := g.evaluateOrderLocked(req, snap)
	unlock()

	g.recordDecision(ctx, &domain.RiskDecision{
		Kind:             domain.DecisionKindOrder,
		OrderID:          req.OrderID,
		AccountID:        req.AccountID,
		TradingAccountID: req.TradingAccountID,
		MarketCode:       req.MarketCode,
		SymbolCode:       req.SymbolCode,
		StatusCode:       verdict.StatusCode,
		Family:           verdict.Family,
		Detail:           verdict.Detail,
		RuleVersion:      snap.Version,
		DecidedAt:        time.Now(),
	})
	if !verdict.Accepted() {
		g.countReject(verdict)
		logger.Info(ctx, "order rejected by risk check",
			"order_id", req.OrderID,
			"status_code", verdict.StatusCode,
			"family", verdict.Family,
			"detail", verdict.Detail,
		)
	}
	return req.OrderID, verdict
}

func (g *RiskGateway) evaluateOrderLocked(req *domain.OrderRequest, snap *domain.RuleSnapshot) domain.Verdict {
	now := time.Now()
	for _, evaluator := range g.chain {
		if verdict := evaluator.EvaluateOrder(req, snap, g.ledger, now); !verdict.Accepted() {
			return verdict
		}
	}

	// 全部通过：贡献量落账并登记在途订单，此后同 scope 的下一笔请求
	// 能看到本笔的影响
	g.flow.CommitOrder(req, snap, g.ledger, now)
	g.ledger.TrackOrder(req, now)
	if g.metrics != nil {
		g.metrics.RestingOrders.Set(float64(g.ledger.RestingCount()))
	}
	return domain.Accept()
}

// CheckCancel 撤单事前检查，仅撤单族流控规则参与。
func (g *RiskGateway) CheckCancel(ctx context.Context, req *domain.CancelRequest) domain.Verdict {
	start := time.Now()
	defer g.observe("cancel", start)

	if req == nil {
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "request is nil")
	}
	if req.OrderID == 0 {
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "order_id is required")
	}

	snap, err := g.cache.Snapshot()
	if err != nil {
		logger.Error(ctx, "cancel check without rule snapshot, fail closed", "order_id", req.OrderID, "error", err)
		return domain.Reject(domain.StatusRulesUnavailable, domain.FamilyGateway, "rule snapshot unavailable")
	}

	now := time.Now()
	unlock := g.lockFor(req.AccountID, req.TradingAccountID, g.flow.CancelScopes(req, snap))
	verdict := g.flow.EvaluateCancel(req, snap, g.ledger, now)
	if verdict.Accepted() {
		g.flow.CommitCancel(req, snap, g.ledger, now)
	}
	unlock()

	g.recordDecision(ctx, &domain.RiskDecision{
		Kind:             domain.DecisionKindCancel,
		OrderID:          req.OrderID,
		AccountID:        req.AccountID,
		TradingAccountID: req.TradingAccountID,
		MarketCode:       req.MarketCode,
		SymbolCode:       req.SymbolCode,
		StatusCode:       verdict.StatusCode,
		Family:           verdict.Family,
		Detail:           verdict.Detail,
		RuleVersion:      snap.Version,
		DecidedAt:        time.Now(),
	})
	if !verdict.Accepted() {
		g.countReject(verdict)
	}
	return verdict
}

// OnOrderFilled 成交确认：计费、扣减在途数量并发布费用事件。
func (g *RiskGateway) OnOrderFilled(ctx context.Context, fill *domain.Fill) (domain.Fee, error) {
	snap, err := g.cache.Snapshot()
	if err != nil {
		return domain.Fee{}, fmt.Errorf("fee computation without rule snapshot: %w", err)
	}

	fee, matched := g.feeCalc.Compute(snap, fill)
	if !matched {
		logger.Warn(ctx, "no fee rule matched, charging zero fee",
			"order_id", fill.OrderID,
			"market_code", fill.MarketCode,
			"symbol_code", fill.SymbolCode,
		)
	}
	if g.metrics != nil {
		g.metrics.FeeCalcsTotal.Inc()
	}

	g.ledger.FillOrder(fill.OrderID, fill.Size)
	if g.metrics != nil {
		g.metrics.RestingOrders.Set(float64(g.ledger.RestingCount()))
	}

	g.recordDecision(ctx, &domain.RiskDecision{
		Kind:             domain.DecisionKindFill,
		OrderID:          fill.OrderID,
		AccountID:        fill.AccountID,
		TradingAccountID: fill.TradingAccountID,
		MarketCode:       fill.MarketCode,
		SymbolCode:       fill.SymbolCode,
		StatusCode:       domain.StatusOK,
		Fee:              fee.Total(),
		RuleVersion:      snap.Version,
		DecidedAt:        time.Now(),
	})
	return fee, nil
}

// OnOrderCanceled 撤单确认：在途订单出簿。
func (g *RiskGateway) OnOrderCanceled(ctx context.Context, orderID uint64) {
	g.ledger.RetireOrder(orderID)
	if g.metrics != nil {
		g.metrics.RestingOrders.Set(float64(g.ledger.RestingCount()))
	}
}

// OnOrderRejected 交易所拒单确认：累加拒单计数并出簿。
func (g *RiskGateway) OnOrderRejected(ctx context.Context, req *domain.OrderRequest) {
	snap, err := g.cache.Snapshot()
	if err == nil {
		now := time.Now()
		fields := req.ConditionFields()
		unlock := g.lockFor(req.AccountID, req.TradingAccountID, g.flow.RejectScopes(fields, snap))
		g.flow.CommitReject(fields, snap, g.ledger, now)
		unlock()
	}
	g.ledger.RetireOrder(req.OrderID)
	if g.metrics != nil {
		g.metrics.RestingOrders.Set(float64(g.ledger.RestingCount()))
	}
}

// ListDecisions 查询某笔委托的全部决策审计记录。
func (g *RiskGateway) ListDecisions(ctx context.Context, orderID uint64) ([]*domain.RiskDecision, error) {
	if g.decisionRepo == nil {
		return nil, nil
	}
	return g.decisionRepo.ListByOrderID(ctx, orderID)
}

// EstimateFee 按当前费率快照试算一笔假想成交的费用。
func (g *RiskGateway) EstimateFee(ctx context.Context, fill *domain.Fill) (domain.Fee, bool, error) {
	snap, err := g.cache.Snapshot()
	if err != nil {
		return domain.Fee{}, false, err
	}
	fee, matched := g.feeCalc.Compute(snap, fill)
	return fee, matched, nil
}

// lockFor 锁定本次请求涉及的全部分片：账户维度之外，还包括每条命中流控
// 规则的计数 scope，宽范围规则（如空条件的全局计数）会让不同账户的请求
// 竞争同一分片，检查与落账对任何计数器保持互斥。分片按序号升序加锁、
// 逆序解锁。
func (g *RiskGateway) lockFor(accountID, tradingAccountID uint64, ruleScopes []string) (unlock func()) {
	acctKey := strconv.FormatUint(accountID, 10) + "/" + strconv.FormatUint(tradingAccountID, 10)
	seen := map[int]struct{}{g.stripe(acctKey): {}}
	for _, scope := range ruleScopes {
		seen[g.stripe(scope)] = struct{}{}
	}
	stripes := make([]int, 0, len(seen))
	for i := range seen {
		stripes = append(stripes, i)
	}
	sort.Ints(stripes)
	for _, i := range stripes {
		g.locks[i].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			g.locks[stripes[i]].Unlock()
		}
	}
}

func (g *RiskGateway) stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(g.locks)))
}

func (g *RiskGateway) recordDecision(ctx context.Context, decision *domain.RiskDecision) {
	if !g.auditEnabled || g.decisionRepo == nil {
		return
	}
	if err := g.decisionRepo.Save(ctx, decision); err != nil {
		// 审计失败不改变风控结论
		logger.Error(ctx, "failed to record risk decision", "order_id", decision.OrderID, "error", err)
	}
}

func (g *RiskGateway) observe(kind string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.ChecksTotal.WithLabelValues(kind).Inc()
	g.metrics.CheckDuration.Observe(time.Since(start).Seconds())
}

func (g *RiskGateway) countReject(verdict domain.Verdict) {
	if g.metrics == nil {
		return
	}
	g.metrics.RejectsTotal.WithLabelValues(verdict.Family, fmt.Sprintf("%d", verdict.StatusCode)).Inc()
}

func validateOrder(req *domain.OrderRequest) domain.Verdict {
	switch {
	case req == nil:
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "request is nil")
	case req.MarketCode == "" || req.SymbolCode == "":
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "market_code and symbol_code are required")
	case req.Side != domain.SideBid && req.Side != domain.SideAsk:
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "side must be Bid or Ask")
	case !req.Size.IsPositive():
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "size must be positive")
	case !req.Price.IsPositive():
		return domain.Reject(domain.StatusInvalidRequest, domain.FamilyGateway, "price must be positive")
	}
	return domain.Accept()
}
