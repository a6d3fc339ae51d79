package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/pkg/logger"
	"github.com/wyfcoding/riskgateway/pkg/metrics"
)

// ErrRulesNotLoaded 规则快照尚未完成首次加载。此时一律失败关闭。
var ErrRulesNotLoaded = errors.New("rule snapshot not loaded yet")

// RuleCache 规则快照缓存。按固定间隔从仓储整体加载五类规则并原子换代，
// 评估路径只读当前快照，不直接触库。刷新失败时继续服务上一份快照。
type RuleCache struct {
	feeRepo        domain.FeeRuleRepository
	flowCtrlRepo   domain.FlowCtrlRuleRepository
	selfTradeRepo  domain.SelfTradeRangeRepository
	pnlRepo        domain.PnlMonitorRangeRepository
	symbolListRepo domain.SymbolListRepository

	interval time.Duration
	metrics  *metrics.Metrics

	version atomic.Int64
	current atomic.Pointer[domain.RuleSnapshot]
}

func NewRuleCache(
	feeRepo domain.FeeRuleRepository,
	flowCtrlRepo domain.FlowCtrlRuleRepository,
	selfTradeRepo domain.SelfTradeRangeRepository,
	pnlRepo domain.PnlMonitorRangeRepository,
	symbolListRepo domain.SymbolListRepository,
	interval time.Duration,
	m *metrics.Metrics,
) *RuleCache {
	return &RuleCache{
		feeRepo:        feeRepo,
		flowCtrlRepo:   flowCtrlRepo,
		selfTradeRepo:  selfTradeRepo,
		pnlRepo:        pnlRepo,
		symbolListRepo: symbolListRepo,
		interval:       interval,
		metrics:        m,
	}
}

// Snapshot 返回当前规则快照。首次加载完成前返回 ErrRulesNotLoaded。
func (c *RuleCache) Snapshot() (*domain.RuleSnapshot, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrRulesNotLoaded
	}
	return snap, nil
}

// Refresh 从仓储加载全量规则并换代快照。
func (c *RuleCache) Refresh(ctx context.Context) error {
	feeRules, err := c.feeRepo.ListActive(ctx)
	if err != nil {
		return c.refreshFailed(ctx, "fee rules", err)
	}
	flowRules, err := c.flowCtrlRepo.ListActive(ctx)
	if err != nil {
		return c.refreshFailed(ctx, "flow ctrl rules", err)
	}
	selfTradeRanges, err := c.selfTradeRepo.ListActive(ctx)
	if err != nil {
		return c.refreshFailed(ctx, "self trade ranges", err)
	}
	pnlRanges, err := c.pnlRepo.ListActive(ctx)
	if err != nil {
		return c.refreshFailed(ctx, "pnl monitor ranges", err)
	}
	symbolLists, err := c.symbolListRepo.ListActive(ctx)
	if err != nil {
		return c.refreshFailed(ctx, "symbol list entries", err)
	}

	version := c.version.Add(1)
	snap := domain.NewRuleSnapshot(version, time.Now(), feeRules, flowRules, selfTradeRanges, pnlRanges, symbolLists)
	c.current.Store(snap)

	if c.metrics != nil {
		c.metrics.RuleRefreshTotal.WithLabelValues("ok").Inc()
		c.metrics.RuleSnapshotVersion.Set(float64(version))
	}
	logger.Debug(ctx, "rule snapshot refreshed",
		"version", version,
		"fee_rules", len(feeRules),
		"flow_rules", len(flowRules),
		"self_trade_ranges", len(selfTradeRanges),
		"pnl_ranges", len(pnlRanges),
		"symbol_list_entries", len(symbolLists),
	)
	return nil
}

func (c *RuleCache) refreshFailed(ctx context.Context, what string, err error) error {
	if c.metrics != nil {
		c.metrics.RuleRefreshTotal.WithLabelValues("error").Inc()
	}
	logger.Error(ctx, "rule snapshot refresh failed", "stage", what, "error", err)
	return err
}

// Start 周期刷新，直到 ctx 取消。首次刷新失败只告警，由下一轮重试。
func (c *RuleCache) Start(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		logger.Error(ctx, "initial rule refresh failed, serving fail-closed until next round", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
