package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/pkg/logger"
)

// RuleAdmin 处理五类规则的维护写入（Commands）。写入成功后立即触发一次
// 快照刷新，失败时由周期刷新兜底，评估路径感知变更存在有界延迟。
type RuleAdmin struct {
	feeRepo        domain.FeeRuleRepository
	flowCtrlRepo   domain.FlowCtrlRuleRepository
	selfTradeRepo  domain.SelfTradeRangeRepository
	pnlRepo        domain.PnlMonitorRangeRepository
	symbolListRepo domain.SymbolListRepository
	cache          *RuleCache
}

func NewRuleAdmin(
	feeRepo domain.FeeRuleRepository,
	flowCtrlRepo domain.FlowCtrlRuleRepository,
	selfTradeRepo domain.SelfTradeRangeRepository,
	pnlRepo domain.PnlMonitorRangeRepository,
	symbolListRepo domain.SymbolListRepository,
	cache *RuleCache,
) *RuleAdmin {
	return &RuleAdmin{
		feeRepo:        feeRepo,
		flowCtrlRepo:   flowCtrlRepo,
		selfTradeRepo:  selfTradeRepo,
		pnlRepo:        pnlRepo,
		symbolListRepo: symbolListRepo,
		cache:          cache,
	}
}

// SaveFeeRule 新增或更新费率规则。
func (a *RuleAdmin) SaveFeeRule(ctx context.Context, dto *FeeRuleDTO) error {
	rule := &domain.FeeRule{
		ID:               dto.ID,
		AccountID:        dto.AccountID,
		TradingAccountID: dto.TradingAccountID,
		Side:             domain.Side(dto.Side),
		PosDirection:     domain.PosDirection(dto.PosDirection),
		MarketCode:       dto.MarketCode,
		SymbolType:       domain.SymbolType(dto.SymbolType),
		SymbolCode:       dto.SymbolCode,
		FeeMode:          domain.FeeMode(dto.FeeMode),
		CommissionRate:   dto.CommissionRate,
		MinCommission:    dto.MinCommission,
		StampDutyRate:    dto.StampDutyRate,
		MinStampDuty:     dto.MinStampDuty,
		TransferFeeRate:  dto.TransferFeeRate,
		MinTransferFee:   dto.MinTransferFee,
	}
	if rule.Side != domain.SideBid && rule.Side != domain.SideAsk {
		return fmt.Errorf("invalid side %q", dto.Side)
	}
	if rule.FeeMode != domain.FeeModeByAmount && rule.FeeMode != domain.FeeModeByVolume {
		return fmt.Errorf("invalid fee mode %q", dto.FeeMode)
	}
	if err := a.feeRepo.Save(ctx, rule); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// DeleteFeeRule 删除费率规则。
func (a *RuleAdmin) DeleteFeeRule(ctx context.Context, id uint64) error {
	if err := a.feeRepo.Delete(ctx, id); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// ListFeeRules 列出生效中的费率规则。
func (a *RuleAdmin) ListFeeRules(ctx context.Context) ([]*domain.FeeRule, error) {
	return a.feeRepo.ListActive(ctx)
}

// SaveFlowCtrlRule 新增或更新流控规则。规则号同时是触发时的拒绝码，必须
// 落在风控码区间内。
func (a *RuleAdmin) SaveFlowCtrlRule(ctx context.Context, dto *FlowCtrlRuleDTO) error {
	if !domain.IsRiskCode(dto.RuleNo) {
		return fmt.Errorf("rule_no %d outside risk code range [%d, %d]", dto.RuleNo, domain.RiskCodeMin, domain.RiskCodeMax)
	}
	target := domain.FlowCtrlTarget(dto.Target)
	if !target.Valid() {
		return fmt.Errorf("invalid flow ctrl target %q", dto.Target)
	}
	cond, err := domain.ParseCondition(dto.Condition)
	if err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	limit, window, err := domain.ParseFlowCtrlLimit(target, dto.LimitValue)
	if err != nil {
		return fmt.Errorf("invalid limit value: %w", err)
	}

	rule := &domain.FlowCtrlRule{
		RuleNo:     dto.RuleNo,
		Name:       dto.Name,
		Target:     target,
		Condition:  cond,
		LimitValue: limit,
		Window:     window,
	}
	if err := a.flowCtrlRepo.Save(ctx, rule); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// DeleteFlowCtrlRule 删除流控规则。
func (a *RuleAdmin) DeleteFlowCtrlRule(ctx context.Context, ruleNo int32) error {
	if err := a.flowCtrlRepo.Delete(ctx, ruleNo); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// ListFlowCtrlRules 列出生效中的流控规则。
func (a *RuleAdmin) ListFlowCtrlRules(ctx context.Context) ([]*domain.FlowCtrlRule, error) {
	return a.flowCtrlRepo.ListActive(ctx)
}

// SaveSelfTradeRange 新增或更新自成交防护范围。
func (a *RuleAdmin) SaveSelfTradeRange(ctx context.Context, dto *SelfTradeRangeDTO) error {
	cond, err := domain.ParseCondition(dto.Condition)
	if err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	rng := &domain.SelfTradeRange{
		ID:        dto.ID,
		Step:      dto.Step,
		Condition: cond,
		Name:      dto.Name,
	}
	if err := a.selfTradeRepo.Save(ctx, rng); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// DeleteSelfTradeRange 删除自成交防护范围。
func (a *RuleAdmin) DeleteSelfTradeRange(ctx context.Context, id uint64) error {
	if err := a.selfTradeRepo.Delete(ctx, id); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// ListSelfTradeRanges 列出生效中的自成交防护范围。
func (a *RuleAdmin) ListSelfTradeRanges(ctx context.Context) ([]*domain.SelfTradeRange, error) {
	return a.selfTradeRepo.ListActive(ctx)
}

// SavePnlMonitorRange 新增或更新盈亏监控范围。
func (a *RuleAdmin) SavePnlMonitorRange(ctx context.Context, dto *PnlMonitorRangeDTO) error {
	cond, err := domain.ParseCondition(dto.Condition)
	if err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	pnlType := domain.PnlType(dto.PnlType)
	if pnlType != domain.PnlTypeLoss && pnlType != domain.PnlTypeProfit {
		return fmt.Errorf("invalid pnl type %q", dto.PnlType)
	}
	if !dto.LimitValue.IsPositive() {
		return fmt.Errorf("limit_value must be positive")
	}
	rng := &domain.PnlMonitorRange{
		ID:         dto.ID,
		Step:       dto.Step,
		Condition:  cond,
		PnlType:    pnlType,
		LimitValue: dto.LimitValue,
		Name:       dto.Name,
	}
	if err := a.pnlRepo.Save(ctx, rng); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// DeletePnlMonitorRange 删除盈亏监控范围。
func (a *RuleAdmin) DeletePnlMonitorRange(ctx context.Context, id uint64) error {
	if err := a.pnlRepo.Delete(ctx, id); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// ListPnlMonitorRanges 列出生效中的盈亏监控范围。
func (a *RuleAdmin) ListPnlMonitorRanges(ctx context.Context) ([]*domain.PnlMonitorRange, error) {
	return a.pnlRepo.ListActive(ctx)
}

// SaveSymbolListEntry 新增或更新黑白名单条目。
func (a *RuleAdmin) SaveSymbolListEntry(ctx context.Context, dto *SymbolListEntryDTO) error {
	cond, err := domain.ParseCondition(dto.Condition)
	if err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	listType := domain.ListType(dto.ListType)
	if listType != domain.ListTypeWhite && listType != domain.ListTypeBlack {
		return fmt.Errorf("invalid list type %q", dto.ListType)
	}
	entry := &domain.SymbolListEntry{
		ID:         dto.ID,
		Step:       dto.Step,
		Condition:  cond,
		MarketCode: dto.MarketCode,
		SymbolType: domain.SymbolType(dto.SymbolType),
		SymbolCode: dto.SymbolCode,
		ListType:   listType,
		Name:       dto.Name,
	}
	if err := a.symbolListRepo.Save(ctx, entry); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// DeleteSymbolListEntry 删除黑白名单条目。
func (a *RuleAdmin) DeleteSymbolListEntry(ctx context.Context, id uint64) error {
	if err := a.symbolListRepo.Delete(ctx, id); err != nil {
		return err
	}
	a.refresh(ctx)
	return nil
}

// ListSymbolListEntries 列出生效中的黑白名单条目。
func (a *RuleAdmin) ListSymbolListEntries(ctx context.Context) ([]*domain.SymbolListEntry, error) {
	return a.symbolListRepo.ListActive(ctx)
}

func (a *RuleAdmin) refresh(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Refresh(ctx); err != nil {
		logger.Warn(ctx, "rule refresh after admin write failed, periodic refresh will retry", "error", err)
	}
}
