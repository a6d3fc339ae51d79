package mysql

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
)

// FeeRuleModel 费率规则表。
type FeeRuleModel struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement"`
	AccountID        uint64          `gorm:"index:idx_fee_scope"`
	TradingAccountID uint64          `gorm:"index:idx_fee_scope"`
	Side             string          `gorm:"type:varchar(8);index:idx_fee_scope"`
	PosDirection     string          `gorm:"type:varchar(16);index:idx_fee_scope"`
	MarketCode       string          `gorm:"type:varchar(32);index:idx_fee_scope"`
	SymbolType       string          `gorm:"type:varchar(32)"`
	SymbolCode       string          `gorm:"type:varchar(64)"`
	FeeMode          string          `gorm:"type:varchar(16)"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(24,12)"`
	MinCommission    decimal.Decimal `gorm:"type:decimal(24,12)"`
	StampDutyRate    decimal.Decimal `gorm:"type:decimal(24,12)"`
	MinStampDuty     decimal.Decimal `gorm:"type:decimal(24,12)"`
	TransferFeeRate  decimal.Decimal `gorm:"type:decimal(24,12)"`
	MinTransferFee   decimal.Decimal `gorm:"type:decimal(24,12)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (FeeRuleModel) TableName() string { return "risk_fee_rules" }

func toFeeRuleModel(r *domain.FeeRule) *FeeRuleModel {
	return &FeeRuleModel{
		ID:               r.ID,
		AccountID:        r.AccountID,
		TradingAccountID: r.TradingAccountID,
		Side:             string(r.Side),
		PosDirection:     string(r.PosDirection),
		MarketCode:       r.MarketCode,
		SymbolType:       string(r.SymbolType),
		SymbolCode:       r.SymbolCode,
		FeeMode:          string(r.FeeMode),
		CommissionRate:   r.CommissionRate,
		MinCommission:    r.MinCommission,
		StampDutyRate:    r.StampDutyRate,
		MinStampDuty:     r.MinStampDuty,
		TransferFeeRate:  r.TransferFeeRate,
		MinTransferFee:   r.MinTransferFee,
	}
}

func toFeeRule(m *FeeRuleModel) *domain.FeeRule {
	return &domain.FeeRule{
		ID:               m.ID,
		AccountID:        m.AccountID,
		TradingAccountID: m.TradingAccountID,
		Side:             domain.Side(m.Side),
		PosDirection:     domain.PosDirection(m.PosDirection),
		MarketCode:       m.MarketCode,
		SymbolType:       domain.SymbolType(m.SymbolType),
		SymbolCode:       m.SymbolCode,
		FeeMode:          domain.FeeMode(m.FeeMode),
		CommissionRate:   m.CommissionRate,
		MinCommission:    m.MinCommission,
		StampDutyRate:    m.StampDutyRate,
		MinStampDuty:     m.MinStampDuty,
		TransferFeeRate:  m.TransferFeeRate,
		MinTransferFee:   m.MinTransferFee,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FlowCtrlRuleModel 流控规则表。LimitValue 保留原始阈值表达式，读取时解析。
type FlowCtrlRuleModel struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	RuleNo     int32  `gorm:"uniqueIndex"`
	Name       string `gorm:"type:varchar(128)"`
	Target     string `gorm:"type:varchar(64)"`
	Condition  string `gorm:"type:varchar(512)"`
	LimitValue string `gorm:"type:varchar(64)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (FlowCtrlRuleModel) TableName() string { return "risk_flow_ctrl_rules" }

func toFlowCtrlRuleModel(r *domain.FlowCtrlRule) *FlowCtrlRuleModel {
	limit := r.LimitValue.String()
	if r.Target.LimitType() == domain.LimitWithinTime {
		limit = fmt.Sprintf("%d/%dms", r.Window.Count, r.Window.WindowMs)
	}
	return &FlowCtrlRuleModel{
		RuleNo:     r.RuleNo,
		Name:       r.Name,
		Target:     string(r.Target),
		Condition:  r.Condition.Raw(),
		LimitValue: limit,
	}
}

func toFlowCtrlRule(m *FlowCtrlRuleModel) (*domain.FlowCtrlRule, error) {
	target := domain.FlowCtrlTarget(m.Target)
	if !target.Valid() {
		return nil, fmt.Errorf("flow ctrl rule %d: unknown target %q", m.RuleNo, m.Target)
	}
	cond, err := domain.ParseCondition(m.Condition)
	if err != nil {
		return nil, fmt.Errorf("flow ctrl rule %d: %w", m.RuleNo, err)
	}
	limit, window, err := domain.ParseFlowCtrlLimit(target, m.LimitValue)
	if err != nil {
		return nil, fmt.Errorf("flow ctrl rule %d: %w", m.RuleNo, err)
	}
	return &domain.FlowCtrlRule{
		RuleNo:     m.RuleNo,
		Name:       m.Name,
		Target:     target,
		Condition:  cond,
		LimitValue: limit,
		Window:     window,
	}, nil
}

// SelfTradeRangeModel 自成交防护范围表。
type SelfTradeRangeModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Step      string `gorm:"type:varchar(64)"`
	Condition string `gorm:"type:varchar(512)"`
	Name      string `gorm:"type:varchar(128)"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (SelfTradeRangeModel) TableName() string { return "risk_self_trade_ranges" }

func toSelfTradeRangeModel(r *domain.SelfTradeRange) *SelfTradeRangeModel {
	return &SelfTradeRangeModel{
		ID:        r.ID,
		Step:      r.Step,
		Condition: r.Condition.Raw(),
		Name:      r.Name,
	}
}

func toSelfTradeRange(m *SelfTradeRangeModel) (*domain.SelfTradeRange, error) {
	cond, err := domain.ParseCondition(m.Condition)
	if err != nil {
		return nil, fmt.Errorf("self trade range %d: %w", m.ID, err)
	}
	return &domain.SelfTradeRange{
		ID:        m.ID,
		Step:      m.Step,
		Condition: cond,
		Name:      m.Name,
	}, nil
}

// PnlMonitorRangeModel 盈亏监控范围表。
type PnlMonitorRangeModel struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	Step       string          `gorm:"type:varchar(64)"`
	Condition  string          `gorm:"type:varchar(512)"`
	PnlType    string          `gorm:"type:varchar(16)"`
	LimitValue decimal.Decimal `gorm:"type:decimal(24,12)"`
	Name       string          `gorm:"type:varchar(128)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (PnlMonitorRangeModel) TableName() string { return "risk_pnl_monitor_ranges" }

func toPnlMonitorRangeModel(r *domain.PnlMonitorRange) *PnlMonitorRangeModel {
	return &PnlMonitorRangeModel{
		ID:         r.ID,
		Step:       r.Step,
		Condition:  r.Condition.Raw(),
		PnlType:    string(r.PnlType),
		LimitValue: r.LimitValue,
		Name:       r.Name,
	}
}

func toPnlMonitorRange(m *PnlMonitorRangeModel) (*domain.PnlMonitorRange, error) {
	cond, err := domain.ParseCondition(m.Condition)
	if err != nil {
		return nil, fmt.Errorf("pnl monitor range %d: %w", m.ID, err)
	}
	return &domain.PnlMonitorRange{
		ID:         m.ID,
		Step:       m.Step,
		Condition:  cond,
		PnlType:    domain.PnlType(m.PnlType),
		LimitValue: m.LimitValue,
		Name:       m.Name,
	}, nil
}

// SymbolListEntryModel 黑白名单表。
type SymbolListEntryModel struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Step       string `gorm:"type:varchar(64)"`
	Condition  string `gorm:"type:varchar(512)"`
	MarketCode string `gorm:"type:varchar(32);index"`
	SymbolType string `gorm:"type:varchar(32)"`
	SymbolCode string `gorm:"type:varchar(64)"`
	ListType   string `gorm:"type:varchar(8);index"`
	Name       string `gorm:"type:varchar(128)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (SymbolListEntryModel) TableName() string { return "risk_symbol_list_entries" }

func toSymbolListEntryModel(e *domain.SymbolListEntry) *SymbolListEntryModel {
	return &SymbolListEntryModel{
		ID:         e.ID,
		Step:       e.Step,
		Condition:  e.Condition.Raw(),
		MarketCode: e.MarketCode,
		SymbolType: string(e.SymbolType),
		SymbolCode: e.SymbolCode,
		ListType:   string(e.ListType),
		Name:       e.Name,
	}
}

func toSymbolListEntry(m *SymbolListEntryModel) (*domain.SymbolListEntry, error) {
	cond, err := domain.ParseCondition(m.Condition)
	if err != nil {
		return nil, fmt.Errorf("symbol list entry %d: %w", m.ID, err)
	}
	return &domain.SymbolListEntry{
		ID:         m.ID,
		Step:       m.Step,
		Condition:  cond,
		MarketCode: m.MarketCode,
		SymbolType: domain.SymbolType(m.SymbolType),
		SymbolCode: m.SymbolCode,
		ListType:   domain.ListType(m.ListType),
		Name:       m.Name,
	}, nil
}

// RiskDecisionModel 决策审计表。
type RiskDecisionModel struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement"`
	Kind             string          `gorm:"type:varchar(16);index"`
	OrderID          uint64          `gorm:"index"`
	AccountID        uint64          `gorm:"index"`
	TradingAccountID uint64
	MarketCode       string          `gorm:"type:varchar(32)"`
	SymbolCode       string          `gorm:"type:varchar(64)"`
	StatusCode       int32           `gorm:"index"`
	Family           string          `gorm:"type:varchar(32)"`
	Detail           string          `gorm:"type:varchar(512)"`
	Fee              decimal.Decimal `gorm:"type:decimal(24,12)"`
	RuleVersion      int64
	DecidedAt        time.Time `gorm:"index"`
	CreatedAt        time.Time
}

// TableName 指定表名
func (RiskDecisionModel) TableName() string { return "risk_decisions" }

func toRiskDecisionModel(d *domain.RiskDecision) *RiskDecisionModel {
	return &RiskDecisionModel{
		ID:               d.ID,
		Kind:             string(d.Kind),
		OrderID:          d.OrderID,
		AccountID:        d.AccountID,
		TradingAccountID: d.TradingAccountID,
		MarketCode:       d.MarketCode,
		SymbolCode:       d.SymbolCode,
		StatusCode:       d.StatusCode,
		Family:           d.Family,
		Detail:           d.Detail,
		Fee:              d.Fee,
		RuleVersion:      d.RuleVersion,
		DecidedAt:        d.DecidedAt,
	}
}

func toRiskDecision(m *RiskDecisionModel) *domain.RiskDecision {
	return &domain.RiskDecision{
		ID:               m.ID,
		Kind:             domain.DecisionKind(m.Kind),
		OrderID:          m.OrderID,
		AccountID:        m.AccountID,
		TradingAccountID: m.TradingAccountID,
		MarketCode:       m.MarketCode,
		SymbolCode:       m.SymbolCode,
		StatusCode:       m.StatusCode,
		Family:           m.Family,
		Detail:           m.Detail,
		Fee:              m.Fee,
		RuleVersion:      m.RuleVersion,
		DecidedAt:        m.DecidedAt,
	}
}

// AutoMigrateModels 建表清单，交由启动流程迁移。
func AutoMigrateModels() []any {
	return []any{
		&FeeRuleModel{},
		&FlowCtrlRuleModel{},
		&SelfTradeRangeModel{},
		&PnlMonitorRangeModel{},
		&SymbolListEntryModel{},
		&RiskDecisionModel{},
	}
}
