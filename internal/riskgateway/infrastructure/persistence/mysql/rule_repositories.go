package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
)

func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return db
}

// --- FeeRule ---

type feeRuleRepository struct {
	db *gorm.DB
}

// NewFeeRuleRepository 创建费率规则仓储。
func NewFeeRuleRepository(db *gorm.DB) domain.FeeRuleRepository {
	return &feeRuleRepository{db: db}
}

func (r *feeRuleRepository) Save(ctx context.Context, rule *domain.FeeRule) error {
	if rule == nil {
		return nil
	}
	model := toFeeRuleModel(rule)
	db := getDB(ctx, r.db).WithContext(ctx)

	var existing FeeRuleModel
	query := db
	if rule.ID != 0 {
		query = query.Where("id = ?", rule.ID)
	} else {
		query = query.Where(
			"account_id = ? AND trading_account_id = ? AND side = ? AND pos_direction = ? AND market_code = ? AND symbol_type = ? AND symbol_code = ?",
			rule.AccountID, rule.TradingAccountID, string(rule.Side), string(rule.PosDirection),
			rule.MarketCode, string(rule.SymbolType), rule.SymbolCode,
		)
	}

	err := query.First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(model).Error
	}
	if err != nil {
		return err
	}

	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	return db.Save(model).Error
}

func (r *feeRuleRepository) Delete(ctx context.Context, id uint64) error {
	return getDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&FeeRuleModel{}).Error
}

func (r *feeRuleRepository) FindByID(ctx context.Context, id uint64) (*domain.FeeRule, error) {
	var model FeeRuleModel
	err := getDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toFeeRule(&model), nil
}

func (r *feeRuleRepository) ListActive(ctx context.Context) ([]*domain.FeeRule, error) {
	var models []*FeeRuleModel
	if err := getDB(ctx, r.db).WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	rules := make([]*domain.FeeRule, 0, len(models))
	for _, m := range models {
		rules = append(rules, toFeeRule(m))
	}
	return rules, nil
}

// --- FlowCtrlRule ---

type flowCtrlRuleRepository struct {
	db *gorm.DB
}

// NewFlowCtrlRuleRepository 创建流控规则仓储。
func NewFlowCtrlRuleRepository(db *gorm.DB) domain.FlowCtrlRuleRepository {
	return &flowCtrlRuleRepository{db: db}
}

func (r *flowCtrlRuleRepository) Save(ctx context.Context, rule *domain.FlowCtrlRule) error {
	if rule == nil {
		return nil
	}
	model := toFlowCtrlRuleModel(rule)
	db := getDB(ctx, r.db).WithContext(ctx)

	var existing FlowCtrlRuleModel
	err := db.Where("rule_no = ?", rule.RuleNo).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(model).Error
	}
	if err != nil {
		return err
	}

	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	return db.Save(model).Error
}

func (r *flowCtrlRuleRepository) Delete(ctx context.Context, ruleNo int32) error {
	return getDB(ctx, r.db).WithContext(ctx).Where("rule_no = ?", ruleNo).Delete(&FlowCtrlRuleModel{}).Error
}

func (r *flowCtrlRuleRepository) FindByRuleNo(ctx context.Context, ruleNo int32) (*domain.FlowCtrlRule, error) {
	var model FlowCtrlRuleModel
	err := getDB(ctx, r.db).WithContext(ctx).Where("rule_no = ?", ruleNo).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toFlowCtrlRule(&model)
}

func (r *flowCtrlRuleRepository) ListActive(ctx context.Context) ([]*domain.FlowCtrlRule, error) {
	var models []*FlowCtrlRuleModel
	if err := getDB(ctx, r.db).WithContext(ctx).Order("rule_no ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	rules := make([]*domain.FlowCtrlRule, 0, len(models))
	for _, m := range models {
		rule, err := toFlowCtrlRule(m)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// --- SelfTradeRange ---

type selfTradeRangeRepository struct {
	db *gorm.DB
}

// NewSelfTradeRangeRepository 创建自成交防护范围仓储。
func NewSelfTradeRangeRepository(db *gorm.DB) domain.SelfTradeRangeRepository {
	return &selfTradeRangeRepository{db: db}
}

func (r *selfTradeRangeRepository) Save(ctx context.Context, rng *domain.SelfTradeRange) error {
	if rng == nil {
		return nil
	}
	model := toSelfTradeRangeModel(rng)
	db := getDB(ctx, r.db).WithContext(ctx)

	var existing SelfTradeRangeModel
	query := db
	if rng.ID != 0 {
		query = query.Where("id = ?", rng.ID)
	} else {
		query = query.Where("step = ? AND `condition` = ?", rng.Step, rng.Condition.Raw())
	}

	err := query.First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(model).Error
	}
	if err != nil {
		return err
	}

	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	return db.Save(model).Error
}

func (r *selfTradeRangeRepository) Delete(ctx context.Context, id uint64) error {
	return getDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&SelfTradeRangeModel{}).Error
}

func (r *selfTradeRangeRepository) ListActive(ctx context.Context) ([]*domain.SelfTradeRange, error) {
	var models []*SelfTradeRangeModel
	if err := getDB(ctx, r.db).WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	ranges := make([]*domain.SelfTradeRange, 0, len(models))
	for _, m := range models {
		rng, err := toSelfTradeRange(m)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	return ranges, nil
}

// --- PnlMonitorRange ---

type pnlMonitorRangeRepository struct {
	db *gorm.DB
}

// NewPnlMonitorRangeRepository 创建盈亏监控范围仓储。
func NewPnlMonitorRangeRepository(db *gorm.DB) domain.PnlMonitorRangeRepository {
	return &pnlMonitorRangeRepository{db: db}
}

func (r *pnlMonitorRangeRepository) Save(ctx context.Context, rng *domain.PnlMonitorRange) error {
	if rng == nil {
		return nil
	}
	model := toPnlMonitorRangeModel(rng)
	db := getDB(ctx, r.db).WithContext(ctx)

	var existing PnlMonitorRangeModel
	query := db
	if rng.ID != 0 {
		query = query.Where("id = ?", rng.ID)
	} else {
		query = query.Where("step = ? AND `condition` = ? AND pnl_type = ?", rng.Step, rng.Condition.Raw(), string(rng.PnlType))
	}

	err := query.First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(model).Error
	}
	if err != nil {
		return err
	}

	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	return db.Save(model).Error
}

func (r *pnlMonitorRangeRepository) Delete(ctx context.Context, id uint64) error {
	return getDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&PnlMonitorRangeModel{}).Error
}

func (r *pnlMonitorRangeRepository) ListActive(ctx context.Context) ([]*domain.PnlMonitorRange, error) {
	var models []*PnlMonitorRangeModel
	if err := getDB(ctx, r.db).WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	ranges := make([]*domain.PnlMonitorRange, 0, len(models))
	for _, m := range models {
		rng, err := toPnlMonitorRange(m)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	return ranges, nil
}

// --- SymbolList ---

type symbolListRepository struct {
	db *gorm.DB
}

// NewSymbolListRepository 创建黑白名单仓储。
func NewSymbolListRepository(db *gorm.DB) domain.SymbolListRepository {
	return &symbolListRepository{db: db}
}

func (r *symbolListRepository) Save(ctx context.Context, entry *domain.SymbolListEntry) error {
	if entry == nil {
		return nil
	}
	model := toSymbolListEntryModel(entry)
	db := getDB(ctx, r.db).WithContext(ctx)

	var existing SymbolListEntryModel
	query := db
	if entry.ID != 0 {
		query = query.Where("id = ?", entry.ID)
	} else {
		query = query.Where(
			"step = ? AND `condition` = ? AND market_code = ? AND symbol_type = ? AND symbol_code = ? AND list_type = ?",
			entry.Step, entry.Condition.Raw(), entry.MarketCode, string(entry.SymbolType), entry.SymbolCode, string(entry.ListType),
		)
	}

	err := query.First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(model).Error
	}
	if err != nil {
		return err
	}

	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	return db.Save(model).Error
}

func (r *symbolListRepository) Delete(ctx context.Context, id uint64) error {
	return getDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&SymbolListEntryModel{}).Error
}

func (r *symbolListRepository) ListActive(ctx context.Context) ([]*domain.SymbolListEntry, error) {
	var models []*SymbolListEntryModel
	if err := getDB(ctx, r.db).WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]*domain.SymbolListEntry, 0, len(models))
	for _, m := range models {
		entry, err := toSymbolListEntry(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
