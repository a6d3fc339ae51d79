package mysql

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/wyfcoding/riskgateway/internal/riskgateway/domain"
	"github.com/wyfcoding/riskgateway/internal/riskgateway/infrastructure/messaging"
)

type decisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository 创建决策审计仓储。审计行与决策事件的发件箱记录
// 同事务落库，由 OutboxRelay 异步投递。
func NewDecisionRepository(db *gorm.DB) domain.DecisionRepository {
	return &decisionRepository{db: db}
}

func (r *decisionRepository) Save(ctx context.Context, decision *domain.RiskDecision) error {
	if decision == nil {
		return nil
	}
	model := toRiskDecisionModel(decision)
	outbox, err := messaging.NewDecisionOutboxMessage(decision, strconv.FormatUint(decision.OrderID, 10))
	if err != nil {
		return err
	}

	return getDB(ctx, r.db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		decision.ID = model.ID
		return tx.Create(outbox).Error
	})
}

func (r *decisionRepository) ListByOrderID(ctx context.Context, orderID uint64) ([]*domain.RiskDecision, error) {
	var models []*RiskDecisionModel
	err := getDB(ctx, r.db).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("decided_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	decisions := make([]*domain.RiskDecision, 0, len(models))
	for _, m := range models {
		decisions = append(decisions, toRiskDecision(m))
	}
	return decisions, nil
}
