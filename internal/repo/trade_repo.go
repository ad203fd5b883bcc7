package repo

import (
	"context"

	"github.com/go-orz/orz"
	"github.com/lokwai/opal/internal/models"
	"gorm.io/gorm"
)

func NewTradeRepo(db *gorm.DB) *TradeRepo {
	return &TradeRepo{
		Repository: orz.NewRepository[models.Trade, string](db),
	}
}

type TradeRepo struct {
	orz.Repository[models.Trade, string]
}

// FindByPosition 获取持仓的全部成交，按 (成交日期, 创建时间) 升序
func (r TradeRepo) FindByPosition(ctx context.Context, positionID string) ([]models.Trade, error) {
	var trades []models.Trade
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("position_id = ?", positionID).
		Order("traded_at ASC, created_at ASC").
		Find(&trades).Error
	return trades, err
}

// DeleteByPosition 删除持仓的全部成交（随持仓级联删除）
func (r TradeRepo) DeleteByPosition(ctx context.Context, positionID string) error {
	db := r.GetDB(ctx)
	return db.Where("position_id = ?", positionID).Delete(&models.Trade{}).Error
}
