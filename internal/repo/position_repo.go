package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/pkg/pnl"
	"gorm.io/gorm"
)

func NewPositionRepo(db *gorm.DB) *PositionRepo {
	return &PositionRepo{
		Repository: orz.NewRepository[models.Position, string](db),
	}
}

type PositionRepo struct {
	orz.Repository[models.Position, string]
}

// FindByUser 查找用户的全部持仓，新建的在前
func (r PositionRepo) FindByUser(ctx context.Context, userID string) ([]models.Position, error) {
	var positions []models.Position
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&positions).Error
	return positions, err
}

// FindByIdAndUser 按 id 查找持仓，限定归属用户
func (r PositionRepo) FindByIdAndUser(ctx context.Context, id, userID string) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error
	return m, err
}

// FindByCompositeKey 按自然键 (用户, 标的, 方向, 种类, 行权价, 到期日) 查找持仓
func (r PositionRepo) FindByCompositeKey(ctx context.Context, p *models.Position) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("user_id = ? AND symbol = ? AND direction = ? AND option_type = ? AND strike_price = ? AND expiry_date = ?",
			p.UserID, p.Symbol, p.Direction, p.OptionType, p.StrikePrice, p.ExpiryDate).
		First(&m).Error
	return m, err
}

// FindOpenExpiredBefore 查找到期日早于指定日期但状态仍为 open 的持仓
func (r PositionRepo) FindOpenExpiredBefore(ctx context.Context, day time.Time) ([]models.Position, error) {
	var positions []models.Position
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("status = ? AND expiry_date < ?", pnl.StatusOpen, day).
		Find(&positions).Error
	return positions, err
}

// FindByUserAndStatus 按状态查找用户持仓
func (r PositionRepo) FindByUserAndStatus(ctx context.Context, userID string, status pnl.Status) ([]models.Position, error) {
	var positions []models.Position
	db := r.GetDB(ctx)
	err := db.Table(r.GetTableName()).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC").
		Find(&positions).Error
	return positions, err
}

// UpdateStatus 更新持仓状态
func (r PositionRepo) UpdateStatus(ctx context.Context, id string, status pnl.Status) error {
	db := r.GetDB(ctx)
	return db.Model(&models.Position{}).
		Where("id = ?", id).
		Update("status", status).Error
}
