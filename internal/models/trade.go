package models

import (
	"time"

	"github.com/lokwai/opal/pkg/pnl"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade 成交记录，针对某个持仓的不可变事件（仅允许修正非类型字段）
type Trade struct {
	ID                string          `gorm:"primaryKey;size:26" json:"id"`
	PositionID        string          `gorm:"size:26;not null;index" json:"position_id"`          // 所属持仓
	Kind              pnl.Kind        `gorm:"size:10;not null" json:"kind"`                       // OPEN/ADD/REDUCE/CLOSE
	Contracts         int64           `gorm:"not null" json:"contracts"`                          // 合约张数
	Premium           decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"premium"`         // 每股权利金
	SharesPerContract int64           `gorm:"not null;default:500" json:"shares_per_contract"`    // 每张合约股数
	Fee               decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"fee"`            // 手续费
	MarginPercent     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"margin_percent"` // 保证金比例，可选
	Notes             string          `gorm:"size:500" json:"notes"`                              // 备注
	TradedAt          time.Time       `gorm:"not null;index" json:"traded_at"`                    // 成交日期，排序主键
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (Trade) TableName() string {
	return "trades"
}

// ToPNL 转换为盈亏引擎的成交视图
func (t *Trade) ToPNL() pnl.Trade {
	return pnl.Trade{
		Kind:              t.Kind,
		Contracts:         t.Contracts,
		Premium:           t.Premium,
		SharesPerContract: t.SharesPerContract,
		Fee:               t.Fee,
		MarginPercent:     t.MarginPercent,
		TradedAt:          t.TradedAt,
		CreatedAt:         t.CreatedAt,
	}
}

// ToPNLTrades 批量转换
func ToPNLTrades(trades []Trade) []pnl.Trade {
	result := make([]pnl.Trade, len(trades))
	for i := range trades {
		result[i] = trades[i].ToPNL()
	}
	return result
}
