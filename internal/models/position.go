package models

import (
	"fmt"
	"time"

	"github.com/lokwai/opal/pkg/pnl"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OptionType 期权种类
type OptionType string

const (
	OptionTypeCall OptionType = "call" // 认购
	OptionTypePut  OptionType = "put"  // 认沽
)

// Position 期权持仓
type Position struct {
	ID          string                      `gorm:"primaryKey;size:26" json:"id"`
	UserID      string                      `gorm:"size:26;not null;index:idx_position_key" json:"user_id"`
	Symbol      string                      `gorm:"size:20;not null;index:idx_position_key" json:"symbol"`           // 标的代码，如 0700.HK
	Direction   pnl.Direction               `gorm:"size:10;not null;index:idx_position_key" json:"direction"`        // buy/sell
	OptionType  OptionType                  `gorm:"size:10;not null;index:idx_position_key" json:"option_type"`      // call/put
	StrikePrice decimal.Decimal             `gorm:"type:decimal(20,8);not null;index:idx_position_key" json:"strike_price"` // 行权价
	ExpiryDate  time.Time                   `gorm:"not null;index:idx_position_key" json:"expiry_date"`              // 到期日
	Status      pnl.Status                  `gorm:"size:20;not null;default:'open';index" json:"status"`             // 生命周期状态
	QuoteSymbol string                      `gorm:"size:50" json:"quote_symbol"`                                     // 外部行情代码，可选
	Tags        datatypes.JSONSlice[string] `gorm:"type:json" json:"tags"`                                           // 自定义标签
	CreatedAt   time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt              `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (*Position) TableName() string {
	return "positions"
}

// CompositeKey 同一份合约的自然键：一个用户对
// (标的, 方向, 种类, 行权价, 到期日) 只允许跟踪一个持仓。
func (p *Position) CompositeKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		p.UserID, p.Symbol, p.Direction, p.OptionType,
		p.StrikePrice.String(), p.ExpiryDate.Format("2006-01-02"))
}

// State 转换为校验器需要的状态视图
func (p *Position) State() pnl.PositionState {
	return pnl.PositionState{Status: p.Status}
}

// Terms 转换为盈亏引擎需要的持仓条款
func (p *Position) Terms() pnl.PositionTerms {
	return pnl.PositionTerms{
		Direction:   p.Direction,
		StrikePrice: p.StrikePrice,
	}
}

// IsExpiredAsOf 到期日是否已经过去（按自然日比较，到期当日仍然有效）
func (p *Position) IsExpiredAsOf(now time.Time) bool {
	expiry := time.Date(p.ExpiryDate.Year(), p.ExpiryDate.Month(), p.ExpiryDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return expiry.Before(today)
}
