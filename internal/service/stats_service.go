package service

import (
	"context"
	"sort"

	"github.com/go-orz/orz"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/internal/repo"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatsService 账户级复盘统计，只统计已了结的持仓（closed/exercised/lapsed/expired）
type StatsService struct {
	logger *zap.Logger

	*orz.Service
	positionRepo *repo.PositionRepo
	tradeRepo    *repo.TradeRepo
}

func NewStatsService(db *gorm.DB, logger *zap.Logger) *StatsService {
	return &StatsService{
		logger:       logger,
		Service:      orz.NewService(db),
		positionRepo: repo.NewPositionRepo(db),
		tradeRepo:    repo.NewTradeRepo(db),
	}
}

// PositionResult 单个已了结持仓的结算结果
type PositionResult struct {
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Direction   pnl.Direction   `json:"direction"`
	Status      pnl.Status      `json:"status"`
	NetPNL      decimal.Decimal `json:"net_pnl"`
	HoldingDays int64           `json:"holding_days"`
}

// SymbolStats 按标的聚合
type SymbolStats struct {
	Symbol       string          `json:"symbol"`
	Positions    int64           `json:"positions"`
	TotalPremium decimal.Decimal `json:"total_premium"` // 开仓权利金名义总额
	RealizedPNL  decimal.Decimal `json:"realized_pnl"`
	TotalFees    decimal.Decimal `json:"total_fees"`
}

// AccountStats 账户汇总
type AccountStats struct {
	TotalPositions int64 `json:"total_positions"`
	OpenPositions  int64 `json:"open_positions"`
	SettledCount   int64 `json:"settled_count"`
	WinCount       int64 `json:"win_count"`
	LossCount      int64 `json:"loss_count"`
	// 胜率 = 盈利持仓数 / 已了结持仓数，保留两位小数的百分比
	WinRate decimal.Decimal `json:"win_rate"`

	TotalRealizedPNL decimal.Decimal `json:"total_realized_pnl"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	TotalNetPNL      decimal.Decimal `json:"total_net_pnl"`
	AvgHoldingDays   decimal.Decimal `json:"avg_holding_days"`

	Best  *PositionResult `json:"best,omitempty"`
	Worst *PositionResult `json:"worst,omitempty"`

	BySymbol []SymbolStats `json:"by_symbol"`
}

// settled 已了结状态才计入胜负与持有期
func settled(status pnl.Status) bool {
	switch status {
	case pnl.StatusClosed, pnl.StatusExercised, pnl.StatusLapsed, pnl.StatusExpired:
		return true
	}
	return false
}

// holdingDays 从第一笔开仓到最后一笔平仓的自然日数
func holdingDays(trades []models.Trade) int64 {
	var first, last *models.Trade
	for i := range trades {
		t := &trades[i]
		if t.Kind.IsOpening() && (first == nil || t.TradedAt.Before(first.TradedAt)) {
			first = t
		}
		if t.Kind.IsClosing() && (last == nil || t.TradedAt.After(last.TradedAt)) {
			last = t
		}
	}
	if first == nil || last == nil {
		return 0
	}
	days := int64(last.TradedAt.Sub(first.TradedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Compute 遍历用户全部持仓逐个重算净盈亏并汇总
func (s *StatsService) Compute(ctx context.Context, userID string) (*AccountStats, error) {
	positions, err := s.positionRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &AccountStats{
		WinRate:          decimal.Zero,
		TotalRealizedPNL: decimal.Zero,
		TotalFees:        decimal.Zero,
		TotalNetPNL:      decimal.Zero,
		AvgHoldingDays:   decimal.Zero,
	}

	bySymbol := make(map[string]*SymbolStats)

	var totalDays int64
	for _, position := range positions {
		stats.TotalPositions++
		if position.Status == pnl.StatusOpen {
			stats.OpenPositions++
		}

		trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
		if err != nil {
			return nil, err
		}
		snapshot := pnl.ComputePNL(position.Terms(), models.ToPNLTrades(trades), nil)

		stats.TotalRealizedPNL = stats.TotalRealizedPNL.Add(snapshot.RealizedPNL)
		stats.TotalFees = stats.TotalFees.Add(snapshot.TotalFees)

		sym, ok := bySymbol[position.Symbol]
		if !ok {
			sym = &SymbolStats{
				Symbol:       position.Symbol,
				TotalPremium: decimal.Zero,
				RealizedPNL:  decimal.Zero,
				TotalFees:    decimal.Zero,
			}
			bySymbol[position.Symbol] = sym
		}
		sym.Positions++
		sym.RealizedPNL = sym.RealizedPNL.Add(snapshot.RealizedPNL)
		sym.TotalFees = sym.TotalFees.Add(snapshot.TotalFees)
		for _, t := range trades {
			if t.Kind.IsOpening() {
				sym.TotalPremium = sym.TotalPremium.Add(
					t.Premium.Mul(decimal.NewFromInt(t.Contracts)).
						Mul(decimal.NewFromInt(t.SharesPerContract)))
			}
		}

		if !settled(position.Status) {
			continue
		}
		stats.SettledCount++
		stats.TotalNetPNL = stats.TotalNetPNL.Add(snapshot.NetPNL)

		if snapshot.NetPNL.IsPositive() {
			stats.WinCount++
		} else if snapshot.NetPNL.IsNegative() {
			stats.LossCount++
		}

		days := holdingDays(trades)
		totalDays += days

		result := PositionResult{
			PositionID:  position.ID,
			Symbol:      position.Symbol,
			Direction:   position.Direction,
			Status:      position.Status,
			NetPNL:      snapshot.NetPNL,
			HoldingDays: days,
		}
		if stats.Best == nil || result.NetPNL.GreaterThan(stats.Best.NetPNL) {
			r := result
			stats.Best = &r
		}
		if stats.Worst == nil || result.NetPNL.LessThan(stats.Worst.NetPNL) {
			r := result
			stats.Worst = &r
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	stats.BySymbol = make([]SymbolStats, 0, len(symbols))
	for _, symbol := range symbols {
		stats.BySymbol = append(stats.BySymbol, *bySymbol[symbol])
	}

	if stats.SettledCount > 0 {
		stats.WinRate = decimal.NewFromInt(stats.WinCount).
			Div(decimal.NewFromInt(stats.SettledCount)).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		stats.AvgHoldingDays = decimal.NewFromInt(totalDays).
			Div(decimal.NewFromInt(stats.SettledCount)).
			Round(1)
	}

	return stats, nil
}
