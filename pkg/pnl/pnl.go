package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// 期权持仓的盈亏核算引擎。
// 输入是一个持仓的完整成交记录，输出确定且幂等：相同输入必然得到相同结果。
// 所有金额使用 decimal，避免二进制浮点误差。

// DefaultSharesPerContract 每张合约的股数，默认为港股一手 500 股
const DefaultSharesPerContract = 500

// Direction 持仓方向
type Direction string

const (
	DirectionBuy  Direction = "buy"  // 买入期权（long）
	DirectionSell Direction = "sell" // 卖出期权（short）
)

// Kind 成交类型
type Kind string

const (
	KindOpen   Kind = "OPEN"   // 首次开仓
	KindAdd    Kind = "ADD"    // 加仓
	KindReduce Kind = "REDUCE" // 部分平仓
	KindClose  Kind = "CLOSE"  // 全部平仓
)

// IsOpening 是否为开仓类型（增加持仓数量）
func (k Kind) IsOpening() bool {
	return k == KindOpen || k == KindAdd
}

// IsClosing 是否为平仓类型（减少持仓数量）
func (k Kind) IsClosing() bool {
	return k == KindReduce || k == KindClose
}

// Valid 是否为合法的成交类型
func (k Kind) Valid() bool {
	return k.IsOpening() || k.IsClosing()
}

// Trade 单笔成交，来自持久层的不可变事件
type Trade struct {
	Kind              Kind
	Contracts         int64           // 合约张数，正整数
	Premium           decimal.Decimal // 每股权利金
	SharesPerContract int64           // 每张合约股数，0 表示使用默认值
	Fee               decimal.Decimal // 手续费
	MarginPercent     decimal.Decimal // 保证金比例（百分数，如 30 表示 30%）
	TradedAt          time.Time       // 成交日期，主排序键
	CreatedAt         time.Time       // 创建时间，同日成交的次级排序键
}

func (t Trade) shares() decimal.Decimal {
	if t.SharesPerContract > 0 {
		return decimal.NewFromInt(t.SharesPerContract)
	}
	return decimal.NewFromInt(DefaultSharesPerContract)
}

// Stats 按时间顺序遍历成交后得到的持仓状态
type Stats struct {
	NetContracts    int64           // 净持仓张数
	AvgEntryPremium decimal.Decimal // 当前未平仓部分的加权平均开仓权利金
	RealizedPNL     decimal.Decimal // 已实现盈亏
}

// PositionTerms 计算盈亏所需的持仓条款
type PositionTerms struct {
	Direction   Direction
	StrikePrice decimal.Decimal
}

// Snapshot 一个持仓的完整盈亏快照
type Snapshot struct {
	TotalOpened     int64           `json:"total_opened"`
	TotalClosed     int64           `json:"total_closed"`
	NetContracts    int64           `json:"net_contracts"`
	AvgEntryPremium decimal.Decimal `json:"avg_entry_premium"`
	AvgExitPremium  decimal.Decimal `json:"avg_exit_premium"`
	RealizedPNL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPNL   decimal.Decimal `json:"unrealized_pnl"`
	GrossPNL        decimal.Decimal `json:"gross_pnl"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	NetPNL          decimal.Decimal `json:"net_pnl"`
	TotalMargin     decimal.Decimal `json:"total_margin"`
	MarketValue     decimal.Decimal `json:"market_value"`
	ReturnPercent   decimal.Decimal `json:"return_percent"`
}

// sortTrades 返回按 (TradedAt, CreatedAt) 升序排列的副本。
// 顺序是加权平均成本法的前提，乱序处理会污染平均成本。
func sortTrades(trades []Trade) []Trade {
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TradedAt.Equal(sorted[j].TradedAt) {
			return sorted[i].TradedAt.Before(sorted[j].TradedAt)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// safeDiv 除零时返回 0，引擎的任何输出都不允许出现非有限值
func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// ComputePositionStats 按时间顺序遍历成交，维护 {净持仓, 加权平均成本, 已实现盈亏}。
// 平仓张数超过净持仓时按净持仓截断，净持仓永远不会为负；
// 持仓归零后平均成本重置为零，再次开仓从全新的成本基础开始。
func ComputePositionStats(trades []Trade, direction Direction) Stats {
	var net int64
	avg := decimal.Zero
	realized := decimal.Zero

	for _, t := range sortTrades(trades) {
		if t.Contracts <= 0 {
			continue
		}
		qty := decimal.NewFromInt(t.Contracts)

		switch {
		case t.Kind.IsOpening():
			total := avg.Mul(decimal.NewFromInt(net)).Add(t.Premium.Mul(qty))
			net += t.Contracts
			avg = safeDiv(total, decimal.NewFromInt(net))

		case t.Kind.IsClosing():
			closeContracts := t.Contracts
			if closeContracts > net {
				// 校验器保证不会发生，但引擎自身不允许净持仓为负
				closeContracts = net
			}
			if closeContracts <= 0 {
				continue
			}
			switch direction {
			case DirectionSell:
				// 卖方在权利金下跌时获利
				realized = realized.Add(avg.Sub(t.Premium).
					Mul(decimal.NewFromInt(closeContracts)).Mul(t.shares()))
			case DirectionBuy:
				realized = realized.Add(t.Premium.Sub(avg).
					Mul(decimal.NewFromInt(closeContracts)).Mul(t.shares()))
			}
			net -= closeContracts
			if net == 0 {
				avg = decimal.Zero
			}
		}
	}

	return Stats{
		NetContracts:    net,
		AvgEntryPremium: avg,
		RealizedPNL:     realized,
	}
}

// NetContracts 当前净持仓张数
func NetContracts(trades []Trade) int64 {
	return ComputePositionStats(trades, "").NetContracts
}

// ComputePNL 从完整成交记录推导持仓的盈亏快照。
// currentPremium 为当前市场权利金，传 nil 时未实现盈亏与市值均为零，不报错。
func ComputePNL(terms PositionTerms, trades []Trade, currentPremium *decimal.Decimal) Snapshot {
	stats := ComputePositionStats(trades, terms.Direction)

	var (
		totalOpened  int64
		totalClosed  int64
		totalFees    = decimal.Zero
		exitNotional = decimal.Zero // 平仓权利金 × 张数 的累计
		entryCost    = decimal.Zero // 开仓权利金 × 张数 × 股数 的累计
		marginSum    = decimal.Zero // 保证金比例 × 张数 的累计（开仓部分）
		openShares   = decimal.NewFromInt(DefaultSharesPerContract)
	)

	for _, t := range sortTrades(trades) {
		if t.Contracts <= 0 {
			continue
		}
		totalFees = totalFees.Add(t.Fee)
		qty := decimal.NewFromInt(t.Contracts)
		switch {
		case t.Kind.IsOpening():
			totalOpened += t.Contracts
			entryCost = entryCost.Add(t.Premium.Mul(qty).Mul(t.shares()))
			marginSum = marginSum.Add(t.MarginPercent.Mul(qty))
			openShares = t.shares()
		case t.Kind.IsClosing():
			totalClosed += t.Contracts
			exitNotional = exitNotional.Add(t.Premium.Mul(qty))
		}
	}

	avgExit := safeDiv(exitNotional, decimal.NewFromInt(totalClosed))
	avgMarginPercent := safeDiv(marginSum, decimal.NewFromInt(totalOpened))

	net := decimal.NewFromInt(stats.NetContracts)
	hundred := decimal.NewFromInt(100)

	// 保证金按剩余未平仓名义价值计算，而非历史名义价值
	totalMargin := avgMarginPercent.Div(hundred).
		Mul(net).Mul(openShares).Mul(terms.StrikePrice)

	// 未实现盈亏只对当前未平仓部分按市价计算
	unrealized := decimal.Zero
	marketValue := decimal.Zero
	if stats.NetContracts > 0 && currentPremium != nil {
		switch terms.Direction {
		case DirectionSell:
			unrealized = stats.AvgEntryPremium.Sub(*currentPremium).Mul(net).Mul(openShares)
		case DirectionBuy:
			unrealized = currentPremium.Sub(stats.AvgEntryPremium).Mul(net).Mul(openShares)
		}
		marketValue = currentPremium.Mul(net).Mul(openShares)
	}

	grossPNL := stats.RealizedPNL.Add(unrealized)
	netPNL := grossPNL.Sub(totalFees)

	returnPercent := decimal.Zero
	opened := decimal.NewFromInt(totalOpened)
	switch terms.Direction {
	case DirectionSell:
		// 保证金数据缺失时退回到行权名义价值，避免除零
		denominator := terms.StrikePrice.Mul(opened).Mul(openShares)
		if totalMargin.GreaterThan(denominator) {
			denominator = totalMargin
		}
		returnPercent = safeDiv(netPNL, denominator).Mul(hundred)
	case DirectionBuy:
		// 买方投入的是全部开仓权利金
		returnPercent = safeDiv(netPNL, entryCost).Mul(hundred)
	}

	return Snapshot{
		TotalOpened:     totalOpened,
		TotalClosed:     totalClosed,
		NetContracts:    stats.NetContracts,
		AvgEntryPremium: stats.AvgEntryPremium,
		AvgExitPremium:  avgExit,
		RealizedPNL:     stats.RealizedPNL,
		UnrealizedPNL:   unrealized,
		GrossPNL:        grossPNL,
		TotalFees:       totalFees,
		NetPNL:          netPNL,
		TotalMargin:     totalMargin,
		MarketValue:     marketValue,
		ReturnPercent:   returnPercent,
	}
}
