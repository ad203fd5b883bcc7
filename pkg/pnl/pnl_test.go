package pnl

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func trade(kind Kind, contracts int64, premium string, day int) Trade {
	return Trade{
		Kind:      kind,
		Contracts: contracts,
		Premium:   d(premium),
		TradedAt:  base.AddDate(0, 0, day),
		CreatedAt: base.AddDate(0, 0, day),
	}
}

func TestComputePositionStats_ShortRoundTrip(t *testing.T) {
	trades := []Trade{
		trade(KindOpen, 10, "2.0", 0),
		trade(KindClose, 10, "0.5", 1),
	}

	stats := ComputePositionStats(trades, DirectionSell)

	if stats.NetContracts != 0 {
		t.Errorf("NetContracts = %d, want 0", stats.NetContracts)
	}
	// (2.0 - 0.5) * 10 * 500 = 7500
	if !stats.RealizedPNL.Equal(d("7500")) {
		t.Errorf("RealizedPNL = %s, want 7500", stats.RealizedPNL)
	}
	if !stats.AvgEntryPremium.IsZero() {
		t.Errorf("AvgEntryPremium = %s, want 0 after flat", stats.AvgEntryPremium)
	}
}

func TestComputePositionStats_AvgResetOnFlat(t *testing.T) {
	trades := []Trade{
		trade(KindOpen, 10, "2.0", 0),
		trade(KindClose, 10, "1.0", 1),
		trade(KindAdd, 5, "3.0", 2),
	}

	stats := ComputePositionStats(trades, DirectionSell)

	// 重新开仓后的成本基础不能混入第一段持仓
	if !stats.AvgEntryPremium.Equal(d("3.0")) {
		t.Errorf("AvgEntryPremium = %s, want 3.0", stats.AvgEntryPremium)
	}
	if stats.NetContracts != 5 {
		t.Errorf("NetContracts = %d, want 5", stats.NetContracts)
	}
}

func TestComputePositionStats_WeightedAverage(t *testing.T) {
	trades := []Trade{
		trade(KindOpen, 10, "2.0", 0),
		trade(KindAdd, 10, "4.0", 1),
	}

	stats := ComputePositionStats(trades, DirectionBuy)

	if !stats.AvgEntryPremium.Equal(d("3.0")) {
		t.Errorf("AvgEntryPremium = %s, want 3.0", stats.AvgEntryPremium)
	}
	if stats.NetContracts != 20 {
		t.Errorf("NetContracts = %d, want 20", stats.NetContracts)
	}
}

func TestComputePositionStats_OverCloseClamped(t *testing.T) {
	trades := []Trade{
		trade(KindOpen, 5, "2.0", 0),
		trade(KindReduce, 10, "1.0", 1), // 超出净持仓，引擎按 5 张截断
	}

	stats := ComputePositionStats(trades, DirectionSell)

	if stats.NetContracts != 0 {
		t.Errorf("NetContracts = %d, want 0 (never negative)", stats.NetContracts)
	}
	// (2.0 - 1.0) * 5 * 500 = 2500
	if !stats.RealizedPNL.Equal(d("2500")) {
		t.Errorf("RealizedPNL = %s, want 2500", stats.RealizedPNL)
	}
}

func TestComputePositionStats_SameDayTieBreaker(t *testing.T) {
	// 同一交易日的两笔成交按 CreatedAt 决定顺序
	open := trade(KindOpen, 10, "2.0", 0)
	closeTrade := trade(KindClose, 10, "1.0", 0)
	closeTrade.CreatedAt = open.CreatedAt.Add(time.Minute)

	// 输入顺序故意颠倒
	stats := ComputePositionStats([]Trade{closeTrade, open}, DirectionSell)

	if stats.NetContracts != 0 {
		t.Errorf("NetContracts = %d, want 0", stats.NetContracts)
	}
	if !stats.RealizedPNL.Equal(d("5000")) {
		t.Errorf("RealizedPNL = %s, want 5000", stats.RealizedPNL)
	}
}

func TestComputePositionStats_Conservation(t *testing.T) {
	histories := [][]Trade{
		{trade(KindOpen, 10, "2.0", 0)},
		{trade(KindOpen, 10, "2.0", 0), trade(KindReduce, 4, "1.5", 1)},
		{trade(KindOpen, 10, "2.0", 0), trade(KindReduce, 4, "1.5", 1), trade(KindAdd, 6, "2.5", 2)},
		{trade(KindOpen, 3, "1.0", 0), trade(KindClose, 3, "0.2", 5), trade(KindAdd, 8, "2.0", 6)},
	}

	for i, trades := range histories {
		var opened, closed int64
		for _, tr := range trades {
			if tr.Kind.IsOpening() {
				opened += tr.Contracts
			} else {
				closed += tr.Contracts
			}
		}
		net := NetContracts(trades)
		if net != opened-closed {
			t.Errorf("history %d: net = %d, want %d", i, net, opened-closed)
		}
		// 任意前缀的净持仓都不允许为负
		for n := 1; n <= len(trades); n++ {
			if prefix := NetContracts(trades[:n]); prefix < 0 {
				t.Errorf("history %d: prefix %d went negative: %d", i, n, prefix)
			}
		}
	}
}

func TestComputePNL_ShortScenario(t *testing.T) {
	terms := PositionTerms{Direction: DirectionSell, StrikePrice: d("55")}
	trades := []Trade{
		trade(KindOpen, 10, "2.0", 0),
		trade(KindClose, 10, "0.5", 1),
	}

	snapshot := ComputePNL(terms, trades, nil)

	if !snapshot.RealizedPNL.Equal(d("7500")) {
		t.Errorf("RealizedPNL = %s, want 7500", snapshot.RealizedPNL)
	}
	if snapshot.NetContracts != 0 {
		t.Errorf("NetContracts = %d, want 0", snapshot.NetContracts)
	}
	if !snapshot.NetPNL.Equal(d("7500")) {
		t.Errorf("NetPNL = %s, want 7500", snapshot.NetPNL)
	}
	if !snapshot.AvgExitPremium.Equal(d("0.5")) {
		t.Errorf("AvgExitPremium = %s, want 0.5", snapshot.AvgExitPremium)
	}
}

func TestComputePNL_LongUnrealized(t *testing.T) {
	terms := PositionTerms{Direction: DirectionBuy, StrikePrice: d("100")}
	trades := []Trade{
		trade(KindOpen, 4, "1.0", 0),
	}

	snapshot := ComputePNL(terms, trades, dp("1.5"))

	// (1.5 - 1.0) * 4 * 500 = 1000
	if !snapshot.UnrealizedPNL.Equal(d("1000")) {
		t.Errorf("UnrealizedPNL = %s, want 1000", snapshot.UnrealizedPNL)
	}
	if !snapshot.RealizedPNL.IsZero() {
		t.Errorf("RealizedPNL = %s, want 0", snapshot.RealizedPNL)
	}
	// 4 * 1.5 * 500 = 3000
	if !snapshot.MarketValue.Equal(d("3000")) {
		t.Errorf("MarketValue = %s, want 3000", snapshot.MarketValue)
	}
	// 投入权利金 4 * 1.0 * 500 = 2000，收益率 1000/2000 = 50%
	if !snapshot.ReturnPercent.Equal(d("50")) {
		t.Errorf("ReturnPercent = %s, want 50", snapshot.ReturnPercent)
	}
}

func TestComputePNL_ZeroOnMissingPrice(t *testing.T) {
	terms := PositionTerms{Direction: DirectionBuy, StrikePrice: d("100")}
	trades := []Trade{
		trade(KindOpen, 4, "1.0", 0),
		trade(KindAdd, 2, "1.2", 1),
	}

	snapshot := ComputePNL(terms, trades, nil)

	if !snapshot.UnrealizedPNL.IsZero() {
		t.Errorf("UnrealizedPNL = %s, want 0 without a current premium", snapshot.UnrealizedPNL)
	}
	if !snapshot.MarketValue.IsZero() {
		t.Errorf("MarketValue = %s, want 0 without a current premium", snapshot.MarketValue)
	}
}

func TestComputePNL_Idempotent(t *testing.T) {
	terms := PositionTerms{Direction: DirectionSell, StrikePrice: d("55")}
	trades := []Trade{
		trade(KindOpen, 10, "2.0", 0),
		trade(KindReduce, 4, "1.5", 1),
		trade(KindAdd, 6, "2.5", 2),
	}

	first := ComputePNL(terms, trades, dp("1.8"))
	second := ComputePNL(terms, trades, dp("1.8"))

	if got, want := fmt.Sprintf("%+v", first), fmt.Sprintf("%+v", second); got != want {
		t.Errorf("snapshots differ:\n first = %s\nsecond = %s", got, want)
	}
}

func TestComputePNL_FeesAndMargin(t *testing.T) {
	open := trade(KindOpen, 10, "2.0", 0)
	open.Fee = d("30")
	open.MarginPercent = d("20")
	reduce := trade(KindReduce, 5, "1.0", 1)
	reduce.Fee = d("15")

	terms := PositionTerms{Direction: DirectionSell, StrikePrice: d("50")}
	snapshot := ComputePNL(terms, []Trade{open, reduce}, nil)

	if !snapshot.TotalFees.Equal(d("45")) {
		t.Errorf("TotalFees = %s, want 45", snapshot.TotalFees)
	}
	// 保证金按剩余 5 张未平仓名义价值计算: 20% * 5 * 500 * 50 = 25000
	if !snapshot.TotalMargin.Equal(d("25000")) {
		t.Errorf("TotalMargin = %s, want 25000", snapshot.TotalMargin)
	}
	// 已实现 (2.0-1.0)*5*500 = 2500，净盈亏 2500 - 45 = 2455
	if !snapshot.NetPNL.Equal(d("2455")) {
		t.Errorf("NetPNL = %s, want 2455", snapshot.NetPNL)
	}
}

func TestComputePNL_CustomSharesPerContract(t *testing.T) {
	open := trade(KindOpen, 2, "3.0", 0)
	open.SharesPerContract = 100
	closeTrade := trade(KindClose, 2, "1.0", 1)
	closeTrade.SharesPerContract = 100

	terms := PositionTerms{Direction: DirectionSell, StrikePrice: d("40")}
	snapshot := ComputePNL(terms, []Trade{open, closeTrade}, nil)

	// (3.0 - 1.0) * 2 * 100 = 400
	if !snapshot.RealizedPNL.Equal(d("400")) {
		t.Errorf("RealizedPNL = %s, want 400", snapshot.RealizedPNL)
	}
}

func TestComputePNL_EmptyHistory(t *testing.T) {
	terms := PositionTerms{Direction: DirectionBuy, StrikePrice: d("100")}

	snapshot := ComputePNL(terms, nil, dp("1.5"))

	if snapshot.NetContracts != 0 || !snapshot.NetPNL.IsZero() || !snapshot.ReturnPercent.IsZero() {
		t.Errorf("empty history should yield a zero snapshot, got %+v", snapshot)
	}
}
