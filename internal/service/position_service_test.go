package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/internal/xe"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	// 内存库按连接隔离，多连接会各自拿到一个空库
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.User{}, models.Position{}, models.Trade{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestPositionService(t *testing.T, db *gorm.DB) *PositionService {
	t.Helper()
	conf := &config.Config{}
	quoteService := NewQuoteService(zap.NewNop(), nil, conf)
	return NewPositionService(db, quoteService, conf, zap.NewNop())
}

func tradeInput(kind string, contracts int64, premium, day string) TradeInput {
	return TradeInput{
		Kind:      kind,
		Contracts: contracts,
		Premium:   premium,
		TradedAt:  day,
	}
}

func createRequest(symbol string) CreatePositionRequest {
	return CreatePositionRequest{
		Symbol:      symbol,
		Direction:   "sell",
		OptionType:  "put",
		StrikePrice: "50",
		ExpiryDate:  "2030-01-16",
		FirstTrade:  tradeInput("OPEN", 2, "5", "2026-01-05"),
	}
}

func TestPositionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	position, err := s.CreatePosition(ctx, "u1", createRequest("0700.HK"))
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if position.Status != pnl.StatusOpen {
		t.Fatalf("status = %s, want open", position.Status)
	}

	// 同一份合约不允许重复建仓
	if _, err := s.CreatePosition(ctx, "u1", createRequest("0700.HK")); !errors.Is(err, xe.ErrPositionExists) {
		t.Fatalf("duplicate create err = %v, want ErrPositionExists", err)
	}
	// 其他用户不受影响
	if _, err := s.CreatePosition(ctx, "u2", createRequest("0700.HK")); err != nil {
		t.Fatalf("create for another user: %v", err)
	}

	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("ADD", 1, "4", "2026-01-06")); err != nil {
		t.Fatalf("add trade: %v", err)
	}

	// 超量平仓被拒
	_, err = s.AddTrade(ctx, "u1", position.ID, tradeInput("REDUCE", 5, "3", "2026-01-07"))
	var re *pnl.RuleError
	if !errors.As(err, &re) {
		t.Fatalf("over-close err = %v, want RuleError", err)
	}

	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("REDUCE", 1, "3", "2026-01-07")); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	// CLOSE 必须清空剩余张数
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("CLOSE", 1, "2", "2026-01-08")); !errors.As(err, &re) {
		t.Fatalf("partial CLOSE err = %v, want RuleError", err)
	}
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("CLOSE", 2, "2", "2026-01-08")); err != nil {
		t.Fatalf("close: %v", err)
	}

	detail, err := s.GetDetail(ctx, "u1", position.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Position.Status != pnl.StatusClosed {
		t.Fatalf("status after close = %s, want closed", detail.Position.Status)
	}
	if detail.PNL.NetContracts != 0 {
		t.Fatalf("net contracts = %d, want 0", detail.PNL.NetContracts)
	}
	// 卖方：开 2@5 加 1@4 均价 14/3，平 1@3 再平 2@2
	avg := decimal.RequireFromString("14").Div(decimal.RequireFromString("3"))
	want := avg.Sub(decimal.RequireFromString("3")).Mul(decimal.NewFromInt(500)).
		Add(avg.Sub(decimal.RequireFromString("2")).Mul(decimal.NewFromInt(1000)))
	if !detail.PNL.RealizedPNL.Equal(want) {
		t.Fatalf("realized pnl = %s, want %s", detail.PNL.RealizedPNL, want)
	}
	if detail.CurrentPremium != nil {
		t.Fatalf("current premium = %v, want nil without provider", detail.CurrentPremium)
	}

	// 已关闭的持仓拒绝任何新成交
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("ADD", 1, "4", "2026-01-09")); !errors.As(err, &re) {
		t.Fatalf("trade on closed err = %v, want RuleError", err)
	}
}

func TestTradeCorrectionAndReconcile(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	position, err := s.CreatePosition(ctx, "u1", createRequest("0005.HK"))
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	closing, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("CLOSE", 2, "3", "2026-01-09"))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// 把开仓张数改小会让历史出现负前缀，必须被拒
	trades, err := s.GetTrades(ctx, "u1", position.ID)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	var opening *models.Trade
	for i := range trades {
		if trades[i].Kind == pnl.KindOpen {
			opening = &trades[i]
		}
	}
	if opening == nil {
		t.Fatal("opening trade not found")
	}

	var re *pnl.RuleError
	_, err = s.UpdateTrade(ctx, "u1", opening.ID, UpdateTradeRequest{
		Contracts: 1,
		Premium:   "5",
		TradedAt:  "2026-01-05",
	})
	if !errors.As(err, &re) {
		t.Fatalf("shrink opening err = %v, want RuleError", err)
	}

	// 修正权利金不影响自洽性
	if _, err := s.UpdateTrade(ctx, "u1", opening.ID, UpdateTradeRequest{
		Contracts: 2,
		Premium:   "5.5",
		TradedAt:  "2026-01-05",
	}); err != nil {
		t.Fatalf("update premium: %v", err)
	}

	// 删除平仓成交后持仓应回到 open
	if err := s.DeleteTrade(ctx, "u1", closing.ID); err != nil {
		t.Fatalf("delete closing trade: %v", err)
	}
	detail, err := s.GetDetail(ctx, "u1", position.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Position.Status != pnl.StatusOpen {
		t.Fatalf("status after delete = %s, want open", detail.Position.Status)
	}
	if detail.PNL.NetContracts != 2 {
		t.Fatalf("net contracts = %d, want 2", detail.PNL.NetContracts)
	}

	// 唯一的开仓成交不可删除，否则历史从平仓开始
	if err := s.DeleteTrade(ctx, "u1", opening.ID); err == nil {
		if _, err2 := s.AddTrade(ctx, "u1", position.ID, tradeInput("REDUCE", 1, "3", "2026-01-10")); err2 == nil {
			t.Fatal("expected inconsistent history to be rejected")
		}
	}
}

func TestOwnershipAndNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	position, err := s.CreatePosition(ctx, "u1", createRequest("9988.HK"))
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	if _, err := s.GetDetail(ctx, "intruder", position.ID); !errors.Is(err, xe.ErrNotFound) {
		t.Fatalf("cross-user detail err = %v, want ErrNotFound", err)
	}
	if _, err := s.AddTrade(ctx, "intruder", position.ID, tradeInput("ADD", 1, "4", "2026-01-06")); !errors.Is(err, xe.ErrNotFound) {
		t.Fatalf("cross-user add err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDetail(ctx, "u1", "no-such-id"); !errors.Is(err, xe.ErrNotFound) {
		t.Fatalf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestDeletePositionCascade(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	position, err := s.CreatePosition(ctx, "u1", createRequest("1299.HK"))
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("ADD", 1, "4", "2026-01-06")); err != nil {
		t.Fatalf("add trade: %v", err)
	}

	if err := s.DeletePosition(ctx, "u1", position.ID); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	if _, err := s.GetDetail(ctx, "u1", position.ID); !errors.Is(err, xe.ErrNotFound) {
		t.Fatalf("detail after delete err = %v, want ErrNotFound", err)
	}

	// 级联后可重新建立同一份合约
	if _, err := s.CreatePosition(ctx, "u1", createRequest("1299.HK")); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestUpdateStatusManualMarks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	position, err := s.CreatePosition(ctx, "u1", createRequest("2800.HK"))
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	// 只接受 exercised / lapsed
	if err := s.UpdateStatus(ctx, "u1", position.ID, pnl.StatusClosed); !errors.Is(err, xe.ErrInvalidStatus) {
		t.Fatalf("mark closed err = %v, want ErrInvalidStatus", err)
	}

	if err := s.UpdateStatus(ctx, "u1", position.ID, pnl.StatusLapsed); err != nil {
		t.Fatalf("mark lapsed: %v", err)
	}
	detail, err := s.GetDetail(ctx, "u1", position.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Position.Status != pnl.StatusLapsed {
		t.Fatalf("status = %s, want lapsed", detail.Position.Status)
	}

	// 终态持仓拒绝新成交
	var re *pnl.RuleError
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("ADD", 1, "4", "2026-01-06")); !errors.As(err, &re) {
		t.Fatalf("trade on lapsed err = %v, want RuleError", err)
	}
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestPositionService(t, db)

	req := createRequest("0388.HK")
	req.ExpiryDate = "2026-01-16"
	position, err := s.CreatePosition(ctx, "u1", req)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	stillValid := createRequest("0941.HK")
	stillValid.ExpiryDate = "2030-06-20"
	keep, err := s.CreatePosition(ctx, "u1", stillValid)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	sweep := NewSweepService(db, &config.Config{}, nil, zap.NewNop())
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	swept, err := sweep.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	expired, err := s.GetDetail(ctx, "u1", position.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if expired.Position.Status != pnl.StatusExpired {
		t.Fatalf("status = %s, want expired", expired.Position.Status)
	}

	kept, err := s.GetDetail(ctx, "u1", keep.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if kept.Position.Status != pnl.StatusOpen {
		t.Fatalf("status = %s, want open", kept.Position.Status)
	}

	// 过期但仍有未平张数的持仓可以继续平仓
	if _, err := s.AddTrade(ctx, "u1", position.ID, tradeInput("CLOSE", 2, "0.01", "2026-02-01")); err != nil {
		t.Fatalf("close expired position: %v", err)
	}
}
