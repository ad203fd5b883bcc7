package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-orz/orz"
	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/internal/repo"
	"github.com/lokwai/opal/internal/xe"
	"github.com/lokwai/opal/pkg/nostd"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PositionService 持仓与成交管理。
// 成交是只追加的事件日志，盈亏快照在每次读取时从头重算，从不落库。
type PositionService struct {
	logger *zap.Logger

	*orz.Service
	positionRepo *repo.PositionRepo
	tradeRepo    *repo.TradeRepo

	quoteService *QuoteService
	conf         *config.Config

	// 每个持仓一把锁：校验读到的历史和随后的写入之间不允许插入并发成交，
	// 否则"净持仓不为负"的不变量会被并发写绕过
	locks sync.Map
}

// NewPositionService 创建持仓服务
func NewPositionService(db *gorm.DB, quoteService *QuoteService, conf *config.Config, logger *zap.Logger) *PositionService {
	return &PositionService{
		logger:       logger,
		Service:      orz.NewService(db),
		positionRepo: repo.NewPositionRepo(db),
		tradeRepo:    repo.NewTradeRepo(db),
		quoteService: quoteService,
		conf:         conf,
	}
}

// TradeInput 新成交的请求体，金额字段用字符串承载十进制数
type TradeInput struct {
	Kind              string `json:"kind" validate:"required"`
	Contracts         int64  `json:"contracts" validate:"required,gt=0"`
	Premium           string `json:"premium" validate:"required"`
	SharesPerContract int64  `json:"shares_per_contract"`
	Fee               string `json:"fee"`
	MarginPercent     string `json:"margin_percent"`
	Notes             string `json:"notes"`
	TradedAt          string `json:"traded_at" validate:"required"`
}

// CreatePositionRequest 建仓请求：持仓与首笔成交原子创建
type CreatePositionRequest struct {
	Symbol      string     `json:"symbol" validate:"required"`
	Direction   string     `json:"direction" validate:"required,oneof=buy sell"`
	OptionType  string     `json:"option_type" validate:"required,oneof=call put"`
	StrikePrice string     `json:"strike_price" validate:"required"`
	ExpiryDate  string     `json:"expiry_date" validate:"required"`
	QuoteSymbol string     `json:"quote_symbol"`
	Tags        []string   `json:"tags"`
	FirstTrade  TradeInput `json:"first_trade" validate:"required"`
}

// UpdateTradeRequest 成交修正请求，类型不可修改
type UpdateTradeRequest struct {
	Contracts         int64  `json:"contracts" validate:"required,gt=0"`
	Premium           string `json:"premium" validate:"required"`
	SharesPerContract int64  `json:"shares_per_contract"`
	Fee               string `json:"fee"`
	MarginPercent     string `json:"margin_percent"`
	Notes             string `json:"notes"`
	TradedAt          string `json:"traded_at" validate:"required"`
}

// PositionDetail 持仓详情：成交历史加上即时重算的盈亏快照
type PositionDetail struct {
	Position       *models.Position `json:"position"`
	Trades         []models.Trade   `json:"trades"`
	CurrentPremium *decimal.Decimal `json:"current_premium,omitempty"`
	PNL            pnl.Snapshot     `json:"pnl"`
}

// PositionSummary 持仓列表项
type PositionSummary struct {
	Position models.Position `json:"position"`
	PNL      pnl.Snapshot    `json:"pnl"`
}

// parseDay 解析日期，接受 RFC3339 或 2006-01-02
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// lock 获取指定键的串行化锁，返回解锁函数
func (s *PositionService) lock(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *PositionService) defaultShares() int64 {
	if s.conf != nil && s.conf.Journal.SharesPerContract > 0 {
		return s.conf.Journal.SharesPerContract
	}
	return pnl.DefaultSharesPerContract
}

// findOwned 按 id 加载持仓并校验归属
func (s *PositionService) findOwned(ctx context.Context, id, userID string) (models.Position, error) {
	position, err := s.positionRepo.FindByIdAndUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return position, xe.ErrNotFound
		}
		return position, err
	}
	return position, nil
}

// buildTrade 把请求体转换为成交记录
func (s *PositionService) buildTrade(positionID string, in TradeInput) (*models.Trade, error) {
	kind := pnl.Kind(strings.ToUpper(strings.TrimSpace(in.Kind)))
	if !kind.Valid() {
		return nil, xe.ErrInvalidParams
	}
	tradedAt, err := parseDay(in.TradedAt)
	if err != nil {
		return nil, xe.ErrInvalidParams
	}
	shares := in.SharesPerContract
	if shares <= 0 {
		shares = s.defaultShares()
	}
	return &models.Trade{
		ID:                ulid.Make().String(),
		PositionID:        positionID,
		Kind:              kind,
		Contracts:         in.Contracts,
		Premium:           nostd.ToDecimal(in.Premium),
		SharesPerContract: shares,
		Fee:               nostd.ToDecimal(in.Fee),
		MarginPercent:     nostd.ToDecimal(in.MarginPercent),
		Notes:             strings.TrimSpace(in.Notes),
		TradedAt:          tradedAt,
		CreatedAt:         time.Now(),
	}, nil
}

// CreatePosition 创建持仓及其首笔成交（原子操作）。
// 同一用户对同一份合约 (标的, 方向, 种类, 行权价, 到期日) 只允许一个持仓。
func (s *PositionService) CreatePosition(ctx context.Context, userID string, req CreatePositionRequest) (*models.Position, error) {
	expiry, err := parseDay(req.ExpiryDate)
	if err != nil {
		return nil, xe.ErrInvalidParams
	}

	position := &models.Position{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Direction:   pnl.Direction(req.Direction),
		OptionType:  models.OptionType(req.OptionType),
		StrikePrice: nostd.ToDecimal(req.StrikePrice),
		ExpiryDate:  expiry,
		Status:      pnl.StatusOpen,
		QuoteSymbol: strings.TrimSpace(req.QuoteSymbol),
		Tags:        req.Tags,
	}

	trade, err := s.buildTrade(position.ID, req.FirstTrade)
	if err != nil {
		return nil, err
	}
	// 首笔成交必然是开仓
	trade.Kind = pnl.KindOpen

	candidate := pnl.Candidate{Kind: trade.Kind, Contracts: trade.Contracts}
	if err := pnl.ValidateTrade(position.State(), nil, candidate); err != nil {
		return nil, err
	}

	// 自然键上的锁防止并发创建同一份合约
	unlock := s.lock(position.CompositeKey())
	defer unlock()

	err = s.Transaction(ctx, func(ctx context.Context) error {
		_, err := s.positionRepo.FindByCompositeKey(ctx, position)
		if err == nil {
			return xe.ErrPositionExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.positionRepo.Create(ctx, position); err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}
		if err := s.tradeRepo.Create(ctx, trade); err != nil {
			return fmt.Errorf("failed to create first trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("position created",
		zap.String("position_id", position.ID),
		zap.String("symbol", position.Symbol),
		zap.String("direction", string(position.Direction)),
		zap.Int64("contracts", trade.Contracts))

	return position, nil
}

// AddTrade 追加一笔成交。先校验后写入，持仓内串行执行。
func (s *PositionService) AddTrade(ctx context.Context, userID, positionID string, in TradeInput) (*models.Trade, error) {
	unlock := s.lock(positionID)
	defer unlock()

	position, err := s.findOwned(ctx, positionID, userID)
	if err != nil {
		return nil, err
	}
	trades, err := s.tradeRepo.FindByPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}

	trade, err := s.buildTrade(positionID, in)
	if err != nil {
		return nil, err
	}

	candidate := pnl.Candidate{Kind: trade.Kind, Contracts: trade.Contracts}
	if err := pnl.ValidateTrade(position.State(), models.ToPNLTrades(trades), candidate); err != nil {
		return nil, err
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.tradeRepo.Create(ctx, trade); err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		// 写入后在完整历史上重算，平仓使净持仓归零时自动关闭持仓
		if trade.Kind.IsClosing() {
			history := append(models.ToPNLTrades(trades), trade.ToPNL())
			if pnl.NetContracts(history) == 0 {
				if err := s.positionRepo.UpdateStatus(ctx, position.ID, pnl.StatusClosed); err != nil {
					return fmt.Errorf("failed to close position: %w", err)
				}
				s.logger.Info("position fully closed",
					zap.String("position_id", position.ID),
					zap.String("symbol", position.Symbol))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return trade, nil
}

// UpdateTrade 修正一笔成交的非类型字段，修正后的整段历史必须仍然自洽
func (s *PositionService) UpdateTrade(ctx context.Context, userID, tradeID string, req UpdateTradeRequest) (*models.Trade, error) {
	existing, err := s.tradeRepo.FindById(ctx, tradeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xe.ErrNotFound
		}
		return nil, err
	}

	unlock := s.lock(existing.PositionID)
	defer unlock()

	position, err := s.findOwned(ctx, existing.PositionID, userID)
	if err != nil {
		return nil, err
	}

	tradedAt, err := parseDay(req.TradedAt)
	if err != nil {
		return nil, xe.ErrInvalidParams
	}

	trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
	if err != nil {
		return nil, err
	}

	var updated *models.Trade
	for i := range trades {
		if trades[i].ID != tradeID {
			continue
		}
		trades[i].Contracts = req.Contracts
		trades[i].Premium = nostd.ToDecimal(req.Premium)
		if req.SharesPerContract > 0 {
			trades[i].SharesPerContract = req.SharesPerContract
		}
		trades[i].Fee = nostd.ToDecimal(req.Fee)
		trades[i].MarginPercent = nostd.ToDecimal(req.MarginPercent)
		trades[i].Notes = strings.TrimSpace(req.Notes)
		trades[i].TradedAt = tradedAt
		updated = &trades[i]
	}
	if updated == nil {
		return nil, xe.ErrNotFound
	}

	if err := pnl.ValidateHistory(models.ToPNLTrades(trades)); err != nil {
		return nil, err
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.tradeRepo.Save(ctx, updated); err != nil {
			return fmt.Errorf("failed to update trade: %w", err)
		}
		return s.reconcileStatus(ctx, &position, models.ToPNLTrades(trades))
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteTrade 删除一笔成交，剩余历史必须仍然自洽
func (s *PositionService) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	existing, err := s.tradeRepo.FindById(ctx, tradeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return xe.ErrNotFound
		}
		return err
	}

	unlock := s.lock(existing.PositionID)
	defer unlock()

	position, err := s.findOwned(ctx, existing.PositionID, userID)
	if err != nil {
		return err
	}

	trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
	if err != nil {
		return err
	}

	remaining := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.ID != tradeID {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == len(trades) {
		return xe.ErrNotFound
	}

	if err := pnl.ValidateHistory(models.ToPNLTrades(remaining)); err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.tradeRepo.DeleteById(ctx, tradeID); err != nil {
			return fmt.Errorf("failed to delete trade: %w", err)
		}
		return s.reconcileStatus(ctx, &position, models.ToPNLTrades(remaining))
	})
}

// reconcileStatus 历史被修正后核对生命周期状态。
// exercised/lapsed/expired 由用户或扫描任务设定，这里不回改。
func (s *PositionService) reconcileStatus(ctx context.Context, position *models.Position, history []pnl.Trade) error {
	net := pnl.NetContracts(history)
	hasClosing := false
	for _, t := range history {
		if t.Kind.IsClosing() {
			hasClosing = true
			break
		}
	}

	switch position.Status {
	case pnl.StatusOpen:
		if net == 0 && hasClosing {
			return s.positionRepo.UpdateStatus(ctx, position.ID, pnl.StatusClosed)
		}
	case pnl.StatusClosed:
		if net > 0 {
			return s.positionRepo.UpdateStatus(ctx, position.ID, pnl.StatusOpen)
		}
	}
	return nil
}

// DeletePosition 删除持仓并级联删除其全部成交
func (s *PositionService) DeletePosition(ctx context.Context, userID, positionID string) error {
	unlock := s.lock(positionID)
	defer unlock()

	position, err := s.findOwned(ctx, positionID, userID)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.tradeRepo.DeleteByPosition(ctx, position.ID); err != nil {
			return fmt.Errorf("failed to delete trades: %w", err)
		}
		if err := s.positionRepo.DeleteById(ctx, position.ID); err != nil {
			return fmt.Errorf("failed to delete position: %w", err)
		}
		return nil
	})
}

// UpdateStatus 用户手工标记行权或作废，不由成交推导
func (s *PositionService) UpdateStatus(ctx context.Context, userID, positionID string, status pnl.Status) error {
	if status != pnl.StatusExercised && status != pnl.StatusLapsed {
		return xe.ErrInvalidStatus
	}

	unlock := s.lock(positionID)
	defer unlock()

	position, err := s.findOwned(ctx, positionID, userID)
	if err != nil {
		return err
	}

	switch position.Status {
	case pnl.StatusOpen, pnl.StatusClosed, pnl.StatusExpired:
		return s.positionRepo.UpdateStatus(ctx, position.ID, status)
	default:
		return xe.ErrInvalidStatus
	}
}

// GetDetail 持仓详情。盈亏快照每次读取时重算；
// 配置了行情代码时带上实时权利金计算未实现盈亏。
func (s *PositionService) GetDetail(ctx context.Context, userID, positionID string) (*PositionDetail, error) {
	position, err := s.findOwned(ctx, positionID, userID)
	if err != nil {
		return nil, err
	}
	trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
	if err != nil {
		return nil, err
	}

	premium := s.quoteService.CurrentPremium(ctx, position.QuoteSymbol)
	snapshot := pnl.ComputePNL(position.Terms(), models.ToPNLTrades(trades), premium)

	return &PositionDetail{
		Position:       &position,
		Trades:         trades,
		CurrentPremium: premium,
		PNL:            snapshot,
	}, nil
}

// ListPositions 用户的全部持仓及快照（列表不取行情，避免每次全量打行情源）
func (s *PositionService) ListPositions(ctx context.Context, userID string) ([]PositionSummary, error) {
	positions, err := s.positionRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]PositionSummary, 0, len(positions))
	for _, position := range positions {
		trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, PositionSummary{
			Position: position,
			PNL:      pnl.ComputePNL(position.Terms(), models.ToPNLTrades(trades), nil),
		})
	}
	return result, nil
}

// GetTrades 持仓的成交列表
func (s *PositionService) GetTrades(ctx context.Context, userID, positionID string) ([]models.Trade, error) {
	position, err := s.findOwned(ctx, positionID, userID)
	if err != nil {
		return nil, err
	}
	return s.tradeRepo.FindByPosition(ctx, position.ID)
}
