package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-orz/orz"
	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/internal/repo"
	"github.com/lokwai/opal/internal/telegram"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSweepCron = "30 16 * * *"

// SweepService 到期扫描调度器。
// 每天收盘后把已过到期日仍是 open 的持仓标记为 expired，并推送通知。
type SweepService struct {
	logger *zap.Logger
	conf   *config.Config

	*orz.Service
	positionRepo *repo.PositionRepo
	tradeRepo    *repo.TradeRepo
	notifier     *telegram.Telegram

	isRunning bool
	cron      *cron.Cron
}

func NewSweepService(db *gorm.DB, conf *config.Config, notifier *telegram.Telegram, logger *zap.Logger) *SweepService {
	return &SweepService{
		logger:       logger,
		conf:         conf,
		Service:      orz.NewService(db),
		positionRepo: repo.NewPositionRepo(db),
		tradeRepo:    repo.NewTradeRepo(db),
		notifier:     notifier,
	}
}

// Start 启动定时扫描
func (s *SweepService) Start() error {
	if s.isRunning {
		return fmt.Errorf("sweep service is already running")
	}

	cronExpr := s.conf.Journal.SweepCron
	if cronExpr == "" {
		cronExpr = defaultSweepCron
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(cronExpr, func() {
		if _, err := s.SweepExpired(context.Background(), time.Now()); err != nil {
			s.logger.Error("expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("sweep service started", zap.String("cron_expression", cronExpr))
	return nil
}

// Stop 停止定时扫描，等待进行中的任务完成
func (s *SweepService) Stop() {
	if !s.isRunning {
		return
	}
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.isRunning = false
	s.logger.Info("sweep service stopped")
}

// SweepExpired 扫描一次：到期日早于 now 所在自然日的 open 持仓全部标记为 expired。
// 到期当天不算过期，持仓当天仍可操作。
func (s *SweepService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	positions, err := s.positionRepo.FindOpenExpiredBefore(ctx, day)
	if err != nil {
		return 0, err
	}
	if len(positions) == 0 {
		return 0, nil
	}

	var swept int
	for _, position := range positions {
		if err := s.positionRepo.UpdateStatus(ctx, position.ID, pnl.StatusExpired); err != nil {
			s.logger.Error("failed to mark position expired",
				zap.String("position_id", position.ID), zap.Error(err))
			continue
		}
		swept++
		s.logger.Info("position expired",
			zap.String("position_id", position.ID),
			zap.String("symbol", position.Symbol),
			zap.Time("expiry_date", position.ExpiryDate))

		s.notifyExpired(ctx, position)
	}

	s.logger.Info("expiry sweep completed", zap.Int("swept", swept))
	return swept, nil
}

func (s *SweepService) notifyExpired(ctx context.Context, position models.Position) {
	if s.notifier == nil || s.conf.Telegram.ChatID == "" {
		return
	}

	trades, err := s.tradeRepo.FindByPosition(ctx, position.ID)
	if err != nil {
		s.logger.Warn("failed to load trades for notification", zap.Error(err))
		return
	}
	snapshot := pnl.ComputePNL(position.Terms(), models.ToPNLTrades(trades), nil)

	msg := fmt.Sprintf("⏰ *期权到期*\n标的: %s\n方向: %s %s\n行权价: %s\n未平张数: %d\n已实现盈亏: %s",
		telegram.EscapeMarkdown(position.Symbol),
		position.Direction, position.OptionType,
		position.StrikePrice.String(),
		snapshot.NetContracts,
		snapshot.RealizedPNL.String())

	if err := s.notifier.Notify(s.conf.Telegram.ChatID, msg); err != nil {
		s.logger.Warn("failed to send expiry notification", zap.Error(err))
	}
}
