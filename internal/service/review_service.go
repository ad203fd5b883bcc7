package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/xe"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
)

const reviewSystemInstructions = `你是一位经验丰富的期权交易教练。
用户会提供自己的交易统计和当前持仓，请给出简明的复盘意见：
1. 指出交易记录中体现的优点和问题（胜率、盈亏比、持有期）。
2. 点评当前未平仓持仓的风险敞口。
3. 给出 2-3 条可执行的改进建议。
不要给出具体的买卖指令，控制在 300 字以内。`

const reviewPromptTemplate = `## 账户统计

- 历史持仓总数：{{total_positions}}（未平仓 {{open_positions}}）
- 已了结持仓：{{settled_count}}，胜 {{win_count}} 负 {{loss_count}}，胜率 {{win_rate}}%
- 累计已实现盈亏：{{total_realized_pnl}}
- 累计手续费：{{total_fees}}
- 累计净盈亏：{{total_net_pnl}}
- 平均持有天数：{{avg_holding_days}}

## 当前持仓

{{open_position_lines}}

请根据以上数据做一次交易复盘。`

// ReviewService 调用大模型对交易记录做复盘点评。
// 未配置 LLM 时服务仍可启动，调用时返回明确错误。
type ReviewService struct {
	logger *zap.Logger
	conf   *config.Config

	client          *openai.Client
	statsService    *StatsService
	positionService *PositionService
}

func NewReviewService(conf *config.Config, client *openai.Client, statsService *StatsService, positionService *PositionService, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		logger:          logger,
		conf:            conf,
		client:          client,
		statsService:    statsService,
		positionService: positionService,
	}
}

// ReviewResult 复盘结果
type ReviewResult struct {
	Review           string `json:"review"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// GenerateReview 汇总统计和持仓，生成一次复盘点评
func (s *ReviewService) GenerateReview(ctx context.Context, userID string) (*ReviewResult, error) {
	if s.client == nil || !s.conf.LLM.Enabled {
		return nil, xe.ErrReviewNotReady
	}

	stats, err := s.statsService.Compute(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.positionService.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := s.buildPrompt(stats, positions)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.conf.LLM.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(reviewSystemInstructions),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call LLM: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	s.logger.Info("trade review generated",
		zap.String("user_id", userID),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return &ReviewResult{
		Review:           resp.Choices[0].Message.Content,
		Model:            s.conf.LLM.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (s *ReviewService) buildPrompt(stats *AccountStats, positions []PositionSummary) string {
	var lines strings.Builder
	for _, p := range positions {
		if p.Position.Status != pnl.StatusOpen {
			continue
		}
		lines.WriteString(fmt.Sprintf("- %s %s %s 行权价 %s 到期 %s：净持仓 %d 张，均价 %s，已实现 %s\n",
			p.Position.Symbol,
			p.Position.Direction,
			p.Position.OptionType,
			p.Position.StrikePrice.String(),
			p.Position.ExpiryDate.Format("2006-01-02"),
			p.PNL.NetContracts,
			p.PNL.AvgEntryPremium.String(),
			p.PNL.RealizedPNL.String()))
	}
	if lines.Len() == 0 {
		lines.WriteString("当前没有未平仓持仓。\n")
	}

	tmpl := fasttemplate.New(reviewPromptTemplate, "{{", "}}")
	return tmpl.ExecuteString(map[string]interface{}{
		"total_positions":     fmt.Sprintf("%d", stats.TotalPositions),
		"open_positions":      fmt.Sprintf("%d", stats.OpenPositions),
		"settled_count":       fmt.Sprintf("%d", stats.SettledCount),
		"win_count":           fmt.Sprintf("%d", stats.WinCount),
		"loss_count":          fmt.Sprintf("%d", stats.LossCount),
		"win_rate":            stats.WinRate.String(),
		"total_realized_pnl":  stats.TotalRealizedPNL.String(),
		"total_fees":          stats.TotalFees.String(),
		"total_net_pnl":       stats.TotalNetPNL.String(),
		"avg_holding_days":    stats.AvgHoldingDays.String(),
		"open_position_lines": lines.String(),
	})
}
