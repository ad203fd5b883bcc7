package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lokwai/opal/internal/service"
	"github.com/lokwai/opal/internal/xe"
	"github.com/lokwai/opal/pkg/pnl"
	"go.uber.org/zap"
)

// JournalHandler 期权日志HTTP处理器
type JournalHandler struct {
	logger          *zap.Logger
	positionService *service.PositionService
	statsService    *service.StatsService
	reviewService   *service.ReviewService
}

// NewJournalHandler 创建日志处理器
func NewJournalHandler(
	positionService *service.PositionService,
	statsService *service.StatsService,
	reviewService *service.ReviewService,
	logger *zap.Logger,
) *JournalHandler {
	return &JournalHandler{
		logger:          logger,
		positionService: positionService,
		statsService:    statsService,
		reviewService:   reviewService,
	}
}

func currentUserID(c echo.Context) string {
	userID, _ := c.Get("user_id").(string)
	return userID
}

// CreatePosition 建仓
// POST /api/positions
func (h *JournalHandler) CreatePosition(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreatePositionRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	position, err := h.positionService.CreatePosition(ctx, currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, position)
}

// ListPositions 持仓列表
// GET /api/positions
func (h *JournalHandler) ListPositions(c echo.Context) error {
	ctx := c.Request().Context()

	positions, err := h.positionService.ListPositions(ctx, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, positions)
}

// GetPosition 持仓详情（含实时盈亏快照）
// GET /api/positions/:id
func (h *JournalHandler) GetPosition(c echo.Context) error {
	ctx := c.Request().Context()

	detail, err := h.positionService.GetDetail(ctx, currentUserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// DeletePosition 删除持仓及其全部成交
// DELETE /api/positions/:id
func (h *JournalHandler) DeletePosition(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.positionService.DeletePosition(ctx, currentUserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "删除成功",
	})
}

// UpdateStatus 手工标记行权/作废
// PUT /api/positions/:id/status
func (h *JournalHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Status string `json:"status" validate:"required,oneof=exercised lapsed"`
	}
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.positionService.UpdateStatus(ctx, currentUserID(c), c.Param("id"), pnl.Status(req.Status)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "状态更新成功",
	})
}

// AddTrade 追加成交
// POST /api/positions/:id/trades
func (h *JournalHandler) AddTrade(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.TradeInput
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	trade, err := h.positionService.AddTrade(ctx, currentUserID(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trade)
}

// ListTrades 成交历史
// GET /api/positions/:id/trades
func (h *JournalHandler) ListTrades(c echo.Context) error {
	ctx := c.Request().Context()

	trades, err := h.positionService.GetTrades(ctx, currentUserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trades)
}

// UpdateTrade 修正成交
// PUT /api/trades/:id
func (h *JournalHandler) UpdateTrade(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.UpdateTradeRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	trade, err := h.positionService.UpdateTrade(ctx, currentUserID(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trade)
}

// DeleteTrade 删除成交
// DELETE /api/trades/:id
func (h *JournalHandler) DeleteTrade(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.positionService.DeleteTrade(ctx, currentUserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "删除成功",
	})
}

// GetStats 账户统计
// GET /api/stats
func (h *JournalHandler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.statsService.Compute(ctx, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// GenerateReview AI复盘
// GET /api/review
func (h *JournalHandler) GenerateReview(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.reviewService.GenerateReview(ctx, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// RegisterRoutes 注册路由（全部需要认证，中间件由 app 统一挂载）
func (h *JournalHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/positions", h.CreatePosition)
	g.GET("/positions", h.ListPositions)
	g.GET("/positions/:id", h.GetPosition)
	g.DELETE("/positions/:id", h.DeletePosition)
	g.PUT("/positions/:id/status", h.UpdateStatus)

	g.POST("/positions/:id/trades", h.AddTrade)
	g.GET("/positions/:id/trades", h.ListTrades)
	g.PUT("/trades/:id", h.UpdateTrade)
	g.DELETE("/trades/:id", h.DeleteTrade)

	g.GET("/stats", h.GetStats)
	g.GET("/review", h.GenerateReview)
}
