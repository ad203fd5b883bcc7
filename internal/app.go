package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/handler"
	"github.com/lokwai/opal/internal/middleware"
	"github.com/lokwai/opal/internal/models"
	"github.com/lokwai/opal/internal/service"
	"github.com/lokwai/opal/internal/telegram"
	"github.com/lokwai/opal/pkg/nostd"
	"github.com/lokwai/opal/pkg/pnl"
	"github.com/lokwai/opal/web"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

func Run(configPath string) error {
	app := NewOpalApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewOpalApp() orz.Application {
	return &OpalApp{}
}

var _ orz.Application = (*OpalApp)(nil)

type AppComponents struct {
	AuthHandler    *handler.AuthHandler
	SetupHandler   *handler.SetupHandler
	JournalHandler *handler.JournalHandler

	AuthService     *service.AuthService
	QuoteService    *service.QuoteService
	PositionService *service.PositionService
	StatsService    *service.StatsService
	ReviewService   *service.ReviewService
	SweepService    *service.SweepService

	Telegram *telegram.Telegram
}

type OpalApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *OpalApp) GetComponents() *AppComponents {
	return r.components
}

func (r *OpalApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.User{}, models.Position{}, models.Trade{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(echomiddleware.Gzip())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		Skipper:      echomiddleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(echomiddleware.RecoverWithConfig(echomiddleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	e.Use(echomiddleware.StaticWithConfig(echomiddleware.StaticConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().RequestURI
			if strings.HasPrefix(path, "/api") {
				return true
			}
			return false
		},
		Root:       "",
		Index:      "index.html",
		HTML5:      true,
		Browse:     false,
		IgnoreBase: false,
		Filesystem: http.FS(web.Assets()),
	}))

	api := e.Group("/api")
	{
		r.components.SetupHandler.RegisterRoutes(api)
		r.components.AuthHandler.RegisterRoutes(api)

		protected := api.Group("", middleware.JWTAuth(middleware.JWTAuthConfig{
			AuthService: r.components.AuthService,
			Logger:      logger,
		}))
		r.components.AuthHandler.RegisterProtectedRoutes(protected.Group("/auth"))
		r.components.JournalHandler.RegisterRoutes(protected)
	}

	return nil
}

func (r *OpalApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Opal Options Journal Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if err := components.SweepService.Start(); err != nil {
		return fmt.Errorf("failed to start sweep service: %w", err)
	}

	if components.Telegram != nil {
		r.registerBotCommands(logger)
		components.Telegram.Start()
		logger.Info("telegram bot started")
	}

	return nil
}

// registerBotCommands 机器人查询命令。单用户部署，命令固定查日志主人的数据。
func (r *OpalApp) registerBotCommands(logger *zap.Logger) {
	c := r.components

	c.Telegram.Handle("/stats", func(tc tele.Context) error {
		ctx := context.Background()
		userID, err := c.AuthService.OwnerID(ctx)
		if err != nil {
			return tc.Send("尚未完成初始化设置")
		}
		stats, err := c.StatsService.Compute(ctx, userID)
		if err != nil {
			logger.Warn("bot stats failed", zap.Error(err))
			return tc.Send("统计失败，请稍后再试")
		}
		return tc.Send(fmt.Sprintf("已了结 %d 笔，胜 %d 负 %d，胜率 %s%%\n累计净盈亏 %s，手续费 %s",
			stats.SettledCount, stats.WinCount, stats.LossCount,
			stats.WinRate.String(), stats.TotalNetPNL.String(), stats.TotalFees.String()))
	})

	c.Telegram.Handle("/positions", func(tc tele.Context) error {
		ctx := context.Background()
		userID, err := c.AuthService.OwnerID(ctx)
		if err != nil {
			return tc.Send("尚未完成初始化设置")
		}
		positions, err := c.PositionService.ListPositions(ctx, userID)
		if err != nil {
			logger.Warn("bot positions failed", zap.Error(err))
			return tc.Send("查询失败，请稍后再试")
		}
		var sb strings.Builder
		for _, p := range positions {
			if p.Position.Status != pnl.StatusOpen {
				continue
			}
			sb.WriteString(fmt.Sprintf("%s %s %s 行权价 %s，净持仓 %d 张，均价 %s\n",
				p.Position.Symbol, p.Position.Direction, p.Position.OptionType,
				p.Position.StrikePrice.String(), p.PNL.NetContracts, p.PNL.AvgEntryPremium.String()))
		}
		if sb.Len() == 0 {
			return tc.Send("当前没有未平仓持仓")
		}
		return tc.Send(sb.String())
	})
}
