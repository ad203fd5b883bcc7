//go:build wireinject
// +build wireinject

package internal

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/internal/handler"
	"github.com/lokwai/opal/internal/service"
	"github.com/lokwai/opal/internal/telegram"
	"github.com/lokwai/opal/pkg/quote"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	telegramHTTPTimeout     = 10 * time.Second
	logFieldConfiguredModel = "model"
)

var (
	handlerSet = wire.NewSet(
		handler.NewAuthHandler,
		handler.NewSetupHandler,
		handler.NewJournalHandler,
	)

	journalSet = wire.NewSet(
		provideQuoteProvider,
		provideOpenAIClient,
		provideAuthService,
		service.NewQuoteService,
		service.NewPositionService,
		service.NewStatsService,
		service.NewSweepService,
		service.NewReviewService,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		journalSet,
		provideTelegram,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}

// provideAuthService provides auth service with configured JWT secret
func provideAuthService(logger *zap.Logger, db *gorm.DB, conf *config.Config) *service.AuthService {
	return service.NewAuthService(logger, db, conf.Auth.JWTSecret)
}

// provideTelegram provides telegram instance
func provideTelegram(logger *zap.Logger, conf *config.Config) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient := &http.Client{Timeout: telegramHTTPTimeout}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		Client: httpClient,
	})
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

// provideQuoteProvider provides quote source per configuration
func provideQuoteProvider(conf *config.Config, logger *zap.Logger) quote.Provider {
	switch conf.Quote.Provider {
	case "binance":
		logger.Info("quote provider initialized",
			zap.String("provider", "binance"),
			zap.Bool("has_credentials", conf.Quote.APIKey != ""))
		return quote.NewBinanceProvider(conf.Quote.APIKey, conf.Quote.Secret, conf.Quote.ProxyURL)
	case "static":
		logger.Info("quote provider initialized", zap.String("provider", "static"))
		return quote.NewStaticProvider()
	default:
		logger.Info("quote provider not configured, unrealized pnl disabled")
		return nil
	}
}

// provideOpenAIClient provides OpenAI client
func provideOpenAIClient(conf *config.Config, logger *zap.Logger) *openai.Client {
	if !conf.LLM.Enabled {
		return nil
	}

	var options = []option.RequestOption{
		option.WithBaseURL(conf.LLM.BaseURL),
		option.WithAPIKey(conf.LLM.APIKey),
	}
	if conf.LLM.ProxyURL != "" {
		u, err := url.Parse(conf.LLM.ProxyURL)
		if err != nil {
			logger.Fatal("failed to parse proxy URL", zap.Error(err))
		}
		httpClient := &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyURL(u),
			},
		}
		options = append(options, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(options...)

	logger.Info("OpenAI client initialized",
		zap.String(logFieldConfiguredModel, conf.LLM.Model))
	return &client
}
