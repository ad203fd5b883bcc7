package telegram

import (
	"net/http"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

// Settings 机器人连接参数
type Settings struct {
	Token  string
	Client *http.Client
}

// Telegram 期权日志通知机器人：到期提醒推送，附带几个查询命令
type Telegram struct {
	logger   *zap.Logger
	settings Settings
	client   *tele.Bot
}

type Option func(telegram *Telegram)

func NewTelegram(logger *zap.Logger, settings Settings, options ...Option) (*Telegram, error) {

	poller := &tele.LongPoller{Timeout: 10 * time.Second}

	userMiddleware := tele.NewMiddlewarePoller(poller, func(u *tele.Update) bool {

		return true
	})

	client, err := tele.NewBot(tele.Settings{
		ParseMode: tele.ModeMarkdown,
		Token:     settings.Token,
		Poller:    userMiddleware,
		Client:    settings.Client,
	})
	if err != nil {
		return nil, err
	}

	client.Use(middleware.AutoRespond())

	err = client.SetCommands([]tele.Command{
		{Text: "/start", Description: "启动机器人"},
		{Text: "/help", Description: "获取帮助信息"},
		{Text: "/positions", Description: "查看当前持仓"},
		{Text: "/stats", Description: "账户统计"},
	})
	if err != nil {
		return nil, err
	}

	client.Handle("/start", func(c tele.Context) error {
		return c.Send("期权交易日志机器人已就绪，使用 /help 查看命令。")
	})
	client.Handle("/help", func(c tele.Context) error {
		return c.Send("/positions 查看当前持仓\n/stats 账户统计\n到期提醒会自动推送。")
	})

	bot := &Telegram{
		logger:   logger,
		settings: settings,
		client:   client,
	}

	for _, option := range options {
		option(bot)
	}

	return bot, nil
}

// Handle 注册命令处理器，查询类命令由上层注入避免包依赖倒置
func (r *Telegram) Handle(endpoint string, fn tele.HandlerFunc) {
	r.client.Handle(endpoint, fn)
}

func (r *Telegram) Start() {
	go r.client.Start()
}

func (r *Telegram) Stop() {
	r.client.Stop()
}

func (r *Telegram) Notify(chatId, msg string) error {
	_chatId := cast.ToInt(chatId)
	_, err := r.client.Send(tele.ChatID(_chatId), msg, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	return err
}
