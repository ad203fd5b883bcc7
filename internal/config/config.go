package config

type Config struct {
	Auth     AuthConf     `json:"auth"`
	Journal  JournalConf  `json:"journal"`
	Quote    QuoteConf    `json:"quote"`
	Telegram TelegramConf `json:"telegram"`
	LLM      LlmConf      `json:"llm"`
}

type AuthConf struct {
	JWTSecret string `json:"jwt_secret"` // 为空时随机生成，重启后已签发的token失效
}

type JournalConf struct {
	SharesPerContract int64  `json:"shares_per_contract"` // 每张合约股数，默认500（港股一手）
	SweepCron         string `json:"sweep_cron"`          // 过期扫描的cron表达式，默认每天 16:30
}

type QuoteConf struct {
	Provider string `json:"provider"`  // 行情源：binance / static，空表示不启用
	APIKey   string `json:"api_key"`
	Secret   string `json:"secret"`
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
	CacheTTL int    `json:"cache_ttl"` // 报价缓存秒数，默认30
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type LlmConf struct {
	Enabled  bool   `json:"enabled"`
	BaseURL  string `json:"base_url"`  // LLM API基础URL
	APIKey   string `json:"api_key"`   // LLM API密钥
	Model    string `json:"model"`     // 模型名称
	ProxyURL string `json:"proxy_url"` // 代理地址
}
