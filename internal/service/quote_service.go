package service

import (
	"context"
	"sync"
	"time"

	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/pkg/quote"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultQuoteTTL = 30 * time.Second

// QuoteService 实时权利金查询，带短暂缓存与并发合并。
// 行情是盈亏展示的可选输入：拿不到报价时返回 nil，由引擎降级处理。
type QuoteService struct {
	logger   *zap.Logger
	provider quote.Provider
	ttl      time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	premium   decimal.Decimal
	fetchedAt time.Time
}

// NewQuoteService 创建行情服务，provider 可以为 nil（未配置行情源）
func NewQuoteService(logger *zap.Logger, provider quote.Provider, conf *config.Config) *QuoteService {
	ttl := defaultQuoteTTL
	if conf.Quote.CacheTTL > 0 {
		ttl = time.Duration(conf.Quote.CacheTTL) * time.Second
	}
	return &QuoteService{
		logger:   logger,
		provider: provider,
		ttl:      ttl,
		cache:    make(map[string]cachedQuote),
	}
}

// CurrentPremium 获取当前权利金，行情不可用时返回 nil 而不是错误
func (s *QuoteService) CurrentPremium(ctx context.Context, code string) *decimal.Decimal {
	if code == "" || s.provider == nil {
		return nil
	}

	s.mu.RLock()
	cached, ok := s.cache[code]
	s.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < s.ttl {
		premium := cached.premium
		return &premium
	}

	// 同一代码的并发请求只打一次行情源
	v, err, _ := s.group.Do(code, func() (interface{}, error) {
		return s.provider.GetPremium(ctx, code)
	})
	if err != nil {
		s.logger.Warn("quote lookup failed, unrealized pnl degrades to zero",
			zap.String("code", code),
			zap.Error(err))
		return nil
	}

	premium := v.(decimal.Decimal)

	s.mu.Lock()
	s.cache[code] = cachedQuote{premium: premium, fetchedAt: time.Now()}
	s.mu.Unlock()

	return &premium
}
