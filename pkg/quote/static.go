package quote

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticProvider 静态行情源，报价由使用方手工维护。
// 用于没有配置外部行情的部署，以及测试。
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		prices: make(map[string]decimal.Decimal),
	}
}

var _ Provider = (*StaticProvider)(nil)

// Set 写入一个报价
func (p *StaticProvider) Set(code string, premium decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[code] = premium
}

// GetPremium 读取报价，没有时返回 ErrNoQuote
func (p *StaticProvider) GetPremium(_ context.Context, code string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	premium, ok := p.prices[code]
	if !ok {
		return decimal.Zero, ErrNoQuote
	}
	return premium, nil
}
