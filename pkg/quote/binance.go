package quote

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceProvider 通过 Binance 现货行情取加密货币标的的最新价格
type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider 创建 Binance 行情源
func NewBinanceProvider(apiKey, secretKey, proxyURL string) *BinanceProvider {
	var client *binance.Client
	if proxyURL != "" {
		client = binance.NewProxiedClient(apiKey, secretKey, proxyURL)
	} else {
		client = binance.NewClient(apiKey, secretKey)
	}
	return &BinanceProvider{client: client}
}

var _ Provider = (*BinanceProvider)(nil)

// GetPremium 获取最新成交价
func (p *BinanceProvider) GetPremium(ctx context.Context, code string) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(code).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price for %s: %w", code, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, ErrNoQuote
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q for %s: %w", prices[0].Price, code, err)
	}
	return price, nil
}
