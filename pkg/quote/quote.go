package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoQuote 行情源没有该代码的报价
var ErrNoQuote = errors.New("no quote available")

// Provider 行情接口，按行情代码返回当前权利金。
// 报价是计算未实现盈亏的可选输入，拿不到时调用方降级为零，不报错。
type Provider interface {
	GetPremium(ctx context.Context, code string) (decimal.Decimal, error)
}
