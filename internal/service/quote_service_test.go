package service

import (
	"context"
	"testing"

	"github.com/lokwai/opal/internal/config"
	"github.com/lokwai/opal/pkg/quote"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestCurrentPremium(t *testing.T) {
	ctx := context.Background()

	provider := quote.NewStaticProvider()
	provider.Set("TCH260130P50", decimal.RequireFromString("3.45"))

	s := NewQuoteService(zap.NewNop(), provider, &config.Config{})

	premium := s.CurrentPremium(ctx, "TCH260130P50")
	if premium == nil {
		t.Fatal("premium = nil, want value")
	}
	if !premium.Equal(decimal.RequireFromString("3.45")) {
		t.Fatalf("premium = %s, want 3.45", premium)
	}

	// 未知代码降级为 nil
	if got := s.CurrentPremium(ctx, "UNKNOWN"); got != nil {
		t.Fatalf("premium = %v, want nil for unknown code", got)
	}

	// 命中缓存：行情源的值变化在 TTL 内不可见
	provider.Set("TCH260130P50", decimal.RequireFromString("9.99"))
	cached := s.CurrentPremium(ctx, "TCH260130P50")
	if cached == nil || !cached.Equal(decimal.RequireFromString("3.45")) {
		t.Fatalf("premium = %v, want cached 3.45", cached)
	}
}

func TestCurrentPremiumWithoutProvider(t *testing.T) {
	s := NewQuoteService(zap.NewNop(), nil, &config.Config{})
	if got := s.CurrentPremium(context.Background(), "ANY"); got != nil {
		t.Fatalf("premium = %v, want nil without provider", got)
	}
	if got := s.CurrentPremium(context.Background(), ""); got != nil {
		t.Fatalf("premium = %v, want nil for empty code", got)
	}
}
