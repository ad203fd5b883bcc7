package nostd

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ToDecimal 宽松的数值转换：空值或无法解析的输入一律得到零值。
// 盈亏计算是尽力而为的展示路径，缺字段不应该让整个快照失败。
func ToDecimal(v any) decimal.Decimal {
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
