package utils

import "github.com/shopspring/decimal"

// 金额统一保留两位小数
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney 四舍五入（远离零）到两位小数
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Percent 计算 amount * pct / 100 并按金额精度舍入
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}

// ToMinorUnits 转换为最小货币单位（kobo）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return RoundMoney(amount).Mul(hundred).IntPart()
}

// FromMinorUnits 最小货币单位转换为金额
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// FormatMoney 格式化为两位小数字符串
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
