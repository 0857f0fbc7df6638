package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NormalizeCurrency 校验 ISO-4217 货币代码并返回大写形式
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}

// CurrencyScale 返回货币最小单位对应的小数位数
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// NormalizeAmount 校验金额为正且不超过货币精度
func NormalizeAmount(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	scale := CurrencyScale(code)
	if !amount.Equal(amount.Truncate(scale)) {
		return decimal.Zero, ErrAmountPrecision
	}
	return amount.Round(scale), nil
}
