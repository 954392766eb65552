package domain

import (
	"fmt"
	"strings"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL" // 看涨期权
	OptionTypePut  OptionType = "PUT"  // 看跌期权
)

// ParseOptionType 解析期权类型，大小写不敏感。
func ParseOptionType(s string) (OptionType, error) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(s))) {
	case OptionTypeCall:
		return OptionTypeCall, nil
	case OptionTypePut:
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOptionType, s)
	}
}

// IsCall 是否为看涨期权
func (t OptionType) IsCall() bool { return t == OptionTypeCall }

// Payoff 按期权类型计算即时行权收益
func (t OptionType) Payoff(s, k float64) float64 {
	return Payoff(s, k, t.IsCall())
}

// Payoff 即时行权收益：看涨 max(S-K, 0)，看跌 max(K-S, 0)。
func Payoff(s, k float64, isCall bool) float64 {
	if isCall {
		return max(s-k, 0)
	}
	return max(k-s, 0)
}
