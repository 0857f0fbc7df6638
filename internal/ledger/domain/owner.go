package domain

import (
	"strings"
	"time"
)

// 客户等级，决定开户策略
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// ValidTier 是否为已知等级
func ValidTier(tier string) bool {
	return tier == TierStandard || tier == TierPremium
}

// Owner 户主资料，供收款人查询使用
type Owner struct {
	ID        string
	Phone     string
	FullName  string
	Tier      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOwner 创建户主，手机号统一为纯数字
func NewOwner(id, phone, fullName, tier string) (*Owner, error) {
	if id == "" {
		return nil, ErrMissingField
	}
	normalized := ""
	if phone != "" {
		p, err := NormalizePhone(phone)
		if err != nil {
			return nil, err
		}
		normalized = p
	}
	if tier == "" {
		tier = TierStandard
	}
	if !ValidTier(tier) {
		return nil, ErrInvalidTier
	}
	return &Owner{
		ID:       id,
		Phone:    normalized,
		FullName: strings.TrimSpace(fullName),
		Tier:     tier,
	}, nil
}

// NormalizePhone 去掉空格、括号、连字符和前导 +，结果为 6-15 位数字
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	n := b.Len()
	if n < 6 || n > 15 {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}
