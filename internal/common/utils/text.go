package utils

import (
	"regexp"
	"strings"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)
	// 0803xxxxxxx 或 +234803xxxxxxx
	phonePattern = regexp.MustCompile(`^(\+?234|0)[789][01]\d{8}$`)
)

// NormalizeReferralCode 推广码不区分大小写
func NormalizeReferralCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidUsername 推广员用户名兼作推广码：小写字母、数字、下划线，3-30 位
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePhone 校验尼日利亚手机号，忽略空格
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(strings.ReplaceAll(phone, " ", ""))
}

// SafeString 解引用可空字符串
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
