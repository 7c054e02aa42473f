package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 地址验证相关的错误定义
var (
	ErrInvalidAddress   = errors.New("invalid email address format")
	ErrAddressTooLong   = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// RFC 5322 邮箱地址长度限制
const (
	MaxAddressLength   = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度
)

var (
	// 本地部分：字母数字开头结尾，中间允许 . _ - +
	localPartRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)
)

// ValidateAddress 完整验证别名地址或转发目标地址。
// 调用前先用 NormalizeAddress 标准化，这里不再做大小写处理。
func ValidateAddress(address string) error {
	if len(address) > MaxAddressLength {
		return ErrAddressTooLong
	}

	// 标准库先做基础格式验证
	if _, err := mail.ParseAddress(address); err != nil {
		return ErrInvalidAddress
	}

	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ErrInvalidAddress
	}

	if err := validateLocalPart(parts[0]); err != nil {
		return err
	}
	return validateDomainName(parts[1])
}

// validateLocalPart 验证邮箱本地部分
func validateLocalPart(localPart string) error {
	if localPart == "" {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}

	// 不允许连续的点
	if strings.Contains(localPart, "..") {
		return ErrInvalidLocalPart
	}

	return nil
}

// validateDomainName 验证域名部分
func validateDomainName(name string) error {
	if name == "" {
		return ErrInvalidDomain
	}
	if len(name) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(name) {
		return ErrInvalidDomain
	}

	// 别名必须挂在注册域名下，裸主机名直接拒绝
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return ErrInvalidDomain
	}
	for _, label := range labels {
		if len(label) > 63 {
			return ErrInvalidDomain
		}
	}

	return nil
}
