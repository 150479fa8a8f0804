package collector

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// 零宽字符、双向控制符等格式字符,以及注册商标类符号
	stripFormat = runes.Remove(runes.Predicate(func(r rune) bool {
		return unicode.Is(unicode.Cf, r) || r == '®' || r == '™' || r == '©'
	}))
	stripControl = runes.Remove(runes.In(unicode.Cc))

	invalidName = regexp.MustCompile(`(?i)^(\d+\s*(membros|members)|ic-close|search-refreshed|default-contact)$`)
	phoneLike   = regexp.MustCompile(`^\+?\d{10,}$`)
)

// 界面上的固定文案,不能当作成员名
var uiLabels = []string{
	"admin", "admin do grupo", "você", "you", "online", "offline",
	"visto por último", "last seen", "pesquisar", "search",
	"membros", "members", "participantes", "adicionar", "add",
	"sair", "exit", "ver tudo", "see all",
}

// NormalizeName 去除不可见格式字符和控制字符,合并空白,并做 NFC 规范化
func NormalizeName(s string) string {
	out, _, err := transform.String(stripFormat, s)
	if err != nil {
		out = s
	}
	out = strings.Join(strings.Fields(out), " ")
	if cleaned, _, err := transform.String(transform.Chain(stripControl, norm.NFC), out); err == nil {
		out = cleaned
	}
	return strings.TrimSpace(out)
}

// SanitizePhone 只保留数字
func SanitizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LooksLikePhone 判断一段文本是否是电话号码(去掉空格、连字符和括号后至少 10 位数字)
func LooksLikePhone(s string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	return phoneLike.MatchString(cleaned)
}

// IsUILabel 文本等于界面文案,或以 "文案 + 空格" 开头
func IsUILabel(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, label := range uiLabels {
		if lower == label || strings.HasPrefix(lower, label+" ") {
			return true
		}
	}
	return false
}

// ValidName 对已规范化的名字做校验
func ValidName(name string) bool {
	n := len([]rune(name))
	if n < 2 || n > 200 {
		return false
	}
	if invalidName.MatchString(name) {
		return false
	}
	return !IsUILabel(name)
}
