package utils

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength 单条聊天消息的最大字符数
const MaxMessageLength = 4096

// 时间格式化（UTC）
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// 验证消息内容：非空白且不超过 MaxMessageLength 个字符
func ValidateMessage(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	return utf8.RuneCountInString(content) <= MaxMessageLength
}
