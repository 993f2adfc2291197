package textutil

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// CollapseWhitespace は前後の空白を除去し、連続する空白を1つのスペースにまとめる。
func CollapseWhitespace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !needsCollapse(s) {
		return s
	}
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func needsCollapse(s string) bool {
	prevSpace := false
	for _, r := range s {
		space := unicode.IsSpace(r)
		if space && (prevSpace || r != ' ') {
			return true
		}
		prevSpace = space
	}
	return false
}

// ResolveURL はrefをbaseに対して解決した絶対URLを返す。
// 解決できない場合は空文字を返す。
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refU, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refU.IsAbs() {
		return refU.String()
	}
	baseU, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !baseU.IsAbs() {
		return ""
	}
	return baseU.ResolveReference(refU).String()
}

// ParseInt64 は前後の空白を許容して整数を解析する。解析できなければ0を返す。
func ParseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
