// Package textutil はパーサ群が共有するテキスト処理（エンティティ変換、インターン、日付解析、ハッシュ）を提供する。
// 公開しているテーブルはすべてパッケージ初期化時に構築され、以後は読み取り専用である。
package textutil

import (
	"strings"

	"golang.org/x/net/html"
)

// requiredEntityReplacer は出力時に必須となる3文字だけを置換する。
var requiredEntityReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// DecodeEntities は名前付き・数値文字参照をすべて展開する。
// 未知のエンティティはそのまま残す。
func DecodeEntities(s string) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	return html.UnescapeString(s)
}

// EncodeRequiredEntities は "<" ">" "&" のみをエスケープする。
// 引用符はエスケープしない。
func EncodeRequiredEntities(s string) string {
	if strings.IndexAny(s, "&<>") < 0 {
		return s
	}
	return requiredEntityReplacer.Replace(s)
}
