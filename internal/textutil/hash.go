package textutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashFieldSeparator はフィールド境界を示す区切り（ASCII Unit Separator）。
// "ab"+"c" と "a"+"bc" が同じハッシュにならないようにする。
const hashFieldSeparator = "\x1f"

// ContentHash は各フィールドを空白正規化したうえで連結し、SHA-256の16進文字列を返す。
// 大文字小文字は区別する。
func ContentHash(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte(hashFieldSeparator))
		}
		h.Write([]byte(CollapseWhitespace(f)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
