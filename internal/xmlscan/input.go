package xmlscan

import (
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// controlStripper はXMLで使用できないASCII制御文字をバイト単位で取り除く。
// 非ASCIIバイトには触れないため、文字コード変換前のストリームにも適用できる。
type controlStripper struct {
	transform.NopResetter
}

func (controlStripper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			nSrc++
			continue
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// newInputReader は生の入力から不正な制御文字を除去するReaderを返す。
func newInputReader(r io.Reader) io.Reader {
	return transform.NewReader(r, controlStripper{})
}

// illegalXMLRune はXML 1.0の文字範囲外のruneを判定する。
var illegalXMLRune = runes.Predicate(func(r rune) bool {
	return !(r == 0x09 ||
		r == 0x0A ||
		r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF)
})

// charsetReader はXML宣言のencodingに従ってUTF-8へ変換し、変換後の不正文字を取り除く。
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	conv, err := charset.NewReaderLabel(label, input)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(conv, runes.Remove(illegalXMLRune)), nil
}
