package textutil

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// zoneOffsets は英字タイムゾーン表記からUTCオフセット（秒）への対応表。
// フィードで実際に見かける誤記・非標準表記も含む。
var zoneOffsets = map[string]int{
	"Z": 0, "UT": 0, "UTC": 0, "GMT": 0, "WET": 0, "ETC": 0, "UCT": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600, "EDST": -4 * 3600, "EST5EDT": -5 * 3600, "EASTERN": -5 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600, "CST6CDT": -6 * 3600, "CENTRAL": -6 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600, "MST7MDT": -7 * 3600, "MOUNTAIN": -7 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600, "PST8PDT": -8 * 3600, "PACIFIC": -8 * 3600, "PT": -8 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600, "HST": -10 * 3600, "HAST": -10 * 3600,
	"AST": -4 * 3600, "ADT": -3 * 3600, "NST": -(3*3600 + 1800), "NDT": -(2*3600 + 1800),
	"BST": 1 * 3600, "IST": 5*3600 + 1800, "WEST": 1 * 3600,
	"CET": 1 * 3600, "MET": 1 * 3600, "MEZ": 1 * 3600,
	"CEST": 2 * 3600, "CEDT": 2 * 3600, "MEST": 2 * 3600, "MESZ": 2 * 3600, "CETDST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600, "MSK": 3 * 3600, "MSD": 4 * 3600,
	"SGT": 8 * 3600, "HKT": 8 * 3600, "AWST": 8 * 3600, "WST": 8 * 3600, "CCT": 8 * 3600,
	"JST": 9 * 3600, "KST": 9 * 3600,
	"ACST": 9*3600 + 1800, "ACDT": 10*3600 + 1800,
	"AEST": 10 * 3600, "AEDT": 11 * 3600, "EAST": 10 * 3600,
	"NZST": 12 * 3600, "NZDT": 13 * 3600,
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdayPrefixes = map[string]bool{
	"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true,
}

// ParseDate はフィードに現れる日付文字列を寛容に解析し、UTCの時刻を返す。
// RFC 822/1123、ISO 8601（W3C-DTF）と、タイムゾーン欠落・2桁年・余分な空白・
// 誤記されたタイムゾーン名などの非標準表記を受け付ける。
// 解釈できない場合はnilを返す。
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if looksISO(s) {
		if t, ok := parseISO(s); ok {
			return &t
		}
	}

	t, ok, tryFallback := parseTextual(s)
	if ok {
		return &t
	}
	if !tryFallback {
		// 未知の単語（多くは不正なタイムゾーン）を含む文字列は推測しない
		return nil
	}

	// 数字主体の表記（2006/01/02 15:04 など）は汎用パーサに任せる
	if fallback, err := dateparse.ParseIn(s, time.UTC); err == nil {
		u := fallback.UTC()
		if validYear(u.Year()) {
			return &u
		}
	}
	return nil
}

func validYear(y int) bool {
	return y >= 1 && y <= 9999
}

// looksISO は "YYYY-" で始まるかを判定する。
func looksISO(s string) bool {
	if len(s) < 5 {
		return false
	}
	for i := 0; i < 4; i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s[4] == '-'
}

// parseISO はISO 8601 / W3C-DTFの部分日付・小数秒・各種オフセット表記を解析する。
func parseISO(s string) (time.Time, bool) {
	p := &cursor{s: s}
	year, ok := p.digits(4, 4)
	if !ok {
		return time.Time{}, false
	}
	month, day := 1, 1
	if p.accept('-') {
		if month, ok = p.digits(1, 2); !ok {
			return time.Time{}, false
		}
		if p.accept('-') {
			if day, ok = p.digits(1, 2); !ok {
				return time.Time{}, false
			}
		}
	}

	hour, minute, sec, nsec := 0, 0, 0, 0
	loc := time.UTC
	rest := p.rest()
	if rest != "" {
		if rest[0] != 'T' && rest[0] != 't' && rest[0] != ' ' {
			return time.Time{}, false
		}
		p.pos++
		p.skipSpaces()
		if hour, ok = p.digits(1, 2); !ok {
			return time.Time{}, false
		}
		if !p.accept(':') {
			return time.Time{}, false
		}
		if minute, ok = p.digits(2, 2); !ok {
			return time.Time{}, false
		}
		if p.accept(':') {
			if sec, ok = p.digits(2, 2); !ok {
				return time.Time{}, false
			}
			if p.accept('.') || p.accept(',') {
				nsec, ok = p.fraction()
				if !ok {
					return time.Time{}, false
				}
			}
		}
		zone := strings.TrimSpace(p.rest())
		if zone != "" {
			l, ok := zoneLocation(zone)
			if !ok {
				return time.Time{}, false
			}
			loc = l
		}
	}

	return buildTime(year, month, day, hour, minute, sec, nsec, loc)
}

// parseTextual はRFC 822系の単語区切り表記を解析する。
// 3番目の戻り値は、汎用パーサに委ねてよい数字主体のトークンで失敗したかどうか。
// 不正なタイムゾーンや未知の単語を含む場合はfalseとなり、推測は行わない。
func parseTextual(s string) (t time.Time, ok bool, tryFallback bool) {
	var (
		year, day  = -1, -1
		month      time.Month
		hour       int
		minute     int
		sec, nsec  int
		timeSeen   bool
		zoneSeen   bool
		yearDigits int
		loc        = time.UTC
	)

	for _, tok := range tokenizeDate(s) {
		lower := strings.ToLower(tok)
		switch {
		case strings.Contains(tok, ":") && isDigit(tok[0]) && !timeSeen:
			h, m, sc, ns, good := parseClock(tok)
			if !good {
				return time.Time{}, false, false
			}
			hour, minute, sec, nsec, timeSeen = h, m, sc, ns, true

		case tok[0] == '+' || tok[0] == '-':
			l, good := zoneLocation(tok)
			if !good || zoneSeen {
				return time.Time{}, false, false
			}
			loc, zoneSeen = l, true

		case isAllDigits(tok):
			n, _ := strconv.Atoi(tok)
			switch {
			case len(tok) >= 3:
				if year >= 0 {
					return time.Time{}, false, true
				}
				year, yearDigits = n, len(tok)
			case day < 0 && n >= 1 && n <= 31:
				day = n
			case year < 0:
				year, yearDigits = n, len(tok)
			default:
				return time.Time{}, false, true
			}

		case isAlpha(tok):
			if m, found := monthWord(lower); found && month == 0 {
				month = m
				continue
			}
			if isWeekdayWord(lower) || lower == "at" {
				continue
			}
			if timeSeen && (lower == "am" || lower == "pm") {
				if lower == "pm" && hour < 12 {
					hour += 12
				} else if lower == "am" && hour == 12 {
					hour = 0
				}
				continue
			}
			l, good := zoneLocation(tok)
			if !good || zoneSeen {
				return time.Time{}, false, false
			}
			loc, zoneSeen = l, true

		default:
			// "GMT+0900" のような英字とオフセットの連結
			if l, good := zoneLocation(tok); good && !zoneSeen {
				loc, zoneSeen = l, true
				continue
			}
			return time.Time{}, false, !hasAlpha(tok)
		}
	}

	if month == 0 || day < 0 || year < 0 {
		return time.Time{}, false, false
	}
	if yearDigits <= 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	t, ok = buildTime(year, int(month), day, hour, minute, sec, nsec, loc)
	return t, ok, false
}

// tokenizeDate は空白とカンマで分割し、"02-Jan-2006" 形式をさらに分解する。
func tokenizeDate(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		if strings.IndexByte(f, '-') > 0 && containsMonthPart(f) {
			for _, part := range strings.Split(f, "-") {
				if part != "" {
					out = append(out, part)
				}
			}
			continue
		}
		// 末尾ピリオド付きの省略形（"Sept."）
		f = strings.TrimSuffix(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsMonthPart(f string) bool {
	for _, part := range strings.Split(f, "-") {
		if _, ok := monthWord(strings.ToLower(part)); ok {
			return true
		}
	}
	return false
}

var fullMonthNames = []string{"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december"}

var fullWeekdayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// monthWord は3文字以上の月名の前方一致（"Sept"、"June" など）を解釈する。
func monthWord(lower string) (time.Month, bool) {
	if len(lower) < 3 || !isAlpha(lower) {
		return 0, false
	}
	m, ok := monthNames[lower[:3]]
	if !ok || !strings.HasPrefix(fullMonthNames[m-1], lower) {
		return 0, false
	}
	return m, true
}

func isWeekdayWord(lower string) bool {
	if len(lower) < 3 || !weekdayPrefixes[lower[:3]] {
		return false
	}
	for _, d := range fullWeekdayNames {
		if strings.HasPrefix(d, lower) {
			return true
		}
	}
	return false
}

// parseClock は "hh:mm[:ss[.frac]]" を解析する。末尾に直結したオフセットは受け付けない。
func parseClock(tok string) (h, m, s, ns int, ok bool) {
	p := &cursor{s: tok}
	if h, ok = p.digits(1, 2); !ok || !p.accept(':') {
		return 0, 0, 0, 0, false
	}
	if m, ok = p.digits(2, 2); !ok {
		return 0, 0, 0, 0, false
	}
	if p.accept(':') {
		if s, ok = p.digits(1, 2); !ok {
			return 0, 0, 0, 0, false
		}
		if p.accept('.') {
			if ns, ok = p.fraction(); !ok {
				return 0, 0, 0, 0, false
			}
		}
	}
	if p.rest() != "" {
		return 0, 0, 0, 0, false
	}
	return h, m, s, ns, true
}

// zoneLocation は "Z"、英字名、"+0900"、"-05:00"、"+09"、"GMT+9" などを固定オフセットに変換する。
func zoneLocation(tok string) (*time.Location, bool) {
	upper := strings.ToUpper(strings.TrimSpace(tok))
	if upper == "" {
		return nil, false
	}
	if off, ok := zoneOffsets[upper]; ok {
		return fixedZone(off), true
	}
	for _, prefix := range []string{"GMT", "UTC", "UT"} {
		if rest, found := strings.CutPrefix(upper, prefix); found && rest != "" && (rest[0] == '+' || rest[0] == '-') {
			upper = rest
			break
		}
	}
	if upper[0] != '+' && upper[0] != '-' {
		return nil, false
	}
	sign := 1
	if upper[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(upper[1:], ":", "")
	if body == "" || len(body) > 4 || !isAllDigits(body) {
		return nil, false
	}
	var hh, mm int
	switch len(body) {
	case 1, 2:
		hh, _ = strconv.Atoi(body)
	case 3:
		hh, _ = strconv.Atoi(body[:1])
		mm, _ = strconv.Atoi(body[1:])
	default:
		hh, _ = strconv.Atoi(body[:2])
		mm, _ = strconv.Atoi(body[2:])
	}
	if hh > 14 || mm > 59 {
		return nil, false
	}
	return fixedZone(sign * (hh*3600 + mm*60)), true
}

func fixedZone(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset)
}

func buildTime(year, month, day, hour, minute, sec, nsec int, loc *time.Location) (time.Time, bool) {
	if !validYear(year) || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if hour > 24 || minute > 59 || sec > 60 {
		return time.Time{}, false
	}
	if hour == 24 {
		if minute != 0 || sec != 0 || nsec != 0 {
			return time.Time{}, false
		}
	}
	if sec == 60 {
		sec = 59
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, loc)
	// 2月30日のような繰り上がりは不正とみなす
	if hour != 24 && t.Day() != day {
		return time.Time{}, false
	}
	return t.UTC(), true
}

type cursor struct {
	s   string
	pos int
}

func (c *cursor) rest() string {
	return c.s[c.pos:]
}

func (c *cursor) accept(b byte) bool {
	if c.pos < len(c.s) && c.s[c.pos] == b {
		c.pos++
		return true
	}
	return false
}

func (c *cursor) skipSpaces() {
	for c.pos < len(c.s) && c.s[c.pos] == ' ' {
		c.pos++
	}
}

// digits はlo桁以上hi桁以下の数字を読む。
func (c *cursor) digits(lo, hi int) (int, bool) {
	start := c.pos
	for c.pos < len(c.s) && c.pos-start < hi && isDigit(c.s[c.pos]) {
		c.pos++
	}
	if c.pos-start < lo {
		return 0, false
	}
	n, err := strconv.Atoi(c.s[start:c.pos])
	return n, err == nil
}

// fraction は小数秒をナノ秒に変換する。9桁を超える部分は切り捨てる。
func (c *cursor) fraction() (int, bool) {
	start := c.pos
	for c.pos < len(c.s) && isDigit(c.s[c.pos]) {
		c.pos++
	}
	frac := c.s[start:c.pos]
	if frac == "" {
		return 0, false
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	n, _ := strconv.Atoi(frac)
	for i := len(frac); i < 9; i++ {
		n *= 10
	}
	return n, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return s != ""
}

func hasAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c >= 'a' && c <= 'z' {
			return true
		}
	}
	return false
}
