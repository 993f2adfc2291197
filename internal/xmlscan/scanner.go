// Package xmlscan は前方向のみのXMLイベントスキャナを提供する。
// 開始タグ・終了タグ・文字データ・文書終端の4種類のイベントを文書順に生成する。
// DTDの解釈や妥当性検証は行わず、実際のフィードに多い不正なマークアップを寛容に扱う。
package xmlscan

import (
	"encoding/xml"
	"errors"
	"io"
	"iter"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	xpp "github.com/mmcdole/goxpp"
)

// NamespaceXML は xml: プレフィックスに対応する名前空間URI。
const NamespaceXML = "http://www.w3.org/XML/1998/namespace"

// ErrCanceled は Cancel 後に Next を呼んだ場合に返る。
var ErrCanceled = errors.New("xmlscan: canceled")

var (
	errNoRoot    = errors.New("ルート要素がありません")
	errAfterRoot = errors.New("ルート要素の後に要素が続いています")
)

// Kind はイベントの種類。
type Kind uint8

const (
	// StartElement は開始タグ。
	StartElement Kind = iota + 1
	// EndElement は終了タグ。空要素の場合も開始タグの直後に生成される。
	EndElement
	// Characters は空でない文字データ。エンティティは展開済み。
	Characters
	// EndOfDocument は文書の終端。
	EndOfDocument
)

func (k Kind) String() string {
	switch k {
	case StartElement:
		return "StartElement"
	case EndElement:
		return "EndElement"
	case Characters:
		return "Characters"
	case EndOfDocument:
		return "EndOfDocument"
	default:
		return "Unknown"
	}
}

// Attr は要素の属性。
type Attr struct {
	Space string // 名前空間URI（未宣言のプレフィックスはプレフィックスのまま）
	Name  string // ローカル名
	Value string
}

// Event はスキャナが生成するイベント。
// Attrs と Text は次に Next を呼ぶまでの間だけ有効とみなすこと。
type Event struct {
	Kind  Kind
	Name  string // ローカル名
	Space string // 名前空間URI
	Attrs []Attr
	Text  string
	Depth int // ルート要素が1
}

// Attr はローカル名が一致する最初の属性値を返す。名前空間は問わない。
func (e Event) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// AttrNS は名前空間とローカル名が一致する属性値を返す。
func (e Event) AttrNS(space, name string) string {
	for _, a := range e.Attrs {
		if a.Name == name && a.Space == space {
			return a.Value
		}
	}
	return ""
}

// NameInterner は要素名・属性名のインターンを差し替えるためのインターフェース。
type NameInterner interface {
	InternName(name string) string
}

// ValueInterner は属性値のインターンを行うためのインターフェース。
// 設定しない場合、属性値はインターンしない。
type ValueInterner interface {
	InternValue(value string) string
}

// Option はScannerの設定を変更する。
type Option func(*Scanner)

// WithNameInterner は要素名・属性名のインターンに使う実装を指定する。
func WithNameInterner(in NameInterner) Option {
	return func(s *Scanner) {
		if in != nil {
			s.names = in
		}
	}
}

// WithValueInterner は属性値のインターンに使う実装を指定する。
func WithValueInterner(in ValueInterner) Option {
	return func(s *Scanner) {
		s.values = in
	}
}

type defaultNames struct {
	*textutil.Interner
}

func (d defaultNames) InternName(name string) string {
	return d.Intern(name)
}

type openElement struct {
	name  string
	space string
}

type baseEntry struct {
	depth int
	url   *url.URL
}

// Scanner はXML文書1件を走査するプル型のスキャナ。
// 1インスタンスは1文書専用で、並行利用はできない（Cancel のみ別goroutineから呼べる）。
type Scanner struct {
	pp     *xpp.XMLPullParser
	names  NameInterner
	values ValueInterner

	open       []openElement
	bases      []baseEntry
	rootSeen   bool
	rootClosed bool
	done       bool
	err        error
	canceled   atomic.Bool

	storing     bool
	storeDepth  int
	pendingOpen bool // 保存中に出力した開始タグの ">" が未出力
	stored      bool // 保存した文字列が参照可能
	buf         []byte
}

// NewScanner はrから読み込むScannerを生成する。
// XML宣言のencodingに従ってUTF-8へ変換し、XMLとして不正な制御文字は取り除く。
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		pp:    xpp.NewXMLPullParser(newInputReader(r), false, charsetReader),
		names: defaultNames{textutil.NewInterner()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next は次のイベントを返す。
// トークン化に失敗した場合は *model.MalformedInputError を返す。
// ルート要素が閉じた後は残りを読み進め、要素や対応しない終了タグが続く場合は
// *model.MalformedInputError を返す。途中で途切れた末尾は EndOfDocument として扱う。
func (s *Scanner) Next() (Event, error) {
	if s.stored {
		s.buf = s.buf[:0]
		s.stored = false
	}
	if s.err != nil {
		return Event{}, s.err
	}
	if s.done {
		return Event{Kind: EndOfDocument}, nil
	}

	for {
		if s.canceled.Load() {
			s.err = ErrCanceled
			return Event{}, s.err
		}
		if s.rootClosed {
			return s.finish()
		}

		tok, err := s.pp.Next()
		if err != nil {
			s.err = &model.MalformedInputError{Err: err}
			return Event{}, s.err
		}

		switch tok {
		case xpp.EndDocument:
			if !s.rootSeen {
				s.err = &model.MalformedInputError{Err: errNoRoot}
				return Event{}, s.err
			}
			if len(s.open) > 0 {
				s.err = &model.MalformedInputError{Err: io.ErrUnexpectedEOF}
				return Event{}, s.err
			}
			s.done = true
			return Event{Kind: EndOfDocument}, nil

		case xpp.StartTag:
			s.rootSeen = true
			name := s.names.InternName(s.pp.Name)
			s.open = append(s.open, openElement{name: name, space: s.pp.Space})
			depth := len(s.open)
			s.pushBase(depth)
			if s.storing {
				s.storeStartTag(name)
				continue
			}
			return Event{
				Kind:  StartElement,
				Name:  name,
				Space: s.pp.Space,
				Attrs: s.convertAttrs(),
				Depth: depth,
			}, nil

		case xpp.EndTag:
			if len(s.open) == 0 {
				continue
			}
			depth := len(s.open)
			el := s.open[depth-1]
			s.open = s.open[:depth-1]
			s.popBase(depth)
			if depth == 1 {
				s.rootClosed = true
			}
			if s.storing {
				if depth > s.storeDepth {
					s.storeEndTag(el.name)
					continue
				}
				s.storing = false
				s.stored = true
			}
			return Event{Kind: EndElement, Name: el.name, Space: el.space, Depth: depth}, nil

		case xpp.Text:
			if len(s.open) == 0 || s.pp.Text == "" {
				continue
			}
			if s.storing {
				s.storeText(s.pp.Text)
				continue
			}
			return Event{Kind: Characters, Text: s.pp.Text, Depth: len(s.open)}, nil
		}
	}
}

// finish はルート要素が閉じた後の入力を確認する。
// 非strictモードのデコーダは対応しない終了タグに合わせて祖先の要素を閉じていくため、
// ルートが閉じた直後に続く要素や "unexpected end element" はその途中で閉じられたことを示す。
func (s *Scanner) finish() (Event, error) {
	for {
		tok, err := s.pp.Next()
		if err != nil {
			var se *xml.SyntaxError
			if errors.As(err, &se) && strings.HasPrefix(se.Msg, "unexpected end element") {
				s.err = &model.MalformedInputError{Err: err}
				return Event{}, s.err
			}
			break
		}
		if tok == xpp.StartTag {
			s.err = &model.MalformedInputError{Err: errAfterRoot}
			return Event{}, s.err
		}
		if tok == xpp.EndDocument {
			break
		}
	}
	s.done = true
	return Event{Kind: EndOfDocument}, nil
}

// Events は文書の残りをイベント列として返す。
// 列はEndOfDocumentまたはエラーで終わる。エラーは Err で取得する。
func (s *Scanner) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.Next()
			if err != nil {
				return
			}
			if !yield(ev) || ev.Kind == EndOfDocument {
				return
			}
		}
	}
}

// Err は走査中に発生したエラーを返す。
func (s *Scanner) Err() error {
	return s.err
}

// Cancel は走査を中止する。次の Next 以降は ErrCanceled を返し、イベントは生成されない。
// 別のgoroutineから呼んでもよい。
func (s *Scanner) Cancel() {
	s.canceled.Store(true)
}

// Canceled は Cancel が呼ばれたかどうかを返す。
func (s *Scanner) Canceled() bool {
	return s.canceled.Load()
}

// Depth は現在開いている要素の深さを返す。
func (s *Scanner) Depth() int {
	return len(s.open)
}

// BeginStoringCharacters は直前に返した開始タグの内容を、対応する終了タグまでバッファに保存する。
// 保存中は子要素のイベントも文字データのイベントも生成せず、子要素はマークアップとしてバッファに書き出す。
// 終了タグのイベントを返した時点で CurrentCharacters から参照できる。
func (s *Scanner) BeginStoringCharacters() {
	if s.storing || len(s.open) == 0 {
		return
	}
	s.storing = true
	s.storeDepth = len(s.open)
	s.pendingOpen = false
	s.buf = s.buf[:0]
}

// CurrentCharacters は保存した内容を返す。次の Next 呼び出しまで有効で、その後は再利用される。
func (s *Scanner) CurrentCharacters() []byte {
	if !s.stored {
		return nil
	}
	return s.buf
}

// CurrentString は保存した内容を文字列として返す。
func (s *Scanner) CurrentString() string {
	if !s.stored {
		return ""
	}
	return string(s.buf)
}

// CurrentStringTrimmed は前後の空白を除いた CurrentString を返す。
func (s *Scanner) CurrentStringTrimmed() string {
	return strings.TrimSpace(s.CurrentString())
}

// BaseURL は現在有効な xml:base を返す。指定がなければnil。
func (s *Scanner) BaseURL() *url.URL {
	if len(s.bases) == 0 {
		return nil
	}
	return s.bases[len(s.bases)-1].url
}

// ResolveURL はrefを現在の xml:base に対して解決する。
// xml:base がなければrefをそのまま返し、解決できなければ空文字を返す。
func (s *Scanner) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	base := s.BaseURL()
	if base == nil || ref == "" {
		return ref
	}
	refU, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refU).String()
}

func (s *Scanner) convertAttrs() []Attr {
	if len(s.pp.Attrs) == 0 {
		return nil
	}
	attrs := make([]Attr, len(s.pp.Attrs))
	for i, a := range s.pp.Attrs {
		v := a.Value
		if s.values != nil {
			v = s.values.InternValue(v)
		}
		attrs[i] = Attr{
			Space: a.Name.Space,
			Name:  s.names.InternName(a.Name.Local),
			Value: v,
		}
	}
	return attrs
}

func (s *Scanner) pushBase(depth int) {
	for _, a := range s.pp.Attrs {
		if a.Name.Local != "base" || (a.Name.Space != NamespaceXML && a.Name.Space != "xml") {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(a.Value))
		if err != nil {
			return
		}
		if top := s.BaseURL(); top != nil {
			u = top.ResolveReference(u)
		}
		s.bases = append(s.bases, baseEntry{depth: depth, url: u})
		return
	}
}

func (s *Scanner) popBase(depth int) {
	if n := len(s.bases); n > 0 && s.bases[n-1].depth == depth {
		s.bases = s.bases[:n-1]
	}
}

var attrValueEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func (s *Scanner) closePendingOpen() {
	if s.pendingOpen {
		s.buf = append(s.buf, '>')
		s.pendingOpen = false
	}
}

// storeStartTag は保存中の子要素の開始タグをマークアップとして書き出す。
// ">" は次のトークンを見てから出力し、直後に閉じる要素は "<x/>" とする。
func (s *Scanner) storeStartTag(name string) {
	s.closePendingOpen()
	s.buf = append(s.buf, '<')
	s.buf = append(s.buf, name...)
	for _, a := range s.pp.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		s.buf = append(s.buf, ' ')
		s.buf = append(s.buf, a.Name.Local...)
		s.buf = append(s.buf, '=', '"')
		s.buf = append(s.buf, attrValueEscaper.Replace(a.Value)...)
		s.buf = append(s.buf, '"')
	}
	s.pendingOpen = true
}

func (s *Scanner) storeEndTag(name string) {
	if s.pendingOpen {
		s.buf = append(s.buf, '/', '>')
		s.pendingOpen = false
		return
	}
	s.buf = append(s.buf, '<', '/')
	s.buf = append(s.buf, name...)
	s.buf = append(s.buf, '>')
}

// storeText は保存中の文字データを書き出す。
// 保存対象の要素直下のテキストは展開済みのまま、子要素内のテキストはマークアップとして再エスケープする。
func (s *Scanner) storeText(text string) {
	s.closePendingOpen()
	if len(s.open) > s.storeDepth {
		s.buf = append(s.buf, textutil.EncodeRequiredEntities(text)...)
		return
	}
	s.buf = append(s.buf, text...)
}
