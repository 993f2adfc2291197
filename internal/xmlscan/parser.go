package xmlscan

import (
	"bytes"
	"io"
	"sync"
)

// StartElementHandler は開始タグを受け取る。
type StartElementHandler interface {
	StartElement(p *Parser, ev Event)
}

// EndElementHandler は終了タグを受け取る。
type EndElementHandler interface {
	EndElement(p *Parser, ev Event)
}

// CharactersHandler は空でない文字データを受け取る。
type CharactersHandler interface {
	Characters(p *Parser, text string)
}

// EndOfDocumentHandler は文書の終端を受け取る。
type EndOfDocumentHandler interface {
	EndOfDocument(p *Parser)
}

// Parser はハンドラのコールバックを呼び出すプッシュ型のパーサ。
// handler は上記インターフェースと NameInterner / ValueInterner のうち必要なものだけを実装すればよい。
// コールバックは ParseBytes / ParseData / FinishParsing を呼んだgoroutine上で、文書順に同期的に呼ばれる。
// ParseBytes で分割入力した場合、最後に FinishParsing か Cancel を呼ぶこと。
type Parser struct {
	handler any
	opts    []Option
	scanner *Scanner

	// 分割入力用。スキャナは専用goroutineで動き、イベントごとに呼び出し側の応答を待つ。
	started bool
	in      chan []byte
	out     chan message
	ack     chan struct{}
	quit    chan struct{}
	hungry  bool
	inClose sync.Once
	quitOne sync.Once

	finished bool
	canceled bool
	err      error
}

type message struct {
	ev     Event
	hungry bool
	done   bool
	err    error
}

// NewParser はhandlerへイベントを通知するParserを生成する。
func NewParser(handler any) *Parser {
	p := &Parser{handler: handler}
	if in, ok := handler.(NameInterner); ok {
		p.opts = append(p.opts, WithNameInterner(in))
	}
	if in, ok := handler.(ValueInterner); ok {
		p.opts = append(p.opts, WithValueInterner(in))
	}
	return p
}

// ParseData は文書全体を一度に解析する。
// すでに ParseBytes で入力を与えている場合は、残りの入力として扱って解析を完了する。
func (p *Parser) ParseData(data []byte) error {
	if p.finished || p.canceled {
		return p.err
	}
	if p.started {
		if err := p.ParseBytes(data); err != nil {
			return err
		}
		return p.FinishParsing()
	}

	p.scanner = NewScanner(bytes.NewReader(data), p.opts...)
	for {
		ev, err := p.scanner.Next()
		if err != nil {
			return p.finish(err)
		}
		p.dispatch(ev)
		if p.canceled {
			return nil
		}
		if ev.Kind == EndOfDocument {
			return p.finish(nil)
		}
	}
}

// ParseBytes は入力の一部を与える。完結した構造のイベントはこの呼び出しの中で通知される。
// chunk は呼び出し後に再利用してよい。
func (p *Parser) ParseBytes(chunk []byte) error {
	if p.finished || p.canceled {
		return p.err
	}
	p.start()
	return p.pump(append([]byte(nil), chunk...), true, false)
}

// FinishParsing は入力の終わりを通知し、残りのイベントをすべて通知する。
func (p *Parser) FinishParsing() error {
	if p.finished || p.canceled {
		return p.err
	}
	p.start()
	p.inClose.Do(func() { close(p.in) })
	p.hungry = false
	return p.pump(nil, false, true)
}

// Cancel は以降のコールバックを停止する。コールバックの中から呼んでもよい。
// Cancel 後は EndOfDocument も通知しない。
func (p *Parser) Cancel() {
	if p.canceled {
		return
	}
	p.canceled = true
	if p.scanner != nil {
		p.scanner.Cancel()
	}
	if p.quit != nil {
		p.quitOne.Do(func() { close(p.quit) })
	}
}

// BeginStoringCharacters は直前に通知した開始タグの内容の保存を開始する。
// StartElement コールバックの中で呼ぶ。
func (p *Parser) BeginStoringCharacters() {
	if p.scanner != nil {
		p.scanner.BeginStoringCharacters()
	}
}

// CurrentCharacters は保存した内容を返す。EndElement コールバックの間だけ有効。
func (p *Parser) CurrentCharacters() []byte {
	if p.scanner == nil {
		return nil
	}
	return p.scanner.CurrentCharacters()
}

// CurrentString は保存した内容を文字列として返す。
func (p *Parser) CurrentString() string {
	if p.scanner == nil {
		return ""
	}
	return p.scanner.CurrentString()
}

// CurrentStringTrimmed は前後の空白を除いた CurrentString を返す。
func (p *Parser) CurrentStringTrimmed() string {
	if p.scanner == nil {
		return ""
	}
	return p.scanner.CurrentStringTrimmed()
}

// ResolveURL はrefを現在の xml:base に対して解決する。
func (p *Parser) ResolveURL(ref string) string {
	if p.scanner == nil {
		return ref
	}
	return p.scanner.ResolveURL(ref)
}

// AttributesMap はイベントの属性をローカル名をキーとするmapに変換する。
// 同名の属性が複数ある場合は最初のものを採用する。
func AttributesMap(ev Event) map[string]string {
	if len(ev.Attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(ev.Attrs))
	for _, a := range ev.Attrs {
		if _, ok := m[a.Name]; !ok {
			m[a.Name] = a.Value
		}
	}
	return m
}

func (p *Parser) dispatch(ev Event) {
	if p.canceled {
		return
	}
	switch ev.Kind {
	case StartElement:
		if h, ok := p.handler.(StartElementHandler); ok {
			h.StartElement(p, ev)
		}
	case EndElement:
		if h, ok := p.handler.(EndElementHandler); ok {
			h.EndElement(p, ev)
		}
	case Characters:
		if h, ok := p.handler.(CharactersHandler); ok && ev.Text != "" {
			h.Characters(p, ev.Text)
		}
	case EndOfDocument:
		if h, ok := p.handler.(EndOfDocumentHandler); ok {
			h.EndOfDocument(p)
		}
	}
}

func (p *Parser) finish(err error) error {
	p.finished = true
	if p.canceled {
		return nil
	}
	p.err = err
	return err
}

// start は分割入力用のスキャナgoroutineを起動する。
func (p *Parser) start() {
	if p.started {
		return
	}
	p.started = true
	p.in = make(chan []byte)
	p.out = make(chan message)
	p.ack = make(chan struct{})
	p.quit = make(chan struct{})
	p.scanner = NewScanner(&chunkReader{p: p}, p.opts...)
	if p.canceled {
		p.scanner.Cancel()
		close(p.quit)
	}
	go p.run()
}

// run はスキャナgoroutineの本体。
func (p *Parser) run() {
	for {
		ev, err := p.scanner.Next()
		if err != nil {
			p.send(message{done: true, err: err})
			return
		}
		if ev.Kind == EndOfDocument {
			p.send(message{ev: ev, done: true})
			return
		}
		if !p.send(message{ev: ev}) {
			return
		}
		select {
		case <-p.ack:
		case <-p.quit:
			return
		}
	}
}

func (p *Parser) send(m message) bool {
	select {
	case p.out <- m:
		return true
	case <-p.quit:
		return false
	}
}

// pump はスキャナgoroutineからのメッセージを処理する。
// 入力が足りなくなった時点で、与えるチャンクがなければ戻る。
// eof の場合は入力チャネルが閉じられているので、スキャナは終端まで進む。
func (p *Parser) pump(chunk []byte, hasChunk, eof bool) error {
	for {
		if p.hungry && eof {
			p.hungry = false
		}
		if p.hungry {
			if !hasChunk {
				return nil
			}
			p.hungry = false
			hasChunk = false
			select {
			case p.in <- chunk:
			case <-p.quit:
				return nil
			}
		}

		m := <-p.out
		switch {
		case m.hungry:
			p.hungry = true
		case m.done:
			if m.err != nil {
				return p.finish(m.err)
			}
			p.dispatch(m.ev)
			return p.finish(nil)
		default:
			p.dispatch(m.ev)
			if p.canceled {
				return nil
			}
			p.ack <- struct{}{}
		}
	}
}

// chunkReader はスキャナgoroutine側で、呼び出し側から与えられたチャンクを読み出す。
type chunkReader struct {
	p   *Parser
	cur []byte
}

func (r *chunkReader) Read(b []byte) (int, error) {
	for len(r.cur) == 0 {
		select {
		case r.p.out <- message{hungry: true}:
		case <-r.p.quit:
			return 0, ErrCanceled
		}
		select {
		case chunk, ok := <-r.p.in:
			if !ok {
				return 0, io.EOF
			}
			r.cur = chunk
		case <-r.p.quit:
			return 0, ErrCanceled
		}
	}
	n := copy(b, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
