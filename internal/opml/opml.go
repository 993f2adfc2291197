// Package opml はOPML（購読リスト）文書を outline のツリーとして解析する。
package opml

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/xmlscan"
)

// MaxDepth はツリーとして組み立てる outline の最大ネスト数。
// これより深い outline の子は読み飛ばす。
const MaxDepth = 512

const documentKind = "opml"

// Parse はOPML文書を解析する。
// ルート要素が opml でなければツリーを作らずに *model.DataFormatError を返す。
func Parse(data []byte, docURL string) (*model.OPMLDocument, error) {
	s := xmlscan.NewScanner(bytes.NewReader(data))
	root, err := s.Next()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(root.Name, "opml") {
		return nil, &model.DataFormatError{Expected: documentKind, Root: root.Name}
	}

	p := &parser{s: s}
	doc := &model.OPMLDocument{URL: docURL}
	if err := p.document(root, doc); err != nil {
		return nil, err
	}

	slog.Debug("OPMLを解析しました",
		slog.String("url", docURL),
		slog.Int("feeds", len(doc.FeedSpecifiers())),
	)
	return doc, nil
}

// ParseAsync は別goroutineで Parse を実行し、結果をcallbackに1回だけ渡す。
func ParseAsync(ctx context.Context, data []byte, docURL string, callback func(*model.OPMLDocument, error)) {
	go func() {
		delivered := false
		defer func() {
			if r := recover(); r != nil && !delivered {
				slog.Error("OPML解析中にパニックが発生しました",
					slog.String("url", docURL),
					slog.Any("panic", r),
				)
				callback(nil, &model.MalformedInputError{Err: fmt.Errorf("panic: %v", r)})
			}
		}()

		if err := ctx.Err(); err != nil {
			delivered = true
			callback(nil, err)
			return
		}
		doc, err := Parse(data, docURL)
		delivered = true
		callback(doc, err)
	}()
}

// Feeds は文書内のすべてのフィードを文書順に返す。
func Feeds(doc *model.OPMLDocument) []*model.OPMLFeedSpecifier {
	if doc == nil {
		return nil
	}
	return doc.FeedSpecifiers()
}

type parser struct {
	s *xmlscan.Scanner
}

// document は opml 直下の head と body を処理する。
func (p *parser) document(root xmlscan.Event, doc *model.OPMLDocument) error {
	for {
		ev, err := p.s.Next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case xmlscan.StartElement:
			if ev.Depth != root.Depth+1 {
				continue
			}
			switch strings.ToLower(ev.Name) {
			case "head":
				title, err := p.head(ev.Depth)
				if err != nil {
					return err
				}
				if doc.Title == "" {
					doc.Title = title
				}
			case "body":
				children, err := p.outlines(ev.Depth, "", 1)
				if err != nil {
					return err
				}
				doc.Children = append(doc.Children, children...)
			default:
				if err := p.skip(ev.Depth); err != nil {
					return err
				}
			}
		case xmlscan.EndOfDocument:
			return nil
		}
	}
}

// head は head 要素の終わりまで読み、title を返す。
func (p *parser) head(depth int) (string, error) {
	var title string
	for {
		ev, err := p.s.Next()
		if err != nil {
			return "", err
		}
		switch ev.Kind {
		case xmlscan.StartElement:
			if ev.Depth == depth+1 && strings.EqualFold(ev.Name, "title") {
				p.s.BeginStoringCharacters()
			}
		case xmlscan.EndElement:
			if ev.Depth == depth {
				return title, nil
			}
			if ev.Depth == depth+1 && strings.EqualFold(ev.Name, "title") && title == "" {
				title = p.s.CurrentStringTrimmed()
			}
		case xmlscan.EndOfDocument:
			return title, nil
		}
	}
}

// outlines は深さ depth の要素の子 outline を読む。
// folder は最も近い「フィードでない祖先」のタイトルで、子へ引き継ぐ。
func (p *parser) outlines(depth int, folder string, level int) ([]*model.OPMLItem, error) {
	var items []*model.OPMLItem
	for {
		ev, err := p.s.Next()
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case xmlscan.StartElement:
			if !strings.EqualFold(ev.Name, "outline") {
				if err := p.skip(ev.Depth); err != nil {
					return nil, err
				}
				continue
			}
			item, err := p.outline(ev, folder, level)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		case xmlscan.EndElement:
			if ev.Depth == depth {
				return items, nil
			}
		case xmlscan.EndOfDocument:
			return items, nil
		}
	}
}

func (p *parser) outline(ev xmlscan.Event, folder string, level int) (*model.OPMLItem, error) {
	item := model.NewOPMLItem(attributes(ev), folder)

	childFolder := folder
	if !item.IsFeed() {
		if title := item.TitleFromAttributes(); title != "" {
			childFolder = title
		}
	}

	if level >= MaxDepth {
		slog.Debug("OPMLのネストが深すぎるため子要素を読み飛ばします", slog.Int("level", level))
		return item, p.skip(ev.Depth)
	}

	children, err := p.outlines(ev.Depth, childFolder, level+1)
	if err != nil {
		return nil, err
	}
	item.Children = children
	return item, nil
}

// skip は深さ depth の要素の終了タグまで読み飛ばす。
func (p *parser) skip(depth int) error {
	for {
		ev, err := p.s.Next()
		if err != nil {
			return err
		}
		if ev.Kind == xmlscan.EndOfDocument || ev.Kind == xmlscan.EndElement && ev.Depth == depth {
			return nil
		}
	}
}

func attributes(ev xmlscan.Event) model.Attributes {
	if len(ev.Attrs) == 0 {
		return nil
	}
	attrs := make(model.Attributes, 0, len(ev.Attrs))
	for _, a := range ev.Attrs {
		// xmlns 宣言は属性として扱わない
		if a.Space == "xmlns" || a.Space == "" && a.Name == "xmlns" {
			continue
		}
		attrs = append(attrs, model.Attribute{Name: a.Name, Value: a.Value})
	}
	return attrs
}
