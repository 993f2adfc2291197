// Package feed はRSS/Atom/JSON Feedの解析を提供する。
// XML文書の種別はルート要素で一度だけ判定し、種別ごとの状態機械で ParsedFeed を組み立てる。
// 先頭が '{' の文書は JSON Feed として扱う。
package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	"github.com/hitoshi/feedkit/internal/xmlscan"
)

// documentKind は DataFormatError に記録する期待文書種別。
const documentKind = "feed"

// now は記事の DateParsed に使う時刻。テストで差し替える。
var now = time.Now

// Parse はフィード文書を解析する。RSS/Atomはルート要素から判定し、JSONは JSON Feed として読む。
// ルート要素が rss / rdf / feed 以外、または JSON Feed でないJSONなら *model.DataFormatError、
// XMLとして解釈できなければ *model.MalformedInputError を返す。
func Parse(data []byte, feedURL string) (*model.ParsedFeed, error) {
	return parse(data, feedURL, "")
}

// ParseRSS はRSS文書として解析する。ルート要素がRSSでなければ *model.DataFormatError を返す。
func ParseRSS(data []byte, feedURL string) (*model.ParsedFeed, error) {
	return parse(data, feedURL, model.FeedTypeRSS)
}

// ParseAtom はAtom文書として解析する。ルート要素がAtomでなければ *model.DataFormatError を返す。
func ParseAtom(data []byte, feedURL string) (*model.ParsedFeed, error) {
	return parse(data, feedURL, model.FeedTypeAtom)
}

// ParseAsync は別goroutineで Parse を実行し、結果をcallbackに1回だけ渡す。
// callbackにはフィードとエラーのどちらか一方だけが渡される。
// 開始前にctxが終了していればctxのエラーを渡す。
func ParseAsync(ctx context.Context, data []byte, feedURL string, callback func(*model.ParsedFeed, error)) {
	go func() {
		delivered := false
		defer func() {
			if r := recover(); r != nil && !delivered {
				slog.Error("フィード解析中にパニックが発生しました",
					slog.String("feed_url", feedURL),
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
		feed, err := Parse(data, feedURL)
		delivered = true
		callback(feed, err)
	}()
}

// Sniff は文書種別を判定する。XMLはルート要素、JSONは JSON Feed の version で判定する。
func Sniff(data []byte) (model.FeedType, error) {
	if looksLikeJSON(data) {
		return sniffJSON(data)
	}
	s := xmlscan.NewScanner(bytes.NewReader(data))
	root, err := s.Next()
	if err != nil {
		return "", err
	}
	return typeForRoot(root)
}

// typeForRoot はルート要素名から種別を決める。rdf:RDF のローカル名は "RDF"。
func typeForRoot(root xmlscan.Event) (model.FeedType, error) {
	switch strings.ToLower(root.Name) {
	case "rss", "rdf":
		return model.FeedTypeRSS, nil
	case "feed":
		return model.FeedTypeAtom, nil
	}
	return "", &model.DataFormatError{Expected: documentKind, Root: root.Name}
}

func parse(data []byte, feedURL string, want model.FeedType) (*model.ParsedFeed, error) {
	var (
		feed *model.ParsedFeed
		err  error
	)
	if looksLikeJSON(data) {
		if want != "" && want != model.FeedTypeJSON {
			return nil, &model.DataFormatError{Expected: string(want), Root: "json"}
		}
		feed, err = parseJSON(data, feedURL)
	} else {
		feed, err = parseXML(data, feedURL, want)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("フィードを解析しました",
		slog.String("feed_url", feedURL),
		slog.String("type", string(feed.Type)),
		slog.Int("articles", len(feed.Articles)),
	)
	return feed, nil
}

func parseXML(data []byte, feedURL string, want model.FeedType) (*model.ParsedFeed, error) {
	s := xmlscan.NewScanner(bytes.NewReader(data))
	root, err := s.Next()
	if err != nil {
		return nil, err
	}
	typ, err := typeForRoot(root)
	if err != nil {
		return nil, err
	}
	if want != "" && typ != want {
		return nil, &model.DataFormatError{Expected: string(want), Root: root.Name}
	}

	if typ == model.FeedTypeAtom {
		return newAtomParser(s, feedURL, now()).run(root)
	}
	return newRSSParser(s, feedURL, now()).run(root)
}

// cleanTitle はタイトルの二重エスケープを展開し、空白を正規化する。
func cleanTitle(s string) string {
	return textutil.CollapseWhitespace(textutil.DecodeEntities(s))
}

func looksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// resolveLink は xml:base、ホームページURL、フィードURLの順に相対URLを解決する。
// どれでも解決できない相対URLは文書に書かれたまま返す。
func resolveLink(s *xmlscan.Scanner, ref, homepage, feedURL string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	resolved := s.ResolveURL(ref)
	if resolved == "" {
		return ""
	}
	if u, err := url.Parse(resolved); err == nil && u.IsAbs() {
		return resolved
	}
	for _, base := range []string{homepage, feedURL} {
		if abs := textutil.ResolveURL(base, resolved); abs != "" {
			return abs
		}
	}
	return resolved
}
