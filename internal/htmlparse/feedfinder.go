package htmlparse

import (
	"strings"

	"github.com/hitoshi/feedkit/internal/model"
)

// FeedSource はフィードURLの見つかった場所。値が小さいほど信頼できる。
type FeedSource int

const (
	// SourceUserEntered は利用者が直接入力したURL。
	SourceUserEntered FeedSource = iota
	// SourceHTMLHead は <link rel="alternate"> で宣言されたURL。
	SourceHTMLHead
	// SourceHTMLLink は本文の <a> から推測したURL。
	SourceHTMLLink
)

// FeedSpecifier はページから見つかったフィード候補。
type FeedSpecifier struct {
	Title      string
	URL        string
	Source     FeedSource
	OrderFound int // 1始まり
}

// Score は候補の優先度を返す。高いほど良い。
func (s FeedSpecifier) Score() int {
	if s.Source == SourceUserEntered {
		return 1000
	}

	score := 0
	if s.Source == SourceHTMLHead {
		score += 50
	}
	score -= (s.OrderFound - 1) * 5

	lower := strings.ToLower(s.URL)
	if strings.Contains(lower, "comments") {
		score -= 10
	}
	if strings.Contains(lower, "podcast") {
		score -= 10
	}
	if strings.Contains(lower, "rss") {
		score += 5
	}
	if strings.HasSuffix(s.URL, "/index.xml") {
		score += 5
	}
	if strings.HasSuffix(s.URL, "/feed/") {
		score += 5
	}
	if strings.HasSuffix(s.URL, "/feed") {
		score += 4
	}
	if strings.Contains(lower, "json") {
		score += 3
	}
	if strings.Contains(strings.ToLower(s.Title), "comments") {
		score -= 10
	}
	return score
}

// merge は同じURLの候補を統合する。タイトルは先に見つかったもの、
// 出所と出現順はより良いほうを採る。
func (s FeedSpecifier) merge(other FeedSpecifier) FeedSpecifier {
	merged := s
	if merged.Title == "" {
		merged.Title = other.Title
	}
	merged.Source = min(s.Source, other.Source)
	merged.OrderFound = min(s.OrderFound, other.OrderFound)
	return merged
}

// FeedSpecifiers はメタデータのフィードリンクと、フィードらしい本文リンクから候補を集める。
// 同じURLは1つにまとめ、最初に見つかった順に返す。
func FeedSpecifiers(meta *model.HTMLMetadata, links []model.HTMLLink) []FeedSpecifier {
	var specs []FeedSpecifier
	index := make(map[string]int)
	add := func(spec FeedSpecifier) {
		if spec.URL == "" {
			return
		}
		if i, ok := index[spec.URL]; ok {
			specs[i] = specs[i].merge(spec)
			return
		}
		index[spec.URL] = len(specs)
		specs = append(specs, spec)
	}

	order := 0
	if meta != nil {
		for _, fl := range meta.FeedLinks {
			order++
			add(FeedSpecifier{Title: fl.Title, URL: fl.URL, Source: SourceHTMLHead, OrderFound: order})
		}
	}
	for _, l := range links {
		if !looksLikeFeedLink(l) {
			continue
		}
		order++
		add(FeedSpecifier{Title: l.Text, URL: l.URL, Source: SourceHTMLLink, OrderFound: order})
	}
	return specs
}

// BestFeedSpecifier はスコアが最も高い候補を返す。同点なら先の候補。
func BestFeedSpecifier(specs []FeedSpecifier) (FeedSpecifier, bool) {
	if len(specs) == 0 {
		return FeedSpecifier{}, false
	}
	best := specs[0]
	bestScore := best.Score()
	for _, s := range specs[1:] {
		if score := s.Score(); score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, true
}

// looksLikeFeedLink は本文リンクがフィードを指していそうかを判定する。
func looksLikeFeedLink(l model.HTMLLink) bool {
	if l.URL == "" {
		return false
	}
	u := strings.ToLower(l.URL)
	for _, suffix := range []string{".rss", ".rdf", ".xml", ".atom", "/feed", "/feed/", "/rss", "/rss/", "/atom", "/atom/"} {
		if strings.HasSuffix(u, suffix) {
			return true
		}
	}
	return strings.Contains(u, "feeds.") || strings.Contains(u, "/feeds/") || strings.Contains(u, "?feed=")
}
