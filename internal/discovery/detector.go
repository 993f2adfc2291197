// Package discovery はWebページからのフィード検出と購読登録を提供する。
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/hitoshi/feedkit/internal/feed"
	"github.com/hitoshi/feedkit/internal/htmlparse"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/security"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

const pageAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, text/html, */*"

// Result はフィード検出の結果。
type Result struct {
	// FeedURL は選ばれたフィードのURL。
	FeedURL string
	// Direct は入力URL自体がフィードだった場合 true。
	Direct bool
	// Body は Direct の場合のフィード本体。
	Body []byte
	// Candidates はページから見つかった候補。Direct の場合は入力URLのみ。
	Candidates []htmlparse.FeedSpecifier
	// Metadata はHTMLページだった場合のメタデータ。
	Metadata *model.HTMLMetadata
}

// Detector はURLがフィードかHTMLかを判定し、フィードURLを検出する。
type Detector struct {
	client *fetch.Client
}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector(client *fetch.Client) *Detector {
	return &Detector{client: client}
}

// Discover はURLを取得し、フィードなら入力URLを、HTMLならページ内の最適な候補を返す。
// 失敗時は原因カテゴリと対処方法を含む *model.APIError を返す。
func (d *Detector) Discover(ctx context.Context, inputURL string) (*Result, error) {
	inputURL = strings.TrimSpace(inputURL)
	if inputURL == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	resp, err := d.client.Get(ctx, inputURL, fetch.Conditional{}, pageAccept)
	if err != nil {
		return nil, ClassifyFetchError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	if feed.IsFeed(resp.ContentType, resp.Body) {
		return &Result{
			FeedURL:    inputURL,
			Direct:     true,
			Body:       resp.Body,
			Candidates: []htmlparse.FeedSpecifier{{URL: inputURL, Source: htmlparse.SourceUserEntered, OrderFound: 1}},
		}, nil
	}

	if !isHTML(resp.ContentType) {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	meta := htmlparse.ParseMetadata(resp.Body, resp.URL)
	links := htmlparse.ParseLinks(resp.Body, resp.URL)
	candidates := htmlparse.FeedSpecifiers(meta, links)

	best, ok := htmlparse.BestFeedSpecifier(candidates)
	if !ok {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	slog.Debug("フィードを検出しました",
		slog.String("page_url", resp.URL),
		slog.String("feed_url", best.URL),
		slog.Int("candidates", len(candidates)),
	)
	return &Result{FeedURL: best.URL, Candidates: candidates, Metadata: meta}, nil
}

// ClassifyFetchError は fetch.Client のエラーを利用者向けの *model.APIError に変換する。
func ClassifyFetchError(err error) *model.APIError {
	switch {
	case errors.Is(err, security.ErrBlockedURL):
		return model.NewSSRFBlockedError()
	case errors.Is(err, security.ErrInvalidURL):
		return model.NewInvalidURLError(err.Error())
	default:
		return model.NewFetchFailedError(err.Error())
	}
}

// isHTML はContent-TypeがHTMLか判定する。Content-Typeがなければ本文を HTML とみなす。
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
