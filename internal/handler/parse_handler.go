package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedkit/internal/discovery"
	"github.com/hitoshi/feedkit/internal/feed"
	"github.com/hitoshi/feedkit/internal/htmlparse"
	"github.com/hitoshi/feedkit/internal/metrics"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/opml"
	"github.com/hitoshi/feedkit/internal/security"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

const (
	feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"
	opmlAccept = "text/x-opml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"
	htmlAccept = "text/html, application/xhtml+xml;q=0.9, */*;q=0.8"
)

// DocumentFetcher は外部URLから文書を取得する。*fetch.Client が実装する。
type DocumentFetcher interface {
	Get(ctx context.Context, rawURL string, cond fetch.Conditional, accept string) (*fetch.Response, error)
}

// documentReader はリクエストボディか url パラメータのURLから文書を読み出す。
type documentReader struct {
	fetcher     DocumentFetcher
	maxBodySize int64
}

// read は文書本体と文書のURLを返す。
// ?url= があればそのURLを取得し、なければボディを読む。ボディの場合の文書URLは ?base= で指定できる。
func (d documentReader) read(w http.ResponseWriter, r *http.Request, accept string) ([]byte, string, *model.APIError) {
	if target := r.URL.Query().Get("url"); target != "" {
		return d.fetchDocument(r.Context(), target, accept)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", model.NewBodyTooLargeError(tooLarge.Limit)
		}
		return nil, "", model.NewInvalidRequestError()
	}
	if len(body) == 0 {
		return nil, "", model.NewEmptyDocumentError()
	}
	return body, r.URL.Query().Get("base"), nil
}

func (d documentReader) fetchDocument(ctx context.Context, target, accept string) ([]byte, string, *model.APIError) {
	resp, err := d.fetcher.Get(ctx, target, fetch.Conditional{}, accept)
	if err != nil {
		if errors.Is(err, fetch.ErrBodyTooLarge) {
			return nil, "", model.NewFetchFailedError("レスポンスが上限サイズを超えています")
		}
		return nil, "", discovery.ClassifyFetchError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}
	if len(resp.Body) == 0 {
		return nil, "", model.NewEmptyDocumentError()
	}
	return resp.Body, resp.URL, nil
}

// ParseHandler は文書解析APIのHTTPハンドラー。保存はしない。
type ParseHandler struct {
	documents documentReader
	sanitizer security.ContentSanitizer
	recorder  metrics.Recorder
}

// NewParseHandler はParseHandlerを生成する。recorder が nil なら記録しない。
func NewParseHandler(fetcher DocumentFetcher, maxBodySize int64, sanitizer security.ContentSanitizer, recorder metrics.Recorder) *ParseHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ParseHandler{
		documents: documentReader{fetcher: fetcher, maxBodySize: maxBodySize},
		sanitizer: sanitizer,
		recorder:  recorder,
	}
}

// ParseFeed はRSS/Atom文書を解析する。?sanitize=1 なら本文をサニタイズして返す。
// POST /api/parse/feed
func (h *ParseHandler) ParseFeed(w http.ResponseWriter, r *http.Request) {
	body, docURL, apiErr := h.documents.read(w, r, feedAccept)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	start := time.Now()
	type result struct {
		feed *model.ParsedFeed
		err  error
	}
	done := make(chan result, 1)
	feed.ParseAsync(r.Context(), body, docURL, func(f *model.ParsedFeed, err error) {
		done <- result{feed: f, err: err}
	})
	res := <-done
	h.recorder.RecordParse("feed", time.Since(start), res.err)

	if res.err != nil {
		if r.Context().Err() != nil {
			return
		}
		slog.Info("フィードの解析に失敗しました",
			slog.String("url", docURL),
			slog.String("error", res.err.Error()),
		)
		middleware.WriteAPIError(w, model.NewDocumentError(res.err))
		return
	}
	h.recorder.RecordArticlesParsed(len(res.feed.Articles))

	parsed := res.feed
	if r.URL.Query().Get("sanitize") == "1" && h.sanitizer != nil {
		parsed = security.SanitizeFeed(h.sanitizer, parsed)
	}
	writeJSON(w, http.StatusOK, toFeedResponse(parsed))
}

// ParseOPML はOPML文書を解析する。
// POST /api/parse/opml
func (h *ParseHandler) ParseOPML(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.parseOPML(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOPMLResponse(doc, opml.Feeds(doc)))
}

// parseOPML は文書を読み出して解析する。失敗時はエラーレスポンスを書き込み false を返す。
func (h *ParseHandler) parseOPML(w http.ResponseWriter, r *http.Request) (*model.OPMLDocument, bool) {
	body, docURL, apiErr := h.documents.read(w, r, opmlAccept)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return nil, false
	}

	start := time.Now()
	doc, err := opml.Parse(body, docURL)
	h.recorder.RecordParse("opml", time.Since(start), err)
	if err != nil {
		slog.Info("OPMLの解析に失敗しました",
			slog.String("url", docURL),
			slog.String("error", err.Error()),
		)
		middleware.WriteAPIError(w, model.NewDocumentError(err))
		return nil, false
	}
	return doc, true
}

// ParseHTML はHTMLページのメタデータ、リンク、フィード候補を返す。
// POST /api/parse/html
func (h *ParseHandler) ParseHTML(w http.ResponseWriter, r *http.Request) {
	body, docURL, apiErr := h.documents.read(w, r, htmlAccept)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	start := time.Now()
	meta := htmlparse.ParseMetadata(body, docURL)
	links := htmlparse.ParseLinks(body, docURL)
	candidates := htmlparse.FeedSpecifiers(meta, links)
	h.recorder.RecordParse("html", time.Since(start), nil)

	writeJSON(w, http.StatusOK, toHTMLResponse(meta, links, candidates))
}
