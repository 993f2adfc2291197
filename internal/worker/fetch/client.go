// Package fetch はHTTP取得とフィードのバックグラウンド更新を提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略を含む。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/feedkit/internal/security"
)

const userAgent = "feedkit/1.0 (+https://github.com/hitoshi/feedkit)"

// ErrBodyTooLarge はレスポンスボディが上限を超えた場合のエラー。
var ErrBodyTooLarge = errors.New("response body too large")

// Conditional は条件付きGETに使う前回の検証子。
type Conditional struct {
	ETag         string
	LastModified string
}

// Response はHTTP取得の結果。304の場合 Body は空。
type Response struct {
	URL          string // リダイレクト後の最終URL
	StatusCode   int
	ContentType  string
	ETag         string
	LastModified string
	Body         []byte
}

// Client はSSRF検証付きで外部URLを取得する。
type Client struct {
	guard   security.URLGuard
	timeout time.Duration
	maxSize int64
}

// NewClient はClientを生成する。maxSize はレスポンスボディの上限バイト数。
func NewClient(guard security.URLGuard, timeout time.Duration, maxSize int64) *Client {
	return &Client{guard: guard, timeout: timeout, maxSize: maxSize}
}

// Get は rawURL を取得する。2xx/304 以外のステータスもエラーにせず Response で返す。
// 検証に失敗したURLは security.ErrInvalidURL か security.ErrBlockedURL を包んだエラーになる。
func (c *Client) Get(ctx context.Context, rawURL string, cond Conditional, accept string) (*Response, error) {
	if err := c.guard.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := c.guard.NewSafeClient(c.timeout).Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:          resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("%w: 上限 %d バイト", ErrBodyTooLarge, c.maxSize)
	}
	out.Body = body
	return out, nil
}

// isGuardError は URLGuard が宛先を拒否したエラーかを判定する。再試行しても結果は変わらない。
func isGuardError(err error) bool {
	return errors.Is(err, security.ErrInvalidURL) || errors.Is(err, security.ErrBlockedURL)
}
