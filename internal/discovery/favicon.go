package discovery

import (
	"context"
	"encoding/base64"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

// Favicon は取得したアイコン画像。
type Favicon struct {
	URL      string
	MimeType string
	Data     []byte
}

// DataURL は画像を data URL に変換する。
func (f *Favicon) DataURL() string {
	return "data:" + f.MimeType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// FaviconFetcher はページのメタデータか /favicon.ico からアイコンを取得する。
type FaviconFetcher struct {
	client *fetch.Client
}

// NewFaviconFetcher はFaviconFetcherの新しいインスタンスを生成する。
// client の上限サイズがアイコンの上限になる。
func NewFaviconFetcher(client *fetch.Client) *FaviconFetcher {
	return &FaviconFetcher{client: client}
}

// FetchFavicon は指定URLから画像を取得する。取得失敗時は nil を返す。
func (f *FaviconFetcher) FetchFavicon(ctx context.Context, faviconURL string) *Favicon {
	if faviconURL == "" {
		return nil
	}

	resp, err := f.client.Get(ctx, faviconURL, fetch.Conditional{}, "image/*")
	if err != nil {
		slog.Warn("favicon取得に失敗しました", "url", faviconURL, "error", err)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("favicon取得: HTTPステータス異常", "url", faviconURL, "status", resp.StatusCode)
		return nil
	}

	mimeType := extractMimeType(resp.ContentType)
	if !strings.HasPrefix(mimeType, "image/") || len(resp.Body) == 0 {
		slog.Warn("favicon取得: 画像以外のContent-Type", "url", faviconURL, "contentType", resp.ContentType)
		return nil
	}
	return &Favicon{URL: faviconURL, MimeType: mimeType, Data: resp.Body}
}

// FetchFaviconForSite はメタデータの icon、apple-touch-icon、/favicon.ico の順に試す。
// meta は nil でもよい。すべて失敗したら nil を返す。
func (f *FaviconFetcher) FetchFaviconForSite(ctx context.Context, siteURL string, meta *model.HTMLMetadata) *Favicon {
	for _, u := range FaviconCandidates(siteURL, meta) {
		if icon := f.FetchFavicon(ctx, u); icon != nil {
			return icon
		}
	}
	return nil
}

// FaviconCandidates は試すアイコンURLを優先順に重複なく返す。
func FaviconCandidates(siteURL string, meta *model.HTMLMetadata) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if meta != nil {
		for _, icon := range meta.Favicons {
			add(icon.URL)
		}
		for _, icon := range meta.AppleTouchIcons {
			add(icon.URL)
		}
	}
	add(guessDefaultFaviconURL(siteURL))
	return urls
}

// guessDefaultFaviconURL はサイトURLからデフォルトのfavicon URLを推測する。
func guessDefaultFaviconURL(siteURL string) string {
	if siteURL == "" {
		return ""
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.ToLower(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}
