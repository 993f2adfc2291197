// Package store は解析結果（フィード・記事・購読）を RowStore に永続化する。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/repository"
	"github.com/hitoshi/feedkit/internal/security"
)

const (
	tableFeeds         = "feeds"
	tableArticles      = "articles"
	tableSubscriptions = "subscriptions"
)

var articleColumns = []string{
	"feed_url", "article_id", "guid", "title", "body", "summary", "markdown",
	"link", "permalink", "language", "authors", "enclosures",
	"date_published", "date_modified", "date_parsed",
}

// FeedStore はフィードと記事、購読を保存・取得する。
// 記事は (feed_url, article_id) で同一性を判定し、既存なら上書きする。
type FeedStore struct {
	rows      repository.RowStore
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewFeedStore はFeedStoreの新しいインスタンスを生成する。
func NewFeedStore(rows repository.RowStore, sanitizer security.ContentSanitizer) *FeedStore {
	return &FeedStore{rows: rows, sanitizer: sanitizer, now: time.Now}
}

// SaveFeed はフィードの行を保存し、記事をUPSERTする。
// 本文と要約は無害化してから保存する。戻り値は挿入数、更新数、エラー。
func (s *FeedStore) SaveFeed(ctx context.Context, f *model.ParsedFeed) (inserted, updated int, err error) {
	if f == nil {
		return 0, 0, nil
	}
	now := s.now()

	if err := s.saveFeedRow(ctx, f, now); err != nil {
		return 0, 0, err
	}

	for _, a := range f.Articles {
		clean := security.SanitizeArticle(s.sanitizer, a)
		row, err := articleRow(f.URL, clean)
		if err != nil {
			return inserted, updated, err
		}
		key := repository.Row{"feed_url": f.URL, "article_id": clean.ArticleID}

		existing, err := s.rows.Select(ctx, repository.Query{Table: tableArticles, Columns: []string{"id"}, Where: key, Limit: 1})
		if err != nil {
			return inserted, updated, fmt.Errorf("記事の同一性判定に失敗: %w", err)
		}

		if len(existing) > 0 {
			row["updated_at"] = now
			if _, err := s.rows.Update(ctx, tableArticles, key, row); err != nil {
				slog.Error("記事の更新でエラー",
					slog.String("feed_url", f.URL),
					slog.String("article_id", clean.ArticleID),
					slog.String("error", err.Error()),
				)
				return inserted, updated, fmt.Errorf("記事の更新に失敗: %w", err)
			}
			updated++
			continue
		}

		row["id"] = uuid.New().String()
		row["created_at"] = now
		row["updated_at"] = now
		if err := s.rows.Insert(ctx, tableArticles, row); err != nil {
			slog.Error("記事の挿入でエラー",
				slog.String("feed_url", f.URL),
				slog.String("article_id", clean.ArticleID),
				slog.String("error", err.Error()),
			)
			return inserted, updated, fmt.Errorf("記事の挿入に失敗: %w", err)
		}
		inserted++
	}

	slog.Info("記事UPSERT完了",
		slog.String("feed_url", f.URL),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
	)
	return inserted, updated, nil
}

func (s *FeedStore) saveFeedRow(ctx context.Context, f *model.ParsedFeed, now time.Time) error {
	values := repository.Row{
		"type":         string(f.Type),
		"title":        f.Title,
		"homepage_url": f.HomepageURL,
		"language":     f.Language,
		"updated_at":   now,
	}
	n, err := s.rows.Update(ctx, tableFeeds, repository.Row{"url": f.URL}, values)
	if err != nil {
		return fmt.Errorf("フィードの更新に失敗: %w", err)
	}
	if n > 0 {
		return nil
	}

	values["id"] = uuid.New().String()
	values["url"] = f.URL
	values["created_at"] = now
	if err := s.rows.Insert(ctx, tableFeeds, values); err != nil {
		return fmt.Errorf("フィードの挿入に失敗: %w", err)
	}
	return nil
}

// Feed は保存済みフィードのメタデータを返す。記事は含まない。
func (s *FeedStore) Feed(ctx context.Context, feedURL string) (*model.ParsedFeed, error) {
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableFeeds,
		Columns: []string{"url", "type", "title", "homepage_url", "language"},
		Where:   repository.Row{"url": feedURL},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗: %w", err)
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	r := rows[0]
	return &model.ParsedFeed{
		URL:         rowString(r, "url"),
		Type:        model.FeedType(rowString(r, "type")),
		Title:       rowString(r, "title"),
		HomepageURL: rowString(r, "homepage_url"),
		Language:    rowString(r, "language"),
	}, nil
}

// ListArticles はフィードの記事を公開日時の新しい順に返す。limit が0以下なら全件。
func (s *FeedStore) ListArticles(ctx context.Context, feedURL string, limit int) ([]*model.ParsedArticle, error) {
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableArticles,
		Columns: articleColumns,
		Where:   repository.Row{"feed_url": feedURL},
		OrderBy: "date_published",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗: %w", err)
	}

	articles := make([]*model.ParsedArticle, 0, len(rows))
	for _, r := range rows {
		a, err := articleFromRow(r)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// PruneArticles はフィードの記事を公開日時の新しい順に keep 件だけ残し、残りを削除する。
// 削除した件数を返す。keep が0以下なら何もしない。
func (s *FeedStore) PruneArticles(ctx context.Context, feedURL string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableArticles,
		Columns: []string{"article_id"},
		Where:   repository.Row{"feed_url": feedURL},
		OrderBy: "date_published",
		Desc:    true,
	})
	if err != nil {
		return 0, fmt.Errorf("記事一覧の取得に失敗: %w", err)
	}
	if len(rows) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, r := range rows[keep:] {
		n, err := s.rows.Delete(ctx, tableArticles, repository.Row{
			"feed_url":   feedURL,
			"article_id": rowString(r, "article_id"),
		})
		if err != nil {
			return deleted, fmt.Errorf("記事の削除に失敗: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// storedAuthor と storedEnclosure はJSON列の形式。
type storedAuthor struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

type storedEnclosure struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Title    string `json:"title,omitempty"`
	Length   int64  `json:"length,omitempty"`
}

func articleRow(feedURL string, a *model.ParsedArticle) (repository.Row, error) {
	authors := make([]storedAuthor, len(a.Authors))
	for i, au := range a.Authors {
		authors[i] = storedAuthor{Name: au.Name, URL: au.URL, Email: au.EmailAddress}
	}
	enclosures := make([]storedEnclosure, len(a.Enclosures))
	for i, e := range a.Enclosures {
		enclosures[i] = storedEnclosure{URL: e.URL, MimeType: e.MimeType, Title: e.Title, Length: e.Length}
	}
	authorsJSON, err := json.Marshal(authors)
	if err != nil {
		return nil, fmt.Errorf("著者のエンコードに失敗: %w", err)
	}
	enclosuresJSON, err := json.Marshal(enclosures)
	if err != nil {
		return nil, fmt.Errorf("添付ファイルのエンコードに失敗: %w", err)
	}

	return repository.Row{
		"feed_url":       feedURL,
		"article_id":     a.ArticleID,
		"guid":           a.GUID,
		"title":          a.Title,
		"body":           a.Body,
		"summary":        a.Summary,
		"markdown":       a.Markdown,
		"link":           a.Link,
		"permalink":      a.Permalink,
		"language":       a.Language,
		"authors":        string(authorsJSON),
		"enclosures":     string(enclosuresJSON),
		"date_published": a.DatePublished,
		"date_modified":  a.DateModified,
		"date_parsed":    a.DateParsed,
	}, nil
}

func articleFromRow(r repository.Row) (*model.ParsedArticle, error) {
	var authors []storedAuthor
	if err := decodeJSON(r, "authors", &authors); err != nil {
		return nil, err
	}
	var enclosures []storedEnclosure
	if err := decodeJSON(r, "enclosures", &enclosures); err != nil {
		return nil, err
	}

	a := &model.ParsedArticle{
		FeedURL:       rowString(r, "feed_url"),
		ArticleID:     rowString(r, "article_id"),
		GUID:          rowString(r, "guid"),
		Title:         rowString(r, "title"),
		Body:          rowString(r, "body"),
		Summary:       rowString(r, "summary"),
		Markdown:      rowString(r, "markdown"),
		Link:          rowString(r, "link"),
		Permalink:     rowString(r, "permalink"),
		Language:      rowString(r, "language"),
		DatePublished: rowTime(r, "date_published"),
		DateModified:  rowTime(r, "date_modified"),
	}
	if t := rowTime(r, "date_parsed"); t != nil {
		a.DateParsed = *t
	}
	for _, au := range authors {
		a.Authors = append(a.Authors, model.ParsedAuthor{Name: au.Name, URL: au.URL, EmailAddress: au.Email})
	}
	for _, e := range enclosures {
		a.Enclosures = append(a.Enclosures, model.ParsedEnclosure{URL: e.URL, MimeType: e.MimeType, Title: e.Title, Length: e.Length})
	}
	return a, nil
}

func decodeJSON(r repository.Row, col string, dst any) error {
	raw := rowString(r, col)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%s のデコードに失敗: %w", col, err)
	}
	return nil
}

func rowString(r repository.Row, col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func rowInt(r repository.Row, col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func rowTime(r repository.Row, col string) *time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}
