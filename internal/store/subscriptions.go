package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/repository"
)

var subscriptionColumns = []string{
	"id", "feed_url", "title", "homepage_url", "folder_name", "etag", "last_modified",
	"fetch_status", "consecutive_errors", "error_message", "next_fetch_at", "created_at", "updated_at",
}

// AddSubscription は購読を1件追加する。同じフィードURLが既にあれば追加せず false を返す。
func (s *FeedStore) AddSubscription(ctx context.Context, spec model.OPMLFeedSpecifier) (bool, error) {
	existing, err := s.rows.Select(ctx, repository.Query{
		Table:   tableSubscriptions,
		Columns: []string{"id"},
		Where:   repository.Row{"feed_url": spec.FeedURL},
		Limit:   1,
	})
	if err != nil {
		return false, fmt.Errorf("購読の重複確認に失敗: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	now := s.now()
	row := repository.Row{
		"id":                 uuid.New().String(),
		"feed_url":           spec.FeedURL,
		"title":              spec.Title,
		"homepage_url":       spec.HomePageURL,
		"folder_name":        spec.FolderName,
		"etag":               "",
		"last_modified":      "",
		"fetch_status":       string(model.FetchStatusActive),
		"consecutive_errors": 0,
		"error_message":      "",
		"next_fetch_at":      now,
		"created_at":         now,
		"updated_at":         now,
	}
	if err := s.rows.Insert(ctx, tableSubscriptions, row); err != nil {
		return false, fmt.Errorf("購読の追加に失敗: %w", err)
	}
	return true, nil
}

// SaveSubscriptions はOPML文書内のすべてのフィードを購読として追加し、追加件数を返す。
// 登録済みのフィードURLは読み飛ばす。
func (s *FeedStore) SaveSubscriptions(ctx context.Context, doc *model.OPMLDocument) (int, error) {
	if doc == nil {
		return 0, nil
	}
	added := 0
	for _, spec := range doc.FeedSpecifiers() {
		ok, err := s.AddSubscription(ctx, *spec)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	slog.Info("OPMLインポート完了",
		slog.String("opml_url", doc.URL),
		slog.Int("added", added),
	)
	return added, nil
}

// ListSubscriptions はすべての購読をフィードURL順に返す。
func (s *FeedStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableSubscriptions,
		Columns: subscriptionColumns,
		OrderBy: "feed_url",
	})
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}

	subs := make([]model.Subscription, len(rows))
	for i, r := range rows {
		subs[i] = subscriptionFromRow(r)
	}
	return subs, nil
}

// Subscription はフィードURLで購読を1件返す。存在しなければ repository.ErrNotFound。
func (s *FeedStore) Subscription(ctx context.Context, feedURL string) (*model.Subscription, error) {
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableSubscriptions,
		Columns: subscriptionColumns,
		Where:   repository.Row{"feed_url": feedURL},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	sub := subscriptionFromRow(rows[0])
	return &sub, nil
}

// DueSubscriptions は now 時点でフェッチ予定を過ぎた有効な購読を、予定の古い順に最大 limit 件返す。
func (s *FeedStore) DueSubscriptions(ctx context.Context, now time.Time, limit int) ([]model.Subscription, error) {
	rows, err := s.rows.Select(ctx, repository.Query{
		Table:   tableSubscriptions,
		Columns: subscriptionColumns,
		Where:   repository.Row{"fetch_status": string(model.FetchStatusActive)},
		OrderBy: "next_fetch_at",
	})
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象の取得に失敗しました: %w", err)
	}

	var due []model.Subscription
	for _, r := range rows {
		sub := subscriptionFromRow(r)
		if sub.NextFetchAt.After(now) {
			break
		}
		due = append(due, sub)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

// UpdateSubscriptionState はフェッチ結果に伴う購読の状態を保存する。
func (s *FeedStore) UpdateSubscriptionState(ctx context.Context, sub *model.Subscription) error {
	values := repository.Row{
		"title":              sub.Title,
		"homepage_url":       sub.HomePageURL,
		"etag":               sub.ETag,
		"last_modified":      sub.LastModified,
		"fetch_status":       string(sub.FetchStatus),
		"consecutive_errors": sub.ConsecutiveErrors,
		"error_message":      sub.ErrorMessage,
		"next_fetch_at":      sub.NextFetchAt,
		"updated_at":         s.now(),
	}
	n, err := s.rows.Update(ctx, tableSubscriptions, repository.Row{"feed_url": sub.FeedURL}, values)
	if err != nil {
		return fmt.Errorf("購読状態の更新に失敗しました: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ResumeSubscription は停止中の購読を再開し、すぐにフェッチ対象にする。
func (s *FeedStore) ResumeSubscription(ctx context.Context, feedURL string) error {
	sub, err := s.Subscription(ctx, feedURL)
	if err != nil {
		return err
	}
	sub.FetchStatus = model.FetchStatusActive
	sub.ConsecutiveErrors = 0
	sub.ErrorMessage = ""
	sub.NextFetchAt = s.now()
	return s.UpdateSubscriptionState(ctx, sub)
}

// DeleteSubscription は購読を削除する。
func (s *FeedStore) DeleteSubscription(ctx context.Context, feedURL string) error {
	n, err := s.rows.Delete(ctx, tableSubscriptions, repository.Row{"feed_url": feedURL})
	if err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Folders は購読に使われているフォルダ名を重複なく昇順で返す。
func (s *FeedStore) Folders(ctx context.Context) ([]string, error) {
	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var folders []string
	for _, sub := range subs {
		if sub.FolderName != "" {
			folders = append(folders, sub.FolderName)
		}
	}
	slices.Sort(folders)
	return slices.Compact(folders), nil
}

func subscriptionFromRow(r repository.Row) model.Subscription {
	sub := model.Subscription{
		ID:                rowString(r, "id"),
		FeedURL:           rowString(r, "feed_url"),
		Title:             rowString(r, "title"),
		HomePageURL:       rowString(r, "homepage_url"),
		FolderName:        rowString(r, "folder_name"),
		ETag:              rowString(r, "etag"),
		LastModified:      rowString(r, "last_modified"),
		FetchStatus:       model.FetchStatus(rowString(r, "fetch_status")),
		ConsecutiveErrors: rowInt(r, "consecutive_errors"),
		ErrorMessage:      rowString(r, "error_message"),
	}
	if t := rowTime(r, "next_fetch_at"); t != nil {
		sub.NextFetchAt = *t
	}
	if t := rowTime(r, "created_at"); t != nil {
		sub.CreatedAt = *t
	}
	if t := rowTime(r, "updated_at"); t != nil {
		sub.UpdatedAt = *t
	}
	return sub
}
