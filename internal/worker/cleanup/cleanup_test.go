package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/feedkit/internal/model"
)

type mockStore struct {
	subs    []model.Subscription
	listErr error
	deleted map[string]int
	failOn  string
	calls   []string
	keeps   []int
}

func (m *mockStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	return m.subs, m.listErr
}

func (m *mockStore) PruneArticles(ctx context.Context, feedURL string, keep int) (int, error) {
	m.calls = append(m.calls, feedURL)
	m.keeps = append(m.keeps, keep)
	if feedURL == m.failOn {
		return 0, errors.New("db error")
	}
	return m.deleted[feedURL], nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("ログのJSONパースに失敗: %v", err)
	}
	return entry
}

func twoFeeds() []model.Subscription {
	return []model.Subscription{
		{FeedURL: "https://a.example/feed"},
		{FeedURL: "https://b.example/feed"},
	}
}

func TestNewJob_DefaultKeepPerFeed(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockStore{}, newTestLogger(&buf))
	if job.KeepPerFeed != 500 {
		t.Errorf("KeepPerFeed = %d, want 500", job.KeepPerFeed)
	}
}

func TestJob_Run_PrunesEverySubscription(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		subs:    twoFeeds(),
		deleted: map[string]int{"https://a.example/feed": 3, "https://b.example/feed": 4},
	}
	job := NewJob(store, newTestLogger(&buf))
	job.KeepPerFeed = 20

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff([]string{"https://a.example/feed", "https://b.example/feed"}, store.calls); diff != "" {
		t.Errorf("pruned feeds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{20, 20}, store.keeps); diff != "" {
		t.Errorf("keep mismatch (-want +got):\n%s", diff)
	}

	entry := lastLogEntry(t, &buf)
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
	}
	if entry["feeds"] != float64(2) {
		t.Errorf("feeds = %v, want 2", entry["feeds"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("ログに duration_ms が含まれていない")
	}
}

func TestJob_Run_ContinuesAfterFeedFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		subs:    twoFeeds(),
		deleted: map[string]int{"https://b.example/feed": 2},
		failOn:  "https://a.example/feed",
	}
	job := NewJob(store, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("1件でも失敗したらエラーを返すべき")
	}
	if len(store.calls) != 2 {
		t.Errorf("失敗後も残りのフィードを処理すべき: calls = %v", store.calls)
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Error("失敗したフィードは WARN で記録されるべき")
	}
	if entry := lastLogEntry(t, &buf); entry["deleted_count"] != float64(2) {
		t.Errorf("deleted_count = %v, want 2", entry["deleted_count"])
	}
}

func TestJob_Run_ListError(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockStore{listErr: errors.New("boom")}, newTestLogger(&buf))
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("購読一覧の取得失敗はエラーになるべき")
	}
}

func TestJob_Run_NoSubscriptions(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockStore{}, newTestLogger(&buf))
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("購読がなくてもエラーにならない: %v", err)
	}
	if entry := lastLogEntry(t, &buf); entry["deleted_count"] != float64(0) {
		t.Errorf("deleted_count = %v, want 0", entry["deleted_count"])
	}
}

func TestJob_Run_RespectsContext(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{subs: twoFeeds()}
	job := NewJob(store, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("キャンセル後は削除しない: calls = %v", store.calls)
	}
}

func TestJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockStore{}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 0)
		close(done)
	}()
	cancel()
	<-done
}
