package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/opml"
	"github.com/hitoshi/feedkit/internal/repository"
)

const sampleOPML = `<?xml version="1.0"?>
<opml version="2.0">
  <head><title>subs</title></head>
  <body>
    <outline text="Tech">
      <outline text="Go Blog" xmlUrl="https://go.dev/blog/feed.atom" htmlUrl="https://go.dev/blog"/>
      <outline text="Duplicate" xmlUrl="https://example.com/feed.xml"/>
    </outline>
    <outline text="Example" xmlUrl="https://example.com/feed.xml"/>
  </body>
</opml>`

func importSample(t *testing.T, s *FeedStore) int {
	t.Helper()
	doc, err := opml.Parse([]byte(sampleOPML), "https://example.com/subs.opml")
	if err != nil {
		t.Fatal(err)
	}
	added, err := s.SaveSubscriptions(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	return added
}

func TestSaveSubscriptions_SkipsDuplicates(t *testing.T) {
	s, _ := newTestStore(t)

	if added := importSample(t, s); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if added := importSample(t, s); added != 0 {
		t.Errorf("再インポートで added = %d, want 0", added)
	}

	subs, err := s.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got [][2]string
	for _, sub := range subs {
		got = append(got, [2]string{sub.FeedURL, sub.FolderName})
		if sub.FetchStatus != model.FetchStatusActive {
			t.Errorf("%s: status = %s, want active", sub.FeedURL, sub.FetchStatus)
		}
	}
	want := [][2]string{
		{"https://example.com/feed.xml", "Tech"},
		{"https://go.dev/blog/feed.atom", "Tech"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subscriptions mismatch (-want +got):\n%s", diff)
	}

	folders, err := s.Folders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Tech"}, folders); diff != "" {
		t.Errorf("Folders() mismatch (-want +got):\n%s", diff)
	}
}

func TestDueSubscriptions_AndStateUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	importSample(t, s)

	due, err := s.DueSubscriptions(ctx, fixedNow, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(due))
	}

	sub := due[0]
	sub.ETag = `"v1"`
	sub.ConsecutiveErrors = 3
	sub.NextFetchAt = fixedNow.Add(time.Hour)
	if err := s.UpdateSubscriptionState(ctx, &sub); err != nil {
		t.Fatal(err)
	}

	due, err = s.DueSubscriptions(ctx, fixedNow, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].FeedURL == sub.FeedURL {
		t.Errorf("更新した購読は対象外になるべき: %+v", due)
	}

	got, err := s.Subscription(ctx, sub.FeedURL)
	if err != nil {
		t.Fatal(err)
	}
	if got.ETag != `"v1"` || got.ConsecutiveErrors != 3 {
		t.Errorf("Subscription() = %+v", got)
	}
}

func TestResumeSubscription(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	importSample(t, s)

	sub, err := s.Subscription(ctx, "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}
	sub.FetchStatus = model.FetchStatusStopped
	sub.ConsecutiveErrors = 10
	sub.ErrorMessage = "gone"
	sub.NextFetchAt = fixedNow.Add(24 * time.Hour)
	if err := s.UpdateSubscriptionState(ctx, sub); err != nil {
		t.Fatal(err)
	}

	if err := s.ResumeSubscription(ctx, sub.FeedURL); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Subscription(ctx, sub.FeedURL)
	if got.FetchStatus != model.FetchStatusActive || got.ConsecutiveErrors != 0 || got.ErrorMessage != "" {
		t.Errorf("再開後の状態が不正: %+v", got)
	}
}

func TestSubscription_NotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Subscription(ctx, "https://missing.example/"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Subscription err = %v", err)
	}
	if err := s.UpdateSubscriptionState(ctx, &model.Subscription{FeedURL: "https://missing.example/"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("UpdateSubscriptionState err = %v", err)
	}
	if err := s.DeleteSubscription(ctx, "https://missing.example/"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("DeleteSubscription err = %v", err)
	}
}
