package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPostgresRowStore_ImplementsInterface(t *testing.T) {
	var _ RowStore = (*PostgresRowStore)(nil)
	var _ RowStore = (*MemoryRowStore)(nil)
}

func TestBuildInsert_SortsColumns(t *testing.T) {
	query, args := buildInsert("articles", Row{"title": "t", "article_id": "a", "feed_url": "f"})

	want := `INSERT INTO "articles" ("article_id", "feed_url", "title") VALUES ($1, $2, $3)`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if diff := cmp.Diff([]any{"a", "f", "t"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildUpdate_NumbersKeyAfterValues(t *testing.T) {
	query, args := buildUpdate("feeds", Row{"url": "u"}, Row{"title": "T", "language": "ja"})

	want := `UPDATE "feeds" SET "language" = $1, "title" = $2 WHERE "url" = $3`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if diff := cmp.Diff([]any{"ja", "T", "u"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSelect(t *testing.T) {
	query, args := buildSelect(Query{
		Table:   "articles",
		Columns: []string{"article_id", "title"},
		Where:   Row{"feed_url": "f", "date_published": nil},
		OrderBy: "date_published",
		Desc:    true,
		Limit:   50,
	})

	want := `SELECT "article_id", "title" FROM "articles" WHERE "date_published" IS NULL AND "feed_url" = $1 ORDER BY "date_published" DESC NULLS LAST LIMIT 50`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if diff := cmp.Diff([]any{"f"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSelect_AscendingNullsLast(t *testing.T) {
	query, _ := buildSelect(Query{Table: "articles", Columns: []string{"article_id"}, OrderBy: "date_published"})
	if want := `SELECT "article_id" FROM "articles" ORDER BY "date_published" NULLS LAST`; query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
}

func TestBuildSelect_QuotesIdentifiers(t *testing.T) {
	query, _ := buildSelect(Query{Table: `weird"table`, Columns: []string{"a"}})
	if want := `SELECT "a" FROM "weird""table"`; query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
}

func TestMemoryRowStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRowStore()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	mustInsert := func(row Row) {
		t.Helper()
		if err := s.Insert(ctx, "articles", row); err != nil {
			t.Fatal(err)
		}
	}
	mustInsert(Row{"id": "1", "feed_url": "f", "published": &t1, "count": 1})
	mustInsert(Row{"id": "2", "feed_url": "f", "published": t2, "count": 2})
	mustInsert(Row{"id": "3", "feed_url": "g", "published": (*time.Time)(nil), "count": 3})

	rows, err := s.Select(ctx, Query{Table: "articles", Columns: []string{"id"}, Where: Row{"feed_url": "f"}, OrderBy: "published", Desc: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Row{{"id": "2"}, {"id": "1"}}, rows); diff != "" {
		t.Errorf("Select mismatch (-want +got):\n%s", diff)
	}

	rows, err = s.Select(ctx, Query{Table: "articles", Columns: []string{"id"}, Where: Row{"published": nil}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] != "3" {
		t.Errorf("nil の条件は IS NULL として扱われるべき: %v", rows)
	}

	n, err := s.Update(ctx, "articles", Row{"count": int64(2)}, Row{"feed_url": "h"})
	if err != nil || n != 1 {
		t.Fatalf("Update() = %d, %v", n, err)
	}

	n, err = s.Delete(ctx, "articles", Row{"feed_url": "f"})
	if err != nil || n != 1 {
		t.Fatalf("Delete() = %d, %v", n, err)
	}
	rows, _ = s.Select(ctx, Query{Table: "articles", Columns: []string{"id"}, OrderBy: "id"})
	if diff := cmp.Diff([]Row{{"id": "2"}, {"id": "3"}}, rows); diff != "" {
		t.Errorf("after delete mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRowStore_SortsByUnselectedColumn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRowStore()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, row := range []Row{
		{"id": "old", "published": t1},
		{"id": "undated", "published": nil},
		{"id": "new", "published": t1.Add(time.Hour)},
	} {
		if err := s.Insert(ctx, "articles", row); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		desc  bool
		limit int
		want  []Row
	}{
		{"desc", true, 0, []Row{{"id": "new"}, {"id": "old"}, {"id": "undated"}}},
		{"asc", false, 0, []Row{{"id": "old"}, {"id": "new"}, {"id": "undated"}}},
		{"desc limit", true, 1, []Row{{"id": "new"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Select(ctx, Query{Table: "articles", Columns: []string{"id"}, OrderBy: "published", Desc: tt.desc, Limit: tt.limit})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, rows); diff != "" {
				t.Errorf("Select mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryRowStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRowStore()
	row := Row{"id": "1", "title": "before"}
	if err := s.Insert(ctx, "feeds", row); err != nil {
		t.Fatal(err)
	}
	row["title"] = "mutated"

	rows, _ := s.Select(ctx, Query{Table: "feeds", Columns: []string{"title"}})
	rows[0]["title"] = "changed"

	again, _ := s.Select(ctx, Query{Table: "feeds", Columns: []string{"title"}})
	if again[0]["title"] != "before" {
		t.Errorf("title = %v, want before", again[0]["title"])
	}
}

func TestMemoryRowStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryRowStore().Insert(ctx, "feeds", Row{}); err == nil {
		t.Error("expected error for canceled context")
	}
}
