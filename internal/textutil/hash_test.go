package textutil

import "testing"

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash("https://example.com/feed", "Title", "https://example.com/1")
	b := ContentHash("https://example.com/feed", "Title", "https://example.com/1")
	if a != b {
		t.Errorf("同じ入力で異なるハッシュ: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestContentHash_WhitespaceNormalized(t *testing.T) {
	a := ContentHash("  Hello   World ")
	b := ContentHash("Hello World")
	if a != b {
		t.Error("空白の差異は同じハッシュになるべき")
	}
}

func TestContentHash_CaseSensitive(t *testing.T) {
	if ContentHash("Title") == ContentHash("title") {
		t.Error("大文字小文字は区別されるべき")
	}
}

func TestContentHash_FieldBoundary(t *testing.T) {
	if ContentHash("ab", "c") == ContentHash("a", "bc") {
		t.Error("フィールド境界が異なれば異なるハッシュになるべき")
	}
}
