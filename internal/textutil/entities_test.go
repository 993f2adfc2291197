package textutil

import "testing"

func TestDecodeEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"エンティティなし", "plain text", "plain text"},
		{"XML定義済み", "a &lt;b&gt; &amp; &quot;c&quot; &apos;d&apos;", `a <b> & "c" 'd'`},
		{"HTML名前付き", "caf&eacute; &copy; 2024", "café © 2024"},
		{"10進数値参照", "&#8217;quoted&#8217;", "’quoted’"},
		{"16進数値参照", "&#x263A;", "☺"},
		{"未知のエンティティはそのまま", "&bogus; &", "&bogus; &"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeEntities(tt.input); got != tt.want {
				t.Errorf("DecodeEntities(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeRequiredEntities(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"a < b > c & d", "a &lt; b &gt; c &amp; d"},
		// 引用符はエスケープしない
		{`"quoted" 'single'`, `"quoted" 'single'`},
		{"&amp;", "&amp;amp;"},
	}

	for _, tt := range tests {
		if got := EncodeRequiredEntities(tt.input); got != tt.want {
			t.Errorf("EncodeRequiredEntities(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestEntities_RoundTrip は必須3文字のエンコード結果が元に戻ることを検証する。
func TestEntities_RoundTrip(t *testing.T) {
	input := `<p class="x">Tom & Jerry</p>`
	if got := DecodeEntities(EncodeRequiredEntities(input)); got != input {
		t.Errorf("round trip = %q, want %q", got, input)
	}
}
