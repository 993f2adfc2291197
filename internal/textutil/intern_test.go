package textutil

import (
	"testing"
	"unsafe"
)

func TestInterner_ReturnsSameInstance(t *testing.T) {
	in := NewInterner()

	a := in.InternBytes([]byte("item"))
	b := in.Intern(string([]byte("item")))

	if a != b {
		t.Fatalf("値が一致しない: %q != %q", a, b)
	}
	if unsafe.StringData(a) != unsafe.StringData(b) {
		t.Error("同じ内容の文字列は同じインスタンスを返すべき")
	}
	if in.Len() != 1 {
		t.Errorf("Len() = %d, want 1", in.Len())
	}
}

func TestInterner_InternBytesDoesNotAliasInput(t *testing.T) {
	in := NewInterner()
	buf := []byte("title")
	s := in.InternBytes(buf)
	buf[0] = 'X'

	if s != "title" {
		t.Errorf("入力バッファの変更が反映されてはならない: got %q", s)
	}
}

func TestInterner_RegisteredLookupDoesNotAllocate(t *testing.T) {
	in := NewInterner()
	in.Intern("channel")
	buf := []byte("channel")

	allocs := testing.AllocsPerRun(100, func() {
		_ = in.InternBytes(buf)
	})
	if allocs != 0 {
		t.Errorf("登録済み文字列の参照で確保が発生した: %v", allocs)
	}
}
