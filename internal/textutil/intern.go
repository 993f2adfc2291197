package textutil

// Interner は同じ内容の文字列を1つのインスタンスに集約する。
// 1ドキュメントのパース中に繰り返し現れるタグ名や属性名の再確保を避けるために使う。
// 並行利用は想定しない。
type Interner struct {
	table map[string]string
}

// NewInterner はInternerの新しいインスタンスを生成する。
func NewInterner() *Interner {
	return &Interner{table: make(map[string]string, 64)}
}

// Intern はsと等しい登録済み文字列を返す。未登録ならsを登録して返す。
func (in *Interner) Intern(s string) string {
	if v, ok := in.table[s]; ok {
		return v
	}
	in.table[s] = s
	return s
}

// InternBytes はバイト列版のIntern。登録済みの場合は確保を行わない。
func (in *Interner) InternBytes(b []byte) string {
	// map[string(b)] の参照はコンパイラによって確保なしで行われる
	if v, ok := in.table[string(b)]; ok {
		return v
	}
	s := string(b)
	in.table[s] = s
	return s
}

// Len は登録済みの文字列数を返す。
func (in *Interner) Len() int {
	return len(in.table)
}
