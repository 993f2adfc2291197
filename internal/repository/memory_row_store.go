package repository

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryRowStore はプロセス内メモリに行を保持する RowStore。
// DATABASE_URL なしで起動した場合とテストで使う。
type MemoryRowStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemoryRowStore は空のMemoryRowStoreを生成する。
func NewMemoryRowStore() *MemoryRowStore {
	return &MemoryRowStore{tables: make(map[string][]Row)}
}

// Insert は行のコピーを追加する。
func (s *MemoryRowStore) Insert(ctx context.Context, table string, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], copyRow(row))
	return nil
}

// Update は key に一致する行を更新する。
func (s *MemoryRowStore) Update(ctx context.Context, table string, key Row, values Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.tables[table] {
		if !matches(row, key) {
			continue
		}
		for c, v := range values {
			row[c] = normalize(v)
		}
		n++
	}
	return n, nil
}

// Delete は key に一致する行を削除する。
func (s *MemoryRowStore) Delete(ctx context.Context, table string, key Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	kept := rows[:0]
	for _, row := range rows {
		if !matches(row, key) {
			kept = append(kept, row)
		}
	}
	n := int64(len(rows) - len(kept))
	clear(rows[len(kept):])
	s.tables[table] = kept
	return n, nil
}

// Select は条件に一致する行のコピーを返す。
// 並べ替えと件数制限は列の射影より前に行うため、OrderBy は Columns に含まれなくてよい。
func (s *MemoryRowStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Row
	for _, row := range s.tables[q.Table] {
		if matches(row, q.Where) {
			matched = append(matched, row)
		}
	}

	if q.OrderBy != "" {
		if err := sortRows(matched, q.OrderBy, q.Desc); err != nil {
			return nil, fmt.Errorf("%s の並べ替えに失敗しました: %w", q.Table, err)
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	if len(matched) == 0 {
		return nil, nil
	}
	result := make([]Row, len(matched))
	for i, row := range matched {
		out := make(Row, len(q.Columns))
		for _, c := range q.Columns {
			out[c] = row[c]
		}
		result[i] = out
	}
	return result, nil
}

// sortRows は列 col で安定ソートする。nil は並び順にかかわらず末尾に置く。
func sortRows(rows []Row, col string, desc bool) error {
	var sortErr error
	slices.SortStableFunc(rows, func(a, b Row) int {
		av, bv := a[col], b[col]
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		c, err := compareValues(av, bv)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if desc {
			return -c
		}
		return c
	})
	return sortErr
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	for c, v := range row {
		out[c] = normalize(v)
	}
	return out
}

// normalize はポインタの時刻を値に展開し、nilポインタを nil にする。
func normalize(v any) any {
	switch x := v.(type) {
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return bytes.Clone(x)
	}
	return v
}

func matches(row, key Row) bool {
	for c, want := range key {
		if !equalValues(row[c], normalize(want)) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case int:
		return toInt64(b) == int64(x)
	case int64:
		return toInt64(b) == x
	}
	return a == b
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	}
	return -1 << 63
}

// compareValues は同じ型の非nil値を比較する。
func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), nil
		}
	case int, int64:
		return cmp.Compare(toInt64(x), toInt64(b)), nil
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("比較できない値の組み合わせです: %T, %T", a, b)
}
