// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"errors"
)

// ErrNotFound は更新対象の行が存在しない場合のエラー。
var ErrNotFound = errors.New("row not found")

// Row は列名から値への対応。値は string, int, int64, bool, time.Time, *time.Time, []byte, nil のいずれか。
type Row map[string]any

// Query は Select の条件。Where は列の等値条件のANDで、nil値は IS NULL として扱う。
type Query struct {
	Table   string
	Columns []string
	Where   Row
	OrderBy string
	Desc    bool
	Limit   int
}

// RowStore は行単位の永続化インターフェース。
// ストア層は列名と値だけを扱い、SQLの組み立ては実装が担う。
type RowStore interface {
	// Insert は1行を追加する。
	Insert(ctx context.Context, table string, row Row) error

	// Update は key に一致する行を values で更新し、更新行数を返す。
	Update(ctx context.Context, table string, key Row, values Row) (int64, error)

	// Select は条件に一致する行を返す。一致しなければ空のスライス。
	Select(ctx context.Context, q Query) ([]Row, error)

	// Delete は key に一致する行を削除し、削除行数を返す。
	Delete(ctx context.Context, table string, key Row) (int64, error)
}
