package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PostgresRowStore はPostgreSQLを使用した RowStore。
type PostgresRowStore struct {
	db *sql.DB
}

// NewPostgresRowStore はPostgresRowStoreを生成する。
func NewPostgresRowStore(db *sql.DB) *PostgresRowStore {
	return &PostgresRowStore{db: db}
}

// Insert は1行を追加する。
func (s *PostgresRowStore) Insert(ctx context.Context, table string, row Row) error {
	query, args := buildInsert(table, row)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s への追加に失敗しました: %w", table, err)
	}
	return nil
}

// Update は key に一致する行を更新する。
func (s *PostgresRowStore) Update(ctx context.Context, table string, key Row, values Row) (int64, error) {
	query, args := buildUpdate(table, key, values)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s の更新に失敗しました: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s の更新件数の取得に失敗しました: %w", table, err)
	}
	return n, nil
}

// Delete は key に一致する行を削除する。
func (s *PostgresRowStore) Delete(ctx context.Context, table string, key Row) (int64, error) {
	where, args := buildWhere(key, 1)
	query := "DELETE FROM " + pq.QuoteIdentifier(table) + where
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s の削除に失敗しました: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s の削除件数の取得に失敗しました: %w", table, err)
	}
	return n, nil
}

// Select は条件に一致する行を返す。
func (s *PostgresRowStore) Select(ctx context.Context, q Query) ([]Row, error) {
	query, args := buildSelect(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s の取得に失敗しました: %w", q.Table, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		values := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s の読み取りに失敗しました: %w", q.Table, err)
		}
		row := make(Row, len(q.Columns))
		for i, col := range q.Columns {
			// text列はドライバから []byte で返ることがある
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s の読み取りに失敗しました: %w", q.Table, err)
	}
	return result, nil
}

// sortedColumns は列名を昇順に並べる。SQL文とプレースホルダの対応を安定させる。
func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func buildInsert(table string, row Row) (string, []any) {
	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		marks[i] = placeholder(i + 1)
		args[i] = row[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return query, args
}

func buildUpdate(table string, key, values Row) (string, []any) {
	cols := sortedColumns(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(key))
	for i, c := range cols {
		sets[i] = pq.QuoteIdentifier(c) + " = " + placeholder(i+1)
		args = append(args, values[c])
	}
	where, whereArgs := buildWhere(key, len(cols)+1)
	query := "UPDATE " + pq.QuoteIdentifier(table) + " SET " + strings.Join(sets, ", ") + where
	return query, append(args, whereArgs...)
}

func buildSelect(q Query) (string, []any) {
	quoted := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	where, args := buildWhere(q.Where, 1)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(q.Table))
	b.WriteString(where)
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(pq.QuoteIdentifier(q.OrderBy))
		if q.Desc {
			b.WriteString(" DESC")
		}
		b.WriteString(" NULLS LAST")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String(), args
}

// buildWhere は等値条件を組み立てる。start はプレースホルダの開始番号。
func buildWhere(key Row, start int) (string, []any) {
	if len(key) == 0 {
		return "", nil
	}
	cols := sortedColumns(key)
	conds := make([]string, len(cols))
	var args []any
	n := start
	for i, c := range cols {
		if key[c] == nil {
			conds[i] = pq.QuoteIdentifier(c) + " IS NULL"
			continue
		}
		conds[i] = pq.QuoteIdentifier(c) + " = " + placeholder(n)
		args = append(args, key[c])
		n++
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
