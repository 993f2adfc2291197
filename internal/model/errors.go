// Package model はパーサが生成するドメインモデルとエラー型を定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrDataFormat はルート要素が期待する文書種別と一致しないことを表す。
// errors.Is で DataFormatError と照合できる。
var ErrDataFormat = errors.New("data format error")

// ErrMalformedInput はスキャナが入力をトークン化できなかったことを表す。
var ErrMalformedInput = errors.New("malformed input")

// DataFormatError は文書のルート要素が認識できない場合のエラー。
// 部分的なモデルは返さない。
type DataFormatError struct {
	Expected string // 期待した文書種別: "feed", "opml"
	Root     string // 実際のルート要素名（空ならルート要素なし）
}

// Error はerrorインターフェースを実装する。
func (e *DataFormatError) Error() string {
	if e.Root == "" {
		return fmt.Sprintf("データ形式が不正です: %s のルート要素がありません", e.Expected)
	}
	return fmt.Sprintf("データ形式が不正です: %s を期待しましたがルート要素は <%s> です", e.Expected, e.Root)
}

// Is は ErrDataFormat との比較を可能にする。
func (e *DataFormatError) Is(target error) bool {
	return target == ErrDataFormat
}

// MalformedInputError は入力がXMLとして解釈できない場合のエラー。
// ルート要素の終了タグより前に入力が途切れた場合もこのエラーになる。
type MalformedInputError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *MalformedInputError) Error() string {
	if e.Err == nil {
		return "入力を解析できません"
	}
	return fmt.Sprintf("入力を解析できません: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Is は ErrMalformedInput との比較を可能にする。
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, opml, html, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFeedNotDetected      = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeFetchFailed          = "FETCH_FAILED"
	ErrCodeParseFailed          = "PARSE_FAILED"
	ErrCodeDataFormat           = "DATA_FORMAT"
	ErrCodeMalformedInput       = "MALFORMED_INPUT"
	ErrCodeBodyTooLarge         = "BODY_TOO_LARGE"
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeFeedNotFound         = "FEED_NOT_FOUND"
	ErrCodeEmptyDocument        = "EMPTY_DOCUMENT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidLimit         = "INVALID_LIMIT"
)

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "feed",
		Action:   "RSS/AtomフィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "feed",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "文書の解析に失敗しました。",
		Category: "feed",
		Action:   "有効なRSS/Atom/OPML文書かどうか確認してください。",
	}
}

// NewUnsupportedFormatError は文書種別の不一致エラーを生成する。
func NewUnsupportedFormatError(expected, root string) *APIError {
	return &APIError{
		Code:     ErrCodeDataFormat,
		Message:  (&DataFormatError{Expected: expected, Root: root}).Error(),
		Category: "validation",
		Action:   fmt.Sprintf("%s 形式の文書を送信してください。", expected),
	}
}

// NewMalformedDocumentError は文書が壊れている場合のエラーを生成する。
func NewMalformedDocumentError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedInput,
		Message:  "文書がXMLとして解釈できないか、途中で途切れています。",
		Category: "validation",
		Action:   "文書全体が正しく送信されているか確認してください。",
	}
}

// NewBodyTooLargeError はリクエストボディが上限を超えた場合のエラーを生成する。
func NewBodyTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeBodyTooLarge,
		Message:  fmt.Sprintf("リクエストボディが上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "文書のサイズを小さくしてから再度お試しください。",
	}
}

// NewSubscriptionNotFoundError は購読が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(feedURL string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された購読が見つかりません: %s", feedURL),
		Category: "feed",
		Action:   "購読一覧からフィードURLを確認してください。",
	}
}

// NewFeedNotFoundError は保存済みフィードが見つからない場合のエラーを生成する。
func NewFeedNotFoundError(feedURL string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードは登録されていません: %s", feedURL),
		Category: "feed",
		Action:   "先にフィードを登録してください。",
	}
}

// NewEmptyDocumentError は解析する文書が空の場合のエラーを生成する。
func NewEmptyDocumentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyDocument,
		Message:  "解析する文書がありません。",
		Category: "validation",
		Action:   "リクエストボディに文書を含めるか、url パラメータを指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディが解釈できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidLimitError は件数指定が不正な場合のエラーを生成する。
func NewInvalidLimitError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("limit は正の整数で指定してください: %q", value),
		Category: "validation",
		Action:   "limit パラメータを確認してください。",
	}
}

// NewDocumentError は解析エラーを利用者向けの APIError に変換する。
func NewDocumentError(err error) *APIError {
	var dfe *DataFormatError
	switch {
	case errors.As(err, &dfe):
		return NewUnsupportedFormatError(dfe.Expected, dfe.Root)
	case errors.Is(err, ErrMalformedInput):
		return NewMalformedDocumentError()
	default:
		return NewParseFailedError()
	}
}
