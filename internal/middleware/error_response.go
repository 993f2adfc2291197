package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/feedkit/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode は定義済みエラーコードに対応するHTTPステータス。
var statusByCode = map[string]int{
	model.ErrCodeInvalidURL:           http.StatusBadRequest,
	model.ErrCodeSSRFBlocked:          http.StatusForbidden,
	model.ErrCodeFeedNotDetected:      http.StatusUnprocessableEntity,
	model.ErrCodeSubscriptionNotFound: http.StatusNotFound,
	model.ErrCodeFeedNotFound:         http.StatusNotFound,
	model.ErrCodeEmptyDocument:        http.StatusBadRequest,
	model.ErrCodeInvalidRequest:       http.StatusBadRequest,
	model.ErrCodeInvalidLimit:         http.StatusBadRequest,
	model.ErrCodeBodyTooLarge:         http.StatusRequestEntityTooLarge,
	model.ErrCodeDataFormat:           http.StatusUnprocessableEntity,
	model.ErrCodeMalformedInput:       http.StatusUnprocessableEntity,
	model.ErrCodeParseFailed:          http.StatusUnprocessableEntity,
	model.ErrCodeFetchFailed:          http.StatusBadGateway,
}

// StatusForAPIError はエラーコードからHTTPステータスを決める。未知のコードは500。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はエラーコードに応じたステータスで書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
