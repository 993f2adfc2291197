package fetch

import (
	"fmt"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop はフェッチ停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗によるフェッチ停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for range consecutiveErrors {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyStop は購読のフェッチを停止し、理由を記録する。
func ApplyStop(sub *model.Subscription, reason string) {
	sub.FetchStatus = model.FetchStatusStopped
	sub.ErrorMessage = reason
}

// ApplyBackoff は連続エラー回数を加算し、指数バックオフで次回フェッチ時刻を設定する。
func ApplyBackoff(sub *model.Subscription, reason string, now time.Time) {
	sub.ConsecutiveErrors++
	sub.ErrorMessage = reason
	sub.NextFetchAt = now.Add(CalculateBackoff(sub.ConsecutiveErrors - 1))
}

// ApplySuccess は連続エラー回数とエラーメッセージをリセットし、interval 後を次回フェッチ時刻にする。
func ApplySuccess(sub *model.Subscription, interval time.Duration, now time.Time) {
	sub.ConsecutiveErrors = 0
	sub.ErrorMessage = ""
	sub.NextFetchAt = now.Add(interval)
}

// CheckParseFailureThreshold はパース失敗回数が閾値に達しているかを確認する。
func CheckParseFailureThreshold(sub *model.Subscription) bool {
	return sub.ConsecutiveErrors >= parseFailureThreshold
}

// ApplyParseFailure はパース失敗を記録する。閾値に達したらフェッチを停止する。
// 停止しない場合は通常のバックオフで再試行する。
func ApplyParseFailure(sub *model.Subscription, reason string, now time.Time) {
	ApplyBackoff(sub, "", now)
	sub.ErrorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", sub.ConsecutiveErrors, reason)

	if CheckParseFailureThreshold(sub) {
		sub.FetchStatus = model.FetchStatusStopped
		sub.ErrorMessage = fmt.Sprintf("パース失敗が%d回連続したためフェッチを停止しました: %s", sub.ConsecutiveErrors, reason)
	}
}
