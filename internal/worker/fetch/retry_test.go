package fetch

import (
	"testing"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FetchResult
	}{
		{200, FetchResultOK},
		{304, FetchResultNotModified},
		{404, FetchResultStop},
		{410, FetchResultStop},
		{401, FetchResultStop},
		{403, FetchResultStop},
		{429, FetchResultBackoff},
		{500, FetchResultBackoff},
		{502, FetchResultBackoff},
		{503, FetchResultBackoff},
		{302, FetchResultUnknown},
		{418, FetchResultUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, 60 * time.Minute},
		{2, 120 * time.Minute},
		{5, 12 * time.Hour},
		{100, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestApplyStop(t *testing.T) {
	sub := &model.Subscription{FetchStatus: model.FetchStatusActive}

	ApplyStop(sub, "404 Not Found")

	if sub.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want %q", sub.FetchStatus, model.FetchStatusStopped)
	}
	if sub.ErrorMessage == "" {
		t.Error("ErrorMessage は設定されるべき")
	}
}

func TestApplyBackoff(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &model.Subscription{ConsecutiveErrors: 3}

	ApplyBackoff(sub, "500 Internal Server Error", now)

	if sub.ConsecutiveErrors != 4 {
		t.Errorf("ConsecutiveErrors = %d, want 4", sub.ConsecutiveErrors)
	}
	if want := now.Add(4 * time.Hour); !sub.NextFetchAt.Equal(want) {
		t.Errorf("NextFetchAt = %v, want %v", sub.NextFetchAt, want)
	}
	if sub.ErrorMessage == "" {
		t.Error("ErrorMessage は設定されるべき")
	}
}

func TestApplySuccess(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &model.Subscription{
		FetchStatus:       model.FetchStatusActive,
		ConsecutiveErrors: 5,
		ErrorMessage:      "previous error",
	}

	ApplySuccess(sub, time.Hour, now)

	if sub.ConsecutiveErrors != 0 || sub.ErrorMessage != "" {
		t.Errorf("エラー状態がリセットされていない: %+v", sub)
	}
	if want := now.Add(time.Hour); !sub.NextFetchAt.Equal(want) {
		t.Errorf("NextFetchAt = %v, want %v", sub.NextFetchAt, want)
	}
}

func TestCheckParseFailureThreshold(t *testing.T) {
	for _, tt := range []struct {
		errors int
		want   bool
	}{{8, false}, {10, true}, {15, true}} {
		sub := &model.Subscription{ConsecutiveErrors: tt.errors}
		if got := CheckParseFailureThreshold(sub); got != tt.want {
			t.Errorf("CheckParseFailureThreshold(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestApplyParseFailure(t *testing.T) {
	now := time.Now()
	sub := &model.Subscription{FetchStatus: model.FetchStatusActive}

	ApplyParseFailure(sub, "invalid XML", now)

	if sub.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", sub.ConsecutiveErrors)
	}
	if sub.FetchStatus != model.FetchStatusActive {
		t.Error("1回目のパース失敗ではまだアクティブであるべき")
	}
	if !sub.NextFetchAt.After(now) {
		t.Error("パース失敗後の再試行はバックオフされるべき")
	}
}

func TestApplyParseFailure_StopsAt10(t *testing.T) {
	sub := &model.Subscription{FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 9}

	ApplyParseFailure(sub, "invalid XML", time.Now())

	if sub.ConsecutiveErrors != 10 {
		t.Errorf("ConsecutiveErrors = %d, want 10", sub.ConsecutiveErrors)
	}
	if sub.FetchStatus != model.FetchStatusStopped {
		t.Errorf("10回連続パース失敗で停止されるべき: FetchStatus = %q", sub.FetchStatus)
	}
}
