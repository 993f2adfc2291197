package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/opml"
)

// SubscriptionStore は購読の保存先。*store.FeedStore が実装する。
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	SaveSubscriptions(ctx context.Context, doc *model.OPMLDocument) (int, error)
	ResumeSubscription(ctx context.Context, feedURL string) error
	DeleteSubscription(ctx context.Context, feedURL string) error
}

// SubscriptionHandler は購読管理のHTTPハンドラー。
type SubscriptionHandler struct {
	store  SubscriptionStore
	parser *ParseHandler
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。OPMLの読み込みには parser を使う。
func NewSubscriptionHandler(store SubscriptionStore, parser *ParseHandler) *SubscriptionHandler {
	return &SubscriptionHandler{store: store, parser: parser}
}

// ListSubscriptions は購読一覧を返す。
// GET /api/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]subscriptionResponse, len(subs))
	for i, s := range subs {
		resp[i] = toSubscriptionResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportOPML はOPML文書に含まれるフィードを購読として保存する。登録済みのフィードは飛ばす。
// POST /api/opml/import
func (h *SubscriptionHandler) ImportOPML(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.parser.parseOPML(w, r)
	if !ok {
		return
	}

	added, err := h.store.SaveSubscriptions(r.Context(), doc)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toOPMLResponse(doc, opml.Feeds(doc))
	resp.Imported = &added
	writeJSON(w, http.StatusOK, resp)
}

// ResumeSubscription は停止中の購読のフェッチを再開する。
// POST /api/subscriptions/resume?url=
func (h *SubscriptionHandler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	feedURL, ok := feedURLParam(w, r)
	if !ok {
		return
	}
	if err := h.store.ResumeSubscription(r.Context(), feedURL); err != nil {
		handleStoreError(w, err, feedURL)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSubscription は購読を解除する。
// DELETE /api/subscriptions?url=
func (h *SubscriptionHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	feedURL, ok := feedURLParam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteSubscription(r.Context(), feedURL); err != nil {
		handleStoreError(w, err, feedURL)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func feedURLParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	feedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if feedURL == "" {
		middleware.WriteAPIError(w, model.NewInvalidURLError("url パラメータが指定されていません"))
		return "", false
	}
	return feedURL, true
}
