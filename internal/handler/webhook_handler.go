package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/webhook"
)

// signatureHeader はAirtableがWebhook通知に付与するMACヘッダー。
const signatureHeader = "X-Airtable-Content-MAC"

// ReconcilerInterface はWebhookハンドラーが必要とする突合処理のインターフェース。
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, notification *webhook.Notification) webhook.Result
}

// WebhookHandler はAirtable Webhook通知のHTTPハンドラー。
type WebhookHandler struct {
	reconciler ReconcilerInterface
	secret     string
	logger     *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
// secretが空の場合は署名検証をスキップする。
func NewWebhookHandler(reconciler ReconcilerInterface, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
		logger:     logger,
	}
}

// Receive はWebhook通知を受信して突合処理を行う。
// 署名不一致は401、ボディ不正は400。解釈に成功すれば
// 未知レコードや個別の失敗があっても200を返す。
// POST /webhooks/airtable
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	if !webhook.VerifySignature(h.secret, body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("Webhook署名の検証に失敗しました",
			slog.String("remote_addr", r.RemoteAddr),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewBadSignatureError())
		return
	}

	var notification webhook.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	result := h.reconciler.Reconcile(r.Context(), &notification)
	h.logger.Info("Webhook通知を処理しました",
		slog.Int("matched", result.Matched),
		slog.Int("missing", result.Missing),
		slog.Int("failed", result.Failed),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"matched": result.Matched,
	})
}

// Ping はWebhookエンドポイントの疎通確認に応答する。
// GET /webhooks/airtable/ping
func (h *WebhookHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
