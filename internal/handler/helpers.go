// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// Airtable API自体のエラーは上流エラーとして扱い、本文は漏らさない
	var upstreamErr *airtable.APIError
	if errors.As(err, &upstreamErr) {
		slog.Error("airtable api error",
			slog.Int("status_code", upstreamErr.StatusCode),
		)
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewAirtableError())
		return
	}

	// それ以外は内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidState, model.ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case model.ErrCodeSessionExpired, model.ErrCodeUnauthorized, model.ErrCodeBadSignature:
		return http.StatusUnauthorized
	case model.ErrCodeAccessDenied:
		return http.StatusForbidden
	case model.ErrCodeFormNotFound, model.ErrCodeResponseNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidTable:
		return http.StatusUnprocessableEntity
	case model.ErrCodeAuthFailed:
		return http.StatusInternalServerError
	case model.ErrCodeAirtableError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireAccountID はコンテキストからアカウントIDを取り出す。
// 見つからない場合は401を書き込んでfalseを返す。
func requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return accountID, true
}
