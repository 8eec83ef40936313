package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/response"
)

// ResponseServiceInterface は回答ハンドラーが必要とするサービスインターフェース。
type ResponseServiceInterface interface {
	// Submit は回答を受け付けてAirtableへ同期し、永続化する。
	Submit(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error)
	// ListByForm はフォームの回答一覧をページングで返す。
	ListByForm(ctx context.Context, accountID, formID string, page, limit int) (*response.Page, error)
	// Get は1件の回答を返す。
	Get(ctx context.Context, accountID, responseID string) (*model.Response, error)
}

// ResponseHandler は回答のHTTPハンドラー。
type ResponseHandler struct {
	service ResponseServiceInterface
}

// NewResponseHandler はResponseHandlerを生成する。
func NewResponseHandler(service ResponseServiceInterface) *ResponseHandler {
	return &ResponseHandler{
		service: service,
	}
}

// submitRequest は回答送信リクエストのボディ。
type submitRequest struct {
	Answers model.AnswerMap `json:"answers"`
}

// submitResponse は回答送信のAPIレスポンス。
type submitResponse struct {
	ID               string    `json:"id"`
	AirtableRecordID string    `json:"airtableRecordId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// responseDetail は回答1件のAPIレスポンス。
type responseDetail struct {
	ID               string          `json:"id"`
	FormID           string          `json:"formId"`
	AirtableRecordID string          `json:"airtableRecordId"`
	Answers          model.AnswerMap `json:"answers"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// paginationMeta は一覧レスポンスのページングメタデータ。
type paginationMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// listResponseBody は回答一覧のAPIレスポンス。
type listResponseBody struct {
	Responses  []responseDetail `json:"responses"`
	Pagination paginationMeta   `json:"pagination"`
}

func toResponseDetail(resp *model.Response) responseDetail {
	return responseDetail{
		ID:               resp.ID,
		FormID:           resp.FormID,
		AirtableRecordID: resp.AirtableRecordID,
		Answers:          resp.Answers,
		Status:           string(resp.Status),
		CreatedAt:        resp.CreatedAt,
		UpdatedAt:        resp.UpdatedAt,
	}
}

// Submit は回答を受け付ける。回答者向けのため認証不要。
// POST /api/forms/{formID}/responses
func (h *ResponseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	resp, err := h.service.Submit(r.Context(), chi.URLParam(r, "formID"), req.Answers)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		ID:               resp.ID,
		AirtableRecordID: resp.AirtableRecordID,
		CreatedAt:        resp.CreatedAt,
	})
}

// List はフォームの回答一覧をページングで取得する。
// GET /api/forms/{formID}/responses
func (h *ResponseHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	result, err := h.service.ListByForm(r.Context(), accountID, chi.URLParam(r, "formID"), page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body := listResponseBody{
		Responses: make([]responseDetail, len(result.Responses)),
		Pagination: paginationMeta{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages,
		},
	}
	for i, resp := range result.Responses {
		body.Responses[i] = toResponseDetail(resp)
	}
	writeJSON(w, http.StatusOK, body)
}

// Get は1件の回答を取得する。
// GET /api/responses/{id}
func (h *ResponseHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Get(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponseDetail(resp))
}

// queryInt はクエリパラメータを整数として読む。不正な値はデフォルトに落とす。
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
