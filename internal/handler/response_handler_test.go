package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/response"
)

type mockResponseService struct {
	submitFn     func(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error)
	listByFormFn func(ctx context.Context, accountID, formID string, page, limit int) (*response.Page, error)
	getFn        func(ctx context.Context, accountID, responseID string) (*model.Response, error)
}

func (m *mockResponseService) Submit(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
	return m.submitFn(ctx, formID, answers)
}
func (m *mockResponseService) ListByForm(ctx context.Context, accountID, formID string, page, limit int) (*response.Page, error) {
	return m.listByFormFn(ctx, accountID, formID, page, limit)
}
func (m *mockResponseService) Get(ctx context.Context, accountID, responseID string) (*model.Response, error) {
	return m.getFn(ctx, accountID, responseID)
}

// newSubmitRequest はchiのURLパラメータ付きの送信リクエストを組み立てる。
func newSubmitRequest(formID string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/forms/"+formID+"/responses", bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("formID", formID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// 回答送信成功で201とレコードIDが返ることを検証
func TestSubmit_Created(t *testing.T) {
	service := &mockResponseService{
		submitFn: func(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
			return &model.Response{
				ID:               "resp-1",
				FormID:           formID,
				AirtableRecordID: "rec1",
				Status:           model.ResponseStatusSynced,
				CreatedAt:        time.Now(),
			}, nil
		},
	}
	h := NewResponseHandler(service)

	req := newSubmitRequest("form-1", []byte(`{"answers":{"name":"山田"}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var body submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.ID != "resp-1" || body.AirtableRecordID != "rec1" {
		t.Errorf("body = %+v, want resp-1/rec1", body)
	}
}

// 検証エラーが統一フォーマットのフィールドエラー付き400になることを検証
func TestSubmit_ValidationError_UnifiedFormat(t *testing.T) {
	service := &mockResponseService{
		submitFn: func(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
			return nil, model.NewValidationFailedError([]model.FieldError{
				{Field: "reason", Message: "理由 は必須項目です。"},
			})
		},
	}
	h := NewResponseHandler(service)

	req := newSubmitRequest("form-1", []byte(`{"answers":{}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var body middleware.ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if body.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %s", body.Code, model.ErrCodeValidationFailed)
	}
	if len(body.Errors) != 1 || body.Errors[0].Field != "reason" {
		t.Errorf("errors = %v, want single field error for reason", body.Errors)
	}
}

// 未知のフォームへの送信が404になることを検証
func TestSubmit_FormNotFound(t *testing.T) {
	service := &mockResponseService{
		submitFn: func(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
			return nil, model.NewFormNotFoundError(formID)
		},
	}
	h := NewResponseHandler(service)

	req := newSubmitRequest("form-missing", []byte(`{"answers":{}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// 不正なJSONボディが400になることを検証
func TestSubmit_MalformedBody(t *testing.T) {
	h := NewResponseHandler(&mockResponseService{})

	req := newSubmitRequest("form-1", []byte(`{broken`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// セッション切れがSESSION_EXPIREDの401になることを検証
func TestSubmit_SessionExpired(t *testing.T) {
	service := &mockResponseService{
		submitFn: func(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
			return nil, model.NewSessionExpiredError()
		},
	}
	h := NewResponseHandler(service)

	req := newSubmitRequest("form-1", []byte(`{"answers":{}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var body middleware.ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error body: %v", err)
	}
	if body.Code != model.ErrCodeSessionExpired {
		t.Errorf("code = %q, want %s", body.Code, model.ErrCodeSessionExpired)
	}
}

// 回答一覧がページングメタデータ付きで返ることを検証
func TestList_WithPagination(t *testing.T) {
	service := &mockResponseService{
		listByFormFn: func(ctx context.Context, accountID, formID string, page, limit int) (*response.Page, error) {
			if page != 2 || limit != 10 {
				t.Errorf("page = %d, limit = %d, want 2, 10", page, limit)
			}
			return &response.Page{
				Responses: []*model.Response{{ID: "resp-1", FormID: formID, Status: model.ResponseStatusSynced}},
				Page:      2,
				Limit:     10,
				Total:     15,
				Pages:     2,
			}, nil
		},
	}
	h := NewResponseHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/forms/form-1/responses?page=2&limit=10", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("formID", "form-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	req = req.WithContext(middleware.ContextWithAccountID(req.Context(), "owner-1"))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body listResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Pagination.Total != 15 || body.Pagination.Pages != 2 {
		t.Errorf("pagination = %+v, want total 15 pages 2", body.Pagination)
	}
}

// 認証コンテキストなしの一覧参照が401になることを検証
func TestList_Unauthorized(t *testing.T) {
	h := NewResponseHandler(&mockResponseService{})

	req := httptest.NewRequest(http.MethodGet, "/api/forms/form-1/responses", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// オーナー以外の一覧参照が403になることを検証
func TestList_AccessDenied(t *testing.T) {
	service := &mockResponseService{
		listByFormFn: func(ctx context.Context, accountID, formID string, page, limit int) (*response.Page, error) {
			return nil, model.NewAccessDeniedError()
		},
	}
	h := NewResponseHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/forms/form-1/responses", nil)
	req = req.WithContext(middleware.ContextWithAccountID(req.Context(), "intruder"))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
