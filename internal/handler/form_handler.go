package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/form"
	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
)

// FormServiceInterface はフォームハンドラーが必要とするサービスインターフェース。
type FormServiceInterface interface {
	// CreateForm はフォームを作成する。
	CreateForm(ctx context.Context, ownerID string, in form.CreateFormInput) (*model.Form, error)
	// GetForm は指定IDのフォームを返す。
	GetForm(ctx context.Context, formID string) (*model.Form, error)
	// ListForms はオーナーのフォーム一覧を返す。
	ListForms(ctx context.Context, ownerID string) ([]*model.Form, error)
	// ListBases はアカウントがアクセス可能なベース一覧を返す。
	ListBases(ctx context.Context, accountID string) ([]model.Base, error)
	// BaseSchema はベースのテーブルスキーマを返す。
	BaseSchema(ctx context.Context, accountID, baseID string) ([]airtable.Table, error)
}

// FormHandler はフォーム定義のHTTPハンドラー。
type FormHandler struct {
	service FormServiceInterface
}

// NewFormHandler はFormHandlerを生成する。
func NewFormHandler(service FormServiceInterface) *FormHandler {
	return &FormHandler{
		service: service,
	}
}

// formResponse はフォーム定義のAPIレスポンス。
type formResponse struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	AirtableBaseID  string           `json:"airtableBaseId"`
	AirtableTableID string           `json:"airtableTableId"`
	Questions       []model.Question `json:"questions"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func toFormResponse(f *model.Form) formResponse {
	return formResponse{
		ID:              f.ID,
		Title:           f.Title,
		AirtableBaseID:  f.AirtableBaseID,
		AirtableTableID: f.AirtableTableID,
		Questions:       f.Questions,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// CreateForm はフォームを作成する。
// POST /api/forms
func (h *FormHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var in form.CreateFormInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	created, err := h.service.CreateForm(r.Context(), accountID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFormResponse(created))
}

// GetForm はフォーム定義を取得する。回答画面の描画用に認証不要。
// GET /api/forms/{formID}
func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.GetForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFormResponse(f))
}

// ListForms はオーナーのフォーム一覧を取得する。
// GET /api/forms
func (h *FormHandler) ListForms(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	forms, err := h.service.ListForms(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]formResponse, len(forms))
	for i, f := range forms {
		results[i] = toFormResponse(f)
	}
	writeJSON(w, http.StatusOK, results)
}

// ListBases はアカウントがアクセス可能なAirtableベース一覧を取得する。
// GET /api/airtable/bases
func (h *FormHandler) ListBases(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	bases, err := h.service.ListBases(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bases)
}

// BaseSchema はベースのテーブルスキーマを取得する。
// GET /api/airtable/bases/{baseID}/schema
func (h *FormHandler) BaseSchema(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	tables, err := h.service.BaseSchema(r.Context(), accountID, chi.URLParam(r, "baseID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}
