package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/formbridge/internal/middleware"
	"github.com/hitoshi/formbridge/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// StartAuthorize はOAuthハンドシェイクを開始し、認可URLを返す。
	StartAuthorize(ctx context.Context) (string, error)
	// HandleCallback は認可コードを交換し、アカウントを作成または更新する。
	HandleCallback(ctx context.Context, code, state string) (*model.Account, error)
	// LoginWithToken はパーソナルアクセストークンで直接ログインする。
	LoginWithToken(ctx context.Context, token string) (*model.Account, error)
	// GetAccount は指定IDのアカウントを返す。
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendURL はOAuth完了後のリダイレクト先フロントエンドのベースURL。
	FrontendURL string
}

// AuthHandler は認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID      string       `json:"id"`
	Email   string       `json:"email"`
	Bases   []model.Base `json:"bases,omitempty"`
	LoginAt time.Time    `json:"loginAt"`
}

// tokenLoginRequest はパーソナルアクセストークンログインのボディ。
type tokenLoginRequest struct {
	APIKey string `json:"apiKey"`
}

// Login はAirtableの認可画面へリダイレクトする。
// GET /auth/airtable/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := h.service.StartAuthorize(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// Callback はAirtableからのOAuthコールバックを処理する。
// 成功時はフロントエンドへアカウントIDを付けてリダイレクトする。
// GET /auth/airtable/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		apiErr := model.NewAuthFailedError()
		if desc := query.Get("error_description"); desc != "" {
			apiErr.Message = fmt.Sprintf("Airtableとの認証に失敗しました: %s", desc)
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidStateError())
		return
	}

	account, err := h.service.HandleCallback(r.Context(), code, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	redirect := fmt.Sprintf("%s/auth-callback?userId=%s", h.config.FrontendURL, url.QueryEscape(account.ID))
	http.Redirect(w, r, redirect, http.StatusFound)
}

// TokenLogin はパーソナルアクセストークンで直接ログインする。
// POST /auth/airtable/token
func (h *AuthHandler) TokenLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidPayload,
			Message:  "apiKeyは必須です。",
			Category: "validation",
			Action:   "リクエストボディを確認してください。",
		})
		return
	}

	account, err := h.service.LoginWithToken(r.Context(), req.APIKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:      account.ID,
		Email:   account.Email,
		Bases:   account.Profile.Bases,
		LoginAt: account.LoginAt,
	})
}

// Me は認証済みアカウントの情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:      account.ID,
		Email:   account.Email,
		Bases:   account.Profile.Bases,
		LoginAt: account.LoginAt,
	})
}
