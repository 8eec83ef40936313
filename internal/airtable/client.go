// Package airtable はAirtable REST APIのクライアントを提供する。
// レコードのCRUD、メタデータ（ベース・スキーマ）取得、Webhook管理を含む。
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/formbridge/internal/model"
)

// defaultAPIBaseURL はAirtable APIのベースURL。
const defaultAPIBaseURL = "https://api.airtable.com/v0"

// TokenSource はアカウントに紐付くアクセストークンの解決と強制リフレッシュの
// インターフェース。auth.Serviceが実装する。
type TokenSource interface {
	// AccessToken はアカウントの現在のアクセストークンを返す。
	AccessToken(ctx context.Context, accountID string) (string, error)
	// ForceRefresh はリフレッシュトークンで新しいアクセストークンを取得して返す。
	// リフレッシュトークンがない、またはプロバイダーが拒否した場合はエラーを返す。
	ForceRefresh(ctx context.Context, accountID string) (string, error)
}

// MetricsRecorder はクライアントが記録するメトリクスのインターフェース。
// nilの場合は記録しない。
type MetricsRecorder interface {
	RecordAirtableStatus(statusCode int)
	RecordTokenRefresh()
}

// APIError はAirtable APIのエラーレスポンスを表す。
// 認可エラー以外の失敗は加工せずこの型で呼び出し元へ伝播する。
type APIError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("airtable api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Record はAirtableのレコードを表す。
type Record struct {
	ID          string                     `json:"id"`
	CreatedTime time.Time                  `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

// Table はベーススキーマ内の1テーブルを表す。
type Table struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field はテーブル内の1フィールドを表す。
type Field struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    string        `json:"type"`
	Options *FieldOptions `json:"options,omitempty"`
}

// FieldOptions は選択系フィールドの選択肢を表す。
type FieldOptions struct {
	Choices []FieldChoice `json:"choices,omitempty"`
}

// FieldChoice は選択肢の1件を表す。
type FieldChoice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Webhook はベースに登録されたWebhookを表す。
// 有効期限前のリフレッシュ対象の判定に使う。
type Webhook struct {
	ID              string    `json:"id"`
	NotificationURL string    `json:"notificationUrl"`
	ExpirationTime  time.Time `json:"expirationTime"`
}

// UserInfo はwhoamiエンドポイントのレスポンスを表す。
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client はAirtable REST APIのクライアント。
// アカウント単位のトークン解決と、認可エラー時の1回限りの
// リフレッシュ＆リトライを内蔵する。
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	metrics    MetricsRecorder
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnil可。
func NewClient(httpClient *http.Client, tokens TokenSource, logger *slog.Logger, metrics MetricsRecorder) *Client {
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		metrics:    metrics,
		baseURL:    defaultAPIBaseURL,
	}
}

// SetBaseURL はAPIエンドポイントを差し替える。テスト用。
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// CreateRecord はテーブルにレコードを1件作成する。
// fieldsはAirtableフィールドIDをキーとするマップで、呼び出し元が変換済みであること。
func (c *Client) CreateRecord(ctx context.Context, accountID, baseID, tableID string, fields map[string]model.Value) (*Record, error) {
	var rec Record
	body := map[string]any{"fields": fields}
	path := fmt.Sprintf("/%s/%s", baseID, tableID)
	if err := c.do(ctx, accountID, http.MethodPost, path, body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord はレコードのフィールドを部分更新する。
func (c *Client) UpdateRecord(ctx context.Context, accountID, baseID, tableID, recordID string, fields map[string]model.Value) (*Record, error) {
	var rec Record
	body := map[string]any{"fields": fields}
	path := fmt.Sprintf("/%s/%s/%s", baseID, tableID, recordID)
	if err := c.do(ctx, accountID, http.MethodPatch, path, body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRecord はレコードを削除する。
func (c *Client) DeleteRecord(ctx context.Context, accountID, baseID, tableID, recordID string) error {
	path := fmt.Sprintf("/%s/%s/%s", baseID, tableID, recordID)
	return c.do(ctx, accountID, http.MethodDelete, path, nil, nil)
}

// ListBases はアカウントがアクセス可能なベース一覧を取得する。
func (c *Client) ListBases(ctx context.Context, accountID string) ([]model.Base, error) {
	var out struct {
		Bases []model.Base `json:"bases"`
	}
	if err := c.do(ctx, accountID, http.MethodGet, "/meta/bases", nil, &out); err != nil {
		return nil, err
	}
	return out.Bases, nil
}

// BaseSchema はベースのテーブルスキーマ一覧を取得する。
func (c *Client) BaseSchema(ctx context.Context, accountID, baseID string) ([]Table, error) {
	var out struct {
		Tables []Table `json:"tables"`
	}
	path := fmt.Sprintf("/meta/bases/%s/tables", baseID)
	if err := c.do(ctx, accountID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// ListWebhooks はベースに登録されたWebhook一覧を取得する。
func (c *Client) ListWebhooks(ctx context.Context, accountID, baseID string) ([]Webhook, error) {
	var out struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	path := fmt.Sprintf("/bases/%s/webhooks", baseID)
	if err := c.do(ctx, accountID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// RefreshWebhook はWebhookの有効期限を延長する。
func (c *Client) RefreshWebhook(ctx context.Context, accountID, baseID, webhookID string) error {
	path := fmt.Sprintf("/bases/%s/webhooks/%s/refresh", baseID, webhookID)
	return c.do(ctx, accountID, http.MethodPost, path, nil, nil)
}

// ListBasesWithToken は生のアクセストークンでベース一覧を取得する。
// ログインフロー中のトークン検証に使用され、リフレッシュは行わない。
func (c *Client) ListBasesWithToken(ctx context.Context, token string) ([]model.Base, error) {
	var out struct {
		Bases []model.Base `json:"bases"`
	}
	if err := c.doWithToken(ctx, token, http.MethodGet, "/meta/bases", nil, &out); err != nil {
		return nil, err
	}
	return out.Bases, nil
}

// WhoAmI は生のアクセストークンでアカウントのプロフィールを取得する。
func (c *Client) WhoAmI(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	if err := c.doWithToken(ctx, token, http.MethodGet, "/meta/whoami", nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("empty user id in whoami response")
	}
	return &out, nil
}

// do はアカウントのトークンを解決してリクエストを実行する。
// 401で失敗した場合は1回だけトークンをリフレッシュしてリトライし、
// 再度401となった場合はセッション失効として確定させる。
// 無限リフレッシュループを避けるためリトライは厳密に1回のみ。
func (c *Client) do(ctx context.Context, accountID, method, path string, body, out any) error {
	token, err := c.tokens.AccessToken(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to resolve access token: %w", err)
	}

	err = c.doWithToken(ctx, token, method, path, body, out)
	if !isUnauthorized(err) {
		return err
	}

	c.logger.Info("アクセストークンが拒否されたためリフレッシュします",
		slog.String("account_id", accountID),
		slog.String("path", path),
	)
	if c.metrics != nil {
		c.metrics.RecordTokenRefresh()
	}

	newToken, refreshErr := c.tokens.ForceRefresh(ctx, accountID)
	if refreshErr != nil {
		c.logger.Warn("トークンリフレッシュに失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", refreshErr.Error()),
		)
		return model.NewSessionExpiredError()
	}

	err = c.doWithToken(ctx, newToken, method, path, body, out)
	if isUnauthorized(err) {
		// リフレッシュ後も401の場合は再ログインが必要
		return model.NewSessionExpiredError()
	}
	return err
}

// doWithToken は指定トークンでHTTPリクエストを1回実行する。
func (c *Client) doWithToken(ctx context.Context, token, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("airtable request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordAirtableStatus(resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response body: %w", err)
		}
	}
	return nil
}

// isUnauthorized はエラーが401認可エラーかどうかを判定する。
func isUnauthorized(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}
