package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, sync, system
	Action   string       // ユーザー向け対処方法
	Fields   []FieldError // バリデーション失敗時のフィールド別詳細
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeFormNotFound     = "FORM_NOT_FOUND"
	ErrCodeResponseNotFound = "RESPONSE_NOT_FOUND"
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeSessionExpired   = "SESSION_EXPIRED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeInvalidTable     = "INVALID_TABLE"
	ErrCodeAirtableError    = "AIRTABLE_ERROR"
	ErrCodeInvalidPayload   = "INVALID_PAYLOAD"
	ErrCodeBadSignature     = "BAD_SIGNATURE"
)

// NewValidationFailedError は回答バリデーション失敗エラーを生成する。
// フィールド別のエラー詳細を全件含む。
func NewValidationFailedError(fields []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "回答の検証に失敗しました。",
		Category: "validation",
		Action:   "各フィールドのエラー内容を確認して修正してください。",
		Fields:   fields,
	}
}

// NewFormNotFoundError はフォーム未検出エラーを生成する。
func NewFormNotFoundError(formID string) *APIError {
	return &APIError{
		Code:     ErrCodeFormNotFound,
		Message:  fmt.Sprintf("指定されたフォームが見つかりません: %s", formID),
		Category: "validation",
		Action:   "フォームIDを確認してください。",
	}
}

// NewResponseNotFoundError は回答未検出エラーを生成する。
func NewResponseNotFoundError(responseID string) *APIError {
	return &APIError{
		Code:     ErrCodeResponseNotFound,
		Message:  fmt.Sprintf("指定された回答が見つかりません: %s", responseID),
		Category: "validation",
		Action:   "回答IDを確認してください。",
	}
}

// NewAccessDeniedError は所有者以外からのアクセスエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "このリソースへのアクセス権がありません。",
		Category: "auth",
		Action:   "フォームの所有者アカウントでログインしてください。",
	}
}

// NewSessionExpiredError はトークンリフレッシュ失敗後のセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Airtableセッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidStateError はOAuth stateの不正・期限切れエラーを生成する。
// CSRFまたはリプレイの兆候として扱う。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "無効なstateパラメータです。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewAuthFailedError は認可コード交換などの認証失敗エラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "Airtableとの認証に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewInvalidTableError はベースにテーブルが存在しない場合のエラーを生成する。
func NewInvalidTableError(tableID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTable,
		Message:  fmt.Sprintf("指定されたテーブルがベース内に見つかりません: %s", tableID),
		Category: "validation",
		Action:   "ベースIDとテーブルIDの組み合わせを確認してください。",
	}
}

// NewAirtableError はAirtable APIの呼び出し失敗エラーを生成する。
// 上流のエラーボディをユーザーへ露出しない。
func NewAirtableError() *APIError {
	return &APIError{
		Code:     ErrCodeAirtableError,
		Message:  "Airtableレコードの操作に失敗しました。",
		Category: "sync",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidPayloadError はリクエストボディの不正エラーを生成する。
func NewInvalidPayloadError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  "リクエストボディを解釈できません。",
		Category: "validation",
		Action:   "JSONフォーマットを確認してください。",
	}
}

// NewBadSignatureError はWebhook署名の欠落・不一致エラーを生成する。
func NewBadSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeBadSignature,
		Message:  "Webhook署名の検証に失敗しました。",
		Category: "auth",
		Action:   "共有シークレットの設定を確認してください。",
	}
}
