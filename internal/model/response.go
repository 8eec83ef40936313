package model

import "time"

// ResponseStatus は回答とAirtableレコードの同期状態を表す。
type ResponseStatus string

const (
	// ResponseStatusSynced はAirtableレコードと同期済みの状態。
	ResponseStatusSynced ResponseStatus = "synced"
	// ResponseStatusPending は同期待ちの状態。
	ResponseStatusPending ResponseStatus = "pending"
	// ResponseStatusDeleted はAirtable側でレコードが削除された状態。
	ResponseStatusDeleted ResponseStatus = "deletedInAirtable"
)

// Response は受け付けた回答を表す。
// Airtableレコードの作成成功と同時に作成され、以後はstatusのみが
// Webhook経由の突合処理によって更新される。
type Response struct {
	ID               string
	FormID           string
	AirtableRecordID string
	Answers          AnswerMap
	Status           ResponseStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FieldError は回答バリデーションの1件のフィールドエラーを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmissionEventType は監査イベントの種別を表す。
type SubmissionEventType string

const (
	// EventSubmissionReceived は回答受付イベント。
	EventSubmissionReceived SubmissionEventType = "submission_received"
	// EventRecordSynced はWebhook突合によるsynced遷移イベント。
	EventRecordSynced SubmissionEventType = "record_synced"
	// EventRecordDeleted はWebhook突合によるdeletedInAirtable遷移イベント。
	EventRecordDeleted SubmissionEventType = "record_deleted"
)

// SubmissionEvent は回答ライフサイクルの監査イベントを表す。
// ベストエフォートで記録され、書き込み失敗は処理を妨げない。
type SubmissionEvent struct {
	ID         string
	ResponseID string
	Type       SubmissionEventType
	Detail     map[string]string
	CreatedAt  time.Time
}
