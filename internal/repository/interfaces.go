// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/formbridge/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByAirtableUserID はAirtableユーザーIDでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByAirtableUserID(ctx context.Context, airtableUserID string) (*model.Account, error)

	// Upsert はAirtableユーザーIDをキーにアカウントを作成または更新する。
	Upsert(ctx context.Context, account *model.Account) error

	// UpdateTokens はアカウントのアクセス・リフレッシュトークンのみを更新する。
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error
}

// FormRepository はフォーム定義の永続化インターフェース。
// フォームは作成後、回答パイプラインからは読み取り専用。
type FormRepository interface {
	// Create はフォームを作成する。
	Create(ctx context.Context, form *model.Form) error

	// FindByID は指定IDのフォームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Form, error)

	// ListByOwner はオーナーのフォーム一覧を作成日時降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Form, error)

	// ListBaseBindings はフォームが紐付く(オーナー, ベース)の組を重複なく返す。
	// Webhookのキープアライブ対象の列挙に使う。
	ListBaseBindings(ctx context.Context) ([]BaseBinding, error)
}

// BaseBinding はフォームが紐付くオーナーとベースの組を表す。
type BaseBinding struct {
	OwnerID        string
	AirtableBaseID string
}

// ResponseRepository は回答データの永続化インターフェース。
type ResponseRepository interface {
	// Create は回答を作成する。
	Create(ctx context.Context, response *model.Response) error

	// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Response, error)

	// FindByRecordID はAirtableレコードIDで回答を検索する。見つからない場合はnilを返す。
	FindByRecordID(ctx context.Context, recordID string) (*model.Response, error)

	// ListByForm はフォームの回答一覧を作成日時降順でページング取得する。
	ListByForm(ctx context.Context, formID string, offset, limit int) ([]*model.Response, error)

	// CountByForm はフォームの回答総数を返す。
	CountByForm(ctx context.Context, formID string) (int, error)

	// UpdateStatus は回答の同期状態を更新しupdated_atを進める。
	// 同じ状態への更新は冪等で、タイムスタンプ以外は変化しない。
	UpdateStatus(ctx context.Context, id string, status model.ResponseStatus) error
}

// EventRepository は回答ライフサイクルの監査イベントの永続化インターフェース。
type EventRepository interface {
	// Insert は監査イベントを1件追記する。
	Insert(ctx context.Context, event *model.SubmissionEvent) error
}
