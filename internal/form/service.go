// Package form はフォーム定義管理のドメインロジックを提供する。
// フォームはオペレーターが作成し、回答受付パイプラインからは読み取り専用。
package form

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/repository"
)

// SchemaClient はフォーム作成時に必要なAirtableメタデータAPIの抽象。
type SchemaClient interface {
	ListBases(ctx context.Context, accountID string) ([]model.Base, error)
	BaseSchema(ctx context.Context, accountID, baseID string) ([]airtable.Table, error)
}

// CreateFormInput はフォーム作成の入力。
type CreateFormInput struct {
	AirtableBaseID  string           `json:"airtableBaseId"`
	AirtableTableID string           `json:"airtableTableId"`
	Title           string           `json:"title"`
	Questions       []model.Question `json:"questions"`
}

// Service はフォーム定義のサービス層。
type Service struct {
	forms    repository.FormRepository
	airtable SchemaClient
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(forms repository.FormRepository, airtable SchemaClient) *Service {
	return &Service{
		forms:    forms,
		airtable: airtable,
	}
}

// CreateForm はフォームを作成する。
// 対象テーブルがベーススキーマに存在することを検証し、
// 各質問のフィールドIDをスキーマと突合する。
// 質問タイプが未指定の場合はAirtableフィールドタイプから導出し、
// 選択系の選択肢が未指定の場合はスキーマの選択肢を引き継ぐ。
func (s *Service) CreateForm(ctx context.Context, ownerID string, in CreateFormInput) (*model.Form, error) {
	tables, err := s.airtable.BaseSchema(ctx, ownerID, in.AirtableBaseID)
	if err != nil {
		return nil, err
	}

	var table *airtable.Table
	for i := range tables {
		if tables[i].ID == in.AirtableTableID {
			table = &tables[i]
			break
		}
	}
	if table == nil {
		return nil, model.NewInvalidTableError(in.AirtableTableID)
	}

	fieldsByID := make(map[string]airtable.Field, len(table.Fields))
	for _, f := range table.Fields {
		fieldsByID[f.ID] = f
	}

	var fieldErrors []model.FieldError
	seen := make(map[string]bool, len(in.Questions))
	questions := make([]model.Question, 0, len(in.Questions))
	for _, q := range in.Questions {
		if q.Key == "" {
			fieldErrors = append(fieldErrors, model.FieldError{
				Field:   q.AirtableFieldID,
				Message: "質問キーは必須です。",
			})
			continue
		}
		if seen[q.Key] {
			fieldErrors = append(fieldErrors, model.FieldError{
				Field:   q.Key,
				Message: "質問キーが重複しています。",
			})
			continue
		}
		seen[q.Key] = true

		field, ok := fieldsByID[q.AirtableFieldID]
		if !ok {
			fieldErrors = append(fieldErrors, model.FieldError{
				Field:   q.Key,
				Message: fmt.Sprintf("フィールド %s はテーブルに存在しません。", q.AirtableFieldID),
			})
			continue
		}

		if q.Type == "" {
			t, ok := model.NormalizeFieldType(field.Type)
			if !ok {
				fieldErrors = append(fieldErrors, model.FieldError{
					Field:   q.Key,
					Message: fmt.Sprintf("フィールドタイプ %s はフォームで利用できません。", field.Type),
				})
				continue
			}
			q.Type = t
		}
		if q.Label == "" {
			q.Label = field.Name
		}
		if len(q.Choices) == 0 && field.Options != nil {
			for _, c := range field.Options.Choices {
				q.Choices = append(q.Choices, c.Name)
			}
		}
		questions = append(questions, q)
	}
	if len(fieldErrors) > 0 {
		return nil, model.NewValidationFailedError(fieldErrors)
	}

	now := time.Now()
	f := &model.Form{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		AirtableBaseID:  in.AirtableBaseID,
		AirtableTableID: in.AirtableTableID,
		Title:           in.Title,
		Questions:       questions,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.forms.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("フォームの作成に失敗しました: %w", err)
	}
	return f, nil
}

// GetForm は指定IDのフォームを返す。
func (s *Service) GetForm(ctx context.Context, formID string) (*model.Form, error) {
	f, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("フォームの取得に失敗しました: %w", err)
	}
	if f == nil {
		return nil, model.NewFormNotFoundError(formID)
	}
	return f, nil
}

// ListForms はオーナーのフォーム一覧を返す。
func (s *Service) ListForms(ctx context.Context, ownerID string) ([]*model.Form, error) {
	forms, err := s.forms.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("フォーム一覧の取得に失敗しました: %w", err)
	}
	return forms, nil
}

// ListBases はアカウントがアクセス可能なベース一覧を返す。
func (s *Service) ListBases(ctx context.Context, accountID string) ([]model.Base, error) {
	return s.airtable.ListBases(ctx, accountID)
}

// BaseSchema はベースのテーブルスキーマを返す。
func (s *Service) BaseSchema(ctx context.Context, accountID, baseID string) ([]airtable.Table, error) {
	return s.airtable.BaseSchema(ctx, accountID, baseID)
}
