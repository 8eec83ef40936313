// Package response は回答の受付・同期・閲覧のドメインロジックを提供する。
// 受付パイプラインは 表示判定 → 検証 → Airtableレコード作成 → 永続化 の順で流れる。
package response

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/repository"
	"github.com/hitoshi/formbridge/internal/rules"
	"github.com/hitoshi/formbridge/internal/validation"
)

// RecordClient は回答同期に必要なAirtable APIの抽象。
type RecordClient interface {
	CreateRecord(ctx context.Context, accountID, baseID, tableID string, fields map[string]model.Value) (*airtable.Record, error)
}

// MetricsRecorder は受付結果のメトリクス記録インターフェース。nil許容。
type MetricsRecorder interface {
	RecordSubmission(result string)
}

// Page は回答一覧のページング結果。
type Page struct {
	Responses []*model.Response
	Page      int
	Limit     int
	Total     int
	Pages     int
}

// Service は回答のサービス層。
type Service struct {
	forms     repository.FormRepository
	responses repository.ResponseRepository
	events    repository.EventRepository
	airtable  RecordClient
	logger    *slog.Logger
	metrics   MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// eventsとmetricsはnil許容。
func NewService(
	forms repository.FormRepository,
	responses repository.ResponseRepository,
	events repository.EventRepository,
	airtable RecordClient,
	logger *slog.Logger,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		forms:     forms,
		responses: responses,
		events:    events,
		airtable:  airtable,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit は回答を受け付けてAirtableへ同期し、永続化する。
// 非表示の質問への回答は保存・同期の対象から除外される。
// Airtableレコードの作成に成功した場合のみ回答が永続化される。
func (s *Service) Submit(ctx context.Context, formID string, answers model.AnswerMap) (*model.Response, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		s.record("error")
		return nil, fmt.Errorf("フォームの取得に失敗しました: %w", err)
	}
	if form == nil {
		s.record("form_not_found")
		return nil, model.NewFormNotFoundError(formID)
	}

	if fieldErrors := validation.Validate(form.Questions, answers); len(fieldErrors) > 0 {
		s.record("validation_failed")
		return nil, model.NewValidationFailedError(fieldErrors)
	}

	// 表示中の質問の回答だけを残す。フォーム定義にないキーは捨てる
	stored := make(model.AnswerMap)
	fields := make(map[string]model.Value)
	for _, q := range form.Questions {
		answer, ok := answers[q.Key]
		if !ok || answer.IsAbsent() {
			continue
		}
		if !rules.IsVisible(q.ConditionalRules, answers) {
			continue
		}
		stored[q.Key] = answer
		fields[q.AirtableFieldID] = answer
	}

	record, err := s.airtable.CreateRecord(ctx, form.OwnerID, form.AirtableBaseID, form.AirtableTableID, fields)
	if err != nil {
		s.record("sync_failed")
		return nil, err
	}

	now := time.Now()
	resp := &model.Response{
		ID:               uuid.New().String(),
		FormID:           form.ID,
		AirtableRecordID: record.ID,
		Answers:          stored,
		Status:           model.ResponseStatusSynced,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		s.record("error")
		return nil, fmt.Errorf("回答の保存に失敗しました: %w", err)
	}
	s.record("accepted")

	// イベント記録はベストエフォート
	if s.events != nil {
		event := &model.SubmissionEvent{
			ID:         uuid.New().String(),
			ResponseID: resp.ID,
			Type:       model.EventSubmissionReceived,
			Detail:     map[string]string{"airtable_record_id": record.ID},
			CreatedAt:  now,
		}
		if err := s.events.Insert(ctx, event); err != nil {
			s.logger.Warn("送信イベントの記録に失敗しました",
				slog.String("response_id", resp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return resp, nil
}

// ListByForm はフォームの回答一覧をページングで返す。
// フォームのオーナー以外からの参照は拒否する。
func (s *Service) ListByForm(ctx context.Context, accountID, formID string, page, limit int) (*Page, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("フォームの取得に失敗しました: %w", err)
	}
	if form == nil {
		return nil, model.NewFormNotFoundError(formID)
	}
	if form.OwnerID != accountID {
		return nil, model.NewAccessDeniedError()
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	responses, err := s.responses.ListByForm(ctx, formID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}
	total, err := s.responses.CountByForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("回答総数の取得に失敗しました: %w", err)
	}

	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Page{
		Responses: responses,
		Page:      page,
		Limit:     limit,
		Total:     total,
		Pages:     pages,
	}, nil
}

// Get は1件の回答を返す。フォームのオーナー以外からの参照は拒否する。
func (s *Service) Get(ctx context.Context, accountID, responseID string) (*model.Response, error) {
	resp, err := s.responses.FindByID(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("回答の取得に失敗しました: %w", err)
	}
	if resp == nil {
		return nil, model.NewResponseNotFoundError(responseID)
	}

	form, err := s.forms.FindByID(ctx, resp.FormID)
	if err != nil {
		return nil, fmt.Errorf("フォームの取得に失敗しました: %w", err)
	}
	if form == nil || form.OwnerID != accountID {
		return nil, model.NewAccessDeniedError()
	}
	return resp, nil
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(result)
	}
}
