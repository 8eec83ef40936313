package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/repository"
)

// Notification はAirtable Webhookの通知ボディを表す。
type Notification struct {
	Payloads []Payload `json:"payloads"`
}

// Payload は1回の変更通知に含まれる変更セットの集合。
type Payload struct {
	ChangedTablesByID map[string]TableChanges `json:"changedTablesById"`
}

// TableChanges はテーブル単位の変更内容。
// 変更レコードのフィールド差分は突合には使用しないため生JSONのまま保持する。
type TableChanges struct {
	ChangedRecordsByID map[string]json.RawMessage `json:"changedRecordsById"`
	DestroyedRecordIDs []string                   `json:"destroyedRecordIds"`
}

// Result は1通知の突合結果の集計。
type Result struct {
	Matched int // ローカル回答が見つかり状態を更新した件数
	Missing int // 対応するローカル回答がなく読み飛ばした件数
	Failed  int // 永続化エラーで更新できなかった件数
}

// MetricsRecorder は突合結果のメトリクス記録インターフェース。nil許容。
type MetricsRecorder interface {
	RecordWebhookRecord(outcome string)
}

// Reconciler はWebhook通知をローカルの回答状態へ突合する。
// レコード単位の失敗は握りつぶし、1件の失敗がバッチ全体を止めないようにする。
type Reconciler struct {
	responses repository.ResponseRepository
	events    repository.EventRepository
	logger    *slog.Logger
	metrics   MetricsRecorder
}

// NewReconciler はReconcilerを生成する。eventsとmetricsはnil許容。
func NewReconciler(responses repository.ResponseRepository, events repository.EventRepository, logger *slog.Logger, metrics MetricsRecorder) *Reconciler {
	return &Reconciler{
		responses: responses,
		events:    events,
		logger:    logger,
		metrics:   metrics,
	}
}

// Reconcile は通知に含まれる全変更セットを処理する。
// 変更セットごとに、変更レコードを先に、削除レコードを後に処理する。
// 同一バッチに同じレコードの変更と削除が両方あれば削除が勝つ。
// 同じ通知を二度処理しても状態は同じ終端に収束する。
func (r *Reconciler) Reconcile(ctx context.Context, notification *Notification) Result {
	var result Result
	for _, payload := range notification.Payloads {
		for tableID, changes := range payload.ChangedTablesByID {
			for recordID := range changes.ChangedRecordsByID {
				r.apply(ctx, tableID, recordID, model.ResponseStatusSynced, model.EventRecordSynced, &result)
			}
			for _, recordID := range changes.DestroyedRecordIDs {
				r.apply(ctx, tableID, recordID, model.ResponseStatusDeleted, model.EventRecordDeleted, &result)
			}
		}
	}
	return result
}

// apply は1レコードの状態遷移を行う。失敗してもエラーを返さない。
func (r *Reconciler) apply(ctx context.Context, tableID, recordID string, status model.ResponseStatus, eventType model.SubmissionEventType, result *Result) {
	resp, err := r.responses.FindByRecordID(ctx, recordID)
	if err != nil {
		result.Failed++
		r.record("failed")
		r.logger.Warn("Webhookレコードの検索に失敗しました",
			slog.String("table_id", tableID),
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
		return
	}
	if resp == nil {
		// 追跡していないレコードの通知は異常ではない
		result.Missing++
		r.record("missing")
		return
	}

	if err := r.responses.UpdateStatus(ctx, resp.ID, status); err != nil {
		result.Failed++
		r.record("failed")
		r.logger.Warn("回答状態の更新に失敗しました",
			slog.String("response_id", resp.ID),
			slog.String("record_id", recordID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return
	}
	result.Matched++
	r.record("matched")

	// イベント記録はベストエフォート。状態が変わったときのみ記録する
	if r.events != nil && resp.Status != status {
		event := &model.SubmissionEvent{
			ID:         uuid.New().String(),
			ResponseID: resp.ID,
			Type:       eventType,
			Detail: map[string]string{
				"airtable_record_id": recordID,
				"table_id":           tableID,
			},
			CreatedAt: time.Now(),
		}
		if err := r.events.Insert(ctx, event); err != nil {
			r.logger.Warn("送信イベントの記録に失敗しました",
				slog.String("response_id", resp.ID),
				slog.String("event_type", string(eventType)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Reconciler) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordWebhookRecord(outcome)
	}
}
