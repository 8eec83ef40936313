package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/formbridge/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用した送信イベントリポジトリ。
// イベントは追記専用で、保持期間を過ぎた行はクリーンアップジョブが削除する。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Insert は送信イベントを記録する。
func (r *PostgresEventRepo) Insert(ctx context.Context, event *model.SubmissionEvent) error {
	var detail []byte
	if event.Detail != nil {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO submission_events (id, response_id, event_type, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.ResponseID, event.Type, detail, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
