package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/formbridge/internal/model"
)

// PostgresResponseRepo はPostgreSQLを使用した回答リポジトリ。
// 回答マップはJSONBカラムに保存する。
type PostgresResponseRepo struct {
	db *sql.DB
}

// NewPostgresResponseRepo はPostgresResponseRepoを生成する。
func NewPostgresResponseRepo(db *sql.DB) *PostgresResponseRepo {
	return &PostgresResponseRepo{db: db}
}

// Create は回答を作成する。
func (r *PostgresResponseRepo) Create(ctx context.Context, response *model.Response) error {
	answers, err := json.Marshal(response.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO responses (id, form_id, airtable_record_id, answers, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		response.ID, response.FormID, response.AirtableRecordID,
		answers, response.Status, response.CreatedAt, response.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
func (r *PostgresResponseRepo) FindByID(ctx context.Context, id string) (*model.Response, error) {
	return r.findOne(ctx,
		`SELECT id, form_id, airtable_record_id, answers, status, created_at, updated_at
		 FROM responses WHERE id = $1`,
		id,
	)
}

// FindByRecordID はAirtableレコードIDで回答を検索する。見つからない場合はnilを返す。
func (r *PostgresResponseRepo) FindByRecordID(ctx context.Context, recordID string) (*model.Response, error) {
	return r.findOne(ctx,
		`SELECT id, form_id, airtable_record_id, answers, status, created_at, updated_at
		 FROM responses WHERE airtable_record_id = $1`,
		recordID,
	)
}

// ListByForm はフォームの回答一覧を作成日時降順でページング取得する。
func (r *PostgresResponseRepo) ListByForm(ctx context.Context, formID string, offset, limit int) ([]*model.Response, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, form_id, airtable_record_id, answers, status, created_at, updated_at
		 FROM responses WHERE form_id = $1
		 ORDER BY created_at DESC
		 OFFSET $2 LIMIT $3`,
		formID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []*model.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// CountByForm はフォームの回答総数を返す。
func (r *PostgresResponseRepo) CountByForm(ctx context.Context, formID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM responses WHERE form_id = $1`,
		formID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return count, nil
}

// UpdateStatus は回答の同期状態を更新しupdated_atを進める。
// 同じ状態への更新は冪等。
func (r *PostgresResponseRepo) UpdateStatus(ctx context.Context, id string, status model.ResponseStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE responses SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update response status: %w", err)
	}
	return nil
}

// scanner はsql.Rowとsql.Rowsの共通部分。
type scanner interface {
	Scan(dest ...any) error
}

// scanResponse は1行を読み出してResponseに変換する。
func scanResponse(row scanner) (*model.Response, error) {
	resp := &model.Response{}
	var answers []byte

	if err := row.Scan(
		&resp.ID, &resp.FormID, &resp.AirtableRecordID,
		&answers, &resp.Status, &resp.CreatedAt, &resp.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan response: %w", err)
	}

	if err := json.Unmarshal(answers, &resp.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return resp, nil
}

// findOne は1件の回答を読み出す共通処理。
func (r *PostgresResponseRepo) findOne(ctx context.Context, query string, arg any) (*model.Response, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	resp, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// compile-time interface check
var _ ResponseRepository = (*PostgresResponseRepo)(nil)
