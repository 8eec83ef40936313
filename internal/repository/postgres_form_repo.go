package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/formbridge/internal/model"
)

// PostgresFormRepo はPostgreSQLを使用したフォームリポジトリ。
// 質問定義はJSONBカラムに保存する。
type PostgresFormRepo struct {
	db *sql.DB
}

// NewPostgresFormRepo はPostgresFormRepoを生成する。
func NewPostgresFormRepo(db *sql.DB) *PostgresFormRepo {
	return &PostgresFormRepo{db: db}
}

// Create はフォームを作成する。
func (r *PostgresFormRepo) Create(ctx context.Context, form *model.Form) error {
	questions, err := json.Marshal(form.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO forms (id, owner_id, airtable_base_id, airtable_table_id, title, questions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		form.ID, form.OwnerID, form.AirtableBaseID, form.AirtableTableID,
		form.Title, questions, form.CreatedAt, form.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert form: %w", err)
	}
	return nil
}

// FindByID は指定IDのフォームを取得する。見つからない場合はnilを返す。
func (r *PostgresFormRepo) FindByID(ctx context.Context, id string) (*model.Form, error) {
	form := &model.Form{}
	var questions []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, airtable_base_id, airtable_table_id, title, questions, created_at, updated_at
		 FROM forms WHERE id = $1`,
		id,
	).Scan(
		&form.ID, &form.OwnerID, &form.AirtableBaseID, &form.AirtableTableID,
		&form.Title, &questions, &form.CreatedAt, &form.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find form: %w", err)
	}

	if err := json.Unmarshal(questions, &form.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return form, nil
}

// ListByOwner はオーナーのフォーム一覧を作成日時降順で返す。
func (r *PostgresFormRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Form, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, airtable_base_id, airtable_table_id, title, questions, created_at, updated_at
		 FROM forms WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var forms []*model.Form
	for rows.Next() {
		form := &model.Form{}
		var questions []byte
		if err := rows.Scan(
			&form.ID, &form.OwnerID, &form.AirtableBaseID, &form.AirtableTableID,
			&form.Title, &questions, &form.CreatedAt, &form.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		if err := json.Unmarshal(questions, &form.Questions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
		}
		forms = append(forms, form)
	}
	return forms, rows.Err()
}

// ListBaseBindings はフォームが紐付く(オーナー, ベース)の組を重複なく返す。
func (r *PostgresFormRepo) ListBaseBindings(ctx context.Context) ([]BaseBinding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id, airtable_base_id FROM forms`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list base bindings: %w", err)
	}
	defer rows.Close()

	var bindings []BaseBinding
	for rows.Next() {
		var b BaseBinding
		if err := rows.Scan(&b.OwnerID, &b.AirtableBaseID); err != nil {
			return nil, fmt.Errorf("failed to scan base binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// compile-time interface check
var _ FormRepository = (*PostgresFormRepo)(nil)
