package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/formbridge/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx,
		`SELECT id, airtable_user_id, email, access_token, refresh_token, profile, login_at, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		id,
	)
}

// FindByAirtableUserID はAirtableユーザーIDでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByAirtableUserID(ctx context.Context, airtableUserID string) (*model.Account, error) {
	return r.findOne(ctx,
		`SELECT id, airtable_user_id, email, access_token, refresh_token, profile, login_at, created_at, updated_at
		 FROM accounts WHERE airtable_user_id = $1`,
		airtableUserID,
	)
}

// Upsert はairtable_user_idをキーにアカウントを作成または更新する。
func (r *PostgresAccountRepo) Upsert(ctx context.Context, account *model.Account) error {
	profile, err := account.MarshalProfile()
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, airtable_user_id, email, access_token, refresh_token, profile, login_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (airtable_user_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   profile = EXCLUDED.profile,
		   login_at = EXCLUDED.login_at,
		   updated_at = EXCLUDED.updated_at`,
		account.ID, account.AirtableUserID, account.Email,
		account.AccessToken, account.RefreshToken, profile,
		account.LoginAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// UpdateTokens はアカウントのトークンのみを更新する。
func (r *PostgresAccountRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET access_token = $2, refresh_token = $3, updated_at = now() WHERE id = $1`,
		id, accessToken, refreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

// findOne は1件のアカウントを読み出す共通処理。
func (r *PostgresAccountRepo) findOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	account := &model.Account{}
	var refreshToken sql.NullString
	var profile []byte

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID, &account.AirtableUserID, &account.Email,
		&account.AccessToken, &refreshToken, &profile,
		&account.LoginAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	account.RefreshToken = refreshToken.String
	if err := account.UnmarshalProfile(profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
