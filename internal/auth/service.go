// Package auth はAirtable OAuth認可フローとトークンライフサイクル管理を提供する。
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/repository"
)

// AirtableVerifier はログインフロー中のトークン検証とプロフィール取得の
// インターフェース。airtable.Clientの部分集合。
type AirtableVerifier interface {
	WhoAmI(ctx context.Context, token string) (*airtable.UserInfo, error)
	ListBasesWithToken(ctx context.Context, token string) ([]model.Base, error)
}

// Service はアカウントのトークンライフサイクルを管理する。
// 認可開始・コールバック・PATログイン・リフレッシュを担う。
type Service struct {
	provider    OAuthProvider
	handshakes  *HandshakeStore
	accountRepo repository.AccountRepository
	verifier    AirtableVerifier
}

// NewService はServiceを生成する。
func NewService(
	provider OAuthProvider,
	handshakes *HandshakeStore,
	accountRepo repository.AccountRepository,
	verifier AirtableVerifier,
) *Service {
	return &Service{
		provider:    provider,
		handshakes:  handshakes,
		accountRepo: accountRepo,
		verifier:    verifier,
	}
}

// StartAuthorize は認可フローを開始し、リダイレクト先の認可URLを返す。
// stateとPKCE verifierをハンドシェイクストアに保存する。
// ストアのTTLにより5分を超えた古いエントリは自動的に破棄される。
func (s *Service) StartAuthorize(ctx context.Context) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE pair: %w", err)
	}

	s.handshakes.Put(state, verifier)

	slog.Info("oauth authorize started", slog.String("state", state))
	return s.provider.AuthorizeURL(state, challenge), nil
}

// HandleCallback は認可コールバックを処理し、アカウントをupsertして返す。
// stateが未知・期限切れ・消費済みの場合はCSRF/リプレイの兆候として
// InvalidStateエラーを返す。各stateは1回しか消費できない。
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*model.Account, error) {
	if state == "" {
		return nil, model.NewInvalidStateError()
	}
	hs, ok := s.handshakes.Consume(state)
	if !ok {
		slog.Warn("unknown or replayed oauth state", slog.String("state", state))
		return nil, model.NewInvalidStateError()
	}

	token, err := s.provider.Exchange(ctx, code, hs.Verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	info, err := s.verifier.WhoAmI(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account profile: %w", err)
	}

	// ベース一覧の取得失敗はログインを妨げない
	bases, err := s.verifier.ListBasesWithToken(ctx, token.AccessToken)
	if err != nil {
		slog.Warn("failed to fetch accessible bases",
			slog.String("airtable_user_id", info.ID),
			slog.String("error", err.Error()),
		)
		bases = nil
	}

	account, err := s.upsertAccount(ctx, info.ID, info.Email, token.AccessToken, token.RefreshToken, bases)
	if err != nil {
		return nil, err
	}

	slog.Info("account logged in",
		slog.String("account_id", account.ID),
		slog.String("airtable_user_id", account.AirtableUserID),
	)
	return account, nil
}

// LoginWithToken は事前共有のPersonal Access Tokenで認証する。
// トークンの有効性はベース一覧の取得で検証し、ローカルのアカウントIDは
// トークンのSHA-256ハッシュから決定的に導出する。トークン自体は
// サーバー側にのみ保存されるため、この導出は秘匿性を損なわない。
func (s *Service) LoginWithToken(ctx context.Context, token string) (*model.Account, error) {
	bases, err := s.verifier.ListBasesWithToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	sum := sha256.Sum256([]byte(token))
	derivedID := hex.EncodeToString(sum[:])

	account, err := s.upsertAccount(ctx, derivedID, "api-key-user@local", token, "", bases)
	if err != nil {
		return nil, err
	}

	slog.Info("account logged in with personal access token",
		slog.String("account_id", account.ID),
	)
	return account, nil
}

// GetAccount は指定IDのアカウントを返す。見つからない場合はエラーを返す。
func (s *Service) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUnauthorizedError()
	}
	return account, nil
}

// AccessToken はアカウントの現在のアクセストークンを返す。
func (s *Service) AccessToken(ctx context.Context, accountID string) (string, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || account.AccessToken == "" {
		return "", fmt.Errorf("account not authenticated: %s", accountID)
	}
	return account.AccessToken, nil
}

// ForceRefresh はリフレッシュトークンで新しいアクセストークンを取得し、保存して返す。
// リフレッシュトークンがない場合は再ログインが必要なため回復不能エラーを返す。
// 同一アカウントへの並行リクエストが同時にリフレッシュする競合は許容する
// （後勝ちで保存され、どちらのトークンも直後は有効）。
func (s *Service) ForceRefresh(ctx context.Context, accountID string) (string, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return "", fmt.Errorf("account not found: %s", accountID)
	}
	if account.RefreshToken == "" {
		return "", fmt.Errorf("no refresh token on file for account %s", accountID)
	}

	token, err := s.provider.Refresh(ctx, account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshToken := account.RefreshToken
	if token.RefreshToken != "" {
		refreshToken = token.RefreshToken
	}
	if err := s.accountRepo.UpdateTokens(ctx, account.ID, token.AccessToken, refreshToken); err != nil {
		return "", fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	slog.Info("access token refreshed", slog.String("account_id", accountID))
	return token.AccessToken, nil
}

// upsertAccount はAirtableユーザーIDをキーにアカウントを作成または更新する。
func (s *Service) upsertAccount(ctx context.Context, airtableUserID, email, accessToken, refreshToken string, bases []model.Base) (*model.Account, error) {
	now := time.Now()

	account, err := s.accountRepo.FindByAirtableUserID(ctx, airtableUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if account == nil {
		account = &model.Account{
			ID:             uuid.New().String(),
			AirtableUserID: airtableUserID,
			CreatedAt:      now,
		}
	}

	account.Email = email
	account.AccessToken = accessToken
	account.RefreshToken = refreshToken
	account.Profile = model.Profile{Email: email, Bases: bases}
	account.LoginAt = now
	account.UpdatedAt = now

	if err := s.accountRepo.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return account, nil
}
