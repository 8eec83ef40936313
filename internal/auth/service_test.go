package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/model"
)

type mockOAuthProvider struct {
	authorizeURLFn func(state, codeChallenge string) string
	exchangeFn     func(ctx context.Context, code, codeVerifier string) (*Token, error)
	refreshFn      func(ctx context.Context, refreshToken string) (*Token, error)
}

func (m *mockOAuthProvider) AuthorizeURL(state, codeChallenge string) string {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(state, codeChallenge)
	}
	return "https://airtable.example.com/authorize?state=" + state
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Token, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, codeVerifier)
	}
	return &Token{AccessToken: "at-1", RefreshToken: "rt-1"}, nil
}

func (m *mockOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return &Token{AccessToken: "at-new", RefreshToken: "rt-new"}, nil
}

type mockAccountRepo struct {
	accounts       map[string]*model.Account
	byAirtableID   map[string]*model.Account
	upserted       []*model.Account
	updateTokensFn func(ctx context.Context, id, accessToken, refreshToken string) error
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		accounts:     map[string]*model.Account{},
		byAirtableID: map[string]*model.Account{},
	}
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return m.accounts[id], nil
}

func (m *mockAccountRepo) FindByAirtableUserID(ctx context.Context, airtableUserID string) (*model.Account, error) {
	return m.byAirtableID[airtableUserID], nil
}

func (m *mockAccountRepo) Upsert(ctx context.Context, account *model.Account) error {
	m.upserted = append(m.upserted, account)
	m.accounts[account.ID] = account
	m.byAirtableID[account.AirtableUserID] = account
	return nil
}

func (m *mockAccountRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	if m.updateTokensFn != nil {
		return m.updateTokensFn(ctx, id, accessToken, refreshToken)
	}
	if a, ok := m.accounts[id]; ok {
		a.AccessToken = accessToken
		a.RefreshToken = refreshToken
	}
	return nil
}

type mockVerifier struct {
	whoAmIFn    func(ctx context.Context, token string) (*airtable.UserInfo, error)
	listBasesFn func(ctx context.Context, token string) ([]model.Base, error)
}

func (m *mockVerifier) WhoAmI(ctx context.Context, token string) (*airtable.UserInfo, error) {
	if m.whoAmIFn != nil {
		return m.whoAmIFn(ctx, token)
	}
	return &airtable.UserInfo{ID: "usr1", Email: "owner@example.com"}, nil
}

func (m *mockVerifier) ListBasesWithToken(ctx context.Context, token string) ([]model.Base, error) {
	if m.listBasesFn != nil {
		return m.listBasesFn(ctx, token)
	}
	return []model.Base{{ID: "app1", Name: "CRM"}}, nil
}

func newTestService() (*Service, *mockAccountRepo) {
	repo := newMockAccountRepo()
	svc := NewService(&mockOAuthProvider{}, NewHandshakeStore(), repo, &mockVerifier{})
	return svc, repo
}

func TestStartAuthorize_ReturnsAuthorizeURLAndStoresHandshake(t *testing.T) {
	svc, _ := newTestService()

	url, err := svc.StartAuthorize(context.Background())
	if err != nil {
		t.Fatalf("StartAuthorize returned error: %v", err)
	}
	if !strings.HasPrefix(url, "https://airtable.example.com/authorize?state=") {
		t.Errorf("authorize URL = %q, want provider URL", url)
	}
	if svc.handshakes.Len() != 1 {
		t.Errorf("handshake count = %d, want 1", svc.handshakes.Len())
	}
}

func TestHandleCallback_Success(t *testing.T) {
	repo := newMockAccountRepo()
	provider := &mockOAuthProvider{}

	var exchangedVerifier string
	provider.exchangeFn = func(ctx context.Context, code, codeVerifier string) (*Token, error) {
		exchangedVerifier = codeVerifier
		return &Token{AccessToken: "at-1", RefreshToken: "rt-1"}, nil
	}

	svc := NewService(provider, NewHandshakeStore(), repo, &mockVerifier{})

	// 認可開始でstateとverifierを保存し、mockのURLからstateを復元する
	url, err := svc.StartAuthorize(context.Background())
	if err != nil {
		t.Fatalf("StartAuthorize returned error: %v", err)
	}
	state := strings.TrimPrefix(url, "https://airtable.example.com/authorize?state=")

	account, err := svc.HandleCallback(context.Background(), "auth-code", state)
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}

	if exchangedVerifier == "" {
		t.Error("exchange should receive the stored PKCE verifier")
	}
	if account.AirtableUserID != "usr1" {
		t.Errorf("AirtableUserID = %q, want usr1", account.AirtableUserID)
	}
	if account.AccessToken != "at-1" || account.RefreshToken != "rt-1" {
		t.Errorf("tokens = %q/%q, want at-1/rt-1", account.AccessToken, account.RefreshToken)
	}
	if len(account.Profile.Bases) != 1 || account.Profile.Bases[0].ID != "app1" {
		t.Errorf("Profile.Bases = %v, want [app1]", account.Profile.Bases)
	}
	if len(repo.upserted) != 1 {
		t.Errorf("upsert count = %d, want 1", len(repo.upserted))
	}
}

func TestHandleCallback_UnknownState(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.HandleCallback(context.Background(), "code", "never-issued")
	if err == nil {
		t.Fatal("expected error for unknown state")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Errorf("err = %v, want INVALID_STATE", err)
	}
}

// stateの2回目の使用はリプレイとして拒否される。
func TestHandleCallback_ReplayedState(t *testing.T) {
	svc, _ := newTestService()

	url, err := svc.StartAuthorize(context.Background())
	if err != nil {
		t.Fatalf("StartAuthorize returned error: %v", err)
	}
	state := strings.TrimPrefix(url, "https://airtable.example.com/authorize?state=")

	if _, err := svc.HandleCallback(context.Background(), "code", state); err != nil {
		t.Fatalf("first callback should succeed: %v", err)
	}

	_, err = svc.HandleCallback(context.Background(), "code", state)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Errorf("replayed state: err = %v, want INVALID_STATE", err)
	}
}

func TestHandleCallback_EmptyState(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.HandleCallback(context.Background(), "code", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Errorf("empty state: err = %v, want INVALID_STATE", err)
	}
}

// ベース一覧の取得失敗はログインを妨げない。
func TestHandleCallback_BaseListFailureIsNonFatal(t *testing.T) {
	repo := newMockAccountRepo()
	verifier := &mockVerifier{
		listBasesFn: func(ctx context.Context, token string) ([]model.Base, error) {
			return nil, errors.New("bases unavailable")
		},
	}
	svc := NewService(&mockOAuthProvider{}, NewHandshakeStore(), repo, verifier)

	url, _ := svc.StartAuthorize(context.Background())
	state := strings.TrimPrefix(url, "https://airtable.example.com/authorize?state=")

	account, err := svc.HandleCallback(context.Background(), "code", state)
	if err != nil {
		t.Fatalf("HandleCallback should succeed without bases: %v", err)
	}
	if len(account.Profile.Bases) != 0 {
		t.Errorf("Profile.Bases = %v, want empty", account.Profile.Bases)
	}
}

func TestHandleCallback_UpdatesExistingAccount(t *testing.T) {
	repo := newMockAccountRepo()
	existing := &model.Account{
		ID:             "account-1",
		AirtableUserID: "usr1",
		AccessToken:    "old-at",
	}
	repo.accounts["account-1"] = existing
	repo.byAirtableID["usr1"] = existing

	svc := NewService(&mockOAuthProvider{}, NewHandshakeStore(), repo, &mockVerifier{})

	url, _ := svc.StartAuthorize(context.Background())
	state := strings.TrimPrefix(url, "https://airtable.example.com/authorize?state=")

	account, err := svc.HandleCallback(context.Background(), "code", state)
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}

	// 既存アカウントのIDを維持したままトークンが更新されること
	if account.ID != "account-1" {
		t.Errorf("ID = %q, want account-1 (existing)", account.ID)
	}
	if account.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", account.AccessToken)
	}
}

func TestLoginWithToken_Success(t *testing.T) {
	svc, repo := newTestService()

	account, err := svc.LoginWithToken(context.Background(), "pat-secret-token")
	if err != nil {
		t.Fatalf("LoginWithToken returned error: %v", err)
	}

	if account.AccessToken != "pat-secret-token" {
		t.Errorf("AccessToken = %q, want the PAT itself", account.AccessToken)
	}
	if account.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty (PAT has no refresh)", account.RefreshToken)
	}
	if len(repo.upserted) != 1 {
		t.Errorf("upsert count = %d, want 1", len(repo.upserted))
	}

	// 同じPATでの再ログインは同じアカウントに解決されること
	again, err := svc.LoginWithToken(context.Background(), "pat-secret-token")
	if err != nil {
		t.Fatalf("second LoginWithToken returned error: %v", err)
	}
	if again.ID != account.ID {
		t.Errorf("second login ID = %q, want %q", again.ID, account.ID)
	}
}

func TestLoginWithToken_InvalidToken(t *testing.T) {
	repo := newMockAccountRepo()
	verifier := &mockVerifier{
		listBasesFn: func(ctx context.Context, token string) ([]model.Base, error) {
			return nil, errors.New("401 unauthorized")
		},
	}
	svc := NewService(&mockOAuthProvider{}, NewHandshakeStore(), repo, verifier)

	if _, err := svc.LoginWithToken(context.Background(), "bad-token"); err == nil {
		t.Fatal("expected error for invalid token")
	}
	if len(repo.upserted) != 0 {
		t.Error("no account should be created for an invalid token")
	}
}

func TestAccessToken_ReturnsStoredToken(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts["account-1"] = &model.Account{ID: "account-1", AccessToken: "at-stored"}

	token, err := svc.AccessToken(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("AccessToken returned error: %v", err)
	}
	if token != "at-stored" {
		t.Errorf("token = %q, want at-stored", token)
	}
}

func TestAccessToken_UnknownAccount(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.AccessToken(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestForceRefresh_UpdatesStoredTokens(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts["account-1"] = &model.Account{
		ID:           "account-1",
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
	}

	token, err := svc.ForceRefresh(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("ForceRefresh returned error: %v", err)
	}
	if token != "at-new" {
		t.Errorf("token = %q, want at-new", token)
	}
	if repo.accounts["account-1"].AccessToken != "at-new" {
		t.Errorf("stored access token = %q, want at-new", repo.accounts["account-1"].AccessToken)
	}
	if repo.accounts["account-1"].RefreshToken != "rt-new" {
		t.Errorf("stored refresh token = %q, want rt-new", repo.accounts["account-1"].RefreshToken)
	}
}

// プロバイダーが新しいリフレッシュトークンを返さない場合は既存の値を維持する。
func TestForceRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	repo := newMockAccountRepo()
	repo.accounts["account-1"] = &model.Account{
		ID:           "account-1",
		RefreshToken: "rt-old",
	}
	provider := &mockOAuthProvider{
		refreshFn: func(ctx context.Context, refreshToken string) (*Token, error) {
			return &Token{AccessToken: "at-new"}, nil
		},
	}
	svc := NewService(provider, NewHandshakeStore(), repo, &mockVerifier{})

	if _, err := svc.ForceRefresh(context.Background(), "account-1"); err != nil {
		t.Fatalf("ForceRefresh returned error: %v", err)
	}
	if repo.accounts["account-1"].RefreshToken != "rt-old" {
		t.Errorf("refresh token = %q, want rt-old (kept)", repo.accounts["account-1"].RefreshToken)
	}
}

func TestForceRefresh_NoRefreshTokenOnFile(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts["account-1"] = &model.Account{ID: "account-1", AccessToken: "pat"}

	if _, err := svc.ForceRefresh(context.Background(), "account-1"); err == nil {
		t.Fatal("expected error when no refresh token is stored")
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetAccount(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("err = %v, want UNAUTHORIZED", err)
	}
}
