package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultAirtableAuthURL  = "https://airtable.com/oauth2/v1/authorize"
	defaultAirtableTokenURL = "https://airtable.com/oauth2/v1/token"

	// defaultScope はフォーム運用に必要な最小限のスコープ。
	defaultScope = "data.records:read data.records:write schema.bases:read user.email:read webhook:manage"
)

// AirtableOAuthConfig はAirtable OAuthプロバイダーの設定。
type AirtableOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// Token はトークンエンドポイントのレスポンスを表す。
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// OAuthProvider はOAuth認可フローのインターフェース。
// テストでの差し替えのための抽象化。
type OAuthProvider interface {
	// AuthorizeURL はstateとPKCEチャレンジを含む認可URLを生成する。
	AuthorizeURL(state, codeChallenge string) string
	// Exchange は認可コードとPKCE verifierをトークンに交換する。
	Exchange(ctx context.Context, code, codeVerifier string) (*Token, error)
	// Refresh はリフレッシュトークンで新しいトークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// AirtableOAuthProvider はAirtableのOAuth 2.0（認可コード + PKCE）による認証を提供する。
type AirtableOAuthProvider struct {
	config     AirtableOAuthConfig
	httpClient *http.Client
}

// NewAirtableOAuthProvider はAirtableOAuthProviderを生成する。
func NewAirtableOAuthProvider(config AirtableOAuthConfig, httpClient *http.Client) *AirtableOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultAirtableAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultAirtableTokenURL
	}
	if config.Scope == "" {
		config.Scope = defaultScope
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AirtableOAuthProvider{config: config, httpClient: httpClient}
}

// AuthorizeURL はAirtableの認可URLを生成する。
// response_type=code、S256のPKCEチャレンジ、CSRF対策のstateを含む。
func (p *AirtableOAuthProvider) AuthorizeURL(state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {p.config.ClientID},
		"redirect_uri":          {p.config.RedirectURL},
		"response_type":         {"code"},
		"scope":                 {p.config.Scope},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange は認可コードとPKCE verifierをアクセストークンに交換する。
// クライアント認証はBasic認証で行う。
func (p *AirtableOAuthProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURL},
		"code_verifier": {codeVerifier},
	}
	return p.postToken(ctx, data)
}

// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
func (p *AirtableOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return p.postToken(ctx, data)
}

// postToken はトークンエンドポイントへのPOSTを実行する。
func (p *AirtableOAuthProvider) postToken(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &token, nil
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generatePKCE はPKCEのverifier/challengeペアを生成する。
// challengeはverifierのSHA-256をパディングなしのURLセーフbase64で表現する。
func generatePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// compile-time interface check
var _ OAuthProvider = (*AirtableOAuthProvider)(nil)
