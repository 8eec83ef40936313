package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func testProvider(tokenURL string) *AirtableOAuthProvider {
	return NewAirtableOAuthProvider(AirtableOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/airtable/callback",
		TokenURL:     tokenURL,
	}, nil)
}

func TestAuthorizeURL_ContainsRequiredParams(t *testing.T) {
	p := testProvider("")

	raw := p.AuthorizeURL("test-state", "test-challenge")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse authorize URL: %v", err)
	}
	if !strings.HasPrefix(raw, defaultAirtableAuthURL) {
		t.Errorf("authorize URL = %q, want prefix %q", raw, defaultAirtableAuthURL)
	}

	q := u.Query()
	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "client-id"},
		{"redirect_uri", "http://localhost:8080/auth/airtable/callback"},
		{"response_type", "code"},
		{"state", "test-state"},
		{"code_challenge", "test-challenge"},
		{"code_challenge_method", "S256"},
	}
	for _, tt := range tests {
		if got := q.Get(tt.param); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
		}
	}

	// スコープ未指定時はデフォルトスコープが入ること
	if got := q.Get("scope"); got != defaultScope {
		t.Errorf("scope = %q, want default scope", got)
	}
}

func TestExchange_SendsCodeAndVerifier(t *testing.T) {
	var gotForm url.Values
	var gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		gotForm = r.PostForm
		gotUser, gotPass, _ = r.BasicAuth()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)

	token, err := p.Exchange(context.Background(), "auth-code", "pkce-verifier")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if token.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", token.AccessToken)
	}
	if token.RefreshToken != "rt-1" {
		t.Errorf("RefreshToken = %q, want rt-1", token.RefreshToken)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q, want authorization_code", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "auth-code" {
		t.Errorf("code = %q, want auth-code", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != "pkce-verifier" {
		t.Errorf("code_verifier = %q, want pkce-verifier", gotForm.Get("code_verifier"))
	}

	// クライアント認証はBasic認証
	if gotUser != "client-id" || gotPass != "client-secret" {
		t.Errorf("basic auth = %q:%q, want client-id:client-secret", gotUser, gotPass)
	}
}

func TestRefresh_SendsRefreshToken(t *testing.T) {
	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2"}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)

	token, err := p.Refresh(context.Background(), "old-refresh-token")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	if gotForm.Get("grant_type") != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", gotForm.Get("grant_type"))
	}
	if gotForm.Get("refresh_token") != "old-refresh-token" {
		t.Errorf("refresh_token = %q, want old-refresh-token", gotForm.Get("refresh_token"))
	}
	if token.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q, want at-2", token.AccessToken)
	}
}

func TestExchange_TokenEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)

	if _, err := p.Exchange(context.Background(), "bad-code", "verifier"); err == nil {
		t.Fatal("expected error for non-200 token response")
	}
}

func TestExchange_EmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer server.Close()

	p := testProvider(server.URL)

	if _, err := p.Exchange(context.Background(), "code", "verifier"); err == nil {
		t.Fatal("expected error for empty access token")
	}
}

// PKCEチャレンジはverifierのSHA-256をパディングなしURLセーフbase64で表現する。
func TestGeneratePKCE_ChallengeMatchesVerifier(t *testing.T) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		t.Fatalf("generatePKCE returned error: %v", err)
	}

	sum := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if challenge != want {
		t.Errorf("challenge = %q, want %q", challenge, want)
	}

	if strings.ContainsAny(challenge, "+/=") {
		t.Errorf("challenge %q should be unpadded URL-safe base64", challenge)
	}
}

func TestGenerateState_Unique(t *testing.T) {
	a, err := generateState()
	if err != nil {
		t.Fatalf("generateState returned error: %v", err)
	}
	b, err := generateState()
	if err != nil {
		t.Fatalf("generateState returned error: %v", err)
	}
	if a == b {
		t.Error("two generated states should differ")
	}
	if len(a) == 0 {
		t.Error("state should not be empty")
	}
}
