package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/formbridge/internal/model"
)

type mockAccountFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountFinder) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return m.findByIDFn(ctx, id)
}

// ヘッダーなしのリクエストが401になることを検証
func TestAccountMiddleware_MissingHeader(t *testing.T) {
	mw := NewAccountMiddleware(&mockAccountFinder{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 未知のアカウントIDが401になることを検証
func TestAccountMiddleware_UnknownAccount(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return nil, nil
		},
	}
	mw := NewAccountMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("X-Account-Id", "ghost")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 検索エラー時に401になることを検証
func TestAccountMiddleware_FinderError(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return nil, errors.New("db down")
		},
	}
	mw := NewAccountMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("X-Account-Id", "account-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 有効なアカウントでコンテキストにIDが注入されることを検証
func TestAccountMiddleware_InjectsAccountID(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id}, nil
		},
	}
	mw := NewAccountMiddleware(finder)

	var gotID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := AccountIDFromContext(r.Context())
		if err != nil {
			t.Errorf("AccountIDFromContext returned error: %v", err)
		}
		gotID = id
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("X-Account-Id", "account-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != "account-1" {
		t.Errorf("account ID = %q, want account-1", gotID)
	}
}

// ミドルウェア外で生成したコンテキストからはIDが取れないことを検証
func TestAccountIDFromContext_Missing(t *testing.T) {
	if _, err := AccountIDFromContext(context.Background()); err == nil {
		t.Error("expected error for context without account ID")
	}
}
