package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/healthlog/internal/model"
)

// mockSessionFinder はSessionFinderのモック実装。
type mockSessionFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.findByIDFunc(ctx, id)
}

// mockPrincipalResolver はPrincipalResolverのモック実装。
type mockPrincipalResolver struct {
	resolveFunc func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error)
}

func (m *mockPrincipalResolver) Resolve(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
	return m.resolveFunc(ctx, identity)
}

// コンパイル時のインターフェース実装チェック
var (
	_ SessionFinder     = (*mockSessionFinder)(nil)
	_ PrincipalResolver = (*mockPrincipalResolver)(nil)
)

func validSession(id string) *model.Session {
	return &model.Session{
		ID: id,
		Identity: model.SessionIdentity{
			Provider:   model.ProviderLocal,
			OwnerToken: "acct-1",
		},
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
}

func assertUnauthorizedJSON(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
	if body.Category != "auth" {
		t.Errorf("error category = %q, want %q", body.Category, "auth")
	}
}

// TestSessionMiddleware_NoCookie はCookie不在のAPIリクエストが401になることを検証する。
func TestSessionMiddleware_NoCookie(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			t.Error("FindByID should not be called without a cookie")
			return nil, nil
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			return nil, errors.New("should not be called")
		},
	}

	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assertUnauthorizedJSON(t, w)
}

// TestSessionMiddleware_NoCookie_BrowserRedirect はブラウザ画面遷移がトップへリダイレクトされることを検証する。
func TestSessionMiddleware_NoCookie_BrowserRedirect(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			return nil, errors.New("should not be called")
		},
	}

	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}
}

// TestSessionMiddleware_UnknownSession は無効なセッションIDが未認証として扱われることを検証する。
func TestSessionMiddleware_UnknownSession(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "expired-session" {
				t.Errorf("FindByID id = %q, want %q", id, "expired-session")
			}
			// 期限切れセッションはリポジトリがnilを返す
			return nil, nil
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			t.Error("Resolve should not be called for an unknown session")
			return nil, nil
		},
	}

	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assertUnauthorizedJSON(t, w)
}

// TestSessionMiddleware_InjectsPrincipal は有効なセッションで解決済みPrincipalが注入されることを検証する。
func TestSessionMiddleware_InjectsPrincipal(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return validSession(id), nil
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			if identity.Provider != model.ProviderLocal {
				t.Errorf("identity.Provider = %q, want %q", identity.Provider, model.ProviderLocal)
			}
			if identity.OwnerToken != "acct-1" {
				t.Errorf("identity.OwnerToken = %q, want %q", identity.OwnerToken, "acct-1")
			}
			return &model.LocalPrincipal{ID: "acct-1", Username: "alice"}, nil
		},
	}

	var injected model.Principal
	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PrincipalFromContext(r.Context())
		if err != nil {
			t.Fatalf("PrincipalFromContext() error = %v", err)
		}
		injected = p
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if injected == nil {
		t.Fatal("expected a principal to be injected")
	}
	if injected.OwnerKey() != "alice" {
		t.Errorf("OwnerKey() = %q, want %q", injected.OwnerKey(), "alice")
	}
}

// TestSessionMiddleware_ResolutionFailureClearsCookie は
// Principal再解決の失敗でCookieが削除され未認証扱いになることを検証する。
func TestSessionMiddleware_ResolutionFailureClearsCookie(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return validSession(id), nil
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			// アカウント削除やプロセス再起動後のキャッシュミス
			return nil, model.NewUnknownAccountError()
		},
	}

	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "stale-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assertUnauthorizedJSON(t, w)

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected session cookie to be cleared")
	}
}

// TestSessionMiddleware_FinderError はセッション検索エラーが未認証として扱われることを検証する。
func TestSessionMiddleware_FinderError(t *testing.T) {
	sessions := &mockSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("database connection lost")
		},
	}
	resolver := &mockPrincipalResolver{
		resolveFunc: func(ctx context.Context, identity model.SessionIdentity) (model.Principal, error) {
			t.Error("Resolve should not be called")
			return nil, nil
		},
	}

	handler := NewSessionMiddleware(sessions, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "any-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assertUnauthorizedJSON(t, w)
}
