package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healthlog/internal/metrics"
	"github.com/hitoshi/healthlog/internal/middleware"
	"github.com/hitoshi/healthlog/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	LoginLocal(ctx context.Context, username, password string) (*model.Session, error)
	Register(ctx context.Context, username, password string) (*model.Session, error)
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はローカル認証・OAuth認証のHTTPハンドラー。
// どちらの経路も成功すると同一のセッションCookieを発行する。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// LoginLocal はユーザー名・パスワードでローカル認証する。
// POST /login
// フォーム送信の場合は成功でダッシュボード、失敗でトップへリダイレクトする。
// JSONリクエストには統一エラーフォーマットで応答する。
func (h *AuthHandler) LoginLocal(w http.ResponseWriter, r *http.Request) {
	username, password, ok := credentialsFromRequest(w, r)
	if !ok {
		return
	}

	session, err := h.service.LoginLocal(r.Context(), username, password)
	if err != nil {
		h.metrics.RecordLoginAttempt(model.ProviderLocal, "failure")
		h.denyLogin(w, r, err)
		return
	}

	h.metrics.RecordLoginAttempt(model.ProviderLocal, "success")
	h.metrics.RecordSessionIssued(model.ProviderLocal)
	h.setSessionCookie(w, session.ID)
	h.completeLogin(w, r)
}

// Register はローカルアカウントを作成し、そのままログインする。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	username, password, ok := credentialsFromRequest(w, r)
	if !ok {
		return
	}

	session, err := h.service.Register(r.Context(), username, password)
	if err != nil {
		h.metrics.RecordLoginAttempt(model.ProviderLocal, "failure")
		h.denyLogin(w, r, err)
		return
	}

	h.metrics.RecordLoginAttempt(model.ProviderLocal, "success")
	h.metrics.RecordSessionIssued(model.ProviderLocal)
	h.setSessionCookie(w, session.ID)
	h.completeLogin(w, r)
}

// GitHubLogin はGitHub OAuthフローを開始する。
// GET /auth/github
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GitHubCallback はGitHub OAuthコールバックを処理する。
// GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.metrics.RecordLoginAttempt(model.ProviderGitHub, "failure")
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		// コールバックはブラウザ遷移なので、ローカルログイン失敗と同様にトップへ誘導する
		http.Redirect(w, r, "/?error=1", http.StatusFound)
		return
	}

	h.metrics.RecordLoginAttempt(model.ProviderGitHub, "success")
	h.metrics.RecordSessionIssued(model.ProviderGitHub)

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID)

	// 5. ダッシュボードにリダイレクト
	http.Redirect(w, r, h.config.BaseURL+"/dashboard", http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄してトップへリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションをDBから削除し、OAuthプロファイルキャッシュも無効化する
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/user
// セッションミドルウェアの内側に配置し、解決済みPrincipalを返す。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"username": principal.DisplayName(),
		"provider": principal.Provider(),
	})
}

// credentialsFromRequest はフォームまたはJSONボディから認証情報を取り出す。
func credentialsFromRequest(w http.ResponseWriter, r *http.Request) (username, password string, ok bool) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
			return "", "", false
		}
		username, password = req.Username, req.Password
	} else {
		if err := r.ParseForm(); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("フォームの解析に失敗しました"))
			return "", "", false
		}
		username = r.PostFormValue("username")
		password = r.PostFormValue("password")
	}

	if username == "" || password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("username and password are required"))
		return "", "", false
	}

	return username, password, true
}

// denyLogin は認証失敗を応答する。フォーム送信はトップへ戻し、APIにはエラーを返す。
func (h *AuthHandler) denyLogin(w http.ResponseWriter, r *http.Request, err error) {
	if isFormSubmission(r) {
		http.Redirect(w, r, "/?error=1", http.StatusFound)
		return
	}
	handleServiceError(w, err)
}

// completeLogin は認証成功を応答する。フォーム送信はダッシュボードへ誘導する。
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request) {
	if isFormSubmission(r) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logged_in": true,
	})
}

// isFormSubmission はブラウザのフォーム送信かどうかを判定する。
func isFormSubmission(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

// setSessionCookie はセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
