// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healthlog/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに解決済みPrincipalを格納するためのキー。
var principalContextKey = contextKey("principal")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// PrincipalResolver はSessionIdentityからPrincipalを再構成するインターフェース。
// auth.Serviceの部分集合として定義する。
type PrincipalResolver interface {
	Resolve(ctx context.Context, identity model.SessionIdentity) (model.Principal, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// SessionIdentityをPrincipalへ再解決するアクセスガードを返す。
// 解決済みPrincipalをリクエストコンテキストに注入する。
// セッション不在・期限切れ・解決失敗（UnknownAccount含む）はすべて未認証として扱い、
// ブラウザナビゲーションはトップへリダイレクト、APIリクエストには401を返す。
func NewSessionMiddleware(sessions SessionFinder, resolver PrincipalResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				denyUnauthenticated(w, r)
				return
			}

			// 2. セッションの有効性を検証
			session, err := sessions.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				denyUnauthenticated(w, r)
				return
			}
			if session == nil {
				denyUnauthenticated(w, r)
				return
			}

			// 3. SessionIdentityをPrincipalへ再解決
			// UnknownAccount（アカウント削除・プロセス再起動後のキャッシュミス）は
			// 回復可能な通常の失敗として再ログインを強制する
			principal, err := resolver.Resolve(r.Context(), session.Identity)
			if err != nil {
				slog.Warn("failed to resolve principal",
					slog.String("provider", session.Identity.Provider),
					slog.String("error", err.Error()),
				)
				clearSessionCookie(w)
				denyUnauthenticated(w, r)
				return
			}

			// 4. 解決済みPrincipalをコンテキストに注入
			// 外側のLoggingミドルウェアにもowner-keyを書き戻す
			setRequestOwnerKey(r.Context(), principal.OwnerKey())
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから解決済みPrincipalを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || principal == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// ContextWithPrincipal はコンテキストにPrincipalを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// denyUnauthenticated は未認証リクエストを拒否する。
// ブラウザからの画面遷移はトップページへ誘導し、APIには統一エラーを返す。
func denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isBrowserNavigation(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// isBrowserNavigation はHTML画面遷移のリクエストかどうかを判定する。
func isBrowserNavigation(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// clearSessionCookie は無効になったセッションCookieを削除する。
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
